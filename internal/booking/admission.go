// Package booking decides whether a reservation may be created, replaced or deleted, and
// performs the write when it may.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	appdb "github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/roster"
	"github.com/codr1/courtbook/internal/timeslot"
)

var (
	ErrNotFound           = errors.New("reservation not found")
	ErrForbidden          = errors.New("forbidden")
	ErrStorageUnavailable = errors.New("reservation storage unavailable")
)

const (
	DefaultHorizon     = 24 * time.Hour
	defaultMaxAttempts = 2
)

type Mode int

const (
	ModeCreate Mode = iota + 1
	ModeUpdate
	ModeDelete
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeUpdate:
		return "update"
	case ModeDelete:
		return "delete"
	}
	return "unknown"
}

type Status int

const (
	StatusCommitted Status = iota + 1
	StatusRejected
	StatusNotFound
	StatusForbidden
	StatusStorageUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusCommitted:
		return "committed"
	case StatusRejected:
		return "rejected"
	case StatusNotFound:
		return "not_found"
	case StatusForbidden:
		return "forbidden"
	case StatusStorageUnavailable:
		return "storage_unavailable"
	}
	return "unknown"
}

// StatusOf maps an error returned by Propose to its result status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusCommitted
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	case errors.Is(err, ErrForbidden):
		return StatusForbidden
	default:
		return StatusStorageUnavailable
	}
}

// Proposal is a whole-object request to create, replace or delete a reservation. Update
// replaces the court, day, start and participant list together; End is always recomputed
// from the court's match length.
type Proposal struct {
	Mode          Mode
	ReservationID int64
	CourtID       int64
	Day           time.Time
	Start         timeslot.TimeOfDay
	Participants  []models.Participant
	Actor         models.Actor
	// BypassHorizon skips the booking-horizon rule. Honored for administrators only.
	BypassHorizon bool
}

// Result describes an admitted or rejected proposal. NotFound, Forbidden and storage
// failures are reported as errors instead.
type Result struct {
	Status        Status
	ReservationID int64
	Reservation   models.Reservation
	Court         models.Court
	Violations    []Violation
}

func (r Result) Committed() bool {
	return r.Status == StatusCommitted
}

// Clock supplies "now" for the booking-horizon rule.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Notifier is told about committed writes after the transaction has closed.
type Notifier interface {
	ReservationSaved(ctx context.Context, mode Mode, court models.Court, reservation models.Reservation)
	ReservationDeleted(ctx context.Context, court models.Court, reservation models.Reservation)
}

type Config struct {
	Horizon  time.Duration
	Location *time.Location
	// Clock for testing (nil uses real time)
	Clock Clock
	// MaxAttempts bounds tries per proposal when the store reports a serialization failure.
	MaxAttempts int
	Notifier    Notifier
}

// Controller is the only writer of reservations.
type Controller struct {
	db          *appdb.DB
	horizon     time.Duration
	location    *time.Location
	clock       Clock
	maxAttempts int
	notifier    Notifier
}

func NewController(database *appdb.DB, cfg Config) (*Controller, error) {
	if database == nil {
		return nil, errors.New("admission controller requires a database")
	}
	c := &Controller{
		db:          database,
		horizon:     cfg.Horizon,
		location:    cfg.Location,
		clock:       cfg.Clock,
		maxAttempts: cfg.MaxAttempts,
		notifier:    cfg.Notifier,
	}
	if c.horizon <= 0 {
		c.horizon = DefaultHorizon
	}
	if c.location == nil {
		c.location = time.Local
	}
	if c.clock == nil {
		c.clock = realClock{}
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	return c, nil
}

// Propose validates and applies p. Rule violations come back as a Rejected result with a
// nil error; ErrNotFound, ErrForbidden and ErrStorageUnavailable are returned as errors.
func (c *Controller) Propose(ctx context.Context, p Proposal) (Result, error) {
	logger := log.Ctx(ctx).With().
		Str("component", "admission").
		Str("mode", p.Mode.String()).
		Int64("reservation_id", p.ReservationID).
		Int64("actor_id", p.Actor.MemberID).
		Str("actor_role", string(p.Actor.Role)).
		Logger()

	var attempt func(context.Context) (Result, error)
	switch p.Mode {
	case ModeCreate, ModeUpdate:
		if p.Mode == ModeUpdate && p.ReservationID <= 0 {
			return c.invalid(&logger, "update requires a reservation id")
		}
		if p.Day.IsZero() {
			return c.invalid(&logger, "day is required")
		}
		if p.Start < 0 || p.Start >= timeslot.EndOfDay {
			return c.invalid(&logger, "start time is out of range")
		}
		attempt = func(ctx context.Context) (Result, error) { return c.admit(ctx, p) }
	case ModeDelete:
		if p.ReservationID <= 0 {
			return c.invalid(&logger, "delete requires a reservation id")
		}
		attempt = func(ctx context.Context) (Result, error) { return c.remove(ctx, p) }
	default:
		return c.invalid(&logger, fmt.Sprintf("unknown mode %d", p.Mode))
	}

	result, err := c.withRetry(ctx, &logger, attempt)
	if err != nil {
		result.Status = StatusOf(err)
		if result.Status == StatusStorageUnavailable {
			logger.Error().Err(err).Msg("Reservation proposal failed on storage")
		} else {
			logger.Warn().Err(err).Msg("Reservation proposal refused")
		}
		return result, err
	}

	switch result.Status {
	case StatusRejected:
		codes := make([]string, len(result.Violations))
		for i, v := range result.Violations {
			codes[i] = string(v.Code)
		}
		logger.Debug().Strs("violations", codes).Msg("Reservation proposal rejected")
	case StatusCommitted:
		logger.Info().Int64("stored_id", result.ReservationID).Msg("Reservation proposal committed")
		c.notify(ctx, p.Mode, result)
	}
	return result, nil
}

// invalid rejects a malformed proposal before any storage access.
func (c *Controller) invalid(logger *zerolog.Logger, message string) (Result, error) {
	logger.Debug().Str("reason", message).Msg("Reservation proposal malformed")
	return Result{
		Status:     StatusRejected,
		Violations: []Violation{{Code: CodeInvalidProposal, Message: message}},
	}, nil
}

// withRetry runs fn and repeats it with a fresh transaction when the store reports a
// serialization failure, up to maxAttempts tries.
func (c *Controller) withRetry(ctx context.Context, logger *zerolog.Logger, fn func(context.Context) (Result, error)) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
			return Result{}, err
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, ctxErr)
		}
		if !appdb.IsSerializationFailure(err) {
			break
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("Reservation write conflicted, retrying with a fresh snapshot")
	}
	return Result{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, lastErr)
}

func (c *Controller) admit(ctx context.Context, p Proposal) (Result, error) {
	var result Result
	err := c.db.RunInTx(ctx, func(txdb *appdb.DB) error {
		q := txdb.Queries

		if p.Mode == ModeUpdate {
			existing, err := q.GetReservation(ctx, p.ReservationID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrNotFound
				}
				return fmt.Errorf("load reservation %d: %w", p.ReservationID, err)
			}
			if !mayModify(p.Actor, existing) {
				return ErrForbidden
			}
		}

		court, err := q.GetCourt(ctx, p.CourtID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				result = Result{
					Status: StatusRejected,
					Violations: []Violation{{
						Code:    CodeUnknownCourt,
						Message: fmt.Sprintf("court %d does not exist", p.CourtID),
					}},
				}
				return nil
			}
			return fmt.Errorf("load court %d: %w", p.CourtID, err)
		}

		interval := timeslot.New(p.Day, p.Start, court.MatchMinutes)
		var violations []Violation
		if interval.End > timeslot.EndOfDay {
			violations = append(violations, Violation{
				Code:    CodePastMidnight,
				Message: fmt.Sprintf("a %d minute match starting at %s would end after midnight", court.MatchMinutes, interval.Start),
			})
		}

		participants, err := ResolveParticipants(ctx, q, p.Participants)
		if err != nil {
			return err
		}

		snapshot, err := roster.Take(ctx, roster.NewReader(q), court.ID, interval.Day, participants)
		if err != nil {
			return err
		}

		candidate := Candidate{
			Court:        court,
			Interval:     interval,
			Participants: participants,
		}
		if p.Mode == ModeUpdate {
			candidate.ReplacesID = p.ReservationID
		}
		violations = append(violations, Evaluate(candidate, snapshot, HorizonPolicy{
			Now:      c.clock.Now(),
			Window:   c.horizon,
			Location: c.location,
			Bypass:   p.BypassHorizon && p.Actor.IsAdmin(),
		})...)
		if len(violations) > 0 {
			result = Result{Status: StatusRejected, Court: court, Violations: violations}
			return nil
		}

		params := appdb.ReservationParams{
			CourtID: court.ID,
			Day:     interval.Day,
			Start:   interval.Start,
			End:     interval.End,
			Singles: court.AllowsSingles,
		}

		reservationID := p.ReservationID
		if p.Mode == ModeCreate {
			reservationID, err = q.CreateReservation(ctx, params)
			if err != nil {
				return fmt.Errorf("create reservation: %w", err)
			}
		} else {
			updated, err := q.UpdateReservation(ctx, reservationID, params)
			if err != nil {
				return fmt.Errorf("update reservation %d: %w", reservationID, err)
			}
			if updated == 0 {
				return ErrNotFound
			}
			if err := q.RemoveParticipants(ctx, reservationID); err != nil {
				return fmt.Errorf("clear participants of reservation %d: %w", reservationID, err)
			}
		}

		for i, participant := range participants {
			if err := q.AddParticipant(ctx, reservationID, i+1, participant); err != nil {
				return fmt.Errorf("add participant %s: %w", participant.FullName(), err)
			}
		}

		stored, err := q.GetReservation(ctx, reservationID)
		if err != nil {
			return fmt.Errorf("reload reservation %d: %w", reservationID, err)
		}
		result = Result{
			Status:        StatusCommitted,
			ReservationID: reservationID,
			Reservation:   stored,
			Court:         court,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func (c *Controller) remove(ctx context.Context, p Proposal) (Result, error) {
	var result Result
	err := c.db.RunInTx(ctx, func(txdb *appdb.DB) error {
		q := txdb.Queries

		existing, err := q.GetReservation(ctx, p.ReservationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("load reservation %d: %w", p.ReservationID, err)
		}
		if !mayModify(p.Actor, existing) {
			return ErrForbidden
		}

		court, err := q.GetCourt(ctx, existing.CourtID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load court %d: %w", existing.CourtID, err)
		}

		if err := q.RemoveParticipants(ctx, existing.ID); err != nil {
			return fmt.Errorf("remove participants of reservation %d: %w", existing.ID, err)
		}
		deleted, err := q.DeleteReservation(ctx, existing.ID)
		if err != nil {
			return fmt.Errorf("delete reservation %d: %w", existing.ID, err)
		}
		if deleted == 0 {
			return ErrNotFound
		}

		result = Result{
			Status:        StatusCommitted,
			ReservationID: existing.ID,
			Reservation:   existing,
			Court:         court,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// mayModify reports whether actor may replace or delete the reservation: administrators
// always, members only when they are on its roster.
func mayModify(actor models.Actor, reservation models.Reservation) bool {
	if actor.IsAdmin() {
		return true
	}
	if actor.Role != models.RoleMember {
		return false
	}
	return reservation.HasParticipant(actor.NameKey())
}

func (c *Controller) notify(ctx context.Context, mode Mode, result Result) {
	if c.notifier == nil {
		return
	}
	if mode == ModeDelete {
		c.notifier.ReservationDeleted(ctx, result.Court, result.Reservation)
		return
	}
	c.notifier.ReservationSaved(ctx, mode, result.Court, result.Reservation)
}
