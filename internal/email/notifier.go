package email

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/models"
)

const (
	reservationEmailTimeout = 10 * time.Second
	maxConcurrentSends      = 4
)

// Notifier emails participants who have a member record with an address whenever the
// admission controller commits a reservation change. Sends run in the background.
type Notifier struct {
	directory booking.MemberDirectory
	sender    Sender
	clubName  string
	location  *time.Location
	timeout   time.Duration

	wg sync.WaitGroup
}

var _ booking.Notifier = (*Notifier)(nil)

func NewNotifier(directory booking.MemberDirectory, sender Sender, clubName string, loc *time.Location) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{
		directory: directory,
		sender:    sender,
		clubName:  clubName,
		location:  loc,
		timeout:   reservationEmailTimeout,
	}
}

func (n *Notifier) ReservationSaved(ctx context.Context, mode booking.Mode, court models.Court, reservation models.Reservation) {
	details := DescribeReservation(n.clubName, court, reservation, n.location)
	details.Updated = mode == booking.ModeUpdate
	n.dispatch(ctx, reservation, BuildConfirmation(details))
}

func (n *Notifier) ReservationDeleted(ctx context.Context, court models.Court, reservation models.Reservation) {
	details := DescribeReservation(n.clubName, court, reservation, n.location)
	n.dispatch(ctx, reservation, BuildCancellation(details))
}

// Wait blocks until every background send has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) dispatch(ctx context.Context, reservation models.Reservation, message Message) {
	if n == nil || n.sender == nil || n.directory == nil {
		return
	}
	if len(reservation.Participants) == 0 {
		return
	}

	logger := log.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		l := log.Logger
		logger = &l
	}
	participants := append([]models.Participant(nil), reservation.Participants...)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sendCtx, cancel := newEmailContext(ctx, n.timeout)
		defer cancel()

		recipients := n.recipients(sendCtx, participants, logger)
		if len(recipients) == 0 {
			return
		}

		g, gctx := errgroup.WithContext(sendCtx)
		g.SetLimit(maxConcurrentSends)
		for _, recipient := range recipients {
			g.Go(func() error {
				if err := n.sender.Send(gctx, recipient, message.Subject, message.Body); err != nil {
					logger.Error().
						Err(err).
						Int64("reservation_id", reservation.ID).
						Str("recipient", recipient).
						Msg("Failed to send reservation email")
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (n *Notifier) recipients(ctx context.Context, participants []models.Participant, logger *zerolog.Logger) []string {
	seen := make(map[string]bool, len(participants))
	out := make([]string, 0, len(participants))
	for _, p := range participants {
		member, err := n.directory.FindMemberByName(ctx, p.NameKey())
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				logger.Error().Err(err).Str("participant", p.FullName()).Msg("Failed to load member for reservation email")
			}
			continue
		}
		recipient := strings.TrimSpace(member.Email)
		if recipient == "" || seen[strings.ToLower(recipient)] {
			continue
		}
		seen[strings.ToLower(recipient)] = true
		out = append(out, recipient)
	}
	return out
}
