// internal/api/reservations/handlers.go
package reservations

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/booking"
	appdb "github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/timeslot"
)

var (
	controller *booking.Controller
	queries    *appdb.Queries
	initOnce   sync.Once
	timeout    = defaultRequestTimeout
)

const defaultRequestTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(c *booking.Controller, q *appdb.Queries, requestTimeout time.Duration) {
	if c == nil || q == nil {
		return
	}
	initOnce.Do(func() {
		controller = c
		queries = q
		if requestTimeout > 0 {
			timeout = requestTimeout
		}
	})
}

type participantRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type reservationRequest struct {
	CourtID      int64                `json:"court_id"`
	Day          string               `json:"day"`
	Start        string               `json:"start"`
	Participants []participantRequest `json:"participants"`
	// BypassHorizon is ignored unless the caller is an administrator.
	BypassHorizon bool `json:"bypass_horizon,omitempty"`
}

type participantResponse struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Kind      string `json:"kind"`
}

type reservationResponse struct {
	ID           int64                 `json:"id"`
	CourtID      int64                 `json:"court_id"`
	CourtName    string                `json:"court_name,omitempty"`
	Day          string                `json:"day"`
	Start        string                `json:"start"`
	End          string                `json:"end"`
	Singles      bool                  `json:"singles"`
	Participants []participantResponse `json:"participants"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

type rejectionResponse struct {
	Error      string              `json:"error"`
	Violations []booking.Violation `json:"violations"`
}

type listResponse struct {
	Reservations []reservationResponse `json:"reservations"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

// POST /api/v1/reservations
func HandleReservationCreate(w http.ResponseWriter, r *http.Request) {
	handleProposal(w, r, booking.ModeCreate)
}

// PUT /api/v1/reservations/{id}
func HandleReservationUpdate(w http.ResponseWriter, r *http.Request) {
	handleProposal(w, r, booking.ModeUpdate)
}

// DELETE /api/v1/reservations/{id}
func HandleReservationDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if controller == nil {
		logger.Error().Msg("Reservation handlers not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, nil)
		return
	}

	user := apiutil.RequireUser(w, r)
	if user == nil {
		return
	}
	reservationID, err := apiutil.PathID(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	_, err = controller.Propose(ctx, booking.Proposal{
		Mode:          booking.ModeDelete,
		ReservationID: reservationID,
		Actor:         user.Actor(),
	})
	if err != nil {
		writeProposalError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/reservations/{id}
func HandleReservationGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if queries == nil {
		logger.Error().Msg("Reservation handlers not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, nil)
		return
	}
	if apiutil.RequireUser(w, r) == nil {
		return
	}
	reservationID, err := apiutil.PathID(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	reservation, err := queries.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, apiutil.HandlerError{Status: http.StatusNotFound, Message: "Reservation not found"})
			return
		}
		logger.Error().Err(err).Int64("reservation_id", reservationID).Msg("Failed to fetch reservation")
		apiutil.WriteError(w, http.StatusServiceUnavailable, apiutil.HandlerError{Status: http.StatusServiceUnavailable, Message: "Failed to fetch reservation", Err: err})
		return
	}

	court, err := queries.GetCourt(ctx, reservation.CourtID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		logger.Warn().Err(err).Int64("court_id", reservation.CourtID).Msg("Failed to load court for reservation")
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, toResponse(reservation, court)); err != nil {
		logger.Error().Err(err).Int64("reservation_id", reservationID).Msg("Failed to write reservation response")
	}
}

// GET /api/v1/reservations?court_id=...&day=YYYY-MM-DD&limit=...&offset=...
func HandleReservationsList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if queries == nil {
		logger.Error().Msg("Reservation handlers not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, nil)
		return
	}
	if apiutil.RequireUser(w, r) == nil {
		return
	}

	params, err := listParamsFromQuery(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	reservations, err := queries.ListReservations(ctx, params)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list reservations")
		apiutil.WriteError(w, http.StatusServiceUnavailable, apiutil.HandlerError{Status: http.StatusServiceUnavailable, Message: "Failed to list reservations", Err: err})
		return
	}
	courts, err := queries.ListCourts(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load courts for reservation list")
	}
	courtsByID := make(map[int64]models.Court, len(courts))
	for _, c := range courts {
		courtsByID[c.ID] = c
	}

	body := listResponse{
		Reservations: make([]reservationResponse, 0, len(reservations)),
		Limit:        params.Limit,
		Offset:       params.Offset,
	}
	for _, res := range reservations {
		body.Reservations = append(body.Reservations, toResponse(res, courtsByID[res.CourtID]))
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, body); err != nil {
		logger.Error().Err(err).Msg("Failed to write reservation list response")
	}
}

func handleProposal(w http.ResponseWriter, r *http.Request, mode booking.Mode) {
	logger := log.Ctx(r.Context())
	if controller == nil {
		logger.Error().Msg("Reservation handlers not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, nil)
		return
	}

	user := apiutil.RequireUser(w, r)
	if user == nil {
		return
	}

	var reservationID int64
	if mode == booking.ModeUpdate {
		id, err := apiutil.PathID(r)
		if err != nil {
			apiutil.WriteError(w, http.StatusBadRequest, err)
			return
		}
		reservationID = id
	}

	var req reservationRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err)
		return
	}
	proposal, err := req.toProposal(mode, reservationID)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err)
		return
	}
	proposal.Actor = user.Actor()

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	result, err := controller.Propose(ctx, proposal)
	if err != nil {
		writeProposalError(w, r, err)
		return
	}

	if !result.Committed() {
		if err := apiutil.WriteJSON(w, http.StatusUnprocessableEntity, rejectionResponse{
			Error:      "Reservation rejected",
			Violations: result.Violations,
		}); err != nil {
			logger.Error().Err(err).Msg("Failed to write rejection response")
		}
		return
	}

	status := http.StatusOK
	if mode == booking.ModeCreate {
		status = http.StatusCreated
		w.Header().Set("Location", "/api/v1/reservations/"+strconv.FormatInt(result.ReservationID, 10))
	}
	if err := apiutil.WriteJSON(w, status, toResponse(result.Reservation, result.Court)); err != nil {
		logger.Error().Err(err).Int64("reservation_id", result.ReservationID).Msg("Failed to write reservation response")
	}
}

func writeProposalError(w http.ResponseWriter, r *http.Request, err error) {
	switch booking.StatusOf(err) {
	case booking.StatusNotFound:
		apiutil.WriteError(w, http.StatusNotFound, apiutil.HandlerError{Status: http.StatusNotFound, Message: "Reservation not found", Err: err})
	case booking.StatusForbidden:
		apiutil.WriteError(w, http.StatusForbidden, apiutil.HandlerError{Status: http.StatusForbidden, Message: "Only an administrator or a participant may change this reservation", Err: err})
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("Reservation storage unavailable")
		w.Header().Set("Retry-After", "1")
		apiutil.WriteError(w, http.StatusServiceUnavailable, apiutil.HandlerError{Status: http.StatusServiceUnavailable, Message: "Reservation storage unavailable, try again", Err: err})
	}
}

func (req reservationRequest) toProposal(mode booking.Mode, reservationID int64) (booking.Proposal, error) {
	if req.CourtID <= 0 {
		return booking.Proposal{}, apiutil.FieldError{Field: "court_id", Reason: "must be greater than 0"}
	}
	day, err := apiutil.ParseDayField(req.Day, "day")
	if err != nil {
		return booking.Proposal{}, err
	}
	start, err := apiutil.ParseTimeOfDayField(req.Start, "start")
	if err != nil {
		return booking.Proposal{}, err
	}

	participants := make([]models.Participant, 0, len(req.Participants))
	for _, p := range req.Participants {
		participants = append(participants, models.Participant{FirstName: p.FirstName, LastName: p.LastName})
	}

	return booking.Proposal{
		Mode:          mode,
		ReservationID: reservationID,
		CourtID:       req.CourtID,
		Day:           day,
		Start:         start,
		Participants:  participants,
		BypassHorizon: req.BypassHorizon,
	}, nil
}

func listParamsFromQuery(r *http.Request) (appdb.ListReservationsParams, error) {
	query := r.URL.Query()
	var params appdb.ListReservationsParams

	if raw := query.Get("court_id"); raw != "" {
		courtID, err := apiutil.ParsePositiveInt64Field(raw, "court_id")
		if err != nil {
			return params, err
		}
		params.CourtID = courtID
	}
	if raw := query.Get("day"); raw != "" {
		day, err := apiutil.ParseDayField(raw, "day")
		if err != nil {
			return params, err
		}
		params.Day = day
	}

	limit, err := apiutil.ParseNonNegativeIntField(query.Get("limit"), "limit", 50)
	if err != nil {
		return params, err
	}
	if limit == 0 || limit > 200 {
		limit = 50
	}
	offset, err := apiutil.ParseNonNegativeIntField(query.Get("offset"), "offset", 0)
	if err != nil {
		return params, err
	}
	params.Limit = limit
	params.Offset = offset
	return params, nil
}

func toResponse(res models.Reservation, court models.Court) reservationResponse {
	participants := make([]participantResponse, 0, len(res.Participants))
	for _, p := range res.Participants {
		participants = append(participants, participantResponse{
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Kind:      p.Kind.Label(),
		})
	}
	return reservationResponse{
		ID:           res.ID,
		CourtID:      res.CourtID,
		CourtName:    court.Name,
		Day:          timeslot.FormatDay(res.Day),
		Start:        res.Start.String(),
		End:          res.End.String(),
		Singles:      res.Singles,
		Participants: participants,
		CreatedAt:    res.CreatedAt,
		UpdatedAt:    res.UpdatedAt,
	}
}
