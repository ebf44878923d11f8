// internal/api/courts/handlers.go
package courts

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	appdb "github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
)

var (
	queries     *appdb.Queries
	queriesOnce sync.Once
)

const courtsQueryTimeout = 5 * time.Second

type courtResponse struct {
	models.Court
	RequiredPlayers string `json:"required_players"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(q *appdb.Queries) {
	if q == nil {
		return
	}
	queriesOnce.Do(func() {
		queries = q
	})
}

// GET /api/v1/courts
func HandleCourtsList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	courts, err := q.ListCourts(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list courts")
		apiutil.WriteError(w, http.StatusServiceUnavailable, apiutil.HandlerError{Status: http.StatusServiceUnavailable, Message: "Failed to list courts", Err: err})
		return
	}

	body := make([]courtResponse, 0, len(courts))
	for _, c := range courts {
		body = append(body, courtResponse{Court: c, RequiredPlayers: c.RequiredPlayers()})
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, body); err != nil {
		logger.Error().Err(err).Msg("Failed to write courts response")
	}
}

// GET /api/v1/courts/{id}
func HandleCourtGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, nil)
		return
	}

	courtID, err := apiutil.PathID(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	court, err := q.GetCourt(ctx, courtID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, apiutil.HandlerError{Status: http.StatusNotFound, Message: "Court not found"})
			return
		}
		logger.Error().Err(err).Int64("court_id", courtID).Msg("Failed to fetch court")
		apiutil.WriteError(w, http.StatusServiceUnavailable, apiutil.HandlerError{Status: http.StatusServiceUnavailable, Message: "Failed to fetch court", Err: err})
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, courtResponse{Court: court, RequiredPlayers: court.RequiredPlayers()}); err != nil {
		logger.Error().Err(err).Int64("court_id", courtID).Msg("Failed to write court response")
	}
}

func loadQueries() *appdb.Queries {
	return queries
}
