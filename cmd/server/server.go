// cmd/server/server.go
package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api"
	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/api/courts"
	"github.com/codr1/courtbook/internal/api/members"
	"github.com/codr1/courtbook/internal/api/reservations"
	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/config"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/ratelimit"
)

func newServer(cfg *config.Config, database *db.DB, controller *booking.Controller, limiter *ratelimit.Limiter) *http.Server {
	router := http.NewServeMux()

	reservations.InitHandlers(controller, database.Queries, cfg.RequestTimeout())
	courts.InitHandlers(database.Queries)
	members.InitHandlers(database.Queries)

	handler := withMiddleware(router, database.Queries, limiter)

	registerRoutes(router, database)

	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// withMiddleware wraps h. The first chain entry runs innermost; recovery stays inside logging.
func withMiddleware(h http.Handler, members api.MemberLookup, limiter *ratelimit.Limiter) http.Handler {
	chain := []api.Middleware{}
	if limiter != nil {
		chain = append(chain, api.Middleware(limiter.Middleware(authenticatedMemberID)))
	}
	chain = append(chain,
		api.WithAuth(members),
		api.WithRecovery,
		api.WithLogging,
		api.WithRequestID,
	)
	return api.ChainMiddleware(h, chain...)
}

func authenticatedMemberID(r *http.Request) int64 {
	if user := authz.UserFromContext(r.Context()); user != nil {
		return user.MemberID
	}
	return 0
}

func registerRoutes(mux *http.ServeMux, database *db.DB) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := database.PingContext(ctx); err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("Health check failed")
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Reservation routes
	mux.HandleFunc("POST /api/v1/reservations", reservations.HandleReservationCreate)
	mux.HandleFunc("GET /api/v1/reservations", reservations.HandleReservationsList)
	mux.HandleFunc("GET /api/v1/reservations/{id}", reservations.HandleReservationGet)
	mux.HandleFunc("PUT /api/v1/reservations/{id}", reservations.HandleReservationUpdate)
	mux.HandleFunc("DELETE /api/v1/reservations/{id}", reservations.HandleReservationDelete)

	// Court routes
	mux.HandleFunc("GET /api/v1/courts", courts.HandleCourtsList)
	mux.HandleFunc("GET /api/v1/courts/{id}", courts.HandleCourtGet)

	// Member routes
	mux.Handle("GET /api/v1/members", api.WithAdminAuth(http.HandlerFunc(members.HandleMembersList)))
	mux.HandleFunc("GET /api/v1/members/{id}", members.HandleMemberGet)
}
