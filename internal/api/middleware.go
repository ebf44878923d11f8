// internal/api/middleware.go
package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/models"
)

const (
	HeaderMemberID  = "X-Auth-Member-ID"
	HeaderRole      = "X-Auth-Role"
	HeaderRequestID = "X-Request-ID"

	authLookupTimeout = 2 * time.Second
)

type Middleware func(http.Handler) http.Handler

type requestIDKey struct{}

// MemberLookup resolves the member behind an authenticated request.
type MemberLookup interface {
	GetMember(ctx context.Context, id int64) (models.Member, error)
}

func ChainMiddleware(h http.Handler, middleware ...Middleware) http.Handler {
	for _, m := range middleware {
		h = m(h)
	}
	return h
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create response wrapper to capture status code
		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Str("request_id", RequestIDFromContext(r.Context())).
			Msg("Request completed")
	})
}

func WithRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger := log.Ctx(r.Context())
				stack := debug.Stack()
				logger.Error().
					Interface("error", err).
					Str("stack", string(stack)).
					Msg("Panic recovered")

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// WithRequestID tags the request with an ID, reusing a well-formed incoming X-Request-ID.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.New().String()
		}

		logger := log.With().Str("request_id", requestID).Logger()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		ctx = logger.WithContext(ctx)

		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithAuth trusts the identity headers set by the fronting gateway. Requests without them,
// or naming an unknown member, continue unauthenticated.
func WithAuth(members MemberLookup) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := userFromHeaders(r, members)
			if err != nil {
				log.Ctx(r.Context()).Warn().Err(err).Msg("Failed to load auth identity")
				next.ServeHTTP(w, r)
				return
			}

			if user != nil {
				ctx := authz.ContextWithUser(r.Context(), user)
				logger := log.Ctx(ctx).With().
					Int64("member_id", user.MemberID).
					Str("role", string(user.Role)).
					Logger()
				r = r.WithContext(logger.WithContext(ctx))
			}

			next.ServeHTTP(w, r)
		})
	}
}

func userFromHeaders(r *http.Request, members MemberLookup) (*authz.AuthUser, error) {
	rawID := strings.TrimSpace(r.Header.Get(HeaderMemberID))
	if rawID == "" {
		return nil, nil
	}
	memberID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || memberID <= 0 {
		return nil, errors.New("invalid member id header")
	}

	role := models.RoleMember
	if rawRole := r.Header.Get(HeaderRole); strings.TrimSpace(rawRole) != "" {
		role, err = models.ParseRole(rawRole)
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), authLookupTimeout)
	defer cancel()
	member, err := members.GetMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("unknown member")
		}
		return nil, err
	}

	return &authz.AuthUser{
		MemberID:  member.ID,
		FirstName: member.FirstName,
		LastName:  member.LastName,
		Role:      role,
	}, nil
}

func WithAdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.Ctx(r.Context())
		if err := authz.RequireAdmin(r.Context()); err != nil {
			switch {
			case errors.Is(err, authz.ErrUnauthenticated):
				logger.Warn().Msg("Admin access denied: unauthenticated")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
			case errors.Is(err, authz.ErrForbidden):
				logger.Warn().Msg("Admin access denied: forbidden")
				http.Error(w, "Forbidden", http.StatusForbidden)
			default:
				logger.Error().Err(err).Msg("Admin access denied: error")
				http.Error(w, "Failed to authorize request", http.StatusInternalServerError)
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseWriter wrapper to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
