// internal/api/members/handlers.go
package members

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/api/authz"
	appdb "github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
)

var queries *appdb.Queries

const membersQueryTimeout = 5 * time.Second

// MemberView is the member representation returned by the API.
type MemberView struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Kind      string `json:"kind"`
}

func InitHandlers(q *appdb.Queries) {
	queries = q
}

// GET /api/v1/members (administrators)
func HandleMembersList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, nil)
		return
	}

	limit, err := apiutil.ParseNonNegativeIntField(r.URL.Query().Get("limit"), "limit", 25)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err)
		return
	}
	offset, err := apiutil.ParseNonNegativeIntField(r.URL.Query().Get("offset"), "offset", 0)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), membersQueryTimeout)
	defer cancel()

	members, err := queries.ListMembers(ctx, appdb.ListMembersParams{Limit: limit, Offset: offset})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list members")
		apiutil.WriteError(w, http.StatusServiceUnavailable, apiutil.HandlerError{Status: http.StatusServiceUnavailable, Message: "Failed to list members", Err: err})
		return
	}

	views := make([]MemberView, len(members))
	for i, m := range members {
		views[i] = toView(m)
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, views); err != nil {
		logger.Error().Err(err).Msg("Failed to write members response")
	}
}

// GET /api/v1/members/{id} (administrators, or the member themself)
func HandleMemberGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, nil)
		return
	}

	user := apiutil.RequireUser(w, r)
	if user == nil {
		return
	}
	memberID, err := apiutil.PathID(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if !authz.IsAdmin(user) && user.MemberID != memberID {
		apiutil.WriteError(w, http.StatusForbidden, apiutil.HandlerError{Status: http.StatusForbidden, Message: "Forbidden"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), membersQueryTimeout)
	defer cancel()

	member, err := queries.GetMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, apiutil.HandlerError{Status: http.StatusNotFound, Message: "Member not found"})
			return
		}
		logger.Error().Err(err).Int64("member_id", memberID).Msg("Failed to fetch member")
		apiutil.WriteError(w, http.StatusServiceUnavailable, apiutil.HandlerError{Status: http.StatusServiceUnavailable, Message: "Failed to fetch member", Err: err})
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, toView(member)); err != nil {
		logger.Error().Err(err).Int64("member_id", memberID).Msg("Failed to write member response")
	}
}

func toView(m models.Member) MemberView {
	return MemberView{
		ID:        m.ID,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Email:     m.Email,
		Phone:     m.Phone,
		Kind:      m.Kind.Label(),
	}
}
