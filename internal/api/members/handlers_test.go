package members

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/testutil"
)

func TestMemberHandlers(t *testing.T) {
	database := testutil.NewTestDB(t)
	ana := testutil.InsertMember(t, database, "Ana", "Garcia", "ana@example.com", models.KindMember)
	pablo := testutil.InsertMember(t, database, "Pablo", "Sanz", "", models.KindWalkingMember)

	prev := queries
	queries = database.Queries
	t.Cleanup(func() { queries = prev })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/members", HandleMembersList)
	mux.HandleFunc("GET /api/v1/members/{id}", HandleMemberGet)

	admin := &authz.AuthUser{MemberID: 999, Role: models.RoleAdmin}
	self := &authz.AuthUser{MemberID: pablo.ID, FirstName: "Pablo", LastName: "Sanz", Role: models.RoleMember}

	do := func(user *authz.AuthUser, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if user != nil {
			req = req.WithContext(authz.ContextWithUser(context.Background(), user))
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := do(admin, "/api/v1/members?limit=1&offset=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var list []MemberView
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode members: %v", err)
	}
	// Ordered by last name: Garcia, Sanz.
	if len(list) != 1 || list[0].ID != pablo.ID || list[0].Kind != "walking member" {
		t.Fatalf("unexpected page %+v", list)
	}

	if rec := do(admin, "/api/v1/members?limit=-1"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", rec.Code)
	}

	rec = do(self, "/api/v1/members/"+strconv.FormatInt(pablo.ID, 10))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected member to read own record, got %d", rec.Code)
	}

	if rec := do(self, "/api/v1/members/"+strconv.FormatInt(ana.ID, 10)); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another member's record, got %d", rec.Code)
	}
	if rec := do(nil, "/api/v1/members/"+strconv.FormatInt(ana.ID, 10)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}

	rec = do(admin, "/api/v1/members/"+strconv.FormatInt(ana.ID, 10))
	var view MemberView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode member: %v", err)
	}
	if view.Email != "ana@example.com" || view.Kind != "member" {
		t.Fatalf("unexpected member %+v", view)
	}

	if rec := do(admin, "/api/v1/members/9999"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
