package reservations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/testutil"
)

var handlerNow = time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)

type handlerFixture struct {
	mux   *http.ServeMux
	court models.Court
	ana   *authz.AuthUser
	pablo *authz.AuthUser
	admin *authz.AuthUser
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	database := testutil.NewTestDB(t)
	ana := testutil.InsertMember(t, database, "Ana", "Garcia", "ana@example.com", models.KindMember)
	pablo := testutil.InsertMember(t, database, "Pablo", "Sanz", "", models.KindMember)
	court := testutil.InsertCourt(t, database, "Pista 1", 60, true)

	c, err := booking.NewController(database, booking.Config{
		Location: time.UTC,
		Clock:    testutil.NewMockClock(handlerNow),
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	prevController, prevQueries := controller, queries
	controller = c
	queries = database.Queries
	t.Cleanup(func() {
		controller = prevController
		queries = prevQueries
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/reservations", HandleReservationCreate)
	mux.HandleFunc("GET /api/v1/reservations", HandleReservationsList)
	mux.HandleFunc("GET /api/v1/reservations/{id}", HandleReservationGet)
	mux.HandleFunc("PUT /api/v1/reservations/{id}", HandleReservationUpdate)
	mux.HandleFunc("DELETE /api/v1/reservations/{id}", HandleReservationDelete)

	return &handlerFixture{
		mux:   mux,
		court: court,
		ana:   &authz.AuthUser{MemberID: ana.ID, FirstName: "Ana", LastName: "Garcia", Role: models.RoleMember},
		pablo: &authz.AuthUser{MemberID: pablo.ID, FirstName: "Pablo", LastName: "Sanz", Role: models.RoleMember},
		admin: &authz.AuthUser{MemberID: 999, FirstName: "Club", LastName: "Admin", Role: models.RoleAdmin},
	}
}

func (f *handlerFixture) do(t *testing.T, user *authz.AuthUser, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req = req.WithContext(authz.ContextWithUser(context.Background(), user))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) createBody(start string, players ...string) string {
	participants := make([]string, 0, len(players)/2)
	for i := 0; i+1 < len(players); i += 2 {
		participants = append(participants, `{"first_name":"`+players[i]+`","last_name":"`+players[i+1]+`"}`)
	}
	return `{"court_id":` + strconv.FormatInt(f.court.ID, 10) +
		`,"day":"2026-10-18","start":"` + start + `","participants":[` + strings.Join(participants, ",") + `]}`
}

func decodeReservation(t *testing.T, rec *httptest.ResponseRecorder) reservationResponse {
	t.Helper()
	var body reservationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestCreateReservationCommits(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, f.ana, http.MethodPost, "/api/v1/reservations", f.createBody("10:00", "Ana", "Garcia", "Luis", "Perez"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeReservation(t, rec)
	if body.Start != "10:00" || body.End != "11:00" || body.Day != "2026-10-18" {
		t.Fatalf("unexpected interval %s %s-%s", body.Day, body.Start, body.End)
	}
	if !body.Singles || len(body.Participants) != 2 || body.CourtName != "Pista 1" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Participants[1].Kind != "non-member" {
		t.Fatalf("expected Luis to resolve to a non-member, got %q", body.Participants[1].Kind)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/reservations/"+strconv.FormatInt(body.ID, 10) {
		t.Fatalf("unexpected Location header %q", loc)
	}
}

func TestCreateReservationRejectedReturnsViolations(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, f.ana, http.MethodPost, "/api/v1/reservations", f.createBody("10:00", "Ana", "Garcia", "Luis", "Perez"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed reservation: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, f.pablo, http.MethodPost, "/api/v1/reservations", f.createBody("10:30", "Pablo", "Sanz", "Marta", "Ruiz"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var body rejectionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode rejection: %v", err)
	}
	if !booking.HasCode(body.Violations, booking.CodeCourtOverlap) {
		t.Fatalf("expected court overlap violation, got %+v", body.Violations)
	}
}

func TestCreateReservationRequiresIdentity(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, nil, http.MethodPost, "/api/v1/reservations", f.createBody("10:00", "Ana", "Garcia", "Luis", "Perez"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateReservationValidatesPayload(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"court_id":`},
		{"unknown field", `{"court_id":1,"day":"2026-10-18","start":"10:00","participants":[],"extra":true}`},
		{"missing court", `{"day":"2026-10-18","start":"10:00","participants":[]}`},
		{"bad day", `{"court_id":1,"day":"18/10/2026","start":"10:00","participants":[]}`},
		{"bad start", `{"court_id":1,"day":"2026-10-18","start":"25:00","participants":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, f.ana, http.MethodPost, "/api/v1/reservations", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUpdateAndDeleteReservation(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, f.ana, http.MethodPost, "/api/v1/reservations", f.createBody("10:00", "Ana", "Garcia", "Luis", "Perez"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed reservation: %d %s", rec.Code, rec.Body.String())
	}
	created := decodeReservation(t, rec)
	path := "/api/v1/reservations/" + strconv.FormatInt(created.ID, 10)

	rec = f.do(t, f.pablo, http.MethodPut, path, f.createBody("12:00", "Pablo", "Sanz", "Luis", "Perez"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-participant update, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, f.ana, http.MethodPut, path, f.createBody("12:00", "Ana", "Garcia", "Luis", "Perez"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if updated := decodeReservation(t, rec); updated.ID != created.ID || updated.Start != "12:00" {
		t.Fatalf("unexpected update result %+v", updated)
	}

	rec = f.do(t, f.ana, http.MethodGet, path, "")
	if rec.Code != http.StatusOK || decodeReservation(t, rec).Start != "12:00" {
		t.Fatalf("expected stored update, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, f.admin, http.MethodDelete, path, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, f.admin, http.MethodDelete, path, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	rec = f.do(t, f.ana, http.MethodGet, path, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on get after delete, got %d", rec.Code)
	}
}

func TestListReservationsFiltersByCourtAndDay(t *testing.T) {
	f := newHandlerFixture(t)

	for _, start := range []string{"12:00", "10:00"} {
		rec := f.do(t, f.ana, http.MethodPost, "/api/v1/reservations", f.createBody(start, "Ana", "Garcia", "Luis", "Perez"))
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed reservation %s: %d %s", start, rec.Code, rec.Body.String())
		}
	}

	query := "/api/v1/reservations?court_id=" + strconv.FormatInt(f.court.ID, 10) + "&day=2026-10-18"
	rec := f.do(t, f.ana, http.MethodGet, query, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(body.Reservations) != 2 {
		t.Fatalf("expected 2 reservations, got %d", len(body.Reservations))
	}
	if body.Reservations[0].Start != "10:00" || body.Reservations[1].Start != "12:00" {
		t.Fatalf("expected reservations ordered by start, got %s then %s", body.Reservations[0].Start, body.Reservations[1].Start)
	}

	rec = f.do(t, f.ana, http.MethodGet, "/api/v1/reservations?day=2026-10-19", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(body.Reservations) != 0 {
		t.Fatalf("expected no reservations on another day, got %d", len(body.Reservations))
	}

	rec = f.do(t, f.ana, http.MethodGet, "/api/v1/reservations?court_id=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad court_id, got %d", rec.Code)
	}
}
