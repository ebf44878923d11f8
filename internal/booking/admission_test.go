package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	appdb "github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/testutil"
	"github.com/codr1/courtbook/internal/timeslot"
)

var (
	testNow      = time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	testDay      = time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	memberActor  = models.Actor{MemberID: 1, FirstName: "Ana", LastName: "Garcia", Role: models.RoleMember}
	adminActor   = models.Actor{MemberID: 99, FirstName: "Club", LastName: "Admin", Role: models.RoleAdmin}
	strangerUser = models.Actor{MemberID: 50, FirstName: "Pablo", LastName: "Sanz", Role: models.RoleMember}
)

type admissionFixture struct {
	db         *appdb.DB
	controller *Controller
	clock      *testutil.MockClock
	singles    models.Court
	doubles    models.Court
	notifier   *recordingNotifier
}

type recordingNotifier struct {
	mu      sync.Mutex
	saved   []models.Reservation
	deleted []models.Reservation
}

func (n *recordingNotifier) ReservationSaved(_ context.Context, _ Mode, _ models.Court, reservation models.Reservation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.saved = append(n.saved, reservation)
}

func (n *recordingNotifier) ReservationDeleted(_ context.Context, _ models.Court, reservation models.Reservation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, reservation)
}

func newAdmissionFixture(t *testing.T) *admissionFixture {
	t.Helper()

	database := testutil.NewTestDB(t)
	testutil.InsertMember(t, database, "Ana", "Garcia", "ana@example.com", models.KindMember)
	testutil.InsertMember(t, database, "Eva", "Diaz", "", models.KindWalkingMember)
	testutil.InsertMember(t, database, "Nico", "Vidal", "", models.KindNonMember)

	clock := testutil.NewMockClock(testNow)
	notifier := &recordingNotifier{}
	controller, err := NewController(database, Config{
		Horizon:  DefaultHorizon,
		Location: time.UTC,
		Clock:    clock,
		Notifier: notifier,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	return &admissionFixture{
		db:         database,
		controller: controller,
		clock:      clock,
		singles:    testutil.InsertCourt(t, database, "Pista 1", 60, true),
		doubles:    testutil.InsertCourt(t, database, "Pista 2", 60, false),
		notifier:   notifier,
	}
}

func at(t *testing.T, value string) timeslot.TimeOfDay {
	t.Helper()
	tod, err := timeslot.ParseTimeOfDay(value)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return tod
}

func names(pairs ...string) []models.Participant {
	participants := make([]models.Participant, 0, len(pairs))
	for _, pair := range pairs {
		first, last, _ := strings.Cut(pair, " ")
		participants = append(participants, models.Participant{FirstName: first, LastName: last})
	}
	return participants
}

func (f *admissionFixture) create(t *testing.T, court models.Court, start string, actor models.Actor, participants []models.Participant) (Result, error) {
	t.Helper()
	return f.controller.Propose(context.Background(), Proposal{
		Mode:         ModeCreate,
		CourtID:      court.ID,
		Day:          testDay,
		Start:        at(t, start),
		Participants: participants,
		Actor:        actor,
	})
}

func (f *admissionFixture) countRows(t *testing.T, table string) int {
	t.Helper()
	var count int
	if err := f.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func TestProposeCreateSinglesCommitted(t *testing.T) {
	f := newAdmissionFixture(t)

	result, err := f.create(t, f.singles, "10:00", memberActor, names("Ana Garcia", "Luis Perez"))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if result.Status != StatusCommitted {
		t.Fatalf("expected committed, got %s: %v", result.Status, Messages(result.Violations))
	}
	if result.ReservationID == 0 || result.Reservation.ID != result.ReservationID {
		t.Fatalf("expected stored id, got %d / %d", result.ReservationID, result.Reservation.ID)
	}

	stored := result.Reservation
	if stored.End != stored.Start.Add(f.singles.MatchMinutes) {
		t.Fatalf("expected end = start + match length, got %s-%s", stored.Start, stored.End)
	}
	if !stored.Singles {
		t.Fatalf("expected singles flag mirrored from court")
	}
	if len(stored.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(stored.Participants))
	}
	if stored.Participants[0].Kind != models.KindMember || stored.Participants[1].Kind != models.KindNonMember {
		t.Fatalf("unexpected resolved kinds: %+v", stored.Participants)
	}
	if len(f.notifier.saved) != 1 {
		t.Fatalf("expected one saved notification, got %d", len(f.notifier.saved))
	}
}

func TestProposeCreateThreePlayersRejected(t *testing.T) {
	f := newAdmissionFixture(t)

	result, err := f.create(t, f.singles, "10:00", memberActor, names("Ana Garcia", "Luis Perez", "Marta Ruiz"))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if result.Status != StatusRejected || !HasCode(result.Violations, CodeParticipantCount) {
		t.Fatalf("expected participant count rejection, got %s %v", result.Status, Messages(result.Violations))
	}
	if rows := f.countRows(t, "reservations"); rows != 0 {
		t.Fatalf("expected no reservation rows, got %d", rows)
	}
	if rows := f.countRows(t, "reservation_participants"); rows != 0 {
		t.Fatalf("expected no participant rows, got %d", rows)
	}
	if len(f.notifier.saved) != 0 {
		t.Fatalf("expected no notification for a rejected proposal")
	}
}

func TestProposeCreateDoublesCourtRequiresFour(t *testing.T) {
	f := newAdmissionFixture(t)

	result, err := f.create(t, f.doubles, "10:00", memberActor, names("Ana Garcia", "Luis Perez"))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if !HasCode(result.Violations, CodeParticipantCount) {
		t.Fatalf("expected participant count violation, got %v", Messages(result.Violations))
	}

	result, err = f.create(t, f.doubles, "10:00", memberActor, names("Ana Garcia", "Luis Perez", "Marta Ruiz", "Jose Lopez"))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if result.Status != StatusCommitted {
		t.Fatalf("expected committed, got %v", Messages(result.Violations))
	}
	if result.Reservation.Singles {
		t.Fatalf("expected singles flag false for a doubles-only court")
	}
}

func TestProposeCreateNonMembersRejected(t *testing.T) {
	f := newAdmissionFixture(t)

	result, err := f.create(t, f.singles, "10:00", memberActor, names("Nico Vidal", "Luis Perez"))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if result.Status != StatusRejected || !HasCode(result.Violations, CodeNoMember) {
		t.Fatalf("expected member participation rejection, got %s %v", result.Status, Messages(result.Violations))
	}
}

func TestProposeMemberLookupIgnoresCase(t *testing.T) {
	f := newAdmissionFixture(t)

	result, err := f.create(t, f.singles, "10:00", memberActor, names("ana garcia", "Luis Perez"))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if result.Status != StatusCommitted {
		t.Fatalf("expected committed, got %v", Messages(result.Violations))
	}
	if result.Reservation.Participants[0].Kind != models.KindMember {
		t.Fatalf("expected case-insensitive member resolution, got %s", result.Reservation.Participants[0].Kind)
	}
}

func TestProposeHorizonMemberRejectedAdminBypass(t *testing.T) {
	f := newAdmissionFixture(t)

	proposal := Proposal{
		Mode:          ModeCreate,
		CourtID:       f.singles.ID,
		Day:           testDay.AddDate(0, 0, 2),
		Start:         at(t, "08:00"),
		Participants:  names("Ana Garcia", "Luis Perez"),
		Actor:         memberActor,
		BypassHorizon: true,
	}

	result, err := f.controller.Propose(context.Background(), proposal)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if result.Status != StatusRejected || !HasCode(result.Violations, CodeBookingHorizon) {
		t.Fatalf("expected member bypass to be ignored, got %s %v", result.Status, Messages(result.Violations))
	}

	proposal.Actor = adminActor
	result, err = f.controller.Propose(context.Background(), proposal)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if result.Status != StatusCommitted {
		t.Fatalf("expected administrator bypass to commit, got %v", Messages(result.Violations))
	}
}

func TestProposeAdminWithoutBypassStillHonorsHorizon(t *testing.T) {
	f := newAdmissionFixture(t)

	result, err := f.controller.Propose(context.Background(), Proposal{
		Mode:         ModeCreate,
		CourtID:      f.singles.ID,
		Day:          testDay.AddDate(0, 0, 2),
		Start:        at(t, "08:00"),
		Participants: names("Ana Garcia", "Luis Perez"),
		Actor:        adminActor,
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if !HasCode(result.Violations, CodeBookingHorizon) {
		t.Fatalf("expected horizon violation without bypass, got %v", Messages(result.Violations))
	}
}

func TestProposeConcurrentOverlappingCreates(t *testing.T) {
	f := newAdmissionFixture(t)

	starts := []timeslot.TimeOfDay{at(t, "10:00"), at(t, "10:30")}
	results := make([]Result, len(starts))
	errs := make([]error, len(starts))

	var wg sync.WaitGroup
	ready := make(chan struct{})
	for i, start := range starts {
		wg.Add(1)
		go func(i int, start timeslot.TimeOfDay) {
			defer wg.Done()
			<-ready
			results[i], errs[i] = f.controller.Propose(context.Background(), Proposal{
				Mode:         ModeCreate,
				CourtID:      f.singles.ID,
				Day:          testDay,
				Start:        start,
				Participants: names("Eva Diaz", "Player"+string(rune('A'+i))+" Guest"),
				Actor:        memberActor,
			})
		}(i, start)
	}
	close(ready)
	wg.Wait()

	committed := 0
	var rejected []Result
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("proposal %d failed: %v", i, errs[i])
		}
		switch results[i].Status {
		case StatusCommitted:
			committed++
		case StatusRejected:
			rejected = append(rejected, results[i])
		}
	}
	if committed != 1 || len(rejected) != 1 {
		t.Fatalf("expected exactly one commit and one rejection, got %d commits %d rejections", committed, len(rejected))
	}
	if !HasCode(rejected[0].Violations, CodeCourtOverlap) {
		t.Fatalf("expected court overlap on the loser, got %v", Messages(rejected[0].Violations))
	}
	if rows := f.countRows(t, "reservations"); rows != 1 {
		t.Fatalf("expected one stored reservation, got %d", rows)
	}
}

func TestProposeCourtOverlapMentionsExistingInterval(t *testing.T) {
	f := newAdmissionFixture(t)

	if result, err := f.create(t, f.singles, "10:00", memberActor, names("Ana Garcia", "Luis Perez")); err != nil || !result.Committed() {
		t.Fatalf("seed reservation: %v %v", err, Messages(result.Violations))
	}

	result, err := f.create(t, f.singles, "10:30", memberActor, names("Eva Diaz", "Marta Ruiz"))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if !HasCode(result.Violations, CodeCourtOverlap) {
		t.Fatalf("expected court overlap, got %v", Messages(result.Violations))
	}
	if !strings.Contains(strings.Join(Messages(result.Violations), "; "), "10:00-11:00") {
		t.Fatalf("expected violation to mention 10:00-11:00, got %v", Messages(result.Violations))
	}
}

func TestProposePlayerOverlapOnDifferentCourts(t *testing.T) {
	f := newAdmissionFixture(t)

	if result, err := f.create(t, f.singles, "10:00", memberActor, names("Ana Garcia", "Luis Perez")); err != nil || !result.Committed() {
		t.Fatalf("seed reservation: %v %v", err, Messages(result.Violations))
	}

	result, err := f.create(t, f.doubles, "10:30", memberActor, names("Eva Diaz", "LUIS PEREZ", "Marta Ruiz", "Jose Lopez"))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if result.Status != StatusRejected || !HasCode(result.Violations, CodePlayerOverlap) {
		t.Fatalf("expected player overlap, got %s %v", result.Status, Messages(result.Violations))
	}
	if HasCode(result.Violations, CodeCourtOverlap) {
		t.Fatalf("did not expect court overlap on another court")
	}
}

func TestProposeEndIsRecomputed(t *testing.T) {
	f := newAdmissionFixture(t)
	padel := testutil.InsertCourt(t, f.db, "Padel 1", 90, true)

	result, err := f.create(t, padel, "09:15", memberActor, names("Ana Garcia", "Luis Perez"))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if !result.Committed() {
		t.Fatalf("expected committed, got %v", Messages(result.Violations))
	}
	if got := result.Reservation.End.String(); got != "10:45" {
		t.Fatalf("expected end 10:45, got %s", got)
	}
}

func TestProposePastMidnightRejected(t *testing.T) {
	f := newAdmissionFixture(t)

	result, err := f.create(t, f.singles, "23:30", memberActor, names("Ana Garcia", "Luis Perez"))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if !HasCode(result.Violations, CodePastMidnight) {
		t.Fatalf("expected past-midnight violation, got %v", Messages(result.Violations))
	}
}

func TestProposeUnknownCourtRejected(t *testing.T) {
	f := newAdmissionFixture(t)

	result, err := f.create(t, models.Court{ID: 404}, "10:00", memberActor, names("Ana Garcia", "Luis Perez"))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if result.Status != StatusRejected || !HasCode(result.Violations, CodeUnknownCourt) {
		t.Fatalf("expected unknown court rejection, got %s %v", result.Status, Messages(result.Violations))
	}
}

func TestProposeUpdateIsIdempotent(t *testing.T) {
	f := newAdmissionFixture(t)

	created, err := f.create(t, f.singles, "10:00", memberActor, names("Ana Garcia", "Luis Perez", "Eva Diaz", "Marta Ruiz"))
	if err != nil || !created.Committed() {
		t.Fatalf("seed reservation: %v %v", err, Messages(created.Violations))
	}

	update := Proposal{
		Mode:          ModeUpdate,
		ReservationID: created.ReservationID,
		CourtID:       f.singles.ID,
		Day:           testDay,
		Start:         at(t, "10:00"),
		Participants:  names("Ana Garcia", "Luis Perez", "Eva Diaz", "Marta Ruiz"),
		Actor:         memberActor,
	}

	var previous models.Reservation
	for i := 0; i < 2; i++ {
		result, err := f.controller.Propose(context.Background(), update)
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if !result.Committed() {
			t.Fatalf("update %d: expected committed, got %v", i, Messages(result.Violations))
		}
		if i > 0 {
			if !result.Reservation.Interval().Equal(previous.Interval()) || len(result.Reservation.Participants) != len(previous.Participants) {
				t.Fatalf("expected identical stored content, got %+v vs %+v", result.Reservation, previous)
			}
		}
		previous = result.Reservation
	}

	if rows := f.countRows(t, "reservation_participants"); rows != 4 {
		t.Fatalf("expected 4 participant rows, got %d", rows)
	}
}

func TestProposeUpdateReplacesParticipants(t *testing.T) {
	f := newAdmissionFixture(t)

	created, err := f.create(t, f.singles, "10:00", memberActor, names("Ana Garcia", "Luis Perez", "Eva Diaz", "Marta Ruiz"))
	if err != nil || !created.Committed() {
		t.Fatalf("seed reservation: %v %v", err, Messages(created.Violations))
	}

	result, err := f.controller.Propose(context.Background(), Proposal{
		Mode:          ModeUpdate,
		ReservationID: created.ReservationID,
		CourtID:       f.singles.ID,
		Day:           testDay,
		Start:         at(t, "12:00"),
		Participants:  names("Ana Garcia", "Jose Lopez"),
		Actor:         memberActor,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !result.Committed() {
		t.Fatalf("expected committed, got %v", Messages(result.Violations))
	}
	if got := result.Reservation.Interval().TimeRange(); got != "12:00-13:00" {
		t.Fatalf("expected moved interval, got %s", got)
	}
	if rows := f.countRows(t, "reservation_participants"); rows != 2 {
		t.Fatalf("expected stale participants removed, got %d rows", rows)
	}

	// The old slot is free again for Luis, who was dropped from the roster.
	again, err := f.create(t, f.singles, "10:00", memberActor, names("Eva Diaz", "Luis Perez"))
	if err != nil || !again.Committed() {
		t.Fatalf("expected freed slot to be bookable: %v %v", err, Messages(again.Violations))
	}
}

func TestProposeUpdateByNonParticipantForbidden(t *testing.T) {
	f := newAdmissionFixture(t)

	created, err := f.create(t, f.singles, "10:00", memberActor, names("Ana Garcia", "Luis Perez"))
	if err != nil || !created.Committed() {
		t.Fatalf("seed reservation: %v %v", err, Messages(created.Violations))
	}

	result, err := f.controller.Propose(context.Background(), Proposal{
		Mode:          ModeUpdate,
		ReservationID: created.ReservationID,
		CourtID:       f.singles.ID,
		Day:           testDay,
		Start:         at(t, "11:00"),
		Participants:  names("Ana Garcia", "Luis Perez"),
		Actor:         strangerUser,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if result.Status != StatusForbidden {
		t.Fatalf("expected forbidden status, got %s", result.Status)
	}
}

func TestProposeUpdateMissingReservation(t *testing.T) {
	f := newAdmissionFixture(t)

	_, err := f.controller.Propose(context.Background(), Proposal{
		Mode:          ModeUpdate,
		ReservationID: 12345,
		CourtID:       f.singles.ID,
		Day:           testDay,
		Start:         at(t, "11:00"),
		Participants:  names("Ana Garcia", "Luis Perez"),
		Actor:         adminActor,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if StatusOf(err) != StatusNotFound {
		t.Fatalf("expected not found status, got %s", StatusOf(err))
	}
}

func TestProposeDelete(t *testing.T) {
	f := newAdmissionFixture(t)

	created, err := f.create(t, f.singles, "10:00", memberActor, names("Ana Garcia", "Luis Perez"))
	if err != nil || !created.Committed() {
		t.Fatalf("seed reservation: %v %v", err, Messages(created.Violations))
	}
	deleteProposal := Proposal{Mode: ModeDelete, ReservationID: created.ReservationID}

	deleteProposal.Actor = strangerUser
	if _, err := f.controller.Propose(context.Background(), deleteProposal); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-participant, got %v", err)
	}

	deleteProposal.Actor = models.Actor{MemberID: 7, FirstName: "luis", LastName: "perez", Role: models.RoleMember}
	result, err := f.controller.Propose(context.Background(), deleteProposal)
	if err != nil {
		t.Fatalf("delete by participant: %v", err)
	}
	if !result.Committed() || result.ReservationID != created.ReservationID {
		t.Fatalf("expected committed delete of %d, got %+v", created.ReservationID, result)
	}
	if rows := f.countRows(t, "reservations"); rows != 0 {
		t.Fatalf("expected reservation removed, got %d rows", rows)
	}
	if rows := f.countRows(t, "reservation_participants"); rows != 0 {
		t.Fatalf("expected participants removed, got %d rows", rows)
	}
	if len(f.notifier.deleted) != 1 {
		t.Fatalf("expected one deleted notification, got %d", len(f.notifier.deleted))
	}

	deleteProposal.Actor = adminActor
	if _, err := f.controller.Propose(context.Background(), deleteProposal); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestProposeCancelledContextIsStorageError(t *testing.T) {
	f := newAdmissionFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.controller.Propose(ctx, Proposal{
		Mode:         ModeCreate,
		CourtID:      f.singles.ID,
		Day:          testDay,
		Start:        at(t, "10:00"),
		Participants: names("Ana Garcia", "Luis Perez"),
		Actor:        memberActor,
	})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if result.Status != StatusStorageUnavailable {
		t.Fatalf("expected storage status, got %s", result.Status)
	}
	if rows := f.countRows(t, "reservations"); rows != 0 {
		t.Fatalf("expected no write, got %d rows", rows)
	}
}

func TestProposeInvalidModes(t *testing.T) {
	f := newAdmissionFixture(t)

	tests := []struct {
		name     string
		proposal Proposal
	}{
		{"unknown mode", Proposal{Mode: Mode(42)}},
		{"delete without id", Proposal{Mode: ModeDelete, Actor: adminActor}},
		{"update without id", Proposal{Mode: ModeUpdate, CourtID: 1, Day: testDay, Actor: adminActor}},
		{"create without day", Proposal{Mode: ModeCreate, CourtID: 1, Actor: adminActor}},
		{"start past end of day", Proposal{Mode: ModeCreate, CourtID: 1, Day: testDay, Start: timeslot.EndOfDay, Actor: adminActor}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.controller.Propose(context.Background(), tt.proposal)
			if err != nil {
				t.Fatalf("expected a rejection, got error %v", err)
			}
			if result.Status != StatusRejected || len(result.Violations) != 1 || !HasCode(result.Violations, CodeInvalidProposal) {
				t.Fatalf("expected a single invalid_proposal violation, got %s %+v", result.Status, result.Violations)
			}
			if rows := f.countRows(t, "reservations"); rows != 0 {
				t.Fatalf("expected no write, got %d rows", rows)
			}
		})
	}
}
