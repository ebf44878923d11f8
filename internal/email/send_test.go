package email

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/testutil"
	"github.com/codr1/courtbook/internal/timeslot"
)

type sentEmail struct {
	recipient string
	subject   string
	body      string
	ctxErr    error
}

type fakeEmailSender struct {
	mu    sync.Mutex
	sent  []sentEmail
	delay time.Duration
}

func (f *fakeEmailSender) Send(ctx context.Context, recipient, subject, body string) error {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(f.delay):
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEmail{recipient: recipient, subject: subject, body: body, ctxErr: ctx.Err()})
	return ctx.Err()
}

func (f *fakeEmailSender) messages() []sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEmail(nil), f.sent...)
}

func testReservation() (models.Court, models.Reservation) {
	court := models.Court{ID: 1, Name: "Pista 1", Kind: models.CourtKindTennis, MatchMinutes: 60, AllowsSingles: true}
	day := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	iv := timeslot.New(day, 10*60, 60)
	return court, models.Reservation{
		ID:      42,
		CourtID: court.ID,
		Day:     iv.Day,
		Start:   iv.Start,
		End:     iv.End,
		Participants: []models.Participant{
			{FirstName: "Ana", LastName: "Garcia", Kind: models.KindMember},
			{FirstName: "Nico", LastName: "Vidal", Kind: models.KindNonMember},
			{FirstName: "Eva", LastName: "Diaz", Kind: models.KindWalkingMember},
		},
	}
}

func TestNotifierEmailsParticipantsWithAddresses(t *testing.T) {
	database := testutil.NewTestDB(t)
	testutil.InsertMember(t, database, "Ana", "Garcia", "ana@example.com", models.KindMember)
	testutil.InsertMember(t, database, "Eva", "Diaz", "", models.KindWalkingMember)
	sender := &fakeEmailSender{}

	notifier := NewNotifier(database.Queries, sender, "Club de Tenis", time.UTC)
	court, reservation := testReservation()
	notifier.ReservationSaved(context.Background(), booking.ModeCreate, court, reservation)
	notifier.Wait()

	sent := sender.messages()
	if len(sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sent))
	}
	if sent[0].recipient != "ana@example.com" {
		t.Fatalf("expected email to ana@example.com, got %s", sent[0].recipient)
	}
	if !strings.Contains(sent[0].subject, "Confirmed") {
		t.Fatalf("expected confirmation subject, got %q", sent[0].subject)
	}
	for _, want := range []string{"Court: Pista 1", "Time: 10:00 - 11:00", "Ana Garcia, Nico Vidal, Eva Diaz"} {
		if !strings.Contains(sent[0].body, want) {
			t.Fatalf("expected body to contain %q, got:\n%s", want, sent[0].body)
		}
	}
}

func TestNotifierSendsCancellation(t *testing.T) {
	database := testutil.NewTestDB(t)
	testutil.InsertMember(t, database, "Ana", "Garcia", "ana@example.com", models.KindMember)
	sender := &fakeEmailSender{}

	notifier := NewNotifier(database.Queries, sender, "Club de Tenis", time.UTC)
	court, reservation := testReservation()
	notifier.ReservationDeleted(context.Background(), court, reservation)
	notifier.Wait()

	sent := sender.messages()
	if len(sent) != 1 || !strings.Contains(sent[0].subject, "Cancelled") {
		t.Fatalf("expected one cancellation email, got %+v", sent)
	}
}

func TestNotifierSendOutlivesRequestContext(t *testing.T) {
	database := testutil.NewTestDB(t)
	testutil.InsertMember(t, database, "Ana", "Garcia", "ana@example.com", models.KindMember)
	sender := &fakeEmailSender{delay: 50 * time.Millisecond}

	notifier := NewNotifier(database.Queries, sender, "Club de Tenis", time.UTC)
	court, reservation := testReservation()

	ctx, cancel := context.WithCancel(context.Background())
	notifier.ReservationSaved(ctx, booking.ModeUpdate, court, reservation)
	cancel()
	notifier.Wait()

	sent := sender.messages()
	if len(sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sent))
	}
	if sent[0].ctxErr != nil {
		t.Fatalf("expected send context to be detached from the request, got %v", sent[0].ctxErr)
	}
	if !strings.Contains(sent[0].subject, "Updated") {
		t.Fatalf("expected update subject, got %q", sent[0].subject)
	}
}

func TestBuildCancellationDefaults(t *testing.T) {
	message := BuildCancellation(ReservationDetails{})
	if message.Subject != "Court Reservation Cancelled - your club" {
		t.Fatalf("unexpected subject %q", message.Subject)
	}
	if !strings.Contains(message.Body, "Court: TBD") {
		t.Fatalf("expected placeholder court, got:\n%s", message.Body)
	}
}
