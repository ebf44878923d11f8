package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// InsertCourt stores a court and returns it.
func InsertCourt(t *testing.T, database *db.DB, name string, matchMinutes int, allowsSingles bool) models.Court {
	t.Helper()

	court, err := database.Queries.CreateCourt(context.Background(), db.CreateCourtParams{
		Name:          name,
		Kind:          models.CourtKindTennis,
		MatchMinutes:  matchMinutes,
		AllowsSingles: allowsSingles,
	})
	if err != nil {
		t.Fatalf("insert court %s: %v", name, err)
	}
	return court
}

// InsertMember stores a member and returns it.
func InsertMember(t *testing.T, database *db.DB, first, last, email string, kind models.MembershipKind) models.Member {
	t.Helper()

	member, err := database.Queries.CreateMember(context.Background(), db.CreateMemberParams{
		FirstName: first,
		LastName:  last,
		Email:     email,
		Kind:      kind,
	})
	if err != nil {
		t.Fatalf("insert member %s %s: %v", first, last, err)
	}
	return member
}

// MockClock is a controllable clock for testing.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewMockClock(now time.Time) *MockClock {
	return &MockClock{now: now}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
