// Package roster reads the existing reservations that can conflict with a proposed one.
package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

var ErrStorage = errors.New("roster storage unavailable")

// Reader is the read-only query surface over stored reservations. Callers that go on to
// write must pass a Reader bound to the same transaction as the write.
type Reader interface {
	CourtDay(ctx context.Context, courtID int64, day time.Time) ([]models.Reservation, error)
	PlayerDay(ctx context.Context, key models.NameKey, day time.Time) ([]models.Reservation, error)
}

// Querier is the subset of the db query set the store reader needs.
type Querier interface {
	ListReservationsForCourtDay(ctx context.Context, courtID int64, day time.Time) ([]models.Reservation, error)
	ListReservationsForPlayerDay(ctx context.Context, key models.NameKey, day time.Time) ([]models.Reservation, error)
}

type storeReader struct {
	q Querier
}

// NewReader wraps a query set. Pass transaction-bound queries for an atomic snapshot.
func NewReader(q Querier) Reader {
	return storeReader{q: q}
}

func (r storeReader) CourtDay(ctx context.Context, courtID int64, day time.Time) ([]models.Reservation, error) {
	reservations, err := r.q.ListReservationsForCourtDay(ctx, courtID, day)
	if err != nil {
		return nil, fmt.Errorf("%w: court %d: %w", ErrStorage, courtID, err)
	}
	if reservations == nil {
		reservations = []models.Reservation{}
	}
	return reservations, nil
}

func (r storeReader) PlayerDay(ctx context.Context, key models.NameKey, day time.Time) ([]models.Reservation, error) {
	reservations, err := r.q.ListReservationsForPlayerDay(ctx, key, day)
	if err != nil {
		return nil, fmt.Errorf("%w: player lookup: %w", ErrStorage, err)
	}
	if reservations == nil {
		reservations = []models.Reservation{}
	}
	return reservations, nil
}

// Snapshot holds the reservations that can collide with one candidate.
type Snapshot struct {
	Court   []models.Reservation
	Players map[models.NameKey][]models.Reservation
}

// ForPlayer returns the snapshot rows for a player, never nil.
func (s Snapshot) ForPlayer(key models.NameKey) []models.Reservation {
	if rows, ok := s.Players[key]; ok {
		return rows
	}
	return []models.Reservation{}
}

// Take reads the court-day roster and the per-player-day rosters for every complete
// participant. Any read failure aborts the whole snapshot.
func Take(ctx context.Context, reader Reader, courtID int64, day time.Time, participants []models.Participant) (Snapshot, error) {
	court, err := reader.CourtDay(ctx, courtID, day)
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{
		Court:   court,
		Players: make(map[models.NameKey][]models.Reservation, len(participants)),
	}
	for _, participant := range participants {
		if !participant.Complete() {
			continue
		}
		key := participant.NameKey()
		if _, seen := snapshot.Players[key]; seen {
			continue
		}
		rows, err := reader.PlayerDay(ctx, key, day)
		if err != nil {
			return Snapshot{}, err
		}
		snapshot.Players[key] = rows
	}
	return snapshot, nil
}
