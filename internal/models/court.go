// internal/models/court.go
package models

import (
	"fmt"
	"strings"
)

type CourtKind string

const (
	CourtKindTennis CourtKind = "tennis"
	CourtKindPadel  CourtKind = "padel"
)

// ParseCourtKind accepts the English and Spanish labels used by the club.
func ParseCourtKind(value string) (CourtKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "tennis", "tenis":
		return CourtKindTennis, nil
	case "padel", "pádel":
		return CourtKindPadel, nil
	}
	return "", fmt.Errorf("unknown court kind %q", value)
}

// Court is a bookable playing surface. Match length is fixed per court.
type Court struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Kind          CourtKind `json:"kind"`
	MatchMinutes  int       `json:"match_minutes"`
	AllowsSingles bool      `json:"allows_singles"`
}

// RequiredPlayers describes the accepted participant counts.
func (c Court) RequiredPlayers() string {
	if c.AllowsSingles {
		return "2 or 4"
	}
	return "4"
}

func (c Court) AcceptsPlayerCount(n int) bool {
	if c.AllowsSingles {
		return n == 2 || n == 4
	}
	return n == 4
}
