// internal/models/reservation.go
package models

import (
	"strings"
	"time"

	"github.com/codr1/courtbook/internal/timeslot"
)

// Participant is a named player attached to a reservation. Kind is resolved from member
// records when the reservation is admitted.
type Participant struct {
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Kind      MembershipKind `json:"kind,omitempty"`
}

// Complete reports whether both name parts are present. Incomplete entries are empty slots.
func (p Participant) Complete() bool {
	return strings.TrimSpace(p.FirstName) != "" && strings.TrimSpace(p.LastName) != ""
}

func (p Participant) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

func (p Participant) NameKey() NameKey {
	return NewNameKey(p.FirstName, p.LastName)
}

// CompleteParticipants drops placeholder slots and trims the remaining names.
func CompleteParticipants(participants []Participant) []Participant {
	complete := make([]Participant, 0, len(participants))
	for _, p := range participants {
		if !p.Complete() {
			continue
		}
		complete = append(complete, Participant{
			FirstName: strings.TrimSpace(p.FirstName),
			LastName:  strings.TrimSpace(p.LastName),
			Kind:      p.Kind,
		})
	}
	return complete
}

type Reservation struct {
	ID           int64              `json:"id"`
	CourtID      int64              `json:"court_id"`
	Day          time.Time          `json:"-"`
	Start        timeslot.TimeOfDay `json:"-"`
	End          timeslot.TimeOfDay `json:"-"`
	Singles      bool               `json:"singles"`
	Participants []Participant      `json:"participants"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (r Reservation) Interval() timeslot.Interval {
	return timeslot.Interval{Day: r.Day, Start: r.Start, End: r.End}
}

// HasParticipant reports whether a player with the given normalized name is on the roster.
func (r Reservation) HasParticipant(key NameKey) bool {
	for _, p := range r.Participants {
		if p.NameKey() == key {
			return true
		}
	}
	return false
}
