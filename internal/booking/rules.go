package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/roster"
	"github.com/codr1/courtbook/internal/timeslot"
)

type ViolationCode string

const (
	CodeInvalidProposal  ViolationCode = "invalid_proposal"
	CodeUnknownCourt     ViolationCode = "unknown_court"
	CodePastMidnight     ViolationCode = "past_midnight"
	CodeParticipantCount ViolationCode = "participant_count"
	CodeDuplicatePlayer  ViolationCode = "duplicate_participant"
	CodeNoMember         ViolationCode = "no_member"
	CodePlayerOverlap    ViolationCode = "player_overlap"
	CodeCourtOverlap     ViolationCode = "court_overlap"
	CodeBookingHorizon   ViolationCode = "booking_horizon"
)

// Violation is one reason a candidate cannot be admitted.
type Violation struct {
	Code    ViolationCode `json:"code"`
	Message string        `json:"message"`
}

func (v Violation) String() string {
	return v.Message
}

// Candidate is a fully resolved reservation proposal: court loaded, interval computed from
// the court's match length, participant kinds resolved.
type Candidate struct {
	Court        models.Court
	Interval     timeslot.Interval
	Participants []models.Participant
	// ReplacesID is the reservation being updated, excluded from self-conflict. Zero on create.
	ReplacesID int64
}

// HorizonPolicy configures the booking-horizon rule.
type HorizonPolicy struct {
	Now      time.Time
	Window   time.Duration
	Location *time.Location
	Bypass   bool
}

// Evaluate runs every rule in order and returns all violations. An empty result means the
// candidate is admissible.
func Evaluate(c Candidate, snapshot roster.Snapshot, horizon HorizonPolicy) []Violation {
	var violations []Violation
	complete := models.CompleteParticipants(c.Participants)

	violations = append(violations, checkParticipantCount(c.Court, complete)...)
	violations = append(violations, checkDuplicateParticipants(complete)...)
	violations = append(violations, checkMemberParticipation(complete)...)
	violations = append(violations, checkPlayerOverlap(c, complete, snapshot)...)
	violations = append(violations, checkCourtOverlap(c, snapshot)...)
	violations = append(violations, checkBookingHorizon(c.Interval, horizon)...)
	return violations
}

func checkParticipantCount(court models.Court, complete []models.Participant) []Violation {
	if court.AcceptsPlayerCount(len(complete)) {
		return nil
	}
	var message string
	if court.AllowsSingles {
		message = fmt.Sprintf("court %s requires 2 or 4 players with first and last name; got %d", court.Name, len(complete))
	} else {
		message = fmt.Sprintf("court %s only allows doubles and requires exactly 4 players with first and last name; got %d", court.Name, len(complete))
	}
	return []Violation{{Code: CodeParticipantCount, Message: message}}
}

func checkDuplicateParticipants(complete []models.Participant) []Violation {
	seen := make(map[models.NameKey]struct{}, len(complete))
	reported := make(map[models.NameKey]struct{})
	var violations []Violation
	for _, p := range complete {
		key := p.NameKey()
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			continue
		}
		if _, ok := reported[key]; ok {
			continue
		}
		reported[key] = struct{}{}
		violations = append(violations, Violation{
			Code:    CodeDuplicatePlayer,
			Message: fmt.Sprintf("player %s appears more than once in the reservation", p.FullName()),
		})
	}
	return violations
}

func checkMemberParticipation(complete []models.Participant) []Violation {
	for _, p := range complete {
		if p.Kind.IsMember() {
			return nil
		}
	}
	return []Violation{{
		Code:    CodeNoMember,
		Message: "at least one player must be a club member",
	}}
}

func checkPlayerOverlap(c Candidate, complete []models.Participant, snapshot roster.Snapshot) []Violation {
	var violations []Violation
	checked := make(map[models.NameKey]struct{}, len(complete))
	for _, p := range complete {
		key := p.NameKey()
		if _, ok := checked[key]; ok {
			continue
		}
		checked[key] = struct{}{}

		for _, existing := range snapshot.ForPlayer(key) {
			if existing.ID == c.ReplacesID && c.ReplacesID != 0 {
				continue
			}
			if !existing.HasParticipant(key) || !existing.Interval().Overlaps(c.Interval) {
				continue
			}
			violations = append(violations, Violation{
				Code: CodePlayerOverlap,
				Message: fmt.Sprintf("player %s already has a reservation on %s %s (court %d)",
					p.FullName(), timeslot.FormatDay(existing.Day), existing.Interval().TimeRange(), existing.CourtID),
			})
		}
	}
	return violations
}

func checkCourtOverlap(c Candidate, snapshot roster.Snapshot) []Violation {
	var violations []Violation
	for _, existing := range snapshot.Court {
		if existing.ID == c.ReplacesID && c.ReplacesID != 0 {
			continue
		}
		if existing.CourtID != c.Court.ID || !existing.Interval().Overlaps(c.Interval) {
			continue
		}
		violations = append(violations, Violation{
			Code: CodeCourtOverlap,
			Message: fmt.Sprintf("court %s is already booked on %s %s",
				c.Court.Name, timeslot.FormatDay(existing.Day), existing.Interval().TimeRange()),
		})
	}
	return violations
}

func checkBookingHorizon(interval timeslot.Interval, horizon HorizonPolicy) []Violation {
	if horizon.Bypass {
		return nil
	}
	start := interval.StartInstant(horizon.Location)
	latest := horizon.Now.Add(horizon.Window)
	if !start.Before(horizon.Now) && !start.After(latest) {
		return nil
	}
	return []Violation{{
		Code:    CodeBookingHorizon,
		Message: fmt.Sprintf("reservations can only be made between now and the next %s", formatWindow(horizon.Window)),
	}}
}

func formatWindow(window time.Duration) string {
	hours := int(window / time.Hour)
	if window%time.Hour == 0 {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return strings.TrimSuffix(window.String(), "0s")
}

// Messages flattens violations into the human-readable list shown to callers.
func Messages(violations []Violation) []string {
	messages := make([]string, len(violations))
	for i, v := range violations {
		messages[i] = v.Message
	}
	return messages
}

// HasCode reports whether any violation carries code.
func HasCode(violations []Violation, code ViolationCode) bool {
	for _, v := range violations {
		if v.Code == code {
			return true
		}
	}
	return false
}
