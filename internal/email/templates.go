package email

import (
	"fmt"
	"strings"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

// Message is a rendered plain-text email.
type Message struct {
	Subject string
	Body    string
}

type ReservationDetails struct {
	ClubName  string
	CourtName string
	Date      string
	TimeRange string
	Players   []string
	// Updated marks a confirmation sent after an existing reservation changed.
	Updated bool
}

// DescribeReservation renders the date and time range of a reservation in the club time zone.
func DescribeReservation(clubName string, court models.Court, reservation models.Reservation, loc *time.Location) ReservationDetails {
	if loc == nil {
		loc = time.UTC
	}
	interval := reservation.Interval()
	start := interval.StartInstant(loc)
	end := interval.EndInstant(loc)

	players := make([]string, 0, len(reservation.Participants))
	for _, p := range reservation.Participants {
		players = append(players, p.FullName())
	}

	return ReservationDetails{
		ClubName:  clubName,
		CourtName: court.Name,
		Date:      start.Format("Monday, Jan 2, 2006"),
		TimeRange: fmt.Sprintf("%s - %s %s", start.Format("15:04"), end.Format("15:04"), start.Format("MST")),
		Players:   players,
	}
}

func BuildConfirmation(details ReservationDetails) Message {
	clubName := orDefault(details.ClubName, "your club")
	subject := "Court Reservation Confirmed"
	headline := "Your court reservation is confirmed."
	if details.Updated {
		subject = "Court Reservation Updated"
		headline = "Your court reservation has been updated."
	}

	lines := []string{
		headline,
		"",
	}
	lines = append(lines, detailLines(clubName, details)...)

	return Message{
		Subject: fmt.Sprintf("%s - %s", subject, clubName),
		Body:    strings.Join(lines, "\n"),
	}
}

func BuildCancellation(details ReservationDetails) Message {
	clubName := orDefault(details.ClubName, "your club")

	lines := []string{
		"Your court reservation has been cancelled.",
		"",
	}
	lines = append(lines, detailLines(clubName, details)...)

	return Message{
		Subject: fmt.Sprintf("Court Reservation Cancelled - %s", clubName),
		Body:    strings.Join(lines, "\n"),
	}
}

func detailLines(clubName string, details ReservationDetails) []string {
	lines := []string{
		fmt.Sprintf("Club: %s", clubName),
		fmt.Sprintf("Court: %s", orDefault(details.CourtName, "TBD")),
		fmt.Sprintf("Date: %s", orDefault(details.Date, "TBD")),
		fmt.Sprintf("Time: %s", orDefault(details.TimeRange, "TBD")),
	}
	if len(details.Players) > 0 {
		lines = append(lines, fmt.Sprintf("Players: %s", strings.Join(details.Players, ", ")))
	}
	return lines
}

func orDefault(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
