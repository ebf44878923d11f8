package apiutil

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codr1/courtbook/internal/timeslot"
)

func ParsePositiveInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, FieldError{Field: field, Reason: "is required"}
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, FieldError{Field: field, Reason: "must be greater than 0"}
	}
	return value, nil
}

func ParseNonNegativeIntField(raw string, field string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, FieldError{Field: field, Reason: "must be 0 or greater"}
	}
	return value, nil
}

// PathID parses the {id} path segment.
func PathID(r *http.Request) (int64, error) {
	return ParsePositiveInt64Field(r.PathValue("id"), "id")
}

func ParseDayField(raw string, field string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, FieldError{Field: field, Reason: "is required"}
	}
	day, err := timeslot.ParseDay(raw)
	if err != nil {
		return time.Time{}, FieldError{Field: field, Reason: "must be a YYYY-MM-DD date"}
	}
	return day, nil
}

func ParseTimeOfDayField(raw string, field string) (timeslot.TimeOfDay, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, FieldError{Field: field, Reason: "is required"}
	}
	tod, err := timeslot.ParseTimeOfDay(raw)
	if err != nil {
		return 0, FieldError{Field: field, Reason: "must be an HH:MM time"}
	}
	return tod, nil
}
