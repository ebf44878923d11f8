// Package timeslot models the half-open time ranges that reservations occupy on a single
// calendar day.
package timeslot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DayLayout = "2006-01-02"

	// EndOfDay is the latest value an interval end may take.
	EndOfDay TimeOfDay = 24 * 60
)

// TimeOfDay is a wall-clock time expressed in minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" (seconds, if present, must be zero).
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	value = strings.TrimSpace(value)
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid time %q: hour out of range", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid time %q: minute out of range", value)
	}
	if len(parts) == 3 {
		if seconds, err := strconv.Atoi(parts[2]); err != nil || seconds != 0 {
			return 0, fmt.Errorf("invalid time %q: seconds are not supported", value)
		}
	}
	return TimeOfDay(hours*60 + minutes), nil
}

// Add returns t shifted by the given number of minutes. The result is not wrapped at midnight.
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// ParseDay parses a YYYY-MM-DD calendar day and returns it as midnight UTC.
func ParseDay(value string) (time.Time, error) {
	day, err := time.Parse(DayLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: expected YYYY-MM-DD", value)
	}
	return day, nil
}

// TruncateDay drops the clock portion of t as seen in t's own location and returns the
// calendar day as midnight UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDay renders a calendar day as YYYY-MM-DD.
func FormatDay(day time.Time) string {
	return day.Format(DayLayout)
}

// Interval is the half-open range [Start, End) on Day.
type Interval struct {
	Day   time.Time
	Start TimeOfDay
	End   TimeOfDay
}

// New builds an interval of the given length starting at start.
func New(day time.Time, start TimeOfDay, minutes int) Interval {
	return Interval{Day: TruncateDay(day), Start: start, End: start.Add(minutes)}
}

func (i Interval) SameDay(other Interval) bool {
	return i.Day.Equal(other.Day)
}

// Overlaps reports whether both intervals share at least one instant. Touching endpoints do
// not overlap.
func (i Interval) Overlaps(other Interval) bool {
	if !i.SameDay(other) {
		return false
	}
	return i.Start < other.End && other.Start < i.End
}

// StartInstant combines the day and start time in loc.
func (i Interval) StartInstant(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return i.wallClock(i.Start, loc)
}

// EndInstant combines the day and end time in loc.
func (i Interval) EndInstant(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return i.wallClock(i.End, loc)
}

// wallClock places t on the interval's day as a wall-clock reading in loc, so daylight-saving
// changeovers do not shift it. 24:00 becomes midnight of the next day.
func (i Interval) wallClock(t TimeOfDay, loc *time.Location) time.Time {
	y, m, d := i.Day.Date()
	return time.Date(y, m, d, int(t)/60, int(t)%60, 0, 0, loc)
}

// ContainsInstant reports whether now falls within [start, end) when the interval is placed
// in loc.
func (i Interval) ContainsInstant(now time.Time, loc *time.Location) bool {
	start := i.StartInstant(loc)
	end := i.EndInstant(loc)
	return !now.Before(start) && now.Before(end)
}

// Compare orders intervals lexicographically on (day, start, end).
func (i Interval) Compare(other Interval) int {
	if c := i.Day.Compare(other.Day); c != 0 {
		return c
	}
	switch {
	case i.Start < other.Start:
		return -1
	case i.Start > other.Start:
		return 1
	case i.End < other.End:
		return -1
	case i.End > other.End:
		return 1
	}
	return 0
}

func (i Interval) Before(other Interval) bool {
	return i.Compare(other) < 0
}

func (i Interval) Equal(other Interval) bool {
	return i.Compare(other) == 0
}

// String renders the interval as "2006-01-02 10:00-11:00".
func (i Interval) String() string {
	return fmt.Sprintf("%s %s", FormatDay(i.Day), i.TimeRange())
}

// TimeRange renders only the clock portion, e.g. "10:00-11:00".
func (i Interval) TimeRange() string {
	return fmt.Sprintf("%s-%s", i.Start, i.End)
}
