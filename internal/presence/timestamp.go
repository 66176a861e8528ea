package presence

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// TimeFormat is the wire format for instants: ISO-8601 UTC, second precision,
// literal Z suffix. Fixed width keeps lexicographic and chronological order equal.
const TimeFormat = "2006-01-02T15:04:05Z"

// DateFormat is the calendar date format used for wake dates.
const DateFormat = "2006-01-02"

// ErrMalformedTimestamp is returned when a timestamp cannot be parsed as a UTC instant.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// ParseTimestamp parses a wire timestamp into a UTC instant.
// RFC 3339 values with an explicit offset are accepted and converted to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimeFormat, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
	}
	return t.UTC(), nil
}

// FormatTimestamp formats t in TimeFormat after converting it to UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// FormatDate returns the UTC calendar date of t.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateFormat)
}

// FormatOffset renders an hour offset the way the dashboard shows it:
// UTC+3, UTC-5, UTC+5:30. A nil offset renders as N/A.
func FormatOffset(offset *float64) string {
	if offset == nil {
		return "N/A"
	}
	sign := "+"
	if *offset < 0 {
		sign = "-"
	}
	abs := math.Abs(*offset)
	hours := int(abs)
	minutes := int((abs - float64(hours)) * 60)
	if minutes != 0 {
		return fmt.Sprintf("UTC%s%d:%02d", sign, hours, minutes)
	}
	return fmt.Sprintf("UTC%s%d", sign, hours)
}
