package ingest

import (
	"errors"
	"time"

	"github.com/graaaaa/nickutc/internal/presence"
)

// Clock provides time for deterministic testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// DefaultClock is used by the simple production API.
var DefaultClock Clock = realClock{}

// ToEvent converts a report for userID into a presence event. A report
// without a timestamp is stamped with clk's current second.
//
// ErrIgnoredStatus is returned as is; every other failure is a *ParseError
// carrying the raw report.
func ToEvent(r Report, userID int64, clk Clock) (presence.Event, error) {
	c, err := Classify(r.Platform, r.Status)
	if err != nil {
		if errors.Is(err, ErrIgnoredStatus) {
			return presence.Event{}, err
		}
		return presence.Event{}, &ParseError{Line: r.line(), Err: err}
	}

	ts := clk.Now().UTC().Truncate(time.Second)
	if r.Timestamp != "" {
		ts, err = presence.ParseTimestamp(r.Timestamp)
		if err != nil {
			return presence.Event{}, &ParseError{Line: r.line(), Err: err}
		}
	}

	return presence.Event{
		UserID:    userID,
		Timestamp: ts,
		Status:    c.Status,
		RawKind:   c.RawKind,
		Source:    c.Source,
	}, nil
}

// line returns the raw report, or a synthetic one for reports built in code.
func (r Report) line() string {
	if r.Raw != "" {
		return r.Raw
	}
	return r.Platform + " " + r.Status + " " + r.Timestamp
}
