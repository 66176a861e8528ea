// Package ingest feeds platform presence reports into the event log.
//
// Sources (a JSONL file, a Kafka topic, an HTTP status poller) produce
// Reports; the Ingester maps each report to a binary presence event for a
// tracked user and appends it to the store.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Default buffer sizes for source channels.
const (
	DefaultEventBufferSize = 64
	DefaultErrorBufferSize = 16
)

// Sentinel errors.
var (
	// ErrUnknownUser is returned when a report matches no tracked user.
	ErrUnknownUser = errors.New("unknown user")

	// ErrIgnoredStatus is returned for platform statuses that carry no
	// online/offline signal, such as Telegram's "recently".
	ErrIgnoredStatus = errors.New("ignored status")
)

// Source abstracts report production.
// Implementations close both channels when ctx is cancelled or on fatal error.
type Source interface {
	// Start begins producing reports. The error channel may carry several
	// non-fatal errors, including *ParseError for undecodable input.
	Start(ctx context.Context) (<-chan Report, <-chan error, error)
}

// Report is one presence observation as delivered by a platform tracker.
// It is the JSON wire shape shared by every source.
type Report struct {
	// UserID addresses a user by internal id. Optional when a platform id is set.
	UserID     int64   `json:"user_id,omitempty"`
	TelegramID *int64  `json:"telegram_id,omitempty"`
	DiscordID  *int64  `json:"discord_id,omitempty"`
	Username   *string `json:"username,omitempty"`

	Platform string `json:"platform"`
	Status   string `json:"status"`
	// Timestamp is an ISO-8601 UTC instant; empty means "now".
	Timestamp string `json:"timestamp,omitempty"`

	// Raw is the undecoded input, kept for rejected-report records.
	Raw string `json:"-"`
}

// ParseError wraps a report that could not be decoded or converted.
type ParseError struct {
	Line string
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "parse error"
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// DecodeReport decodes one JSON report. Failures are returned as *ParseError.
func DecodeReport(line []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(line, &r); err != nil {
		return Report{}, &ParseError{Line: string(line), Err: fmt.Errorf("decode report: %w", err)}
	}
	if r.Platform == "" || r.Status == "" {
		return Report{}, &ParseError{Line: string(line), Err: errors.New("platform and status are required")}
	}
	r.Raw = string(line)
	return r, nil
}
