package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/graaaaa/nickutc/internal/presence"
)

// eventRow is the internal type representing an events row.
type eventRow struct {
	ID         int64
	UserID     int64
	Ts         string
	Status     string
	RawKind    string
	Source     string
	IngestedAt string
}

const eventColumns = "id, user_id, ts, status, raw_kind, source, ingested_at"

func scanEventRow(sc interface{ Scan(...any) error }) (eventRow, error) {
	var r eventRow
	err := sc.Scan(&r.ID, &r.UserID, &r.Ts, &r.Status, &r.RawKind, &r.Source, &r.IngestedAt)
	return r, err
}

// toEvent converts a database row to an Event.
func (r *eventRow) toEvent() (presence.Event, error) {
	ts, err := parseTime(r.Ts)
	if err != nil {
		return presence.Event{}, fmt.Errorf("parse ts %q: %w", r.Ts, err)
	}
	status, err := presence.ParseStatus(r.Status)
	if err != nil {
		return presence.Event{}, fmt.Errorf("event %d: %w", r.ID, err)
	}
	return presence.Event{
		ID:        r.ID,
		UserID:    r.UserID,
		Timestamp: ts,
		Status:    status,
		RawKind:   r.RawKind,
		Source:    r.Source,
	}, nil
}

// userRow is the internal type representing a users row.
type userRow struct {
	ID             int64
	TelegramID     sql.NullInt64
	DiscordID      sql.NullInt64
	Username       sql.NullString
	Label          string
	CurrentStatus  sql.NullString
	TelegramStatus sql.NullString
	DiscordStatus  sql.NullString
	CurrentOffset  sql.NullFloat64
}

const userColumns = "user_id, telegram_id, discord_id, username, label, current_status, telegram_status, discord_status, current_tz_offset"

func scanUserRow(sc interface{ Scan(...any) error }, extra ...any) (userRow, error) {
	var r userRow
	dest := []any{
		&r.ID, &r.TelegramID, &r.DiscordID, &r.Username, &r.Label,
		&r.CurrentStatus, &r.TelegramStatus, &r.DiscordStatus, &r.CurrentOffset,
	}
	err := sc.Scan(append(dest, extra...)...)
	return r, err
}

func (r *userRow) toUser() presence.User {
	u := presence.User{ID: r.ID, Label: r.Label}
	if r.TelegramID.Valid {
		u.TelegramID = presence.Int64Ptr(r.TelegramID.Int64)
	}
	if r.DiscordID.Valid {
		u.DiscordID = presence.Int64Ptr(r.DiscordID.Int64)
	}
	if r.Username.Valid {
		u.Username = presence.StringPtr(r.Username.String)
	}
	u.CurrentStatus = nullStatus(r.CurrentStatus)
	u.TelegramStatus = nullStatus(r.TelegramStatus)
	u.DiscordStatus = nullStatus(r.DiscordStatus)
	if r.CurrentOffset.Valid {
		off := r.CurrentOffset.Float64
		u.CurrentOffset = &off
	}
	return u
}

func nullStatus(ns sql.NullString) *presence.Status {
	if !ns.Valid {
		return nil
	}
	st, err := presence.ParseStatus(ns.String)
	if err != nil {
		return nil
	}
	return &st
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// parseTime accepts the storage format and falls back to RFC3339 for rows
// written by hand or by older imports.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeFormat, s)
	if err == nil {
		return t, nil
	}
	return presence.ParseTimestamp(s)
}

// validateEvent checks that required fields are set.
func validateEvent(e *presence.Event) error {
	if e.UserID <= 0 {
		return fmt.Errorf("%w: user_id is required", ErrInvalidEvent)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidEvent)
	}
	if e.Status != presence.Online && e.Status != presence.Offline {
		return fmt.Errorf("%w: status %q", ErrInvalidEvent, e.Status)
	}
	if e.Source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidEvent)
	}
	return nil
}
