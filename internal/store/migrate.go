package store

import (
	"context"
	"fmt"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

const metadataKeySchemaVersion = "schema_version"

// migrate creates every table and index. Statements are idempotent.
func (s *Store) migrate(ctx context.Context) error {
	steps := []struct {
		name   string
		schema string
	}{
		{"users", usersSchema},
		{"events", eventsSchema},
		{"sleep_periods", sleepPeriodsSchema},
		{"daily_timezones", dailyTimezonesSchema},
		{"rejected_reports", rejectedReportsSchema},
		{"metadata", metadataSchema},
	}

	for _, step := range steps {
		if _, err := s.db.ExecContext(ctx, step.schema); err != nil {
			return fmt.Errorf("create %s table: %w", step.name, err)
		}
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO metadata (key, value) VALUES (?, ?)",
		metadataKeySchemaVersion, fmt.Sprint(CurrentSchemaVersion),
	); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	user_id           INTEGER PRIMARY KEY AUTOINCREMENT,
	telegram_id       INTEGER UNIQUE,
	discord_id        INTEGER UNIQUE,
	username          TEXT,
	label             TEXT NOT NULL,
	current_status    TEXT,
	telegram_status   TEXT,
	discord_status    TEXT,
	other_status      TEXT,
	current_tz_offset REAL
);
`

const eventsSchema = `
CREATE TABLE IF NOT EXISTS events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id       INTEGER NOT NULL REFERENCES users(user_id),
	ts            TEXT NOT NULL,
	status        TEXT NOT NULL,
	raw_kind      TEXT NOT NULL,
	source        TEXT NOT NULL,
	ingested_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_user_ts ON events(user_id, ts, id);
CREATE INDEX IF NOT EXISTS idx_events_user_source ON events(user_id, source, id);
CREATE INDEX IF NOT EXISTS idx_events_ts_id ON events(ts, id);
`

const sleepPeriodsSchema = `
CREATE TABLE IF NOT EXISTS sleep_periods (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id      INTEGER NOT NULL REFERENCES users(user_id),
	offline_at   TEXT NOT NULL,
	online_at    TEXT NOT NULL,
	gap_hours    REAL NOT NULL,
	offset_hours REAL NOT NULL,
	date         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sleep_user_date ON sleep_periods(user_id, date);
`

const dailyTimezonesSchema = `
CREATE TABLE IF NOT EXISTS daily_timezones (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id      INTEGER NOT NULL REFERENCES users(user_id),
	date         TEXT NOT NULL,
	offset_hours REAL NOT NULL,
	wakeup_at    TEXT NOT NULL,
	UNIQUE(user_id, date)
);
`

const rejectedReportsSchema = `
CREATE TABLE IF NOT EXISTS rejected_reports (
	id         INTEGER PRIMARY KEY,
	ts         TEXT NOT NULL,
	raw        TEXT NOT NULL,
	error_msg  TEXT NOT NULL,
	dedupe_key TEXT NOT NULL,
	UNIQUE(dedupe_key)
);
`

const metadataSchema = `
CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
