package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// VacuumInterval is the minimum interval between VACUUM operations.
const VacuumInterval = 30 * 24 * time.Hour

const metadataKeyLastVacuum = "last_vacuum_at"

// VacuumIfNeeded runs VACUUM when the last run is older than VacuumInterval.
// It is called from a cron schedule, so most calls are no-ops.
func (s *Store) VacuumIfNeeded(ctx context.Context) (bool, error) {
	lastVacuum, err := s.metaTime(ctx, metadataKeyLastVacuum)
	if err != nil {
		return false, err
	}

	now := s.now()
	if now.Sub(lastVacuum) < VacuumInterval {
		return false, nil
	}

	start := time.Now()
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return false, fmt.Errorf("vacuum: %w", err)
	}
	slog.Info("vacuum completed", "duration", time.Since(start))

	if err := s.setMetaTime(ctx, metadataKeyLastVacuum, now); err != nil {
		slog.Warn("failed to record vacuum time", "key", metadataKeyLastVacuum, "error", err)
	}
	return true, nil
}

// metaTime reads a timestamp from the metadata table. A missing or
// unparsable value yields the zero time.
func (s *Store) metaTime(ctx context.Context, key string) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read metadata %s: %w", key, err)
	}

	t, err := time.Parse(TimeFormat, value)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

func (s *Store) setMetaTime(ctx context.Context, key string, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		key, formatTime(t),
	)
	return err
}
