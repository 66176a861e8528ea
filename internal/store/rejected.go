package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// InsertRejectedReport records a report that could not be turned into an
// event. Identical raw reports are stored once; inserted is false for a
// duplicate.
func (s *Store) InsertRejectedReport(ctx context.Context, raw, errorMsg string) (inserted bool, err error) {
	if raw == "" {
		return false, errors.New("insert rejected report: empty report")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rejected_reports (ts, raw, error_msg, dedupe_key)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(dedupe_key) DO NOTHING`,
		formatTime(s.now()), raw, errorMsg, reportKey(raw))
	if err != nil {
		return false, fmt.Errorf("insert rejected report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert rejected report: %w", err)
	}
	return n == 1, nil
}

// CountRejectedReports returns the number of stored rejected reports.
func (s *Store) CountRejectedReports(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rejected_reports").Scan(&n); err != nil {
		return 0, fmt.Errorf("count rejected reports: %w", err)
	}
	return n, nil
}

// reportKey dedupes rejected reports by content.
func reportKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
