package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/graaaaa/nickutc/internal/presence"
)

// DateRange restricts results by calendar date ("YYYY-MM-DD"), inclusive.
// Empty bounds are open.
type DateRange struct {
	From string
	To   string
}

func (r DateRange) where(sb *strings.Builder, args []any) []any {
	if r.From != "" {
		sb.WriteString(" AND date >= ?")
		args = append(args, r.From)
	}
	if r.To != "" {
		sb.WriteString(" AND date <= ?")
		args = append(args, r.To)
	}
	return args
}

// ReplaceSleepPeriods atomically replaces every sleep period of a user.
func (s *Store) ReplaceSleepPeriods(ctx context.Context, userID int64, periods []presence.SleepPeriod) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM sleep_periods WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("delete: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO sleep_periods (user_id, offline_at, online_at, gap_hours, offset_hours, date)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range periods {
			if _, err := stmt.ExecContext(ctx, userID,
				formatTime(p.OfflineAt), formatTime(p.OnlineAt), p.GapHours, p.OffsetHours, p.WakeDate,
			); err != nil {
				return fmt.Errorf("insert: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace sleep periods: %w", err)
	}
	return nil
}

// ReplaceDailyTimezones atomically replaces every daily estimate of a user.
func (s *Store) ReplaceDailyTimezones(ctx context.Context, userID int64, days []presence.DailyTimezone) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM daily_timezones WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("delete: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO daily_timezones (user_id, date, offset_hours, wakeup_at)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, d := range days {
			if _, err := stmt.ExecContext(ctx, userID, d.Date, d.OffsetHours, formatTime(d.WakeupAt)); err != nil {
				return fmt.Errorf("insert %s: %w", d.Date, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace daily timezones: %w", err)
	}
	return nil
}

// SleepPeriods returns a user's sleep periods ordered by wake date.
func (s *Store) SleepPeriods(ctx context.Context, userID int64, r DateRange) ([]presence.SleepPeriod, error) {
	var sb strings.Builder
	sb.WriteString("SELECT offline_at, online_at, gap_hours, offset_hours, date FROM sleep_periods WHERE user_id = ?")
	args := r.where(&sb, []any{userID})
	sb.WriteString(" ORDER BY date ASC, offline_at ASC")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query sleep periods: %w", err)
	}
	defer rows.Close()

	out := []presence.SleepPeriod{}
	for rows.Next() {
		var (
			p               presence.SleepPeriod
			offline, online string
		)
		if err := rows.Scan(&offline, &online, &p.GapHours, &p.OffsetHours, &p.WakeDate); err != nil {
			return nil, fmt.Errorf("scan sleep period: %w", err)
		}
		if p.OfflineAt, err = parseTime(offline); err != nil {
			return nil, fmt.Errorf("parse offline_at %q: %w", offline, err)
		}
		if p.OnlineAt, err = parseTime(online); err != nil {
			return nil, fmt.Errorf("parse online_at %q: %w", online, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// DailyTimezones returns a user's daily estimates ordered by date.
func (s *Store) DailyTimezones(ctx context.Context, userID int64, r DateRange) ([]presence.DailyTimezone, error) {
	var sb strings.Builder
	sb.WriteString("SELECT date, offset_hours, wakeup_at FROM daily_timezones WHERE user_id = ?")
	args := r.where(&sb, []any{userID})
	sb.WriteString(" ORDER BY date ASC")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query daily timezones: %w", err)
	}
	defer rows.Close()

	out := []presence.DailyTimezone{}
	for rows.Next() {
		var (
			d      presence.DailyTimezone
			wakeup string
		)
		if err := rows.Scan(&d.Date, &d.OffsetHours, &wakeup); err != nil {
			return nil, fmt.Errorf("scan daily timezone: %w", err)
		}
		if d.WakeupAt, err = parseTime(wakeup); err != nil {
			return nil, fmt.Errorf("parse wakeup_at %q: %w", wakeup, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// CountSleepPeriods returns the number of stored sleep periods of a user.
func (s *Store) CountSleepPeriods(ctx context.Context, userID int64) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sleep_periods WHERE user_id = ?", userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sleep periods: %w", err)
	}
	return n, nil
}
