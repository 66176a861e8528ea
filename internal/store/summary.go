package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/graaaaa/nickutc/internal/presence"
)

// UserSummary is a user with event log totals.
type UserSummary struct {
	User        presence.User
	LastEventAt *time.Time
	EventsCount int64
}

// ListUserSummaries returns every user with the time of its newest event and
// its event count, in one query.
func (s *Store) ListUserSummaries(ctx context.Context) ([]UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`,
			(SELECT MAX(e.ts) FROM events e WHERE e.user_id = users.user_id),
			(SELECT COUNT(*) FROM events e WHERE e.user_id = users.user_id)
		FROM users
		ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list user summaries: %w", err)
	}
	defer rows.Close()

	out := []UserSummary{}
	for rows.Next() {
		var (
			lastTs sql.NullString
			count  int64
		)
		r, err := scanUserRow(rows, &lastTs, &count)
		if err != nil {
			return nil, fmt.Errorf("scan user summary: %w", err)
		}

		sum := UserSummary{User: r.toUser(), EventsCount: count}
		if lastTs.Valid {
			t, err := parseTime(lastTs.String)
			if err != nil {
				return nil, fmt.Errorf("parse last event %q: %w", lastTs.String, err)
			}
			sum.LastEventAt = &t
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
