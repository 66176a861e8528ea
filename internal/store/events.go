package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/graaaaa/nickutc/internal/presence"
)

const (
	// DefaultPageSize is the page size used when a filter sets no limit.
	DefaultPageSize = 200
	// MaxPageSize is the largest page QueryEvents returns.
	MaxPageSize = 1000
)

// AppendEvent stores one source event for e.UserID.
//
// Runs of identical statuses from one source are capped at two rows: when the
// last two rows for (user, source) already carry e.Status, the newest of them
// takes e's timestamp and raw kind instead of a new row being inserted, and
// inserted is false. Either way the per-source status of the user is updated
// and current_status becomes online if any source is online. On insert e.ID
// is set.
func (s *Store) AppendEvent(ctx context.Context, e *presence.Event) (inserted bool, err error) {
	if err := validateEvent(e); err != nil {
		return false, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE user_id = ?", e.UserID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrUserNotFound, e.UserID)
		}
		if err != nil {
			return fmt.Errorf("check user: %w", err)
		}

		lastID, collapse, err := lastTwoMatch(ctx, tx, e)
		if err != nil {
			return err
		}

		if collapse {
			if _, err := tx.ExecContext(ctx,
				"UPDATE events SET ts = ?, raw_kind = ? WHERE id = ?",
				formatTime(e.Timestamp), e.RawKind, lastID,
			); err != nil {
				return fmt.Errorf("update event: %w", err)
			}
		} else {
			res, err := tx.ExecContext(ctx,
				"INSERT INTO events (user_id, ts, status, raw_kind, source, ingested_at) VALUES (?, ?, ?, ?, ?, ?)",
				e.UserID, formatTime(e.Timestamp), string(e.Status), e.RawKind, e.Source, formatTime(s.now()),
			)
			if err != nil {
				return fmt.Errorf("insert event: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
			e.ID = id
			inserted = true
		}

		return updateUserStatus(ctx, tx, e.UserID, e.Source, e.Status)
	})
	if err != nil {
		return false, fmt.Errorf("append event: %w", err)
	}
	return inserted, nil
}

// lastTwoMatch reports whether the two newest rows for e's user and source
// both carry e.Status, returning the id of the newest one.
func lastTwoMatch(ctx context.Context, tx *sql.Tx, e *presence.Event) (int64, bool, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id, status FROM events WHERE user_id = ? AND source = ? ORDER BY id DESC LIMIT 2",
		e.UserID, e.Source,
	)
	if err != nil {
		return 0, false, fmt.Errorf("query last events: %w", err)
	}
	defer rows.Close()

	var (
		ids      []int64
		matching int
	)
	for rows.Next() {
		var (
			id     int64
			status string
		)
		if err := rows.Scan(&id, &status); err != nil {
			return 0, false, fmt.Errorf("scan last event: %w", err)
		}
		ids = append(ids, id)
		if status == string(e.Status) {
			matching++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, false, fmt.Errorf("rows error: %w", err)
	}

	if matching == 2 {
		return ids[0], true, nil
	}
	return 0, false, nil
}

func statusColumn(source string) string {
	switch source {
	case presence.SourceTelegram:
		return "telegram_status"
	case presence.SourceDiscord:
		return "discord_status"
	default:
		return "other_status"
	}
}

func updateUserStatus(ctx context.Context, tx *sql.Tx, userID int64, source string, status presence.Status) error {
	col := statusColumn(source)
	if _, err := tx.ExecContext(ctx, "UPDATE users SET "+col+" = ? WHERE user_id = ?", string(status), userID); err != nil {
		return fmt.Errorf("update %s: %w", col, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET current_status =
			CASE WHEN telegram_status = 'online' OR discord_status = 'online' OR other_status = 'online'
			     THEN 'online' ELSE 'offline' END
		WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("update current_status: %w", err)
	}
	return nil
}

// AllEvents returns every event of a user ordered by timestamp, then id.
func (s *Store) AllEvents(ctx context.Context, userID int64) ([]presence.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE user_id = ? ORDER BY ts ASC, id ASC", userID)
	if err != nil {
		return nil, fmt.Errorf("query all events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows, 0)
}

func collectEvents(rows *sql.Rows, capacity int) ([]presence.Event, error) {
	items := make([]presence.Event, 0, capacity)
	for rows.Next() {
		r, err := scanEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e, err := r.toEvent()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

// EventFilter contains filter options for querying events.
// UserID 0 matches every user. From and To are inclusive.
type EventFilter struct {
	UserID int64
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
	// Cursor continues after a previous page; Offset is ignored when set.
	Cursor *string
}

// EventPage contains the result of a query.
type EventPage struct {
	Items      []presence.Event
	Total      int64
	NextCursor *string
}

// QueryEvents returns one page of events ordered by timestamp, then id.
// Total counts every event matching the filter regardless of paging.
func (s *Store) QueryEvents(ctx context.Context, f EventFilter) (EventPage, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	} else if limit > MaxPageSize {
		limit = MaxPageSize
	}

	var (
		where strings.Builder
		args  []any
	)
	where.WriteString(" WHERE 1=1")

	if f.UserID > 0 {
		where.WriteString(" AND user_id = ?")
		args = append(args, f.UserID)
	}
	if f.From != nil {
		where.WriteString(" AND ts >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		where.WriteString(" AND ts <= ?")
		args = append(args, formatTime(*f.To))
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+where.String(), args...).Scan(&total); err != nil {
		return EventPage{}, fmt.Errorf("count events: %w", err)
	}

	// Cursor handling (composite cursor: ts|id)
	offset := f.Offset
	if f.Cursor != nil && *f.Cursor != "" {
		cursorTime, cursorID, err := DecodeCursor(*f.Cursor)
		if err != nil {
			return EventPage{}, fmt.Errorf("decode cursor: %w", err)
		}
		where.WriteString(" AND (ts > ? OR (ts = ? AND id > ?))")
		ts := formatTime(cursorTime)
		args = append(args, ts, ts, cursorID)
		offset = 0
	}

	query := "SELECT " + eventColumns + " FROM events" + where.String() +
		" ORDER BY ts ASC, id ASC LIMIT ? OFFSET ?"
	args = append(args, limit+1, max(offset, 0)) // one extra row detects a next page

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return EventPage{}, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	items, err := collectEvents(rows, limit+1)
	if err != nil {
		return EventPage{}, err
	}

	page := EventPage{Items: items, Total: total}
	if len(items) > limit {
		last := items[limit-1]
		page.Items = items[:limit]
		c := EncodeCursor(last.Timestamp, last.ID)
		page.NextCursor = &c
	}
	return page, nil
}

// LastEvent returns the most recently stored event of a user.
// ok is false when the user has no events.
func (s *Store) LastEvent(ctx context.Context, userID int64) (e presence.Event, ok bool, err error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE user_id = ? ORDER BY id DESC LIMIT 1", userID)
	r, err := scanEventRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return presence.Event{}, false, nil
	}
	if err != nil {
		return presence.Event{}, false, fmt.Errorf("get last event: %w", err)
	}
	e, err = r.toEvent()
	if err != nil {
		return presence.Event{}, false, err
	}
	return e, true, nil
}

// CountEvents returns the number of events of a user, or of all users when
// userID is 0.
func (s *Store) CountEvents(ctx context.Context, userID int64) (int64, error) {
	query := "SELECT COUNT(*) FROM events"
	var args []any
	if userID > 0 {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// SourceKey identifies one user's event stream from one source.
type SourceKey struct {
	UserID int64
	Source string
}

// LatestEventTimes returns the newest event timestamp of every (user,
// source) pair that has events.
func (s *Store) LatestEventTimes(ctx context.Context) (map[SourceKey]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, source, MAX(ts) FROM events GROUP BY user_id, source")
	if err != nil {
		return nil, fmt.Errorf("latest event times: %w", err)
	}
	defer rows.Close()

	latest := make(map[SourceKey]time.Time)
	for rows.Next() {
		var (
			key SourceKey
			ts  string
		)
		if err := rows.Scan(&key.UserID, &key.Source, &ts); err != nil {
			return nil, fmt.Errorf("scan latest event time: %w", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, err
		}
		latest[key] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("latest event times: %w", err)
	}
	return latest, nil
}
