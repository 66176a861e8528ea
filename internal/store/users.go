package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/graaaaa/nickutc/internal/presence"
)

// UserSpec identifies a tracked identity on one or more platforms.
type UserSpec struct {
	Label      string
	TelegramID *int64
	DiscordID  *int64
	Username   *string
}

// EnsureUser creates or updates a user and returns its internal id.
// An existing user is found by telegram id first, then by discord id; any
// platform id or username present in spec is written to that user.
func (s *Store) EnsureUser(ctx context.Context, spec UserSpec) (int64, error) {
	if spec.TelegramID == nil && spec.DiscordID == nil {
		return 0, fmt.Errorf("ensure user %q: telegram or discord id is required", spec.Label)
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = findUserID(ctx, tx, spec)
		if err != nil {
			return err
		}

		if id == 0 {
			label := spec.Label
			if label == "" && spec.Username != nil {
				label = *spec.Username
			}
			res, err := tx.ExecContext(ctx,
				"INSERT INTO users (telegram_id, discord_id, username, label) VALUES (?, ?, ?, ?)",
				nullInt64(spec.TelegramID), nullInt64(spec.DiscordID), spec.Username, label,
			)
			if err != nil {
				return fmt.Errorf("insert user: %w", err)
			}
			id, err = res.LastInsertId()
			return err
		}

		if spec.TelegramID != nil {
			if _, err := tx.ExecContext(ctx, "UPDATE users SET telegram_id = ? WHERE user_id = ?", *spec.TelegramID, id); err != nil {
				return fmt.Errorf("update telegram_id: %w", err)
			}
		}
		if spec.DiscordID != nil {
			if _, err := tx.ExecContext(ctx, "UPDATE users SET discord_id = ? WHERE user_id = ?", *spec.DiscordID, id); err != nil {
				return fmt.Errorf("update discord_id: %w", err)
			}
		}
		if spec.Username != nil {
			if _, err := tx.ExecContext(ctx, "UPDATE users SET username = ? WHERE user_id = ?", *spec.Username, id); err != nil {
				return fmt.Errorf("update username: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ensure user: %w", err)
	}
	return id, nil
}

func findUserID(ctx context.Context, tx *sql.Tx, spec UserSpec) (int64, error) {
	lookups := []struct {
		column string
		value  *int64
	}{
		{"telegram_id", spec.TelegramID},
		{"discord_id", spec.DiscordID},
	}
	for _, l := range lookups {
		if l.value == nil {
			continue
		}
		var id int64
		err := tx.QueryRowContext(ctx, "SELECT user_id FROM users WHERE "+l.column+" = ?", *l.value).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("find user by %s: %w", l.column, err)
		}
		return id, nil
	}
	return 0, nil
}

// GetUser returns a user by internal id, or ErrUserNotFound.
func (s *Store) GetUser(ctx context.Context, id int64) (presence.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE user_id = ?", id)
	r, err := scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return presence.User{}, fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	if err != nil {
		return presence.User{}, fmt.Errorf("get user: %w", err)
	}
	return r.toUser(), nil
}

// ListUsers returns every user ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]presence.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []presence.User{}
	for rows.Next() {
		r, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, r.toUser())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return users, nil
}

// FindUserByTelegramID returns the internal id for a telegram id, or
// ErrUserNotFound.
func (s *Store) FindUserByTelegramID(ctx context.Context, telegramID int64) (int64, error) {
	return s.findUserBy(ctx, "telegram_id", telegramID)
}

// FindUserByDiscordID returns the internal id for a discord id, or
// ErrUserNotFound.
func (s *Store) FindUserByDiscordID(ctx context.Context, discordID int64) (int64, error) {
	return s.findUserBy(ctx, "discord_id", discordID)
}

func (s *Store) findUserBy(ctx context.Context, column string, value int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT user_id FROM users WHERE "+column+" = ?", value).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s %d", ErrUserNotFound, column, value)
	}
	if err != nil {
		return 0, fmt.Errorf("find user by %s: %w", column, err)
	}
	return id, nil
}

// UpdateCurrentOffset stores the user's latest timezone estimate.
func (s *Store) UpdateCurrentOffset(ctx context.Context, userID int64, offset float64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET current_tz_offset = ? WHERE user_id = ?", offset, userID)
	if err != nil {
		return fmt.Errorf("update current offset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	return nil
}
