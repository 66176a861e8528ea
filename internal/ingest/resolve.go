package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/graaaaa/nickutc/internal/store"
)

// UserFinder looks users up by platform id.
type UserFinder interface {
	FindUserByTelegramID(ctx context.Context, telegramID int64) (int64, error)
	FindUserByDiscordID(ctx context.Context, discordID int64) (int64, error)
}

// Resolver maps a report to an internal user id.
type Resolver interface {
	Resolve(ctx context.Context, r Report) (int64, error)
}

// StoreResolver resolves reports against tracked users in the store.
// Reports for users that were never registered are rejected with
// ErrUnknownUser rather than creating users implicitly.
type StoreResolver struct {
	Finder UserFinder
}

// Resolve implements Resolver. An explicit UserID wins; otherwise the
// telegram id is tried before the discord id.
func (s StoreResolver) Resolve(ctx context.Context, r Report) (int64, error) {
	if r.UserID > 0 {
		return r.UserID, nil
	}

	if r.TelegramID != nil {
		id, err := s.Finder.FindUserByTelegramID(ctx, *r.TelegramID)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, store.ErrUserNotFound) {
			return 0, err
		}
	}
	if r.DiscordID != nil {
		id, err := s.Finder.FindUserByDiscordID(ctx, *r.DiscordID)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, store.ErrUserNotFound) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("%w: %s report", ErrUnknownUser, r.Platform)
}
