package app

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/store"
)

// DefaultCacheTTL bounds how long cached read models live without an
// explicit invalidation.
const DefaultCacheTTL = time.Minute

// UsersUsecase defines the user listing use case.
type UsersUsecase interface {
	List(ctx context.Context) ([]UserView, error)
	Get(ctx context.Context, id int64) (UserView, error)
}

// UserView is a tracked user as shown by the API.
type UserView struct {
	UserID          int64            `json:"user_id"`
	Username        *string          `json:"username"`
	Label           string           `json:"label"`
	TelegramID      *int64           `json:"telegram_id,omitempty"`
	DiscordID       *int64           `json:"discord_id,omitempty"`
	CurrentStatus   *presence.Status `json:"current_status"`
	TelegramStatus  *presence.Status `json:"telegram_status,omitempty"`
	DiscordStatus   *presence.Status `json:"discord_status,omitempty"`
	CurrentTZOffset *float64         `json:"current_tz_offset"`
	TimezoneDisplay string           `json:"timezone_display"`
	LastEventUTC    *string          `json:"last_event_utc"`
	EventsCount     int64            `json:"events_count"`
}

// UserStore defines store operations needed by UsersService.
type UserStore interface {
	ListUserSummaries(ctx context.Context) ([]store.UserSummary, error)
}

// UsersService implements UsersUsecase. Summaries are cached until
// InvalidateUser is called or the TTL passes.
type UsersService struct {
	store UserStore
	cache *otter.Cache[string, []UserView]
}

const usersCacheKey = "users"

// NewUsersService creates a UsersService.
func NewUsersService(st UserStore, ttl time.Duration) *UsersService {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &UsersService{
		store: st,
		cache: otter.Must(&otter.Options[string, []UserView]{
			MaximumSize:      16,
			ExpiryCalculator: otter.ExpiryWriting[string, []UserView](ttl),
		}),
	}
}

// List returns every tracked user with its event totals.
func (s *UsersService) List(ctx context.Context) ([]UserView, error) {
	if views, ok := s.cache.GetIfPresent(usersCacheKey); ok {
		return views, nil
	}

	sums, err := s.store.ListUserSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	views := make([]UserView, 0, len(sums))
	for _, sum := range sums {
		views = append(views, newUserView(sum))
	}
	s.cache.Set(usersCacheKey, views)
	return views, nil
}

// Get returns one user, or store.ErrUserNotFound.
func (s *UsersService) Get(ctx context.Context, id int64) (UserView, error) {
	views, err := s.List(ctx)
	if err != nil {
		return UserView{}, err
	}
	for _, v := range views {
		if v.UserID == id {
			return v, nil
		}
	}
	return UserView{}, fmt.Errorf("user %d: %w", id, store.ErrUserNotFound)
}

// InvalidateUser drops cached summaries after a user's data changed.
func (s *UsersService) InvalidateUser(int64) {
	s.cache.Invalidate(usersCacheKey)
}

func newUserView(sum store.UserSummary) UserView {
	u := sum.User
	v := UserView{
		UserID:          u.ID,
		Username:        u.Username,
		Label:           u.Label,
		TelegramID:      u.TelegramID,
		DiscordID:       u.DiscordID,
		CurrentStatus:   u.CurrentStatus,
		TelegramStatus:  u.TelegramStatus,
		DiscordStatus:   u.DiscordStatus,
		CurrentTZOffset: u.CurrentOffset,
		TimezoneDisplay: presence.FormatOffset(u.CurrentOffset),
		EventsCount:     sum.EventsCount,
	}
	if sum.LastEventAt != nil {
		ts := presence.FormatTimestamp(*sum.LastEventAt)
		v.LastEventUTC = &ts
	}
	return v
}
