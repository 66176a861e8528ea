package app

import (
	"context"

	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/store"
)

// SleepUsecase exposes derived sleep and timezone results.
type SleepUsecase interface {
	Periods(ctx context.Context, userID int64, r store.DateRange) ([]presence.SleepPeriod, error)
	History(ctx context.Context, userID int64, r store.DateRange) ([]presence.DailyTimezone, error)
	Recompute(ctx context.Context, userID int64) (bool, error)
}

// SleepStore defines store operations needed by SleepService.
type SleepStore interface {
	GetUser(ctx context.Context, id int64) (presence.User, error)
	SleepPeriods(ctx context.Context, userID int64, r store.DateRange) ([]presence.SleepPeriod, error)
	DailyTimezones(ctx context.Context, userID int64, r store.DateRange) ([]presence.DailyTimezone, error)
}

// Enqueuer schedules a recompute for a user.
type Enqueuer interface {
	Enqueue(userID int64) (bool, error)
}

// SleepService implements SleepUsecase.
type SleepService struct {
	Store SleepStore
	Queue Enqueuer
}

// Periods returns the user's sleep periods within r.
func (s *SleepService) Periods(ctx context.Context, userID int64, r store.DateRange) ([]presence.SleepPeriod, error) {
	if _, err := s.Store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	periods, err := s.Store.SleepPeriods(ctx, userID, r)
	if err != nil {
		return nil, err
	}
	if periods == nil {
		periods = []presence.SleepPeriod{}
	}
	return periods, nil
}

// History returns the user's daily timezone estimates within r.
func (s *SleepService) History(ctx context.Context, userID int64, r store.DateRange) ([]presence.DailyTimezone, error) {
	if _, err := s.Store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	days, err := s.Store.DailyTimezones(ctx, userID, r)
	if err != nil {
		return nil, err
	}
	if days == nil {
		days = []presence.DailyTimezone{}
	}
	return days, nil
}

// Recompute schedules a recompute of userID. It returns false when one was
// already pending.
func (s *SleepService) Recompute(ctx context.Context, userID int64) (bool, error) {
	if _, err := s.Store.GetUser(ctx, userID); err != nil {
		return false, err
	}
	return s.Queue.Enqueue(userID)
}
