package app

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/sleep"
	"github.com/graaaaa/nickutc/internal/store"
)

// Stats bounds.
const (
	DefaultStatsDays  = 30
	MaxStatsDays      = 365
	MaxOnlinePeriods  = 500
	statsCacheEntries = 1024
)

// StatsResult is the chart data of one user.
type StatsResult struct {
	UserID              int64          `json:"user_id"`
	PeriodDays          int            `json:"period_days"`
	TotalEvents         int64          `json:"total_events"`
	TotalSleepPeriods   int64          `json:"total_sleep_periods"`
	TimezoneOffsetsSeen []float64      `json:"timezone_offsets_seen"`
	WakeupTimes         []WakeupTime   `json:"wakeup_times"`
	OnlinePeriods       []OnlinePeriod `json:"online_periods"`
}

// WakeupTime is one point of the wake-up scatter plot.
type WakeupTime struct {
	Date    string  `json:"date"`
	HourUTC float64 `json:"hour_utc"`
	Offset  float64 `json:"offset"`
}

// OnlinePeriod is one online run of the activity timeline.
type OnlinePeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// StatsUsecase defines the interface for stats operations.
type StatsUsecase interface {
	UserStats(ctx context.Context, userID int64, days int) (*StatsResult, error)
}

// StatsStore defines the interface for stats data access.
type StatsStore interface {
	GetUser(ctx context.Context, id int64) (presence.User, error)
	AllEvents(ctx context.Context, userID int64) ([]presence.Event, error)
	CountEvents(ctx context.Context, userID int64) (int64, error)
	CountSleepPeriods(ctx context.Context, userID int64) (int64, error)
	DailyTimezones(ctx context.Context, userID int64, r store.DateRange) ([]presence.DailyTimezone, error)
}

// statsSnapshot is the part of a StatsResult that only changes when the
// user's data does. The open online run is closed at read time.
type statsSnapshot struct {
	totalEvents  int64
	totalPeriods int64
	offsets      []float64
	wakeups      []WakeupTime
	periods      []OnlinePeriod
	openSince    *time.Time
}

// StatsService implements StatsUsecase.
type StatsService struct {
	store StatsStore
	cache *otter.Cache[int64, *statsSnapshot]
	now   func() time.Time
}

// NewStatsService creates a new StatsService.
func NewStatsService(st StatsStore, ttl time.Duration) *StatsService {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &StatsService{
		store: st,
		cache: otter.Must(&otter.Options[int64, *statsSnapshot]{
			MaximumSize:      statsCacheEntries,
			ExpiryCalculator: otter.ExpiryWriting[int64, *statsSnapshot](ttl),
		}),
		now: time.Now,
	}
}

// InvalidateUser drops the cached snapshot of userID.
func (s *StatsService) InvalidateUser(userID int64) {
	s.cache.Invalidate(userID)
}

// UserStats returns chart data for userID. days limits the wake-up points
// to the most recent entries.
func (s *StatsService) UserStats(ctx context.Context, userID int64, days int) (*StatsResult, error) {
	if days <= 0 {
		days = DefaultStatsDays
	}

	snap, ok := s.cache.GetIfPresent(userID)
	if !ok {
		var err error
		snap, err = s.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		s.cache.Set(userID, snap)
	}

	periods := snap.periods
	if snap.openSince != nil {
		periods = append(slices.Clip(periods), OnlinePeriod{
			Start: presence.FormatTimestamp(*snap.openSince),
			End:   presence.FormatTimestamp(s.now()),
		})
	}

	return &StatsResult{
		UserID:              userID,
		PeriodDays:          days,
		TotalEvents:         snap.totalEvents,
		TotalSleepPeriods:   snap.totalPeriods,
		TimezoneOffsetsSeen: snap.offsets,
		WakeupTimes:         lastN(snap.wakeups, days),
		OnlinePeriods:       lastN(periods, MaxOnlinePeriods),
	}, nil
}

func (s *StatsService) load(ctx context.Context, userID int64) (*statsSnapshot, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	totalEvents, err := s.store.CountEvents(ctx, userID)
	if err != nil {
		return nil, err
	}
	totalPeriods, err := s.store.CountSleepPeriods(ctx, userID)
	if err != nil {
		return nil, err
	}
	daily, err := s.store.DailyTimezones(ctx, userID, store.DateRange{})
	if err != nil {
		return nil, err
	}
	events, err := s.store.AllEvents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	snap := &statsSnapshot{
		totalEvents:  totalEvents,
		totalPeriods: totalPeriods,
		offsets:      []float64{},
		wakeups:      make([]WakeupTime, 0, len(daily)),
	}
	for _, d := range daily {
		w := d.WakeupAt.UTC()
		snap.wakeups = append(snap.wakeups, WakeupTime{
			Date:    d.Date,
			HourUTC: math.Round((float64(w.Hour())+float64(w.Minute())/60)*100) / 100,
			Offset:  d.OffsetHours,
		})
		if !slices.Contains(snap.offsets, d.OffsetHours) {
			snap.offsets = append(snap.offsets, d.OffsetHours)
		}
	}
	slices.Sort(snap.offsets)

	snap.periods, snap.openSince = onlinePeriods(sleep.Merge(events))
	return snap, nil
}

// onlinePeriods pairs every online event of the combined stream with the
// offline event that follows it. A trailing online event is returned as
// openSince.
func onlinePeriods(combined []presence.Event) ([]OnlinePeriod, *time.Time) {
	out := []OnlinePeriod{}
	for i := 0; i < len(combined); i++ {
		if combined[i].Status != presence.Online {
			continue
		}
		if i+1 < len(combined) && combined[i+1].Status == presence.Offline {
			out = append(out, OnlinePeriod{
				Start: presence.FormatTimestamp(combined[i].Timestamp),
				End:   presence.FormatTimestamp(combined[i+1].Timestamp),
			})
			i++
			continue
		}
		start := combined[i].Timestamp
		return out, &start
	}
	return out, nil
}

func lastN[T any](s []T, n int) []T {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
