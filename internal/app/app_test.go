package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/graaaaa/nickutc/internal/config"
	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/store"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// stubStore is a test double for the store-facing interfaces of this package.
type stubStore struct {
	users     map[int64]presence.User
	events    []presence.Event
	daily     []presence.DailyTimezone
	periods   []presence.SleepPeriod
	summaries []store.UserSummary
	calls     int
	err       error
}

func (s *stubStore) GetUser(ctx context.Context, id int64) (presence.User, error) {
	u, ok := s.users[id]
	if !ok {
		return presence.User{}, fmt.Errorf("%w: %d", store.ErrUserNotFound, id)
	}
	return u, nil
}

func (s *stubStore) ListUserSummaries(ctx context.Context) ([]store.UserSummary, error) {
	s.calls++
	return s.summaries, s.err
}

func (s *stubStore) AllEvents(ctx context.Context, userID int64) ([]presence.Event, error) {
	s.calls++
	return s.events, s.err
}

func (s *stubStore) CountEvents(ctx context.Context, userID int64) (int64, error) {
	return int64(len(s.events)), nil
}

func (s *stubStore) CountSleepPeriods(ctx context.Context, userID int64) (int64, error) {
	return int64(len(s.periods)), nil
}

func (s *stubStore) SleepPeriods(ctx context.Context, userID int64, r store.DateRange) ([]presence.SleepPeriod, error) {
	return s.periods, nil
}

func (s *stubStore) DailyTimezones(ctx context.Context, userID int64, r store.DateRange) ([]presence.DailyTimezone, error) {
	return s.daily, nil
}

func ev(minutes int, st presence.Status) presence.Event {
	return presence.Event{
		UserID:    1,
		Timestamp: t0.Add(time.Duration(minutes) * time.Minute),
		Status:    st,
		Source:    presence.SourceTelegram,
	}
}

func TestUsersService_CachesUntilInvalidated(t *testing.T) {
	offset := 3.0
	last := t0.Add(time.Hour)
	st := &stubStore{summaries: []store.UserSummary{{
		User:        presence.User{ID: 1, Label: "alice", CurrentOffset: &offset},
		LastEventAt: &last,
		EventsCount: 4,
	}}}
	svc := NewUsersService(st, time.Hour)
	ctx := context.Background()

	views, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(views) != 1 || views[0].TimezoneDisplay != "UTC+3" || *views[0].LastEventUTC != "2024-01-01T01:00:00Z" {
		t.Errorf("views = %+v", views)
	}

	if _, err := svc.Get(ctx, 1); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.calls != 1 {
		t.Errorf("store calls = %d, want 1 (cached)", st.calls)
	}

	svc.InvalidateUser(1)
	if _, err := svc.List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}
	if st.calls != 2 {
		t.Errorf("store calls = %d, want 2 after invalidation", st.calls)
	}

	if _, err := svc.Get(ctx, 99); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("Get(99) err = %v, want ErrUserNotFound", err)
	}
}

func TestUsersService_NoOffset(t *testing.T) {
	st := &stubStore{summaries: []store.UserSummary{{User: presence.User{ID: 2}}}}
	views, err := NewUsersService(st, 0).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if views[0].TimezoneDisplay != "N/A" || views[0].LastEventUTC != nil {
		t.Errorf("view = %+v", views[0])
	}
}

func TestStatsService_UserStats(t *testing.T) {
	st := &stubStore{
		users: map[int64]presence.User{1: {ID: 1}},
		events: []presence.Event{
			ev(0, presence.Online),
			ev(10, presence.Offline),
			ev(20, presence.Online),
			ev(30, presence.Offline),
			ev(40, presence.Online),
		},
		daily: []presence.DailyTimezone{
			{Date: "2024-01-02", OffsetHours: 3, WakeupAt: time.Date(2024, 1, 2, 6, 5, 0, 0, time.UTC)},
			{Date: "2024-01-03", OffsetHours: -5, WakeupAt: time.Date(2024, 1, 3, 14, 0, 0, 0, time.UTC)},
			{Date: "2024-01-04", OffsetHours: 3, WakeupAt: time.Date(2024, 1, 4, 6, 20, 0, 0, time.UTC)},
		},
		periods: make([]presence.SleepPeriod, 3),
	}
	svc := NewStatsService(st, time.Hour)
	now := t0.Add(2 * time.Hour)
	svc.now = func() time.Time { return now }

	res, err := svc.UserStats(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("UserStats: %v", err)
	}

	if res.TotalEvents != 5 || res.TotalSleepPeriods != 3 || res.PeriodDays != 2 {
		t.Errorf("totals = %+v", res)
	}
	if len(res.TimezoneOffsetsSeen) != 2 || res.TimezoneOffsetsSeen[0] != -5 || res.TimezoneOffsetsSeen[1] != 3 {
		t.Errorf("offsets = %v, want [-5 3]", res.TimezoneOffsetsSeen)
	}
	if len(res.WakeupTimes) != 2 || res.WakeupTimes[0].Date != "2024-01-03" || res.WakeupTimes[1].HourUTC != 6.33 {
		t.Errorf("wakeups = %+v", res.WakeupTimes)
	}

	if len(res.OnlinePeriods) != 3 {
		t.Fatalf("online periods = %+v, want 3", res.OnlinePeriods)
	}
	open := res.OnlinePeriods[2]
	if open.Start != "2024-01-01T00:40:00Z" || open.End != "2024-01-01T02:00:00Z" {
		t.Errorf("open period = %+v, want end at now", open)
	}

	// A later read reuses the snapshot and closes the open run at the new now.
	now = now.Add(time.Hour)
	res, err = svc.UserStats(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("UserStats: %v", err)
	}
	if st.calls != 1 {
		t.Errorf("event loads = %d, want 1", st.calls)
	}
	if res.PeriodDays != DefaultStatsDays || res.OnlinePeriods[2].End != "2024-01-01T03:00:00Z" {
		t.Errorf("second read = %+v", res)
	}
}

func TestStatsService_UnknownUser(t *testing.T) {
	svc := NewStatsService(&stubStore{users: map[int64]presence.User{}}, 0)
	if _, err := svc.UserStats(context.Background(), 7, 30); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestOnlinePeriods_CapsAtMax(t *testing.T) {
	var events []presence.Event
	for i := 0; i < 2*(MaxOnlinePeriods+10); i++ {
		st := presence.Online
		if i%2 == 1 {
			st = presence.Offline
		}
		events = append(events, ev(i, st))
	}
	svc := NewStatsService(&stubStore{users: map[int64]presence.User{1: {ID: 1}}, events: events}, 0)

	res, err := svc.UserStats(context.Background(), 1, 30)
	if err != nil {
		t.Fatalf("UserStats: %v", err)
	}
	if len(res.OnlinePeriods) != MaxOnlinePeriods {
		t.Errorf("got %d periods, want %d", len(res.OnlinePeriods), MaxOnlinePeriods)
	}
	if res.OnlinePeriods[0].Start != presence.FormatTimestamp(t0.Add(20*time.Minute)) {
		t.Errorf("oldest kept period = %+v", res.OnlinePeriods[0])
	}
}

type stubQueue struct{ enqueued []int64 }

func (q *stubQueue) Enqueue(userID int64) (bool, error) {
	q.enqueued = append(q.enqueued, userID)
	return true, nil
}

func TestSleepService(t *testing.T) {
	st := &stubStore{users: map[int64]presence.User{1: {ID: 1}}}
	q := &stubQueue{}
	svc := &SleepService{Store: st, Queue: q}
	ctx := context.Background()

	periods, err := svc.Periods(ctx, 1, store.DateRange{})
	if err != nil || periods == nil || len(periods) != 0 {
		t.Errorf("Periods = %v, %v; want empty non-nil", periods, err)
	}
	if _, err := svc.History(ctx, 2, store.DateRange{}); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("History(2) err = %v", err)
	}

	if ok, err := svc.Recompute(ctx, 1); err != nil || !ok {
		t.Errorf("Recompute = %v, %v", ok, err)
	}
	if _, err := svc.Recompute(ctx, 2); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("Recompute(2) err = %v", err)
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != 1 {
		t.Errorf("enqueued = %v", q.enqueued)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("closed") }

func TestHealthService(t *testing.T) {
	res, _ := HealthService{Version: "1.0"}.Handle(context.Background())
	if res.Status != "ok" || res.Version != "1.0" {
		t.Errorf("res = %+v", res)
	}
	res, _ = HealthService{DB: failingPinger{}}.Handle(context.Background())
	if res.Status != "degraded" || res.Database != "unavailable" {
		t.Errorf("res = %+v", res)
	}
	res, _ = HealthService{Notifier: stubNotifier{"degraded", 3}}.Handle(context.Background())
	if res.Status != "ok" || res.Notifications != "degraded" || res.PendingNotify != 3 {
		t.Errorf("res = %+v", res)
	}
}

type stubNotifier struct {
	state   string
	pending int
}

func (s stubNotifier) Health() (string, int) { return s.state, s.pending }

func TestConfigService_UpdateTracking(t *testing.T) {
	dir := t.TempDir()
	var got *config.Tracking
	svc := ConfigService{
		ConfigPath:  filepath.Join(dir, "config.json"),
		SecretsPath: filepath.Join(dir, "secrets.json"),
		OnTracking:  func(tr config.Tracking) { got = &tr },
	}
	ctx := context.Background()

	hour := 7
	resp, err := svc.UpdateConfig(ctx, ConfigUpdateRequest{AssumedWakeupHour: &hour})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if !resp.Success || resp.RestartRequired {
		t.Errorf("resp = %+v, want success without restart", resp)
	}
	if got == nil || got.AssumedWakeupHour != 7 {
		t.Errorf("OnTracking got %+v", got)
	}
	if cfg := svc.GetConfig(ctx); cfg.Tracking.AssumedWakeupHour != 7 {
		t.Errorf("persisted tracking = %+v", cfg.Tracking)
	}

	port := 9001
	resp, err = svc.UpdateConfig(ctx, ConfigUpdateRequest{Port: &port})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if !resp.RestartRequired || resp.NewPort != 9001 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestConfigService_UpdateValidation(t *testing.T) {
	dir := t.TempDir()
	svc := ConfigService{
		ConfigPath:  filepath.Join(dir, "config.json"),
		SecretsPath: filepath.Join(dir, "secrets.json"),
	}
	bad := 25
	neg := -1.0
	short := 5
	hook := "https://example.com/hook"
	level := "verbose"

	for name, req := range map[string]ConfigUpdateRequest{
		"wakeup hour":      {AssumedWakeupHour: &bad},
		"threshold":        {SleepThresholdHours: &neg},
		"polling interval": {PollingIntervalSeconds: &short},
		"webhook":          {DiscordWebhookURL: &hook},
		"log level":        {LogLevel: &level},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.UpdateConfig(context.Background(), req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("err = %v, want *ValidationError", err)
			}
		})
	}
}

func TestConfigService_Secrets(t *testing.T) {
	dir := t.TempDir()
	svc := ConfigService{
		ConfigPath:  filepath.Join(dir, "config.json"),
		SecretsPath: filepath.Join(dir, "secrets.json"),
	}
	hook := "https://discord.com/api/webhooks/1/abc"
	resp, err := svc.UpdateConfig(context.Background(), ConfigUpdateRequest{DiscordWebhookURL: &hook})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if !resp.RestartRequired {
		t.Error("secret change should require restart")
	}
	if !svc.GetConfig(context.Background()).DiscordWebhookConfigured {
		t.Error("webhook should be reported as configured")
	}
}
