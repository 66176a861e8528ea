package store

import (
	"context"
	"testing"
	"time"

	"github.com/graaaaa/nickutc/internal/presence"
)

func testPeriods() []presence.SleepPeriod {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	return []presence.SleepPeriod{
		{OfflineAt: day(1).Add(22 * time.Hour), OnlineAt: day(2).Add(6 * time.Hour), GapHours: 8, OffsetHours: 3, WakeDate: "2024-01-02"},
		{OfflineAt: day(2).Add(23 * time.Hour), OnlineAt: day(3).Add(7 * time.Hour), GapHours: 8, OffsetHours: 2, WakeDate: "2024-01-03"},
		{OfflineAt: day(3).Add(21 * time.Hour), OnlineAt: day(4).Add(5 * time.Hour), GapHours: 8, OffsetHours: 4, WakeDate: "2024-01-04"},
	}
}

func TestReplaceSleepPeriods(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id := mustUser(t, st, 1)

	if err := st.ReplaceSleepPeriods(ctx, id, testPeriods()); err != nil {
		t.Fatalf("ReplaceSleepPeriods: %v", err)
	}
	// A second replace must not accumulate rows.
	if err := st.ReplaceSleepPeriods(ctx, id, testPeriods()[:2]); err != nil {
		t.Fatalf("ReplaceSleepPeriods again: %v", err)
	}

	got, err := st.SleepPeriods(ctx, id, DateRange{})
	if err != nil {
		t.Fatalf("SleepPeriods: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d periods, want 2", len(got))
	}
	want := testPeriods()[0]
	if !got[0].OfflineAt.Equal(want.OfflineAt) || !got[0].OnlineAt.Equal(want.OnlineAt) {
		t.Errorf("period span = %v..%v, want %v..%v", got[0].OfflineAt, got[0].OnlineAt, want.OfflineAt, want.OnlineAt)
	}
	if got[0].OffsetHours != 3 || got[0].WakeDate != "2024-01-02" {
		t.Errorf("period = %+v", got[0])
	}

	n, err := st.CountSleepPeriods(ctx, id)
	if err != nil || n != 2 {
		t.Errorf("CountSleepPeriods = %d, %v; want 2", n, err)
	}
}

func TestSleepPeriods_DateRange(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id := mustUser(t, st, 1)

	if err := st.ReplaceSleepPeriods(ctx, id, testPeriods()); err != nil {
		t.Fatalf("ReplaceSleepPeriods: %v", err)
	}

	tests := []struct {
		name string
		r    DateRange
		want int
	}{
		{"open", DateRange{}, 3},
		{"from only", DateRange{From: "2024-01-03"}, 2},
		{"to only", DateRange{To: "2024-01-02"}, 1},
		{"single day", DateRange{From: "2024-01-03", To: "2024-01-03"}, 1},
		{"empty", DateRange{From: "2024-02-01"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.SleepPeriods(ctx, id, tt.r)
			if err != nil {
				t.Fatalf("SleepPeriods: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestReplaceDailyTimezones(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id := mustUser(t, st, 1)

	days := []presence.DailyTimezone{
		{Date: "2024-01-02", OffsetHours: 3, WakeupAt: time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC)},
		{Date: "2024-01-03", OffsetHours: 2, WakeupAt: time.Date(2024, 1, 3, 7, 0, 0, 0, time.UTC)},
	}
	if err := st.ReplaceDailyTimezones(ctx, id, days); err != nil {
		t.Fatalf("ReplaceDailyTimezones: %v", err)
	}
	if err := st.ReplaceDailyTimezones(ctx, id, days); err != nil {
		t.Fatalf("ReplaceDailyTimezones again: %v", err)
	}

	got, err := st.DailyTimezones(ctx, id, DateRange{To: "2024-01-02"})
	if err != nil {
		t.Fatalf("DailyTimezones: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d days, want 1", len(got))
	}
	if got[0].OffsetHours != 3 || !got[0].WakeupAt.Equal(days[0].WakeupAt) {
		t.Errorf("day = %+v", got[0])
	}
}

func TestListUserSummaries(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	busy := mustUser(t, st, 1)
	mustUser(t, st, 2)

	appendTestEvent(t, st, busy, presence.SourceTelegram, presence.Online, baseTime)
	appendTestEvent(t, st, busy, presence.SourceTelegram, presence.Offline, baseTime.Add(time.Hour))

	sums, err := st.ListUserSummaries(ctx)
	if err != nil {
		t.Fatalf("ListUserSummaries: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("got %d summaries, want 2", len(sums))
	}
	if sums[0].EventsCount != 2 {
		t.Errorf("events count = %d, want 2", sums[0].EventsCount)
	}
	if sums[0].LastEventAt == nil || !sums[0].LastEventAt.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("last event = %v", sums[0].LastEventAt)
	}
	if sums[1].LastEventAt != nil || sums[1].EventsCount != 0 {
		t.Errorf("idle user summary = %+v", sums[1])
	}
}

func TestInsertRejectedReport(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	raw := `{"platform":"telegram","status":"UserStatusEmpty"}`
	inserted, err := st.InsertRejectedReport(ctx, raw, "unknown status")
	if err != nil {
		t.Fatalf("InsertRejectedReport: %v", err)
	}
	if !inserted {
		t.Error("first insert should return true")
	}

	inserted, err = st.InsertRejectedReport(ctx, raw, "different message")
	if err != nil {
		t.Fatalf("InsertRejectedReport duplicate: %v", err)
	}
	if inserted {
		t.Error("duplicate raw report should not be inserted")
	}

	if _, err := st.InsertRejectedReport(ctx, "", "x"); err == nil {
		t.Error("expected error for empty raw report")
	}

	n, err := st.CountRejectedReports(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountRejectedReports = %d, %v; want 1", n, err)
	}
}

func TestReportKey(t *testing.T) {
	// sha256("") is a well-known constant.
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := reportKey(""); got != empty {
		t.Errorf("reportKey(\"\") = %s", got)
	}
}
