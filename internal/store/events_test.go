package store

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/graaaaa/nickutc/internal/presence"
)

var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func appendTestEvent(t *testing.T, st *Store, userID int64, source string, status presence.Status, ts time.Time) bool {
	t.Helper()
	e := &presence.Event{
		UserID:    userID,
		Timestamp: ts,
		Status:    status,
		RawKind:   "test",
		Source:    source,
	}
	inserted, err := st.AppendEvent(context.Background(), e)
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	return inserted
}

func TestAppendEvent_CollapsesThirdIdenticalStatus(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id := mustUser(t, st, 1)

	if !appendTestEvent(t, st, id, presence.SourceTelegram, presence.Offline, baseTime) {
		t.Error("first append should insert")
	}
	if !appendTestEvent(t, st, id, presence.SourceTelegram, presence.Offline, baseTime.Add(time.Minute)) {
		t.Error("second identical status should still insert")
	}
	if appendTestEvent(t, st, id, presence.SourceTelegram, presence.Offline, baseTime.Add(2*time.Minute)) {
		t.Error("third identical status should overwrite, not insert")
	}

	count, err := st.CountEvents(ctx, id)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	last, ok, err := st.LastEvent(ctx, id)
	if err != nil || !ok {
		t.Fatalf("LastEvent: %v, ok=%v", err, ok)
	}
	if !last.Timestamp.Equal(baseTime.Add(2 * time.Minute)) {
		t.Errorf("last timestamp = %v, want overwritten to +2m", last.Timestamp)
	}
}

func TestAppendEvent_DedupIsPerSource(t *testing.T) {
	st := openTestStore(t)
	id := mustUser(t, st, 1)

	appendTestEvent(t, st, id, presence.SourceTelegram, presence.Online, baseTime)
	appendTestEvent(t, st, id, presence.SourceTelegram, presence.Online, baseTime.Add(time.Minute))
	if !appendTestEvent(t, st, id, presence.SourceDiscord, presence.Online, baseTime.Add(2*time.Minute)) {
		t.Error("a different source must not be collapsed")
	}
}

func TestAppendEvent_UpdatesCurrentStatus(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id := mustUser(t, st, 1)

	status := func() presence.Status {
		t.Helper()
		u, err := st.GetUser(ctx, id)
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		if u.CurrentStatus == nil {
			t.Fatal("current status not set")
		}
		return *u.CurrentStatus
	}

	appendTestEvent(t, st, id, presence.SourceTelegram, presence.Online, baseTime)
	appendTestEvent(t, st, id, presence.SourceDiscord, presence.Offline, baseTime.Add(time.Minute))
	if got := status(); got != presence.Online {
		t.Errorf("status = %s, want online while telegram is online", got)
	}

	appendTestEvent(t, st, id, presence.SourceTelegram, presence.Offline, baseTime.Add(2*time.Minute))
	if got := status(); got != presence.Offline {
		t.Errorf("status = %s, want offline when every source is offline", got)
	}
}

func TestAppendEvent_Validation(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id := mustUser(t, st, 1)

	tests := []struct {
		name  string
		event presence.Event
		want  error
	}{
		{"missing user", presence.Event{Timestamp: baseTime, Status: presence.Online, Source: "x"}, ErrInvalidEvent},
		{"missing timestamp", presence.Event{UserID: id, Status: presence.Online, Source: "x"}, ErrInvalidEvent},
		{"bad status", presence.Event{UserID: id, Timestamp: baseTime, Status: "away", Source: "x"}, ErrInvalidEvent},
		{"missing source", presence.Event{UserID: id, Timestamp: baseTime, Status: presence.Online}, ErrInvalidEvent},
		{"unknown user", presence.Event{UserID: id + 10, Timestamp: baseTime, Status: presence.Online, Source: "x"}, ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.event
			_, err := st.AppendEvent(ctx, &e)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAllEvents_Ordered(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id := mustUser(t, st, 1)

	appendTestEvent(t, st, id, presence.SourceTelegram, presence.Online, baseTime.Add(2*time.Hour))
	appendTestEvent(t, st, id, presence.SourceDiscord, presence.Offline, baseTime)
	appendTestEvent(t, st, id, presence.SourceTelegram, presence.Offline, baseTime.Add(time.Hour))

	events, err := st.AllEvents(ctx, id)
	if err != nil {
		t.Fatalf("AllEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Errorf("events not sorted at %d", i)
		}
	}
	if events[0].Source != presence.SourceDiscord {
		t.Errorf("first source = %q, want discord", events[0].Source)
	}
}

func TestLastEvent_Empty(t *testing.T) {
	st := openTestStore(t)
	id := mustUser(t, st, 1)

	_, ok, err := st.LastEvent(context.Background(), id)
	if err != nil {
		t.Fatalf("LastEvent: %v", err)
	}
	if ok {
		t.Error("expected ok=false for a user without events")
	}
}

func TestLatestEventTimes(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	got, err := st.LatestEventTimes(ctx)
	if err != nil {
		t.Fatalf("LatestEventTimes: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("empty log: got %v, want none", got)
	}

	a := mustUser(t, st, 1)
	b := mustUser(t, st, 2)
	appendTestEvent(t, st, a, presence.SourceTelegram, presence.Online, baseTime.Add(3*time.Hour))
	appendTestEvent(t, st, a, presence.SourceTelegram, presence.Offline, baseTime.Add(4*time.Hour))
	appendTestEvent(t, st, a, presence.SourceDiscord, presence.Online, baseTime.Add(2*time.Hour))
	appendTestEvent(t, st, b, presence.SourceDiscord, presence.Offline, baseTime.Add(time.Hour))

	got, err = st.LatestEventTimes(ctx)
	if err != nil {
		t.Fatalf("LatestEventTimes: %v", err)
	}
	want := map[SourceKey]time.Time{
		{a, presence.SourceTelegram}: baseTime.Add(4 * time.Hour),
		{a, presence.SourceDiscord}:  baseTime.Add(2 * time.Hour),
		{b, presence.SourceDiscord}:  baseTime.Add(time.Hour),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d keys, want %d: %v", len(got), len(want), got)
	}
	for k, ts := range want {
		if !got[k].Equal(ts) {
			t.Errorf("%+v = %v, want %v", k, got[k], ts)
		}
	}
}

func seedAlternating(t *testing.T, st *Store, userID int64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		status := presence.Online
		if i%2 == 1 {
			status = presence.Offline
		}
		appendTestEvent(t, st, userID, presence.SourceTelegram, status, baseTime.Add(time.Duration(i)*time.Minute))
	}
}

func TestQueryEvents_OffsetPaging(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id := mustUser(t, st, 1)
	other := mustUser(t, st, 2)
	seedAlternating(t, st, id, 10)
	seedAlternating(t, st, other, 3)

	page, err := st.QueryEvents(ctx, EventFilter{UserID: id, Limit: 4, Offset: 8})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if page.Total != 10 {
		t.Errorf("total = %d, want 10", page.Total)
	}
	if len(page.Items) != 2 {
		t.Errorf("got %d items, want 2", len(page.Items))
	}
	if page.NextCursor != nil {
		t.Error("expected no next cursor on the last page")
	}
}

func TestQueryEvents_TimeRange(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id := mustUser(t, st, 1)
	seedAlternating(t, st, id, 10)

	from := baseTime.Add(2 * time.Minute)
	to := baseTime.Add(5 * time.Minute)
	page, err := st.QueryEvents(ctx, EventFilter{UserID: id, From: &from, To: &to})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if page.Total != 4 || len(page.Items) != 4 {
		t.Errorf("got total=%d items=%d, want 4 inclusive", page.Total, len(page.Items))
	}
}

func TestQueryEvents_Cursor(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id := mustUser(t, st, 1)
	seedAlternating(t, st, id, 10)

	first, err := st.QueryEvents(ctx, EventFilter{Limit: 5})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(first.Items) != 5 || first.NextCursor == nil {
		t.Fatalf("first page: %d items, cursor %v", len(first.Items), first.NextCursor)
	}

	second, err := st.QueryEvents(ctx, EventFilter{Limit: 5, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("QueryEvents page 2: %v", err)
	}
	if len(second.Items) != 5 {
		t.Errorf("page 2 got %d items, want 5", len(second.Items))
	}
	if second.NextCursor != nil {
		t.Error("expected NextCursor to be nil on last page")
	}
	if second.Items[0].ID <= first.Items[4].ID {
		t.Error("second page overlaps the first")
	}
}

func TestQueryEvents_InvalidCursor(t *testing.T) {
	st := openTestStore(t)
	bad := "not-valid-base64!!!"
	_, err := st.QueryEvents(context.Background(), EventFilter{Cursor: &bad})
	if !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("err = %v, want ErrInvalidCursor", err)
	}
}

func TestDecodeCursor_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"invalid base64", "not-valid-base64!!!"},
		{"missing separator", base64.RawURLEncoding.EncodeToString([]byte("notimestamp"))},
		{"invalid timestamp", base64.RawURLEncoding.EncodeToString([]byte("invalid|123"))},
		{"invalid id", base64.RawURLEncoding.EncodeToString([]byte("2024-01-01T12:00:00.000000000Z|notanumber"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeCursor(tt.cursor)
			if !errors.Is(err, ErrInvalidCursor) {
				t.Errorf("expected ErrInvalidCursor, got %v", err)
			}
		})
	}
}

func TestCursor_StdEncodingAccepted(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cursor := base64.StdEncoding.EncodeToString([]byte(ts.Format(TimeFormat) + "|123"))

	decodedTs, decodedID, err := DecodeCursor(cursor)
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !decodedTs.Equal(ts) || decodedID != 123 {
		t.Errorf("decoded %v|%d", decodedTs, decodedID)
	}
}

func TestCursor_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 6, 15, 10, 30, 45, 123456789, time.UTC)

	decodedTs, decodedID, err := DecodeCursor(EncodeCursor(ts, 42))
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !decodedTs.Equal(ts) || decodedID != 42 {
		t.Errorf("decoded %v|%d, want %v|42", decodedTs, decodedID, ts)
	}
}
