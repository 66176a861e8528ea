package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/graaaaa/nickutc/internal/presence"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestClassify(t *testing.T) {
	tests := []struct {
		platform string
		status   string
		want     presence.Status
		raw      string
		source   string
		wantErr  error
	}{
		{"telegram", "UserStatusOnline", presence.Online, "UserStatusOnline", presence.SourceTelegram, nil},
		{"telegram", "UserStatusOffline", presence.Offline, "UserStatusOffline", presence.SourceTelegram, nil},
		{"telegram", "UserStatusRecently", "", "", "", ErrIgnoredStatus},
		{"telegram", "UserStatusLastWeek", "", "", "", ErrIgnoredStatus},
		{"discord", "online", presence.Online, "DiscordOnline", presence.SourceDiscord, nil},
		{"discord", "idle", presence.Offline, "DiscordIdle", presence.SourceDiscord, nil},
		{"discord", "dnd", presence.Offline, "DiscordDnd", presence.SourceDiscord, nil},
		{"discord", "invisible", presence.Offline, "DiscordInvisible", presence.SourceDiscord, nil},
		{"Discord", "OFFLINE", presence.Offline, "DiscordOffline", presence.SourceDiscord, nil},
		{"generic", "Online", presence.Online, "online", PlatformGeneric, nil},
	}

	for _, tt := range tests {
		t.Run(tt.platform+"/"+tt.status, func(t *testing.T) {
			got, err := Classify(tt.platform, tt.status)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got.Status != tt.want || got.RawKind != tt.raw || got.Source != tt.source {
				t.Errorf("got %+v, want status=%s raw=%s source=%s", got, tt.want, tt.raw, tt.source)
			}
		})
	}
}

func TestClassify_Unknown(t *testing.T) {
	for _, c := range [][2]string{{"matrix", "online"}, {"discord", "streaming"}, {"generic", "away"}} {
		if _, err := Classify(c[0], c[1]); err == nil || errors.Is(err, ErrIgnoredStatus) {
			t.Errorf("Classify(%q, %q) err = %v, want a hard error", c[0], c[1], err)
		}
	}
}

func TestToEvent(t *testing.T) {
	clk := fixedClock{time.Date(2024, 3, 1, 8, 30, 15, 999, time.UTC)}

	t.Run("explicit timestamp", func(t *testing.T) {
		e, err := ToEvent(Report{Platform: "telegram", Status: "UserStatusOnline", Timestamp: "2024-01-02T06:05:00Z"}, 7, clk)
		if err != nil {
			t.Fatalf("ToEvent: %v", err)
		}
		if e.UserID != 7 || e.Status != presence.Online || e.Source != presence.SourceTelegram {
			t.Errorf("event = %+v", e)
		}
		if !e.Timestamp.Equal(time.Date(2024, 1, 2, 6, 5, 0, 0, time.UTC)) {
			t.Errorf("timestamp = %v", e.Timestamp)
		}
	})

	t.Run("stamped on arrival", func(t *testing.T) {
		e, err := ToEvent(Report{Platform: "discord", Status: "idle"}, 7, clk)
		if err != nil {
			t.Fatalf("ToEvent: %v", err)
		}
		if !e.Timestamp.Equal(time.Date(2024, 3, 1, 8, 30, 15, 0, time.UTC)) {
			t.Errorf("timestamp = %v, want clock truncated to seconds", e.Timestamp)
		}
	})

	t.Run("malformed timestamp", func(t *testing.T) {
		_, err := ToEvent(Report{Platform: "generic", Status: "online", Timestamp: "yesterday", Raw: `{"x":1}`}, 7, clk)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("err = %v, want *ParseError", err)
		}
		if !errors.Is(err, presence.ErrMalformedTimestamp) {
			t.Errorf("err = %v, want ErrMalformedTimestamp in chain", err)
		}
		if pe.Line != `{"x":1}` {
			t.Errorf("line = %q", pe.Line)
		}
	})

	t.Run("ignored status is not a parse error", func(t *testing.T) {
		_, err := ToEvent(Report{Platform: "telegram", Status: "UserStatusRecently"}, 7, clk)
		var pe *ParseError
		if errors.As(err, &pe) || !errors.Is(err, ErrIgnoredStatus) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestDecodeReport(t *testing.T) {
	r, err := DecodeReport([]byte(`{"telegram_id": 42, "platform": "telegram", "status": "UserStatusOnline"}`))
	if err != nil {
		t.Fatalf("DecodeReport: %v", err)
	}
	if r.TelegramID == nil || *r.TelegramID != 42 || r.Raw == "" {
		t.Errorf("report = %+v", r)
	}

	for _, bad := range []string{`not json`, `{"platform": "telegram"}`} {
		_, err := DecodeReport([]byte(bad))
		var pe *ParseError
		if !errors.As(err, &pe) || pe.Line != bad {
			t.Errorf("DecodeReport(%q) err = %v", bad, err)
		}
	}
}
