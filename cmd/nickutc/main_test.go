package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/graaaaa/nickutc/internal/config"
	"github.com/graaaaa/nickutc/internal/derive"
	"github.com/graaaaa/nickutc/internal/ingest"
	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/singleinstance"
	"github.com/graaaaa/nickutc/internal/sleep"
	"github.com/graaaaa/nickutc/internal/store"
)

func init() {
	color.NoColor = true
}

func TestPrintOutcome(t *testing.T) {
	wake := time.Date(2024, 1, 2, 6, 5, 0, 0, time.UTC)
	o := derive.Outcome{
		RunID:  "run-1",
		UserID: 7,
		Result: sleep.Result{
			Daily: []presence.DailyTimezone{{Date: "2024-01-02", OffsetHours: 3, WakeupAt: wake}},
		},
	}

	var buf bytes.Buffer
	printOutcome(&buf, o)
	out := buf.String()

	for _, want := range []string{"user 7", "run-1", "2024-01-02", "UTC+3", "current: UTC+3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintOutcome_Empty(t *testing.T) {
	var buf bytes.Buffer
	printOutcome(&buf, derive.Outcome{UserID: 1, Empty: true})
	if !strings.Contains(buf.String(), "no events") {
		t.Errorf("output = %q, want 'no events'", buf.String())
	}
}

func TestPrintUsers(t *testing.T) {
	online := presence.Online
	off := -5.0
	last := time.Now().Add(-3 * time.Hour)
	summaries := []store.UserSummary{
		{
			User:        presence.User{ID: 1, Label: "alice", CurrentStatus: &online, CurrentOffset: &off},
			LastEventAt: &last,
			EventsCount: 12345,
		},
		{User: presence.User{ID: 2, Label: "bob"}},
	}

	var buf bytes.Buffer
	printUsers(&buf, summaries)
	out := buf.String()

	for _, want := range []string{"alice", "online", "UTC-5", "12,345", "3 hours ago", "bob", "unknown", "N/A", "never"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestBuildSources(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	tg := int64(1)
	cfg := config.DefaultConfig()
	cfg.Sources.ReportFile = filepath.Join(t.TempDir(), "reports.jsonl")
	cfg.Sources.Kafka = config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "presence"}
	cfg.TrackedUsers = []config.TrackedUser{
		{Label: "probed", TelegramID: &tg, ProbeURL: "http://127.0.0.1:1/status"},
		{Label: "plain", TelegramID: presence.Int64Ptr(2)},
	}

	sources, err := buildSources(context.Background(), cfg, st)
	if err != nil {
		t.Fatalf("buildSources error: %v", err)
	}
	if len(sources) != 3 {
		t.Fatalf("sources = %d, want 3", len(sources))
	}
	if _, ok := sources[0].(*ingest.FileSource); !ok {
		t.Errorf("sources[0] = %T, want *ingest.FileSource", sources[0])
	}
	if _, ok := sources[1].(*ingest.KafkaSource); !ok {
		t.Errorf("sources[1] = %T, want *ingest.KafkaSource", sources[1])
	}
	if _, ok := sources[2].(*ingest.Poller); !ok {
		t.Errorf("sources[2] = %T, want *ingest.Poller", sources[2])
	}
}

func TestBuildSources_None(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	sources, err := buildSources(context.Background(), config.DefaultConfig(), st)
	if err != nil {
		t.Fatalf("buildSources error: %v", err)
	}
	if len(sources) != 0 {
		t.Errorf("sources = %d, want 0", len(sources))
	}
}

func TestImportCommand(t *testing.T) {
	dir := t.TempDir()

	cfgJSON := `{"schema_version": 1, "tracked_users": [{"label": "alice", "telegram_id": 1}]}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfgJSON), 0600); err != nil {
		t.Fatal(err)
	}

	reports := strings.Join([]string{
		`{"telegram_id": 1, "platform": "telegram", "status": "UserStatusOnline", "timestamp": "2024-01-01T18:00:00Z"}`,
		`{"telegram_id": 1, "platform": "telegram", "status": "UserStatusOffline", "timestamp": "2024-01-01T22:00:00Z"}`,
		`{"telegram_id": 1, "platform": "telegram", "status": "UserStatusOnline", "timestamp": "2024-01-02T06:05:00Z"}`,
		`{"telegram_id": 99, "platform": "telegram", "status": "UserStatusOnline", "timestamp": "2024-01-02T06:05:00Z"}`,
	}, "\n") + "\n"
	reportPath := filepath.Join(dir, "reports.jsonl")
	if err := os.WriteFile(reportPath, []byte(reports), 0600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--data-dir", dir, "import", reportPath})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("import error: %v", err)
	}

	got := out.String()
	for _, want := range []string{"imported 3 events for 1 users", "user 1", "2024-01-02", "UTC+3"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	st, err := store.Open(filepath.Join(dir, "nickutc.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	u, err := st.GetUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetUser error: %v", err)
	}
	if u.CurrentOffset == nil || *u.CurrentOffset != 3 {
		t.Errorf("CurrentOffset = %v, want 3", u.CurrentOffset)
	}
	n, err := st.CountRejectedReports(context.Background())
	if err != nil {
		t.Fatalf("CountRejectedReports error: %v", err)
	}
	if n != 0 {
		t.Errorf("rejected = %d, want 0 (unknown users are skipped, not rejected)", n)
	}
}

// TestWritingCommandsRespectServeLock: while serve holds the data dir lock,
// commands that append events or rewrite results must refuse to run.
func TestWritingCommandsRespectServeLock(t *testing.T) {
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "reports.jsonl")
	if err := os.WriteFile(reportPath, nil, 0600); err != nil {
		t.Fatal(err)
	}

	config.SetDataDir(dir)
	lockPath, err := config.LockFilePath()
	if err != nil {
		t.Fatalf("LockFilePath error: %v", err)
	}
	release, ok, err := singleinstance.AcquireLock(lockPath)
	if err != nil || !ok {
		t.Fatalf("AcquireLock = %v, %v", ok, err)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"analyze", []string{"--data-dir", dir, "analyze"}},
		{"import", []string{"--data-dir", dir, "import", reportPath}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			rootCmd.SetOut(&out)
			rootCmd.SetArgs(tt.args)
			t.Cleanup(func() {
				rootCmd.SetOut(nil)
				rootCmd.SetArgs(nil)
			})

			err := rootCmd.Execute()
			if err == nil || !strings.Contains(err.Error(), "serve is running") {
				t.Fatalf("err = %v, want serve is running", err)
			}
		})
	}

	release()

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"--data-dir", dir, "analyze"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("analyze after release: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "nickutc ") {
		t.Errorf("output = %q, want nickutc prefix", out.String())
	}
}
