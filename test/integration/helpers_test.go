//go:build integration

// Package integration provides end-to-end tests that wire the store, the
// ingester, the analyzer queue and the HTTP API together.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/graaaaa/nickutc/internal/api"
	"github.com/graaaaa/nickutc/internal/app"
	"github.com/graaaaa/nickutc/internal/derive"
	"github.com/graaaaa/nickutc/internal/ingest"
	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/sleep"
	"github.com/graaaaa/nickutc/internal/store"
)

// TestApp holds all dependencies for integration tests.
type TestApp struct {
	Server   *httptest.Server
	Store    *store.Store
	Hub      *api.Hub
	Queue    *derive.Queue
	Ingester *ingest.Ingester
	State    *derive.State

	username string
	password string
}

// NewTestApp creates a test application with all dependencies wired the way
// the serve command wires them. Resources are released via t.Cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	cfg := &testAppConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	hub := api.NewHub()
	go hub.Run()

	users := app.NewUsersService(st, time.Minute)
	stats := app.NewStatsService(st, time.Minute)
	state := derive.NewState()

	analyzer := derive.NewAnalyzer(st, st, derive.WithParams(sleep.DefaultParams))
	queue := derive.NewQueue(analyzer.Recompute, 2,
		derive.WithOnDone(func(o derive.Outcome, err error) {
			if err != nil {
				return
			}
			users.InvalidateUser(o.UserID)
			stats.InvalidateUser(o.UserID)
			hub.Publish(api.NewAnalysisMessage(o, state.Observe(o)))
		}),
	)
	ctx, cancel := context.WithCancel(context.Background())
	queue.Start(ctx)

	ingester := ingest.New(st, ingest.StoreResolver{Finder: st},
		ingest.WithOnAppend(func(e presence.Event, inserted bool) {
			if inserted {
				users.InvalidateUser(e.UserID)
				hub.Publish(api.NewPresenceMessage(e))
			}
			queue.Enqueue(e.UserID)
		}),
	)

	serverOpts := []api.ServerOption{
		api.WithUsers(users),
		api.WithEvents(&app.EventsService{Store: st, Ingester: ingester}),
		api.WithSleep(&app.SleepService{Store: st, Queue: queue}),
		api.WithStats(stats),
		api.WithHub(hub),
	}
	if cfg.authEnabled {
		serverOpts = append(serverOpts,
			api.WithBasicAuth(cfg.username, cfg.password),
			api.WithAuthFailureLimiter(api.NewAuthFailureLimiter(api.DefaultAuthFailureLimiterConfig())),
		)
	}

	server := api.NewServer("127.0.0.1:0", app.HealthService{Version: "test", DB: st}, serverOpts...)
	ts := httptest.NewServer(server.Handler())

	t.Cleanup(func() {
		hub.Stop()
		ts.Close()
		cancel()
		queue.Stop()
		st.Close()
	})

	return &TestApp{
		Server:   ts,
		Store:    st,
		Hub:      hub,
		Queue:    queue,
		Ingester: ingester,
		State:    state,
		username: cfg.username,
		password: cfg.password,
	}
}

// URL returns the base URL of the test server.
func (a *TestApp) URL() string {
	return a.Server.URL
}

// AddUser registers a tracked telegram user and returns its id.
func (a *TestApp) AddUser(t *testing.T, label string, telegramID int64) int64 {
	t.Helper()
	id, err := a.Store.EnsureUser(context.Background(), store.UserSpec{
		Label:      label,
		TelegramID: presence.Int64Ptr(telegramID),
	})
	if err != nil {
		t.Fatalf("failed to add user: %v", err)
	}
	return id
}

// Ingest feeds a telegram report through the ingester.
func (a *TestApp) Ingest(t *testing.T, telegramID int64, status, ts string) {
	t.Helper()
	_, err := a.Ingester.Ingest(context.Background(), ingest.Report{
		TelegramID: presence.Int64Ptr(telegramID),
		Platform:   ingest.PlatformTelegram,
		Status:     status,
		Timestamp:  ts,
	})
	if err != nil {
		t.Fatalf("failed to ingest %s at %s: %v", status, ts, err)
	}
}

// WaitIdle waits for queued recomputes to finish.
func (a *TestApp) WaitIdle(t *testing.T) {
	t.Helper()
	if !a.Queue.WaitIdle(5 * time.Second) {
		t.Fatal("recompute queue did not drain")
	}
}

// Do sends a request with credentials when auth is enabled and a same-origin
// Origin header for writes.
func (a *TestApp) Do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.URL()+path, r)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Origin", a.URL())
	}
	if a.username != "" {
		req.SetBasicAuth(a.username, a.password)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to make request: %v", err)
	}
	return resp
}

// GetJSON performs a GET, checks the status and decodes the body into v.
func (a *TestApp) GetJSON(t *testing.T, path string, wantStatus int, v any) {
	t.Helper()
	resp := a.Do(t, http.MethodGet, path, nil)
	defer resp.Body.Close()
	decodeResponse(t, resp, wantStatus, v)
}

func decodeResponse(t *testing.T, resp *http.Response, wantStatus int, v any) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("expected status %d, got %d: %s", wantStatus, resp.StatusCode, body)
	}
	if v == nil {
		return
	}
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("failed to parse JSON %q: %v", body, err)
	}
}

func userPath(id int64, suffix string) string {
	return "/api/v1/users/" + strconv.FormatInt(id, 10) + suffix
}

// testAppConfig holds configuration for test app.
type testAppConfig struct {
	authEnabled bool
	username    string
	password    string
}

// TestAppOption configures a test app.
type TestAppOption func(*testAppConfig)

// WithAuth enables authentication for the test app.
func WithAuth(username, password string) TestAppOption {
	return func(cfg *testAppConfig) {
		cfg.authEnabled = true
		cfg.username = username
		cfg.password = password
	}
}
