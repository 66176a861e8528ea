package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/graaaaa/nickutc/internal/api"
	"github.com/graaaaa/nickutc/internal/app"
	"github.com/graaaaa/nickutc/internal/config"
	"github.com/graaaaa/nickutc/internal/derive"
	"github.com/graaaaa/nickutc/internal/ingest"
	"github.com/graaaaa/nickutc/internal/notify"
	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/sleep"
	"github.com/graaaaa/nickutc/internal/store"
	"github.com/graaaaa/nickutc/internal/version"
	"github.com/graaaaa/nickutc/webembed"
)

const (
	maxConcurrentRecomputes = 4
	cacheTTL                = time.Minute
	shutdownTimeout         = 5 * time.Second
)

var servePort int

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run ingestion, analysis and the web dashboard",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	release, err := lockDataDir("another instance is already running")
	if err != nil {
		return err
	}
	defer release()

	secrets := config.ApplySecretEnvOverrides(loadSecrets(cfg))

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userIDs, err := registerUsers(ctx, st, cfg.TrackedUsers)
	if err != nil {
		return err
	}

	state := derive.NewState()
	if err := seedState(ctx, st, state); err != nil {
		return err
	}

	var params atomic.Pointer[sleep.Params]
	p := cfg.Tracking.Params()
	params.Store(&p)

	hub := api.NewHub(api.WithHubLogger(slog.Default().With("component", "sse")))
	go hub.Run()
	defer hub.Stop()

	users := app.NewUsersService(st, cacheTTL)
	stats := app.NewStatsService(st, cacheTTL)

	notifier := newNotifier(cfg, secrets, users)

	analyzer := derive.NewAnalyzer(st, st, derive.WithParams(func() sleep.Params { return *params.Load() }))
	queue := derive.NewQueue(analyzer.Recompute, maxConcurrentRecomputes,
		derive.WithOnDone(func(o derive.Outcome, err error) {
			if err != nil {
				return
			}
			users.InvalidateUser(o.UserID)
			stats.InvalidateUser(o.UserID)
			change := state.Observe(o)
			hub.Publish(api.NewAnalysisMessage(o, change))
			if change != nil && notifier != nil && cfg.Notify.OnTimezoneChange {
				notifier.Enqueue(*change)
			}
		}),
	)
	queue.Start(ctx)
	defer queue.Stop()

	ingester := ingest.New(st, ingest.StoreResolver{Finder: st},
		ingest.WithOnAppend(func(e presence.Event, inserted bool) {
			// Publish before queueing so the analysis follows its presence event.
			if inserted {
				users.InvalidateUser(e.UserID)
				hub.Publish(api.NewPresenceMessage(e))
			}
			if _, err := queue.Enqueue(e.UserID); err != nil {
				slog.Warn("recompute not queued", "user_id", e.UserID, "error", err)
			}
		}),
	)

	// Results written by an older version or other parameters are refreshed.
	for _, id := range userIDs {
		if _, err := queue.Enqueue(id); err != nil {
			slog.Warn("startup recompute not queued", "user_id", id, "error", err)
		}
	}

	sources, err := buildSources(ctx, cfg, st)
	if err != nil {
		return err
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.VacuumSchedule, func() {
		if _, err := st.VacuumIfNeeded(ctx); err != nil {
			slog.Warn("vacuum failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule vacuum %q: %w", cfg.VacuumSchedule, err)
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	server := newServer(cfg, secrets, st, hub, users, stats, ingester, queue, &params, notifier)

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error {
			err := ingester.Run(gctx, src)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if notifier != nil {
		g.Go(func() error {
			notifier.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		slog.Info("nickutc started", "version", version.String(), "addr", server.Addr(), "users", len(userIDs), "sources", len(sources))
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if notifier != nil {
			if err := notifier.Stop(shutdownCtx); err != nil {
				slog.Warn("notifier stop", "error", err)
			}
		}
		// Closing the hub ends open event streams so Shutdown does not wait on them.
		hub.Stop()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// loadSecrets loads secrets and makes sure LAN mode has Basic Auth
// credentials. Generated passwords go to a file in the data directory.
func loadSecrets(cfg config.Config) config.Secrets {
	secrets, status, err := config.LoadSecrets()
	if err != nil {
		slog.Warn("secrets", "error", err)
	}

	updated, generated, err := config.EnsureLanAuth(&secrets, cfg.LanEnabled)
	if err != nil {
		slog.Error("failed to ensure LAN auth", "error", err)
		return secrets
	}
	if !updated {
		return secrets
	}
	if status == config.SecretsFallback {
		slog.Warn("secrets file has errors; new credentials not saved, fix or delete secrets.json")
		return secrets
	}
	if err := config.SaveSecrets(secrets); err != nil {
		slog.Error("failed to save secrets", "error", err)
		return secrets
	}
	if generated != "" {
		path, err := config.WritePasswordFile(secrets.BasicAuthUsername, generated)
		if err != nil {
			slog.Error("failed to write password file", "error", err)
		} else {
			slog.Info("basic auth credentials generated, delete the file after saving them", "path", path)
		}
	}
	return secrets
}

func seedState(ctx context.Context, st *store.Store, state *derive.State) error {
	users, err := st.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		if u.CurrentOffset != nil {
			state.Seed(u.ID, *u.CurrentOffset)
		}
	}
	return nil
}

func buildSources(ctx context.Context, cfg config.Config, st *store.Store) ([]ingest.Source, error) {
	var sources []ingest.Source

	if cfg.Sources.ReportFile != "" {
		latest, err := st.LatestEventTimes(ctx)
		if err != nil {
			return nil, err
		}
		if len(latest) == 0 {
			slog.Info("no stored events, replaying the whole report file")
		}
		sources = append(sources, ingest.NewFileSource(cfg.Sources.ReportFile,
			ingest.WithFollow(cfg.Sources.Follow),
			ingest.WithReplayCutoffs(ingest.ReplayCutoffs{
				Resolver: ingest.StoreResolver{Finder: st},
				Latest:   latest,
			}),
		))
	}

	if cfg.Sources.Kafka.Enabled() {
		k := cfg.Sources.Kafka
		sources = append(sources, ingest.NewKafkaSource(k.Brokers, k.Topic, ingest.WithGroupID(k.GroupID)))
	}

	var targets []ingest.ProbeTarget
	for _, u := range cfg.TrackedUsers {
		if u.ProbeURL == "" {
			continue
		}
		platform := ingest.PlatformDiscord
		if u.TelegramID != nil {
			platform = ingest.PlatformTelegram
		}
		targets = append(targets, ingest.ProbeTarget{
			Label:      u.Label,
			TelegramID: u.TelegramID,
			DiscordID:  u.DiscordID,
			Platform:   platform,
			URL:        u.ProbeURL,
		})
	}
	if len(targets) > 0 {
		interval := time.Duration(cfg.Tracking.PollingIntervalSeconds) * time.Second
		sources = append(sources, ingest.NewPoller(targets, interval))
	}

	if len(sources) == 0 {
		slog.Warn("no report sources configured, only the HTTP API accepts reports")
	}
	return sources, nil
}

// newNotifier returns nil when no sender is configured.
func newNotifier(cfg config.Config, secrets config.Secrets, users *app.UsersService) *notify.Notifier {
	var senders []notify.Sender
	if !secrets.DiscordWebhookURL.IsEmpty() {
		senders = append(senders, notify.NewDiscordSender(secrets.DiscordWebhookURL,
			notify.WithSenderLogger(slog.Default().With("component", "notify", "sender", "discord")),
		))
	}
	if !secrets.TelegramBotToken.IsEmpty() && cfg.Notify.TelegramChatID != 0 {
		tg, err := notify.NewTelegramSender(secrets.TelegramBotToken.Value(), cfg.Notify.TelegramChatID,
			notify.WithTelegramLogger(slog.Default().With("component", "notify", "sender", "telegram")),
		)
		if err != nil {
			slog.Warn("telegram notifications disabled", "error", err)
		} else {
			senders = append(senders, tg)
		}
	}
	if len(senders) == 0 {
		slog.Info("no notification sender configured, notifications disabled")
		return nil
	}

	labeler := func(userID int64) string {
		u, err := users.Get(context.Background(), userID)
		if err != nil {
			return ""
		}
		return u.Label
	}
	return notify.NewNotifier(senders, cfg.Notify.BatchSec,
		notify.WithLabeler(labeler),
		notify.WithNotifierLogger(slog.Default().With("component", "notify")),
	)
}

func newServer(
	cfg config.Config,
	secrets config.Secrets,
	st *store.Store,
	hub *api.Hub,
	users *app.UsersService,
	stats *app.StatsService,
	ingester *ingest.Ingester,
	queue *derive.Queue,
	params *atomic.Pointer[sleep.Params],
	notifier *notify.Notifier,
) *api.Server {
	host := "127.0.0.1"
	if cfg.LanEnabled {
		host = "0.0.0.0"
	}
	port := cfg.Port
	if servePort > 0 {
		port = servePort
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	configPath, _ := config.ConfigPath()
	secretsPath, _ := config.SecretsPath()

	opts := []api.ServerOption{
		api.WithUsers(users),
		api.WithEvents(&app.EventsService{Store: st, Ingester: ingester}),
		api.WithSleep(&app.SleepService{Store: st, Queue: queue}),
		api.WithStats(stats),
		api.WithConfig(app.ConfigService{
			ConfigPath:  configPath,
			SecretsPath: secretsPath,
			OnTracking: func(t config.Tracking) {
				p := t.Params()
				params.Store(&p)
				slog.Info("tracking parameters updated")
			},
		}),
		api.WithHub(hub),
		api.WithLogger(slog.Default().With("component", "api")),
		api.WithAllowedOrigins(cfg.AllowedOrigins...),
		api.WithAllowedHosts(cfg.AllowedHosts...),
		api.WithRateLimiter(api.NewRateLimiter(api.RateLimiterConfig{
			PerSecond:       cfg.RateLimit.PerSecond,
			PerMinute:       cfg.RateLimit.PerMinute,
			CleanupInterval: api.DefaultRateLimiterConfig().CleanupInterval,
		})),
	}

	if static, err := webembed.GetFS(); err != nil {
		slog.Warn("dashboard unavailable", "error", err)
	} else {
		opts = append(opts, api.WithStaticFS(static))
	}

	if cfg.LanEnabled && secrets.BasicAuthUsername != "" && !secrets.BasicAuthPassword.IsEmpty() {
		opts = append(opts,
			api.WithBasicAuth(secrets.BasicAuthUsername, secrets.BasicAuthPassword.Value()),
			api.WithAuthFailureLimiter(api.NewAuthFailureLimiter(api.DefaultAuthFailureLimiterConfig())),
		)
		slog.Info("basic auth enabled for LAN mode")
	}

	health := app.HealthService{Version: version.String(), DB: st}
	if notifier != nil {
		health.Notifier = notifier
	}
	return api.NewServer(addr, health, opts...)
}
