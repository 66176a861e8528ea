// Command nickutc infers the local timezone of tracked people from the
// sleep gaps in their online/offline history.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/graaaaa/nickutc/internal/appinfo"
	"github.com/graaaaa/nickutc/internal/config"
	"github.com/graaaaa/nickutc/internal/singleinstance"
	"github.com/graaaaa/nickutc/internal/store"
	"github.com/graaaaa/nickutc/internal/version"
)

var dataDir string

var rootCmd = &cobra.Command{
	Use:           appinfo.AppName,
	Short:         "Estimate timezones from online presence history",
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if dataDir != "" {
			config.SetDataDir(dataDir)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default: per-user config dir)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies environment overrides.
// A broken file falls back to defaults inside config.
func loadConfig() config.Config {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Warn("failed to resolve config path", "error", err)
	}
	return config.ApplyEnvOverrides(cfg)
}

func setupLogging(cfg config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// lockDataDir takes the single-instance lock of the data directory. Every
// command that writes results holds it, so recomputes for a user never run
// outside the serve queue. busy is the error text when the lock is taken.
func lockDataDir(busy string) (release func(), err error) {
	if _, err := config.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	lockPath, err := config.LockFilePath()
	if err != nil {
		return nil, err
	}
	release, ok, err := singleinstance.AcquireLock(lockPath)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, errors.New(busy)
	}
	return release, nil
}

func openStore() (*store.Store, error) {
	if _, err := config.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	path, err := config.DatabasePath()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

// registerUsers upserts every configured tracked user and returns their ids
// in config order.
func registerUsers(ctx context.Context, st *store.Store, users []config.TrackedUser) ([]int64, error) {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		spec := store.UserSpec{
			Label:      u.Label,
			TelegramID: u.TelegramID,
			DiscordID:  u.DiscordID,
		}
		if u.Username != "" {
			name := u.Username
			spec.Username = &name
		}
		id, err := st.EnsureUser(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("register %q: %w", u.Label, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
