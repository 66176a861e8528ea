package main

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/graaaaa/nickutc/internal/derive"
	"github.com/graaaaa/nickutc/internal/ingest"
	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/sleep"
)

func init() {
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a JSONL report file and recompute the affected users",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	release, err := lockDataDir("nickutc serve is running; stop it or submit reports over the API")
	if err != nil {
		return err
	}
	defer release()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if _, err := registerUsers(ctx, st, cfg.TrackedUsers); err != nil {
		return err
	}

	var (
		mu       sync.Mutex
		touched  = make(map[int64]bool)
		inserted int64
	)
	ingester := ingest.New(st, ingest.StoreResolver{Finder: st},
		ingest.WithOnAppend(func(e presence.Event, ins bool) {
			mu.Lock()
			defer mu.Unlock()
			touched[e.UserID] = true
			if ins {
				inserted++
			}
		}),
	)

	src := ingest.NewFileSource(args[0], ingest.WithFollow(false))
	if err := ingester.Run(ctx, src); err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "imported %s events for %d users\n", humanize.Comma(inserted), len(touched))

	ids := make([]int64, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	p := cfg.Tracking.Params()
	analyzer := derive.NewAnalyzer(st, st, derive.WithParams(func() sleep.Params { return p }))
	for _, id := range ids {
		o, err := analyzer.Recompute(ctx, id)
		if err != nil {
			slog.Error("recompute failed", "user_id", id, "error", err)
			continue
		}
		printOutcome(out, o)
	}
	return nil
}
