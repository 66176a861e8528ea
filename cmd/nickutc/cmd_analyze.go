package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/graaaaa/nickutc/internal/derive"
	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/sleep"
	"github.com/graaaaa/nickutc/internal/store"
)

var analyzeUser int64

func init() {
	analyzeCmd.Flags().Int64Var(&analyzeUser, "user", 0, "only recompute this user id")
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Recompute sleep periods and timezone estimates once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		release, err := lockDataDir("nickutc serve is running; stop it or use POST /api/v1/users/{id}/recompute")
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
		ids, err := analyzeTargets(ctx, st, analyzeUser)
		if err != nil {
			return err
		}

		p := cfg.Tracking.Params()
		analyzer := derive.NewAnalyzer(st, st, derive.WithParams(func() sleep.Params { return p }))
		for _, id := range ids {
			out, err := analyzer.Recompute(ctx, id)
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
		}
		return nil
	},
}

func analyzeTargets(ctx context.Context, st *store.Store, only int64) ([]int64, error) {
	if only != 0 {
		if _, err := st.GetUser(ctx, only); err != nil {
			return nil, fmt.Errorf("user %d: %w", only, err)
		}
		return []int64{only}, nil
	}
	users, err := st.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

var (
	headerColor = color.New(color.Bold)
	dimColor    = color.New(color.FgHiBlack)
	eastColor   = color.New(color.FgGreen)
	westColor   = color.New(color.FgYellow)
)

func offsetColor(offset float64) *color.Color {
	if offset < 0 {
		return westColor
	}
	return eastColor
}

func printOutcome(w io.Writer, o derive.Outcome) {
	headerColor.Fprintf(w, "user %d", o.UserID)
	dimColor.Fprintf(w, "  run %s\n", o.RunID)

	if o.Empty {
		dimColor.Fprintln(w, "  no events")
		return
	}

	fmt.Fprintf(w, "  %d sleep periods, %d days (%s)\n", len(o.Result.Periods), len(o.Result.Daily), o.Duration)
	for _, d := range o.Result.Daily {
		off := d.OffsetHours
		fmt.Fprintf(w, "  %s  ", d.Date)
		offsetColor(off).Fprintf(w, "%-10s", presence.FormatOffset(&off))
		dimColor.Fprintf(w, "  woke %s\n", presence.FormatTimestamp(d.WakeupAt))
	}

	if off, ok := o.CurrentOffset(); ok {
		fmt.Fprint(w, "  current: ")
		offsetColor(off).Fprintln(w, presence.FormatOffset(&off))
	}
}
