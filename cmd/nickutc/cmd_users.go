package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/store"
)

func init() {
	rootCmd.AddCommand(usersCmd)
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List tracked users with their current estimate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(loadConfig())

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		summaries, err := st.ListUserSummaries(cmd.Context())
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		if len(summaries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no users")
			return nil
		}
		printUsers(cmd.OutOrStdout(), summaries)
		return nil
	},
}

var (
	onlineColor  = color.New(color.FgGreen)
	offlineColor = color.New(color.FgHiBlack)
)

func printUsers(w io.Writer, summaries []store.UserSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tSTATUS\tTIMEZONE\tEVENTS\tLAST EVENT")
	for _, s := range summaries {
		u := s.User
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			u.ID,
			u.Label,
			statusText(u.CurrentStatus),
			presence.FormatOffset(u.CurrentOffset),
			humanize.Comma(s.EventsCount),
			lastEventText(s),
		)
	}
	tw.Flush()
}

func statusText(st *presence.Status) string {
	switch {
	case st == nil:
		return offlineColor.Sprint("unknown")
	case *st == presence.Online:
		return onlineColor.Sprint(string(*st))
	default:
		return offlineColor.Sprint(string(*st))
	}
}

func lastEventText(s store.UserSummary) string {
	if s.LastEventAt == nil {
		return "never"
	}
	return humanize.Time(*s.LastEventAt)
}
