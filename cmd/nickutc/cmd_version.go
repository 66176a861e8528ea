package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/graaaaa/nickutc/internal/appinfo"
	"github.com/graaaaa/nickutc/internal/version"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s %s/%s)\n",
			appinfo.AppName, version.String(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
