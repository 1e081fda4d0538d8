package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	storeDSN  string
	fetchMode string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "vetoscope",
	Short: "vlr.gg map veto analytics",
	Long:  "Scrape a team's completed vlr.gg series and aggregate how often it picks and bans each map.",

	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeDSN, "db", "", "run history DSN: sqlite path or postgres:// URL (default $STORE_DSN or ~/.vetoscope/runs.db)")
	rootCmd.PersistentFlags().StringVar(&fetchMode, "fetch-mode", "", "page fetcher: http or browser (default $FETCH_MODE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default $LOG_LEVEL)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
}
