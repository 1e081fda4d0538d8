package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fortuna/vetoscope/internal/aggregate"
	"github.com/fortuna/vetoscope/internal/report"
	"github.com/fortuna/vetoscope/internal/runs"
	"github.com/fortuna/vetoscope/internal/session"
	"github.com/fortuna/vetoscope/internal/store"
)

var (
	runTeam   string
	runEvent  string
	runFrom   string
	runTo     string
	runMax    int
	runJSON   string
	runExport bool
	runNoSave bool
	runQuiet  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Analyze a team's map vetoes",
	Example: `  vetoscope run --team https://www.vlr.gg/team/7386/mibr
  vetoscope run --team https://www.vlr.gg/team/7386/mibr --from 2024-01-01 --to 2024-06-30 --export`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runTeam, "team", "", "team page URL, e.g. https://www.vlr.gg/team/7386/mibr")
	runCmd.Flags().StringVar(&runEvent, "event", "", "only count series from this event URL")
	runCmd.Flags().StringVar(&runFrom, "from", "", "earliest series date (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runTo, "to", "", "latest series date (YYYY-MM-DD)")
	runCmd.Flags().IntVar(&runMax, "max", 0, "maximum series to collect (default $MAX_MATCHES)")
	runCmd.Flags().StringVar(&runJSON, "json", "", "write the result as JSON to this file or directory")
	runCmd.Flags().BoolVar(&runExport, "export", false, "write the result as JSON to a generated file in the current directory")
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false, "do not record the run in history")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "suppress per-series progress")
	_ = runCmd.MarkFlagRequired("team")
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	from, to, err := session.ParseDateRange(runFrom, runTo)
	if err != nil {
		return err
	}
	opts := session.Options{
		TeamURL:        runTeam,
		EventFilterURL: runEvent,
		FromDate:       from,
		ToDate:         to,
		MaxMatches:     runMax,
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.newOrchestrator(ctx)
	if err != nil {
		return err
	}

	var db *store.Database
	if !runNoSave {
		if db, err = a.openStore(ctx); err != nil {
			a.logger.Warn("run history disabled", "error", err)
			db = nil
		}
	}

	id, err := runs.NewID()
	if err != nil {
		return err
	}
	run := &runs.Run{
		ID:        id,
		Options:   opts,
		Status:    runs.StatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	saveRun(ctx, a, db, run)

	reporters := []session.Reporter{}
	if !runQuiet {
		reporters = append(reporters, newConsoleReporter(os.Stderr))
	}
	result, runErr := orch.Run(ctx, opts, reporters...)

	// ctx may be cancelled by now; bookkeeping gets its own deadline.
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run.Finish(result, runErr, time.Now())
	saveRun(finishCtx, a, db, run)

	if runErr != nil {
		return runErr
	}

	if pub := a.newPublisher(finishCtx); pub != nil {
		if err := pub.PublishResult(finishCtx, run.ID, result); err != nil {
			a.logger.Warn("publish result failed", "error", err)
		}
	}

	report.Print(os.Stdout, result)
	if db != nil {
		fmt.Fprintf(os.Stdout, "\nRun %s saved. Show it again with: vetoscope show %s\n", run.ID, run.ID)
	}
	return exportResult(result)
}

func saveRun(ctx context.Context, a *app, db *store.Database, run *runs.Run) {
	if db == nil {
		return
	}
	if err := db.SaveRun(ctx, run.Record()); err != nil {
		a.logger.Warn("save run failed", "run_id", run.ID, "error", err)
	}
}

func exportResult(result *aggregate.Result) error {
	now := time.Now()
	targets := []string{}
	if runJSON != "" {
		targets = append(targets, runJSON)
	}
	if runExport {
		targets = append(targets, ".")
	}
	for _, target := range targets {
		path, err := report.ExportFile(target, result, now)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Exported JSON to %s\n", path)
	}
	return nil
}
