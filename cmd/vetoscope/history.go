package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fortuna/vetoscope/internal/report"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to list (0 for all)")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	db, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}

	records, err := db.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	rows := make([]report.HistoryRow, 0, len(records))
	for _, rec := range records {
		row := report.HistoryRow{
			ID:        rec.ID,
			Team:      rec.TeamName,
			Status:    rec.Status,
			CreatedAt: rec.CreatedAt,
			Error:     rec.Error,
		}
		if rec.Result != nil {
			row.Matches = rec.Result.TeamStats.Matches
		}
		rows = append(rows, row)
	}
	report.PrintHistory(os.Stdout, rows)
	return nil
}
