package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/fortuna/vetoscope/internal/report"
	"github.com/fortuna/vetoscope/internal/store"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "print the result as JSON")
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	db, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}

	rec, err := db.GetRun(cmd.Context(), args[0])
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "No run found with id %q\n", args[0])
		return nil
	}
	if err != nil {
		return err
	}

	if rec.Result == nil {
		fmt.Fprintf(os.Stdout, "Run %s (%s) has no result", rec.ID, rec.Status)
		if rec.Error != "" {
			fmt.Fprintf(os.Stdout, ": %s", rec.Error)
		}
		fmt.Fprintln(os.Stdout)
		return nil
	}

	if showJSON {
		return report.WriteJSON(os.Stdout, rec.Result)
	}
	report.Print(os.Stdout, rec.Result)
	return nil
}
