package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// HistoryRow is one stored run as listed by the history command.
type HistoryRow struct {
	ID        string
	Team      string
	Status    string
	Matches   int
	CreatedAt time.Time
	Error     string
}

// PrintHistory writes stored runs, newest first as given.
func PrintHistory(w io.Writer, rows []HistoryRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No stored runs.")
		return
	}

	table := tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Header: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignCenter},
		},
	}))

	table.Header("ID", "CREATED", "TEAM", "STATUS", "SERIES", "ERROR")
	for _, r := range rows {
		team := r.Team
		if team == "" {
			team = "-"
		}
		table.Append(
			r.ID,
			r.CreatedAt.UTC().Format("2006-01-02 15:04"),
			team,
			r.Status,
			strconv.Itoa(r.Matches),
			r.Error,
		)
	}
	table.Render()
}
