// Package report renders analysis results as terminal tables and JSON.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/fortuna/vetoscope/internal/aggregate"
)

// MapRow is one line of the per-map table.
type MapRow struct {
	Map     string
	Picks   int
	Bans    int
	Total   int
	BanRate float64
}

// BanRate is bans per aggregated match as a percentage. Zero matches is
// treated as one.
func BanRate(bans, matches int) float64 {
	return float64(bans) / float64(max(1, matches)) * 100
}

// MapRows orders maps by pick+ban descending, then by name.
func MapRows(r *aggregate.Result) []MapRow {
	rows := make([]MapRow, 0, len(r.AggregatedByMap))
	for name, stat := range r.AggregatedByMap {
		rows = append(rows, MapRow{
			Map:     name,
			Picks:   stat.Pick,
			Bans:    stat.Ban,
			Total:   stat.Total(),
			BanRate: BanRate(stat.Ban, r.TeamStats.Matches),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].Map < rows[j].Map
	})
	return rows
}

// PrintSummary writes the header block: team, counts and active filters.
func PrintSummary(w io.Writer, r *aggregate.Result) {
	fmt.Fprintf(w, "\nTeam: %s  |  Series: %d  |  Picks: %d  |  Bans: %d\n",
		r.TeamName, r.TeamStats.Matches, r.TeamStats.Pick, r.TeamStats.Ban)
	fmt.Fprintf(w, "Filtered out: %d by event, %d without pick/ban data\n",
		r.FilteredOut.Event, r.FilteredOut.NoData)

	var filters []string
	if r.Filters.Event != nil {
		filters = append(filters, "event "+*r.Filters.Event)
	}
	if r.Filters.FromDate != nil || r.Filters.ToDate != nil {
		filters = append(filters, fmt.Sprintf("period %s to %s", dateOr(r.Filters.FromDate, "any"), dateOr(r.Filters.ToDate, "any")))
	}
	if len(filters) > 0 {
		fmt.Fprintf(w, "Filters: %s\n", strings.Join(filters, ", "))
	}
	fmt.Fprintln(w)
}

// PrintMapTable writes the per-map pick/ban table.
func PrintMapTable(w io.Writer, r *aggregate.Result) {
	table := tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignRight},
		},
		Header: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignCenter},
		},
	}))

	table.Header("MAP", "PICKS", "BANS", "TOTAL", "BAN_RATE")
	for _, row := range MapRows(r) {
		table.Append(
			row.Map,
			strconv.Itoa(row.Picks),
			strconv.Itoa(row.Bans),
			strconv.Itoa(row.Total),
			fmt.Sprintf("%.1f%%", row.BanRate),
		)
	}
	table.Render()
}

// PrintDetails writes one table row per aggregated series.
func PrintDetails(w io.Writer, r *aggregate.Result) {
	if len(r.Detailed) == 0 {
		fmt.Fprintln(w, "No series with pick/ban data.")
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

	table.Header("DATE", "EVENT", "ACTIONS", "URL")
	for _, d := range r.Detailed {
		table.Append(dateOr(d.Date, "N/A"), d.Event, FormatActions(d.Actions), d.URL)
	}
	table.Render()
}

// Print writes the summary, the map table and the series list.
func Print(w io.Writer, r *aggregate.Result) {
	PrintSummary(w, r)
	PrintMapTable(w, r)
	fmt.Fprintln(w)
	PrintDetails(w, r)
}

// FormatActions renders actions as "PICK: Ascent, BAN: Bind".
func FormatActions(actions []aggregate.PickBanAction) string {
	parts := make([]string, 0, len(actions))
	for _, a := range actions {
		parts = append(parts, fmt.Sprintf("%s: %s", strings.ToUpper(string(a.Action)), a.Map))
	}
	return strings.Join(parts, ", ")
}

func dateOr(t *time.Time, fallback string) string {
	if t == nil {
		return fallback
	}
	return t.UTC().Format(time.DateOnly)
}
