package main

import (
	"fmt"
	"io"

	"github.com/fortuna/vetoscope/internal/aggregate"
	"github.com/fortuna/vetoscope/internal/session"
	"github.com/fortuna/vetoscope/internal/vlr"
)

// consoleReporter prints run progress as plain lines.
type consoleReporter struct {
	session.NopReporter
	w io.Writer
}

func newConsoleReporter(w io.Writer) *consoleReporter {
	return &consoleReporter{w: w}
}

func (r *consoleReporter) OnListingsCollected(total, kept int) {
	if total == kept {
		fmt.Fprintf(r.w, "Found %d completed series\n", total)
		return
	}
	fmt.Fprintf(r.w, "Found %d completed series, %d inside the date range\n", total, kept)
}

func (r *consoleReporter) OnMatchStart(index, total int, listing vlr.MatchListing) {
	fmt.Fprintf(r.w, "[%d/%d] %s\n", index, total, listing.URL)
}

func (r *consoleReporter) OnMatchSkipped(_ vlr.MatchListing, reason session.SkipReason) {
	switch reason {
	case session.SkipEvent:
		fmt.Fprintln(r.w, "  skipped: different event")
	case session.SkipNoData:
		fmt.Fprintln(r.w, "  skipped: no pick/ban data")
	case session.SkipFetchError:
		fmt.Fprintln(r.w, "  skipped: page could not be fetched")
	}
}

func (r *consoleReporter) OnMatchProcessed(record aggregate.MatchRecord) {
	fmt.Fprintf(r.w, "  %d picks, %d bans\n", record.Picks, record.Bans)
}

func (r *consoleReporter) OnError(err error) {
	fmt.Fprintf(r.w, "Run stopped (%s): %v\n", session.Kind(err), err)
}
