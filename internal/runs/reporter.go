package runs

import (
	"github.com/fortuna/vetoscope/internal/aggregate"
	"github.com/fortuna/vetoscope/internal/session"
	"github.com/fortuna/vetoscope/internal/vlr"
)

// progressReporter mirrors orchestrator callbacks into the run table and
// the broadcaster.
type progressReporter struct {
	session.NopReporter
	m  *Manager
	id string
}

func (r *progressReporter) OnStateChange(state session.State) {
	r.m.update(r.id, func(run *Run) { run.State = state })
	r.m.emit(Event{Type: EventState, RunID: r.id, State: state})
}

func (r *progressReporter) OnListingsCollected(total, kept int) {
	r.m.update(r.id, func(run *Run) { run.Progress.Total = kept })
	r.m.emit(Event{Type: EventListings, RunID: r.id, Index: kept, Total: total})
}

func (r *progressReporter) OnMatchStart(index, total int, listing vlr.MatchListing) {
	r.m.update(r.id, func(run *Run) {
		run.Progress.Current = index
		run.Progress.Total = total
	})
	r.m.emit(Event{Type: EventMatch, RunID: r.id, Index: index, Total: total, URL: listing.URL})
}

func (r *progressReporter) OnMatchSkipped(listing vlr.MatchListing, reason session.SkipReason) {
	r.m.update(r.id, func(run *Run) { run.Progress.Skipped++ })
	r.m.emit(Event{Type: EventSkipped, RunID: r.id, URL: listing.URL, Reason: reason})
}

func (r *progressReporter) OnMatchProcessed(record aggregate.MatchRecord) {
	r.m.update(r.id, func(run *Run) { run.Progress.Processed++ })
	r.m.emit(Event{Type: EventProcessed, RunID: r.id, URL: record.URL, Record: &record})
}

func (r *progressReporter) OnComplete(result *aggregate.Result) {
	r.m.update(r.id, func(run *Run) { run.TeamName = result.TeamName })
}
