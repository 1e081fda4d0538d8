package session

import (
	"github.com/fortuna/vetoscope/internal/aggregate"
	"github.com/fortuna/vetoscope/internal/vlr"
)

// SkipReason says why a match contributed nothing.
type SkipReason string

const (
	SkipEvent      SkipReason = "event"
	SkipNoData     SkipReason = "no_data"
	SkipFetchError SkipReason = "fetch_error"
)

// Reporter receives progress callbacks from a run. Callbacks are invoked on
// the run's goroutine and must not block for long. Match indexes are 1-based.
type Reporter interface {
	OnStateChange(state State)
	OnListingsCollected(total, kept int)
	OnMatchStart(index, total int, listing vlr.MatchListing)
	OnMatchSkipped(listing vlr.MatchListing, reason SkipReason)
	OnMatchProcessed(record aggregate.MatchRecord)
	OnComplete(result *aggregate.Result)
	OnError(err error)
}

// NopReporter ignores every callback. Embed it to implement a subset.
type NopReporter struct{}

func (NopReporter) OnStateChange(State)                         {}
func (NopReporter) OnListingsCollected(int, int)                {}
func (NopReporter) OnMatchStart(int, int, vlr.MatchListing)     {}
func (NopReporter) OnMatchSkipped(vlr.MatchListing, SkipReason) {}
func (NopReporter) OnMatchProcessed(aggregate.MatchRecord)      {}
func (NopReporter) OnComplete(*aggregate.Result)                {}
func (NopReporter) OnError(error)                               {}

type multiReporter []Reporter

// MultiReporter fans callbacks out to every non-nil reporter in order.
func MultiReporter(reporters ...Reporter) Reporter {
	out := make(multiReporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multiReporter) OnStateChange(state State) {
	for _, r := range m {
		r.OnStateChange(state)
	}
}

func (m multiReporter) OnListingsCollected(total, kept int) {
	for _, r := range m {
		r.OnListingsCollected(total, kept)
	}
}

func (m multiReporter) OnMatchStart(index, total int, listing vlr.MatchListing) {
	for _, r := range m {
		r.OnMatchStart(index, total, listing)
	}
}

func (m multiReporter) OnMatchSkipped(listing vlr.MatchListing, reason SkipReason) {
	for _, r := range m {
		r.OnMatchSkipped(listing, reason)
	}
}

func (m multiReporter) OnMatchProcessed(record aggregate.MatchRecord) {
	for _, r := range m {
		r.OnMatchProcessed(record)
	}
}

func (m multiReporter) OnComplete(result *aggregate.Result) {
	for _, r := range m {
		r.OnComplete(result)
	}
}

func (m multiReporter) OnError(err error) {
	for _, r := range m {
		r.OnError(err)
	}
}
