// Package aggregate accumulates parsed pick/ban actions into per-map and
// per-team totals.
package aggregate

import "time"

// Aggregator is owned by a single run and is not safe for concurrent use.
type Aggregator struct {
	stats       TeamStats
	byMap       map[string]*MapStat
	detailed    []MatchRecord
	filteredOut FilteredOut
}

func New() *Aggregator {
	return &Aggregator{byMap: make(map[string]*MapStat)}
}

// Add folds one match's actions into the totals. Zero actions is a no-op.
// It returns the record that was appended.
func (a *Aggregator) Add(url string, date *time.Time, event string, actions []PickBanAction) (MatchRecord, bool) {
	if len(actions) == 0 {
		return MatchRecord{}, false
	}

	record := MatchRecord{
		URL:     url,
		Date:    copyTime(date),
		Event:   event,
		Actions: make([]PickBanAction, len(actions)),
	}
	copy(record.Actions, actions)

	for _, action := range actions {
		stat, ok := a.byMap[action.Map]
		if !ok {
			stat = &MapStat{}
			a.byMap[action.Map] = stat
		}

		switch action.Action {
		case ActionPick:
			a.stats.Pick++
			stat.Pick++
			record.Picks++
		case ActionBan:
			a.stats.Ban++
			stat.Ban++
			record.Bans++
		}
	}

	a.stats.Matches++
	a.detailed = append(a.detailed, record)
	return record, true
}

// SkipEvent records a match dropped by the event filter.
func (a *Aggregator) SkipEvent() {
	a.filteredOut.Event++
}

// SkipNoData records a match with no usable pick/ban text.
func (a *Aggregator) SkipNoData() {
	a.filteredOut.NoData++
}

// Stats returns the running team totals.
func (a *Aggregator) Stats() TeamStats {
	return a.stats
}

// Result builds a snapshot that shares no memory with the aggregator.
func (a *Aggregator) Result(teamName string, filters Filters) *Result {
	byMap := make(map[string]*MapStat, len(a.byMap))
	for name, stat := range a.byMap {
		s := *stat
		byMap[name] = &s
	}

	detailed := make([]MatchRecord, len(a.detailed))
	for i, record := range a.detailed {
		record.Date = copyTime(record.Date)
		record.Actions = append([]PickBanAction(nil), record.Actions...)
		detailed[i] = record
	}

	filters.FromDate = copyTime(filters.FromDate)
	filters.ToDate = copyTime(filters.ToDate)
	if filters.Event != nil {
		event := *filters.Event
		filters.Event = &event
	}

	return &Result{
		TeamName:        teamName,
		TeamStats:       a.stats,
		AggregatedByMap: byMap,
		Detailed:        detailed,
		FilteredOut:     a.filteredOut,
		Filters:         filters,
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
