package session

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/vetoscope/internal/vlr"
)

// Options are the caller-supplied parameters of a run.
type Options struct {
	TeamURL        string     `json:"teamUrl"`
	EventFilterURL string     `json:"eventFilterUrl,omitempty"`
	FromDate       *time.Time `json:"fromDate,omitempty"`
	ToDate         *time.Time `json:"toDate,omitempty"`
	MaxMatches     int        `json:"maxMatches,omitempty"`
}

// StartOfDay returns midnight UTC of the given calendar date.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns 23:59:59 UTC of the given calendar date.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}

// ParseDateRange reads YYYY-MM-DD bounds as adapters receive them. Empty
// strings leave the bound open.
func ParseDateRange(from, to string) (*time.Time, *time.Time, error) {
	var fromDate, toDate *time.Time
	if from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return nil, nil, errors.Mark(errors.Wrapf(err, "parse from date %q", from), ErrValidation)
		}
		t = StartOfDay(t)
		fromDate = &t
	}
	if to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return nil, nil, errors.Mark(errors.Wrapf(err, "parse to date %q", to), ErrValidation)
		}
		t = EndOfDay(t)
		toDate = &t
	}
	return fromDate, toDate, nil
}

// Validate checks opts without touching the network. Errors are marked
// ErrValidation.
func (o Options) Validate() error {
	_, err := o.plan(vlr.DefaultSite(), 1)
	return err
}

// plan is the validated form of Options.
type plan struct {
	team       vlr.TeamRef
	teamURL    string
	eventPath  string
	fromDate   *time.Time
	toDate     *time.Time
	maxMatches int
}

func (o Options) plan(site vlr.Site, defaultMax int) (plan, error) {
	team, err := vlr.ParseTeamURL(o.TeamURL)
	if err != nil {
		return plan{}, errors.Mark(err, ErrValidation)
	}

	p := plan{
		team:       team,
		teamURL:    site.TeamPageURL(o.TeamURL),
		fromDate:   o.FromDate,
		toDate:     o.ToDate,
		maxMatches: o.MaxMatches,
	}

	if o.EventFilterURL != "" {
		path, ok := vlr.EventPath(o.EventFilterURL)
		if !ok {
			return plan{}, errors.Mark(errors.Newf("event filter %q has no path", o.EventFilterURL), ErrValidation)
		}
		p.eventPath = path
	}

	if p.fromDate != nil && p.toDate != nil && p.fromDate.After(*p.toDate) {
		return plan{}, errors.Mark(errors.Newf("from date %s is after to date %s",
			p.fromDate.Format(time.RFC3339), p.toDate.Format(time.RFC3339)), ErrValidation)
	}

	switch {
	case p.maxMatches < 0:
		return plan{}, errors.Mark(errors.Newf("max matches must not be negative, got %d", p.maxMatches), ErrValidation)
	case p.maxMatches == 0:
		p.maxMatches = defaultMax
	}
	return p, nil
}

// filterByDate keeps listings inside the inclusive [from, to] window.
// Undated listings always pass.
func filterByDate(listings []vlr.MatchListing, from, to *time.Time) []vlr.MatchListing {
	if from == nil && to == nil {
		return listings
	}
	out := make([]vlr.MatchListing, 0, len(listings))
	for _, l := range listings {
		if l.Date != nil {
			if from != nil && l.Date.Before(*from) {
				continue
			}
			if to != nil && l.Date.After(*to) {
				continue
			}
		}
		out = append(out, l)
	}
	return out
}
