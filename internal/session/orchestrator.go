// Package session drives one pick/ban analysis from a team URL to an
// aggregated result.
package session

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/vetoscope/internal/aggregate"
	"github.com/fortuna/vetoscope/internal/fetch"
	"github.com/fortuna/vetoscope/internal/platform/logging"
	"github.com/fortuna/vetoscope/internal/platform/pace"
	"github.com/fortuna/vetoscope/internal/vlr"
)

// Config holds the orchestrator settings shared by every run.
type Config struct {
	BaseURL    string
	PageDelay  time.Duration
	MatchDelay time.Duration
	MaxMatches int
}

// DefaultConfig targets the public site with the standard politeness delays.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    vlr.DefaultBaseURL,
		PageDelay:  500 * time.Millisecond,
		MatchDelay: 400 * time.Millisecond,
		MaxMatches: 100,
	}
}

// Orchestrator runs analyses sequentially against one fetcher. It keeps no
// per-run state, so one instance may serve many runs.
type Orchestrator struct {
	fetcher fetch.Fetcher
	site    vlr.Site
	config  *Config
	logger  *logging.Logger
}

// NewOrchestrator creates an orchestrator. A nil config uses DefaultConfig.
func NewOrchestrator(fetcher fetch.Fetcher, config *Config, logger *logging.Logger) (*Orchestrator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.MaxMatches <= 0 {
		cfg.MaxMatches = DefaultConfig().MaxMatches
	}
	site, err := vlr.NewSite(cfg.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "orchestrator base url")
	}

	return &Orchestrator{
		fetcher: fetcher,
		site:    site,
		config:  &cfg,
		logger:  logging.OrDefault(logger).With("component", "session"),
	}, nil
}

// Site returns the site the orchestrator resolves URLs against.
func (o *Orchestrator) Site() vlr.Site {
	return o.site
}

// Run executes one analysis. Progress goes to every reporter. On error the
// result is nil; cancellation of ctx yields an error marked ErrCancelled.
func (o *Orchestrator) Run(ctx context.Context, opts Options, reporters ...Reporter) (*aggregate.Result, error) {
	r := &run{
		orchestrator: o,
		reporter:     MultiReporter(reporters...),
		state:        StateIdle,
		agg:          aggregate.New(),
		logger:       o.logger,
	}

	result, err := r.execute(ctx, opts)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	return result, nil
}

// run is the state owned by a single Run call.
type run struct {
	orchestrator *Orchestrator
	reporter     Reporter
	state        State
	agg          *aggregate.Aggregator
	logger       *logging.Logger
}

func (r *run) transition(to State) {
	if !canTransition(r.state, to) {
		r.logger.Error("illegal state transition", "from", r.state, "to", to)
		return
	}
	r.state = to
	r.reporter.OnStateChange(to)
}

func (r *run) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrValidation) {
		if !errors.Is(err, ctxErr) {
			err = errors.WithSecondaryError(ctxErr, err)
		}
		err = errors.Mark(err, ErrCancelled)
		r.transition(StateCancelled)
		r.logger.WarnContext(ctx, "run cancelled", "error", err)
	} else {
		r.transition(StateFailed)
		r.logger.ErrorContext(ctx, "run failed", "kind", Kind(err), "error", err)
	}
	r.reporter.OnError(err)
	return err
}

func (r *run) execute(ctx context.Context, opts Options) (*aggregate.Result, error) {
	o := r.orchestrator

	p, err := opts.plan(o.site, o.config.MaxMatches)
	if err != nil {
		return nil, err
	}

	r.transition(StateFetchingTeam)
	r.logger.InfoContext(ctx, "fetching team page", "url", p.teamURL)
	teamDoc, err := o.fetcher.Fetch(ctx, p.teamURL)
	if err != nil {
		return nil, errors.Wrap(err, "fetch team page")
	}
	teamName := vlr.ExtractTeamName(teamDoc)
	if teamName == "" {
		return nil, errors.Mark(errors.Newf("no team name on %s", p.teamURL), ErrExtraction)
	}
	r.logger.InfoContext(ctx, "team identified", "team", teamName)

	r.transition(StateEnumeratingMatches)
	paginator := vlr.NewPaginator(o.fetcher, o.site, o.config.PageDelay, r.logger)
	listings, err := paginator.Collect(ctx, o.site.ListingURL(p.team), p.maxMatches)
	if err != nil {
		return nil, errors.Wrap(err, "collect match listings")
	}
	if len(listings) == 0 {
		return nil, errors.Mark(errors.Newf("team %q has no completed matches", teamName), ErrNoData)
	}

	r.transition(StateFilteringByDate)
	toProcess := filterByDate(listings, p.fromDate, p.toDate)
	if removed := len(listings) - len(toProcess); removed > 0 {
		r.logger.InfoContext(ctx, "date filter removed matches", "removed", removed)
	}
	if len(toProcess) > p.maxMatches {
		toProcess = toProcess[:p.maxMatches]
	}
	r.reporter.OnListingsCollected(len(listings), len(toProcess))

	r.transition(StateProcessingMatches)
	if err := r.processMatches(ctx, toProcess, teamName, p.eventPath); err != nil {
		return nil, err
	}

	filters := aggregate.Filters{
		Team:     teamName,
		FromDate: p.fromDate,
		ToDate:   p.toDate,
	}
	if p.eventPath != "" {
		filters.Event = &p.eventPath
	}
	result := r.agg.Result(teamName, filters)

	r.transition(StateCompleted)
	r.logger.InfoContext(ctx, "run completed",
		"team", teamName,
		"matches", result.TeamStats.Matches,
		"filtered_event", result.FilteredOut.Event,
		"filtered_no_data", result.FilteredOut.NoData,
	)
	r.reporter.OnComplete(result)
	return result, nil
}

// processMatches visits listings one at a time with MatchDelay between
// consecutive fetches. Only cancellation aborts the loop.
func (r *run) processMatches(ctx context.Context, listings []vlr.MatchListing, teamName, eventPath string) error {
	o := r.orchestrator

	for i, listing := range listings {
		if i > 0 {
			if err := pace.Wait(ctx, o.config.MatchDelay); err != nil {
				return errors.Wrap(err, "process matches")
			}
		}

		r.reporter.OnMatchStart(i+1, len(listings), listing)
		log := r.logger.With("url", listing.URL, "index", i+1, "total", len(listings))

		doc, err := o.fetcher.Fetch(ctx, listing.URL)
		if err != nil {
			if ctx.Err() != nil {
				return errors.Wrap(err, "process matches")
			}
			log.WarnContext(ctx, "match fetch failed, skipping", "error", err)
			r.reporter.OnMatchSkipped(listing, SkipFetchError)
			continue
		}

		if !vlr.MatchesEventFilter(doc, eventPath) {
			log.DebugContext(ctx, "match filtered by event")
			r.agg.SkipEvent()
			r.reporter.OnMatchSkipped(listing, SkipEvent)
			continue
		}

		actions, ok := vlr.ExtractActions(doc, teamName)
		if !ok {
			log.DebugContext(ctx, "no pick/ban data")
			r.agg.SkipNoData()
			r.reporter.OnMatchSkipped(listing, SkipNoData)
			continue
		}

		record, _ := r.agg.Add(listing.URL, listing.Date, vlr.EventName(doc), actions)
		log.InfoContext(ctx, "match aggregated", "picks", record.Picks, "bans", record.Bans)
		r.reporter.OnMatchProcessed(record)
	}
	return nil
}
