package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/vetoscope/internal/aggregate"
	"github.com/fortuna/vetoscope/internal/fetch"
	"github.com/fortuna/vetoscope/internal/vlr"
	"github.com/fortuna/vetoscope/internal/vlr/vlrtest"
)

const (
	teamPath    = "/team/7386/mibr"
	listingPath = "/team/matches/7386/mibr?group=completed"
	eventHref   = "/event/2004/champions-tour-2024-americas"
)

type fixture struct {
	srv  *vlrtest.Server
	orch *Orchestrator
}

func newFixture(t *testing.T, matchDelay time.Duration) *fixture {
	t.Helper()
	srv := vlrtest.NewServer()
	t.Cleanup(srv.Close)

	cfg := fetch.DefaultHTTPConfig()
	cfg.Timeout = 2 * time.Second
	cfg.Retry = fetch.RetryPolicy{Attempts: 1}

	orch, err := NewOrchestrator(fetch.NewHTTPFetcher(cfg, nil), &Config{BaseURL: srv.URL, MatchDelay: matchDelay}, nil)
	require.NoError(t, err)
	return &fixture{srv: srv, orch: orch}
}

func (f *fixture) teamURL() string {
	return f.srv.URL + teamPath
}

// seed registers the MIBR team page, one listing page per element of pages,
// and a match page with a full veto for every card.
func (f *fixture) seed(pages ...[]vlrtest.Card) {
	f.srv.Handle(teamPath, vlrtest.TeamPage("MIBR"))
	for i, cards := range pages {
		uri := listingPath
		if i > 0 {
			uri = fmt.Sprintf("%s&page=%d", listingPath, i+1)
		}
		f.srv.Handle(uri, vlrtest.ListingPage(cards, len(pages)))
		for _, c := range cards {
			f.srv.Handle(c.Href, vlrtest.MatchPage(vlrtest.Match{
				EventHref: eventHref,
				EventName: "Champions Tour 2024: Americas",
				Note:      "MIBR ban Bind; FURIA ban Haven; MIBR pick Ascent; FURIA pick Lotus",
			}))
		}
	}
}

func dated(href, date string) vlrtest.Card {
	return vlrtest.Card{Href: href, Date: date}
}

type recorder struct {
	NopReporter

	mu        sync.Mutex
	states    []State
	started   []int
	skipped   map[SkipReason]int
	processed int
	listings  [2]int
	completed *aggregate.Result
	errs      []error
	onStart   func(index int)
}

func newRecorder() *recorder {
	return &recorder{skipped: map[SkipReason]int{}}
}

func (r *recorder) OnStateChange(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) OnListingsCollected(total, kept int) {
	r.listings = [2]int{total, kept}
}

func (r *recorder) OnMatchStart(index, _ int, _ vlr.MatchListing) {
	r.started = append(r.started, index)
	if r.onStart != nil {
		r.onStart(index)
	}
}

func (r *recorder) OnMatchSkipped(_ vlr.MatchListing, reason SkipReason) {
	r.skipped[reason]++
}

func (r *recorder) OnMatchProcessed(aggregate.MatchRecord) {
	r.processed++
}

func (r *recorder) OnComplete(result *aggregate.Result) {
	r.completed = result
}

func (r *recorder) OnError(err error) {
	r.errs = append(r.errs, err)
}

func checkInvariants(t *testing.T, r *aggregate.Result) {
	t.Helper()
	var actions int
	for _, stat := range r.AggregatedByMap {
		actions += stat.Pick + stat.Ban
	}
	assert.Equal(t, r.TeamStats.Pick+r.TeamStats.Ban, actions)
	assert.Equal(t, r.TeamStats.Matches, len(r.Detailed))
	for _, d := range r.Detailed {
		for _, a := range d.Actions {
			assert.Contains(t, r.AggregatedByMap, a.Map)
		}
	}
}

func TestRun_MIBRScenario(t *testing.T) {
	f := newFixture(t, 0)
	f.srv.Handle(teamPath, vlrtest.TeamPage("MIBR"))
	f.srv.Handle(listingPath, vlrtest.ListingPage([]vlrtest.Card{
		dated("/1/mibr-vs-furia", "2024/05/03"),
		dated("/2/mibr-vs-loud", "2024/05/02"),
		dated("/3/mibr-vs-kru", "2024/05/01"),
	}, 1))
	f.srv.Handle("/1/mibr-vs-furia", vlrtest.MatchPage(vlrtest.Match{
		EventHref: eventHref, EventName: "Champions Tour",
		Note: "MIBR ban Bind; FURIA ban Haven; MIBR pick Ascent; FURIA pick Lotus; Split remains",
	}))
	f.srv.Handle("/2/mibr-vs-loud", vlrtest.MatchPage(vlrtest.Match{
		EventHref: eventHref, EventName: "Champions Tour",
		Note: "LOUD ban Split; MIBR ban Bind; LOUD pick Lotus; MIBR pick Haven",
	}))
	f.srv.Handle("/3/mibr-vs-kru", vlrtest.MatchPage(vlrtest.Match{EventHref: eventHref, EventName: "Champions Tour"}))

	rec := newRecorder()
	result, err := f.orch.Run(context.Background(), Options{TeamURL: f.teamURL()}, rec)
	require.NoError(t, err)

	assert.Equal(t, "MIBR", result.TeamName)
	assert.Equal(t, aggregate.TeamStats{Pick: 2, Ban: 2, Matches: 2}, result.TeamStats)
	want := map[string]*aggregate.MapStat{
		"Bind":   {Ban: 2},
		"Ascent": {Pick: 1},
		"Haven":  {Pick: 1},
	}
	if diff := cmp.Diff(want, result.AggregatedByMap); diff != "" {
		t.Errorf("aggregatedByMap mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, aggregate.FilteredOut{NoData: 1}, result.FilteredOut)
	assert.Equal(t, aggregate.Filters{Team: "MIBR"}, result.Filters)

	require.Len(t, result.Detailed, 2)
	first := result.Detailed[0]
	assert.Equal(t, f.srv.URL+"/1/mibr-vs-furia", first.URL)
	assert.Equal(t, "Champions Tour", first.Event)
	assert.Equal(t, "2024-05-03", first.Date.Format(time.DateOnly))
	assert.Equal(t, 1, first.Picks)
	assert.Equal(t, 1, first.Bans)
	checkInvariants(t, result)

	assert.Equal(t, []State{
		StateFetchingTeam,
		StateEnumeratingMatches,
		StateFilteringByDate,
		StateProcessingMatches,
		StateCompleted,
	}, rec.states)
	assert.Equal(t, []int{1, 2, 3}, rec.started)
	assert.Equal(t, [2]int{3, 3}, rec.listings)
	assert.Equal(t, 2, rec.processed)
	assert.Equal(t, 1, rec.skipped[SkipNoData])
	assert.Same(t, result, rec.completed)
	assert.Empty(t, rec.errs)
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t, 0)
	f.seed([]vlrtest.Card{dated("/1/a", "2024/05/01"), dated("/2/b", "2024/05/02")})

	opts := Options{TeamURL: f.teamURL(), EventFilterURL: "https://www.vlr.gg" + eventHref}
	first, err := f.orch.Run(context.Background(), opts)
	require.NoError(t, err)
	second, err := f.orch.Run(context.Background(), opts)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated runs differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, 2, first.TeamStats.Matches)
}

func TestRun_DateBoundaries(t *testing.T) {
	day := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	ptr := func(t time.Time) *time.Time { return &t }

	cases := []struct {
		name string
		from *time.Time
		to   *time.Time
		want []string
	}{
		{"from on boundary", ptr(day), nil, []string{"/3/c", "/2/b", "/0/undated"}},
		{"from one ms later", ptr(day.Add(time.Millisecond)), nil, []string{"/3/c", "/0/undated"}},
		{"to on boundary", nil, ptr(day), []string{"/2/b", "/1/a", "/0/undated"}},
		{"to one ms earlier", nil, ptr(day.Add(-time.Millisecond)), []string{"/1/a", "/0/undated"}},
		{"closed window", ptr(day), ptr(day), []string{"/2/b", "/0/undated"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 0)
			f.seed([]vlrtest.Card{
				dated("/3/c", "2024/05/03"),
				dated("/2/b", "2024/05/02"),
				dated("/1/a", "2024/05/01"),
				{Href: "/0/undated"},
			})

			result, err := f.orch.Run(context.Background(), Options{TeamURL: f.teamURL(), FromDate: tc.from, ToDate: tc.to})
			require.NoError(t, err)

			var got []string
			for _, d := range result.Detailed {
				got = append(got, d.URL[len(f.srv.URL):])
			}
			assert.Equal(t, tc.want, got)
			checkInvariants(t, result)
		})
	}
}

func TestRun_PaginationCeiling(t *testing.T) {
	f := newFixture(t, 0)
	var pages [][]vlrtest.Card
	for p := 0; p < 3; p++ {
		var cards []vlrtest.Card
		for i := 0; i < 3; i++ {
			cards = append(cards, vlrtest.Card{Href: fmt.Sprintf("/%d/m", p*3+i+1)})
		}
		pages = append(pages, cards)
	}
	f.seed(pages...)

	rec := newRecorder()
	result, err := f.orch.Run(context.Background(), Options{TeamURL: f.teamURL(), MaxMatches: 5}, rec)
	require.NoError(t, err)

	assert.Equal(t, 5, result.TeamStats.Matches)
	assert.Equal(t, [2]int{6, 5}, rec.listings)
	assert.Equal(t, 1, f.srv.Hits(listingPath+"&page=2"))
	assert.Zero(t, f.srv.Hits(listingPath+"&page=3"))
	assert.Zero(t, f.srv.Hits("/6/m"))
	for i := 1; i <= 5; i++ {
		assert.Equal(t, 1, f.srv.Hits(fmt.Sprintf("/%d/m", i)))
	}
}

func TestRun_EventFilter(t *testing.T) {
	f := newFixture(t, 0)
	f.seed([]vlrtest.Card{{Href: "/1/a"}, {Href: "/2/b"}})
	f.srv.Handle("/3/c", vlrtest.MatchPage(vlrtest.Match{
		EventHref: "/event/1999/masters-madrid",
		EventName: "Masters Madrid",
		Note:      "MIBR ban Icebox; MIBR pick Sunset",
	}))
	f.srv.Handle(listingPath, vlrtest.ListingPage([]vlrtest.Card{{Href: "/1/a"}, {Href: "/3/c"}, {Href: "/2/b"}}, 1))

	rec := newRecorder()
	result, err := f.orch.Run(context.Background(), Options{
		TeamURL:        f.teamURL(),
		EventFilterURL: "https://www.vlr.gg/event/2004/",
	}, rec)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TeamStats.Matches)
	assert.Equal(t, 1, result.FilteredOut.Event)
	assert.NotContains(t, result.AggregatedByMap, "Icebox")
	require.NotNil(t, result.Filters.Event)
	assert.Equal(t, "/event/2004/", *result.Filters.Event)
	assert.Equal(t, 1, rec.skipped[SkipEvent])
}

func TestRun_MatchFetchFailureIsSkipped(t *testing.T) {
	f := newFixture(t, 0)
	f.seed([]vlrtest.Card{{Href: "/1/a"}, {Href: "/2/b"}, {Href: "/3/c"}})
	f.srv.Fail("/2/b", http.StatusBadGateway)

	rec := newRecorder()
	result, err := f.orch.Run(context.Background(), Options{TeamURL: f.teamURL()}, rec)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TeamStats.Matches)
	assert.Equal(t, aggregate.FilteredOut{}, result.FilteredOut)
	assert.Equal(t, 1, rec.skipped[SkipFetchError])
	assert.Equal(t, StateCompleted, rec.states[len(rec.states)-1])
}

func TestRun_Validation(t *testing.T) {
	f := newFixture(t, 0)
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	cases := map[string]Options{
		"empty url":      {},
		"not a team url": {TeamURL: f.srv.URL + "/event/2004/x"},
		"negative max":   {TeamURL: f.teamURL(), MaxMatches: -1},
		"inverted dates": {TeamURL: f.teamURL(), FromDate: &from, ToDate: &to},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			rec := newRecorder()
			result, err := f.orch.Run(context.Background(), opts, rec)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, ErrValidation))
			assert.Equal(t, "validation", Kind(err))
			assert.Equal(t, []State{StateFailed}, rec.states)
			assert.Len(t, rec.errs, 1)
		})
	}
	assert.Empty(t, f.srv.Requests())
}

func TestRun_FatalErrors(t *testing.T) {
	t.Run("team page unreachable", func(t *testing.T) {
		f := newFixture(t, 0)
		f.srv.Fail(teamPath, http.StatusServiceUnavailable)

		_, err := f.orch.Run(context.Background(), Options{TeamURL: f.teamURL()})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFetch))
		assert.Equal(t, "fetch", Kind(err))
	})

	t.Run("team name missing", func(t *testing.T) {
		f := newFixture(t, 0)
		f.srv.Handle(teamPath, `<html><body><div class="team-header"></div></body></html>`)

		_, err := f.orch.Run(context.Background(), Options{TeamURL: f.teamURL()})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrExtraction))
		assert.Zero(t, f.srv.Hits(listingPath))
	})

	t.Run("listing page unreachable", func(t *testing.T) {
		f := newFixture(t, 0)
		f.srv.Handle(teamPath, vlrtest.TeamPage("MIBR"))

		_, err := f.orch.Run(context.Background(), Options{TeamURL: f.teamURL()})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFetch))
	})

	t.Run("no listings", func(t *testing.T) {
		f := newFixture(t, 0)
		f.seed(nil)

		rec := newRecorder()
		_, err := f.orch.Run(context.Background(), Options{TeamURL: f.teamURL()}, rec)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoData))
		assert.Equal(t, []State{StateFetchingTeam, StateEnumeratingMatches, StateFailed}, rec.states)
	})
}

func TestRun_Cancellation(t *testing.T) {
	f := newFixture(t, 0)
	f.seed([]vlrtest.Card{{Href: "/1/a"}, {Href: "/2/b"}, {Href: "/3/c"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := newRecorder()
	rec.onStart = func(index int) {
		if index == 2 {
			cancel()
		}
	}

	result, err := f.orch.Run(ctx, Options{TeamURL: f.teamURL()}, rec)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, "cancelled", Kind(err))
	assert.Equal(t, StateCancelled, rec.states[len(rec.states)-1])
	assert.Nil(t, rec.completed)
	assert.Zero(t, f.srv.Hits("/3/c"))
}

func TestRun_CancelledDuringMatchDelay(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.seed([]vlrtest.Card{{Href: "/1/a"}, {Href: "/2/b"}})

	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()
	rec.onStart = func(int) { time.AfterFunc(20*time.Millisecond, cancel) }

	start := time.Now()
	_, err := f.orch.Run(ctx, Options{TeamURL: f.teamURL()}, rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Zero(t, f.srv.Hits("/2/b"))
}

func TestRun_MatchDelayBetweenFetches(t *testing.T) {
	f := newFixture(t, 25*time.Millisecond)
	f.seed([]vlrtest.Card{{Href: "/1/a"}, {Href: "/2/b"}, {Href: "/3/c"}})
	f.srv.Fail("/2/b", http.StatusInternalServerError)

	start := time.Now()
	_, err := f.orch.Run(context.Background(), Options{TeamURL: f.teamURL()})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestParseDateRange(t *testing.T) {
	from, to, err := ParseDateRange("2024-05-01", "2024-05-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *from)
	assert.Equal(t, time.Date(2024, 5, 31, 23, 59, 59, 0, time.UTC), *to)

	from, to, err = ParseDateRange("", "")
	require.NoError(t, err)
	assert.Nil(t, from)
	assert.Nil(t, to)

	_, _, err = ParseDateRange("05/01/2024", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, canTransition(StateIdle, StateFetchingTeam))
	assert.True(t, canTransition(StateProcessingMatches, StateCompleted))
	assert.True(t, canTransition(StateEnumeratingMatches, StateCancelled))
	assert.False(t, canTransition(StateIdle, StateProcessingMatches))
	assert.False(t, canTransition(StateCompleted, StateFailed))
	assert.False(t, canTransition(StateCancelled, StateFetchingTeam))
}
