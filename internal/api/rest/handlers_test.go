package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/vetoscope/internal/aggregate"
	"github.com/fortuna/vetoscope/internal/platform/logging"
	"github.com/fortuna/vetoscope/internal/runs"
	"github.com/fortuna/vetoscope/internal/session"
)

type fakeRuns struct {
	started   []session.Options
	startErr  error
	runs      map[string]*runs.Run
	cancelErr error
	cancelled []string
	history   []*runs.Run
	limit     int
}

func (f *fakeRuns) Start(_ context.Context, opts session.Options) (*runs.Run, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, opts)
	return &runs.Run{ID: "r1", Options: opts, Status: runs.StatusQueued}, nil
}

func (f *fakeRuns) Get(_ context.Context, id string) (*runs.Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, runs.ErrNotFound
	}
	return run, nil
}

func (f *fakeRuns) Cancel(id string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	if _, ok := f.runs[id]; !ok {
		return runs.ErrNotFound
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeRuns) List() []*runs.Run {
	out := make([]*runs.Run, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r)
	}
	return out
}

func (f *fakeRuns) History(_ context.Context, limit int) ([]*runs.Run, error) {
	f.limit = limit
	return f.history, nil
}

type checkFunc func(context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func newTestServer(svc RunService, checks map[string]HealthChecker) http.Handler {
	handler := NewHandler(svc, checks, logging.NewNop())
	return NewServer("0", handler, logging.NewNop()).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateRun(t *testing.T) {
	svc := &fakeRuns{}
	h := newTestServer(svc, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/runs", `{
		"teamUrl": "https://www.vlr.gg/team/7386/mibr",
		"eventUrl": "https://www.vlr.gg/event/2095/champions-tour-2024",
		"fromDate": "2024-05-01",
		"toDate": "2024-05-31",
		"maxMatches": 25
	}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/v1/runs/r1", rec.Header().Get("Location"))
	require.Len(t, svc.started, 1)

	opts := svc.started[0]
	assert.Equal(t, "https://www.vlr.gg/team/7386/mibr", opts.TeamURL)
	assert.Equal(t, "https://www.vlr.gg/event/2095/champions-tour-2024", opts.EventFilterURL)
	assert.Equal(t, 25, opts.MaxMatches)
	require.NotNil(t, opts.FromDate)
	require.NotNil(t, opts.ToDate)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *opts.FromDate)
	assert.Equal(t, time.Date(2024, 5, 31, 23, 59, 59, 0, time.UTC), *opts.ToDate)

	var run runs.Run
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "r1", run.ID)
	assert.Equal(t, runs.StatusQueued, run.Status)
}

func TestCreateRunAcceptsRelativeURLs(t *testing.T) {
	svc := &fakeRuns{}
	rec := do(t, newTestServer(svc, nil), http.MethodPost, "/api/v1/runs",
		`{"teamUrl": "/team/8050/mibr-gc", "eventUrl": "/event/2095/champions-tour-2024"}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, svc.started, 1)
	assert.Equal(t, "/team/8050/mibr-gc", svc.started[0].TeamURL)
	assert.Equal(t, "/event/2095/champions-tour-2024", svc.started[0].EventFilterURL)
}

func TestCreateRunRejectsBadRequests(t *testing.T) {
	cases := map[string]string{
		"missing team":  `{}`,
		"not a url":     `{"teamUrl": "mibr"}`,
		"player url":    `{"teamUrl": "/player/9/aspas"}`,
		"bad date":      `{"teamUrl": "https://www.vlr.gg/team/1/a", "fromDate": "05/01/2024"}`,
		"negative max":  `{"teamUrl": "https://www.vlr.gg/team/1/a", "maxMatches": -1}`,
		"unknown field": `{"teamUrl": "https://www.vlr.gg/team/1/a", "team": "x"}`,
		"malformed":     `{"teamUrl":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &fakeRuns{}
			rec := do(t, newTestServer(svc, nil), http.MethodPost, "/api/v1/runs", body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation", decodeError(t, rec).Reason)
			assert.Empty(t, svc.started)
		})
	}
}

func TestCreateRunMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", errors.Mark(errors.New("from after to"), session.ErrValidation), http.StatusBadRequest},
		{"queue full", runs.ErrQueueFull, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeRuns{startErr: tc.err}
			rec := do(t, newTestServer(svc, nil), http.MethodPost, "/api/v1/runs",
				`{"teamUrl": "https://www.vlr.gg/team/1/a"}`)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestGetRun(t *testing.T) {
	svc := &fakeRuns{runs: map[string]*runs.Run{
		"r1": {ID: "r1", Status: runs.StatusRunning, State: session.StateProcessingMatches},
	}}
	h := newTestServer(svc, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/runs/r1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var run runs.Run
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, session.StateProcessingMatches, run.State)

	rec = do(t, h, http.MethodGet, "/api/v1/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Reason)
}

func TestListRuns(t *testing.T) {
	svc := &fakeRuns{
		runs:    map[string]*runs.Run{"r1": {ID: "r1", Status: runs.StatusRunning}},
		history: []*runs.Run{{ID: "old", Status: runs.StatusCompleted}},
	}
	h := newTestServer(svc, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var live runsResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &live))
	require.Len(t, live.Runs, 1)
	assert.Equal(t, "r1", live.Runs[0].ID)

	rec = do(t, h, http.MethodGet, "/api/v1/runs?source=history&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stored runsResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &stored))
	require.Len(t, stored.Runs, 1)
	assert.Equal(t, "old", stored.Runs[0].ID)
	assert.Equal(t, 5, svc.limit)

	rec = do(t, h, http.MethodGet, "/api/v1/runs?source=history&limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelRun(t *testing.T) {
	svc := &fakeRuns{runs: map[string]*runs.Run{"r1": {ID: "r1", Status: runs.StatusRunning}}}
	h := newTestServer(svc, nil)

	rec := do(t, h, http.MethodDelete, "/api/v1/runs/r1", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"r1"}, svc.cancelled)

	svc.cancelErr = runs.ErrFinished
	rec = do(t, h, http.MethodDelete, "/api/v1/runs/r1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetRunResult(t *testing.T) {
	result := &aggregate.Result{
		TeamName:        "MIBR",
		TeamStats:       aggregate.TeamStats{Pick: 1, Ban: 1, Matches: 1},
		AggregatedByMap: map[string]*aggregate.MapStat{"Ascent": {Pick: 1}, "Bind": {Ban: 1}},
		Detailed:        []aggregate.MatchRecord{},
	}
	svc := &fakeRuns{runs: map[string]*runs.Run{
		"done":    {ID: "done", Status: runs.StatusCompleted, Result: result},
		"fetch":   {ID: "fetch", Status: runs.StatusFailed, ErrorKind: "fetch", Error: "team page: unexpected status 503"},
		"nodata":  {ID: "nodata", Status: runs.StatusFailed, ErrorKind: "no_data", Error: "no matches"},
		"stopped": {ID: "stopped", Status: runs.StatusCancelled, ErrorKind: "cancelled"},
		"busy":    {ID: "busy", Status: runs.StatusRunning},
	}}
	h := newTestServer(svc, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/runs/done/result", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got aggregate.Result
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "MIBR", got.TeamName)
	assert.Equal(t, 1, got.AggregatedByMap["Bind"].Ban)

	for id, want := range map[string]int{
		"fetch":   http.StatusBadGateway,
		"nodata":  http.StatusUnprocessableEntity,
		"stopped": http.StatusConflict,
		"busy":    http.StatusConflict,
		"missing": http.StatusNotFound,
	} {
		rec := do(t, h, http.MethodGet, "/api/v1/runs/"+id+"/result", "")
		assert.Equal(t, want, rec.Code, id)
	}
}

func TestHealthCheck(t *testing.T) {
	ok := checkFunc(func(context.Context) error { return nil })
	down := checkFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := do(t, newTestServer(&fakeRuns{}, map[string]HealthChecker{"store": ok}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, newTestServer(&fakeRuns{}, map[string]HealthChecker{"store": ok, "cache": down}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "connection refused", body.Dependencies["cache"])
	assert.Equal(t, "ok", body.Dependencies["store"])
}
