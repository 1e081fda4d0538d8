package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *HTTPConfig {
	cfg := DefaultHTTPConfig()
	cfg.Timeout = 2 * time.Second
	cfg.Retry = RetryPolicy{Attempts: 3}
	return cfg
}

func TestHTTPFetcher_Success(t *testing.T) {
	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.UserAgent())
		_, _ = w.Write([]byte(`<html><body><h1 class="wf-title">Hello</h1></body></html>`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(fastConfig(), nil)
	doc, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Hello", doc.Find("h1.wf-title").Text())
	assert.Contains(t, gotUA.Load(), "Mozilla/5.0")
}

func TestHTTPFetcher_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`<p>ok</p>`))
	}))
	defer srv.Close()

	doc, err := NewHTTPFetcher(fastConfig(), nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", doc.Find("p").Text())
	assert.EqualValues(t, 3, calls.Load())
}

func TestHTTPFetcher_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(fastConfig(), nil).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.EqualValues(t, 3, calls.Load())
}

func TestHTTPFetcher_AttemptTimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`<p>late</p>`))
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.Timeout = 50 * time.Millisecond
	doc, err := NewHTTPFetcher(cfg, nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "late", doc.Find("p").Text())
}

func TestHTTPFetcher_CancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.Retry = RetryPolicy{Attempts: 3, BaseDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := NewHTTPFetcher(cfg, nil).Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrFetch))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy()
	for attempt, base := range []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second} {
		for i := 0; i < 20; i++ {
			d := p.Backoff(attempt)
			assert.GreaterOrEqual(t, d, base)
			assert.Less(t, d, base+300*time.Millisecond)
		}
	}

	assert.Equal(t, time.Duration(0), RetryPolicy{}.Backoff(2))
	assert.Equal(t, 1, RetryPolicy{}.attempts())
}
