package fetch

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"

	"github.com/fortuna/vetoscope/internal/platform/logging"
)

// HTTPConfig configures the plain HTTP fetcher.
type HTTPConfig struct {
	Timeout   time.Duration
	UserAgent string
	Retry     RetryPolicy
}

// DefaultHTTPConfig returns a config with a 60s per-attempt timeout.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Timeout:   60 * time.Second,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Retry:     DefaultRetryPolicy(),
	}
}

// HTTPFetcher issues GET requests through resty.
type HTTPFetcher struct {
	client *resty.Client
	config *HTTPConfig
	logger *logging.Logger
}

// NewHTTPFetcher creates a fetcher. A nil config uses DefaultHTTPConfig.
func NewHTTPFetcher(config *HTTPConfig, logger *logging.Logger) *HTTPFetcher {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	logger = logging.OrDefault(logger).With("component", "fetch.http")

	client := resty.New()
	client.SetLogger(logger.Zap().Sugar())
	client.SetHeader("User-Agent", config.UserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml")

	return &HTTPFetcher{
		client: client,
		config: config,
		logger: logger,
	}
}

// Fetch retrieves url and parses the body.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := retry(ctx, f.config.Retry, f.logger, url, func(ctx context.Context) (string, error) {
		return f.get(ctx, url)
	})
	if err != nil {
		return nil, err
	}

	doc, err := ParseHTML(body)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "fetch %s", url), ErrFetch)
	}
	return doc, nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (string, error) {
	if f.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", errors.Wrap(err, "http get")
	}
	if !resp.IsSuccess() {
		return "", errors.Newf("unexpected status %d", resp.StatusCode())
	}

	f.logger.DebugContext(ctx, "fetched page",
		"url", url,
		"status", resp.StatusCode(),
		"bytes", len(resp.Body()),
		"duration", time.Since(start),
	)
	return string(resp.Body()), nil
}
