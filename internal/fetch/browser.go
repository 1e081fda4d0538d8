package fetch

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/cockroachdb/errors"

	"github.com/fortuna/vetoscope/internal/platform/logging"
)

// BrowserConfig configures the headless Chrome fetcher.
type BrowserConfig struct {
	Timeout   time.Duration
	UserAgent string
	Retry     RetryPolicy
	// Settle is how long to wait after <body> is visible before capturing.
	Settle time.Duration
}

// DefaultBrowserConfig mirrors DefaultHTTPConfig with a short settle time.
func DefaultBrowserConfig() *BrowserConfig {
	httpCfg := DefaultHTTPConfig()
	return &BrowserConfig{
		Timeout:   httpCfg.Timeout,
		UserAgent: httpCfg.UserAgent,
		Retry:     httpCfg.Retry,
		Settle:    500 * time.Millisecond,
	}
}

// BrowserFetcher renders pages in headless Chrome. Used when the site serves
// a challenge page to plain HTTP clients.
type BrowserFetcher struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	config   *BrowserConfig
	logger   *logging.Logger
}

// NewBrowserFetcher prepares a Chrome allocator. The browser process starts
// lazily on the first Fetch.
func NewBrowserFetcher(config *BrowserConfig, logger *logging.Logger) *BrowserFetcher {
	if config == nil {
		config = DefaultBrowserConfig()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(config.UserAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &BrowserFetcher{
		allocCtx: allocCtx,
		cancel:   cancel,
		config:   config,
		logger:   logging.OrDefault(logger).With("component", "fetch.browser"),
	}
}

// Close shuts the browser down.
func (f *BrowserFetcher) Close() {
	if f.cancel != nil {
		f.cancel()
	}
}

// Fetch renders url and parses the resulting DOM.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	html, err := retry(ctx, f.config.Retry, f.logger, url, func(ctx context.Context) (string, error) {
		return f.render(ctx, url)
	})
	if err != nil {
		return nil, err
	}

	doc, err := ParseHTML(html)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "fetch %s", url), ErrFetch)
	}
	return doc, nil
}

func (f *BrowserFetcher) render(ctx context.Context, url string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(f.allocCtx)
	defer cancelTab()

	// The tab hangs off the allocator, so caller cancellation is forwarded.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	if f.config.Timeout > 0 {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithTimeout(tabCtx, f.config.Timeout)
		defer cancel()
	}

	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitVisible(`body`, chromedp.ByQuery),
	}
	if f.config.Settle > 0 {
		actions = append(actions, chromedp.Sleep(f.config.Settle))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML(`html`, &html, chromedp.ByQuery))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return "", errors.Wrap(err, "chromedp")
	}
	if html == "" {
		return "", errors.New("empty document")
	}
	return html, nil
}
