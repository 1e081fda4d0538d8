package fetch

import (
	"context"

	"github.com/PuerkitoBio/goquery"

	"github.com/fortuna/vetoscope/internal/platform/logging"
)

// DocumentStore persists raw page HTML by URL.
type DocumentStore interface {
	GetDocument(ctx context.Context, url string) (string, bool, error)
	PutDocument(ctx context.Context, url, html string) error
}

// CachedFetcher serves cacheable URLs from a DocumentStore before falling
// back to the wrapped fetcher. Store failures degrade to a network fetch.
type CachedFetcher struct {
	next      Fetcher
	store     DocumentStore
	cacheable func(url string) bool
	logger    *logging.Logger
}

// NewCachedFetcher wraps next. A nil cacheable caches every URL.
func NewCachedFetcher(next Fetcher, store DocumentStore, cacheable func(url string) bool, logger *logging.Logger) *CachedFetcher {
	return &CachedFetcher{
		next:      next,
		store:     store,
		cacheable: cacheable,
		logger:    logging.OrDefault(logger).With("component", "fetch.cache"),
	}
}

func (f *CachedFetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	useCache := f.cacheable == nil || f.cacheable(url)

	if useCache {
		if doc, ok := f.lookup(ctx, url); ok {
			return doc, nil
		}
	}

	doc, err := f.next.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if useCache {
		html, err := doc.Html()
		if err == nil {
			err = f.store.PutDocument(ctx, url, html)
		}
		if err != nil {
			f.logger.WarnContext(ctx, "cache write failed", "url", url, "error", err)
		}
	}
	return doc, nil
}

func (f *CachedFetcher) lookup(ctx context.Context, url string) (*goquery.Document, bool) {
	html, ok, err := f.store.GetDocument(ctx, url)
	if err != nil {
		f.logger.WarnContext(ctx, "cache read failed", "url", url, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	doc, err := ParseHTML(html)
	if err != nil {
		f.logger.WarnContext(ctx, "cached document unreadable", "url", url, "error", err)
		return nil, false
	}
	f.logger.DebugContext(ctx, "cache hit", "url", url)
	return doc, true
}
