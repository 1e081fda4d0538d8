// Package fetch retrieves upstream pages as goquery documents, retrying
// transient failures with exponential backoff.
package fetch

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"

	"github.com/fortuna/vetoscope/internal/platform/logging"
	"github.com/fortuna/vetoscope/internal/platform/pace"
)

// ErrFetch marks a page that could not be retrieved after every attempt.
var ErrFetch = errors.New("fetch failed")

// Fetcher retrieves a page and parses it into a document tree.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

// RetryPolicy controls how many times a page is requested and how long to
// wait between attempts.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxJitter time.Duration
}

// DefaultRetryPolicy is three attempts with 500ms*2^n backoff plus up to
// 300ms of jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxJitter: 300 * time.Millisecond,
	}
}

// Backoff returns the wait after the given zero-based failed attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay << attempt
	if p.MaxJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.MaxJitter)))
	}
	return delay
}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// retry runs attempt until it succeeds or the policy is exhausted. Caller
// cancellation stops immediately and is returned unmarked.
func retry(ctx context.Context, policy RetryPolicy, logger *logging.Logger, url string, attempt func(context.Context) (string, error)) (string, error) {
	total := policy.attempts()
	var lastErr error

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return "", errors.Wrapf(err, "fetch %s", url)
		}

		body, err := attempt(ctx)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", errors.Wrapf(ctxErr, "fetch %s", url)
		}
		if i == total-1 {
			break
		}

		delay := policy.Backoff(i)
		logger.WarnContext(ctx, "fetch attempt failed, retrying",
			"url", url,
			"attempt", i+1,
			"attempts", total,
			"backoff", delay,
			"error", err,
		)
		if err := pace.Wait(ctx, delay); err != nil {
			return "", errors.Wrapf(err, "fetch %s", url)
		}
	}

	return "", errors.Mark(errors.Wrapf(lastErr, "fetch %s: %d attempts failed", url, total), ErrFetch)
}

// ParseHTML parses an HTML string into a goquery document.
func ParseHTML(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "parse html")
	}
	return doc, nil
}
