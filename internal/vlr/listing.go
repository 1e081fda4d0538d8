package vlr

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"

	"github.com/fortuna/vetoscope/internal/fetch"
	"github.com/fortuna/vetoscope/internal/platform/logging"
	"github.com/fortuna/vetoscope/internal/platform/pace"
)

const (
	matchCardSelector = ".wf-card.fc-flex.m-item"
	pageLinkSelector  = ".action-container-pages a.btn.mod-page, .action-container-pages span.btn.mod-page"
)

var slashDateRe = regexp.MustCompile(`(\d{4})/(\d{2})/(\d{2})`)

// Fallback layouts tried when the text has no YYYY/MM/DD date.
var dateLayouts = []string{
	time.RFC3339,
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02",
	"Mon, January 2, 2006",
	"Monday, January 2, 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"01/02/2006",
}

// MatchListing is one entry of a team's completed-match list.
type MatchListing struct {
	URL  string     `json:"url"`
	Date *time.Time `json:"date"`
}

// ParseListingDate reads a listing date. YYYY/MM/DD anywhere in the text is
// midnight UTC of that day; otherwise a handful of common layouts are tried.
func ParseListingDate(text string) *time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if m := slashDateRe.FindStringSubmatch(text); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]+"-"+m[2]+"-"+m[3]); err == nil {
			return &t
		}
	}

	candidate := collapseSpaces(text)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// ParseListings extracts match cards from a listing page. Only hrefs of the
// form /{id}/... are kept.
func ParseListings(doc *goquery.Document, site Site) []MatchListing {
	var out []MatchListing
	doc.Find(matchCardSelector).Each(func(_ int, card *goquery.Selection) {
		link := card
		if goquery.NodeName(card) != "a" {
			link = card.Find("a[href]").First()
		}
		href, ok := link.Attr("href")
		if !ok || !matchPathRe.MatchString(href) {
			return
		}

		listing := MatchListing{URL: site.Resolve(href)}
		if dateEl := card.Find(".m-item-date").First(); dateEl.Length() > 0 {
			listing.Date = ParseListingDate(dateEl.Text())
		}
		out = append(out, listing)
	})
	return out
}

// MaxPage returns the highest numeric pagination label, or 1.
func MaxPage(doc *goquery.Document) int {
	maxPage := 1
	doc.Find(pageLinkSelector).Each(func(_ int, s *goquery.Selection) {
		n, err := strconv.Atoi(strings.TrimSpace(s.Text()))
		if err == nil && n > maxPage {
			maxPage = n
		}
	})
	return maxPage
}

// Paginator walks a team's listing pages in order.
type Paginator struct {
	fetcher   fetch.Fetcher
	site      Site
	pageDelay time.Duration
	logger    *logging.Logger
}

func NewPaginator(fetcher fetch.Fetcher, site Site, pageDelay time.Duration, logger *logging.Logger) *Paginator {
	return &Paginator{
		fetcher:   fetcher,
		site:      site,
		pageDelay: pageDelay,
		logger:    logging.OrDefault(logger).With("component", "vlr.paginator"),
	}
}

// Collect gathers listings from listingURL and its follow-up pages, stopping
// before any page once maxCount listings are held. Page 1 failing is fatal;
// later pages are skipped on error.
func (p *Paginator) Collect(ctx context.Context, listingURL string, maxCount int) ([]MatchListing, error) {
	first, err := p.fetcher.Fetch(ctx, listingURL)
	if err != nil {
		return nil, errors.Wrap(err, "fetch listing page 1")
	}

	listings := ParseListings(first, p.site)
	totalPages := MaxPage(first)
	p.logger.InfoContext(ctx, "listing page collected",
		"page", 1,
		"pages", totalPages,
		"found", len(listings),
	)

	for page := 2; page <= totalPages; page++ {
		if len(listings) >= maxCount {
			p.logger.InfoContext(ctx, "listing limit reached", "limit", maxCount, "page", page)
			break
		}

		if err := pace.Wait(ctx, p.pageDelay); err != nil {
			return nil, errors.Wrap(err, "paginate listings")
		}

		doc, err := p.fetcher.Fetch(ctx, PageURL(listingURL, page))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.Wrap(ctxErr, "paginate listings")
			}
			p.logger.WarnContext(ctx, "listing page failed, skipping", "page", page, "error", err)
			continue
		}

		found := ParseListings(doc, p.site)
		listings = append(listings, found...)
		p.logger.InfoContext(ctx, "listing page collected", "page", page, "pages", totalPages, "found", len(found))
	}

	return listings, nil
}
