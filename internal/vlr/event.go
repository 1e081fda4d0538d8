package vlr

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const eventLinkSelector = `a.match-header-event[href^="/event"]`

// MatchesEventFilter reports whether the match page belongs to the event at
// filterPath. An empty filterPath accepts every page; a page without an event
// link never matches a non-empty filter. Paths match when either is a prefix
// of the other, so a filter on a parent event also accepts its stages.
func MatchesEventFilter(doc *goquery.Document, filterPath string) bool {
	if filterPath == "" {
		return true
	}

	href, ok := doc.Find(eventLinkSelector).First().Attr("href")
	if !ok {
		return false
	}

	matchPath := normalizeEventPath(href)
	filter := normalizeEventPath(filterPath)
	return strings.HasPrefix(matchPath, filter) || strings.HasPrefix(filter, matchPath)
}

// EventName returns the series label shown in the match header, or "N/A".
func EventName(doc *goquery.Document) string {
	el := doc.Find(".match-header-event-series, .match-header-event .text-of").First()
	name := collapseSpaces(el.Text())
	if name == "" {
		return "N/A"
	}
	return name
}

func normalizeEventPath(p string) string {
	return strings.ToLower(strings.TrimSuffix(p, "/"))
}
