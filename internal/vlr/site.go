// Package vlr knows the page layout of vlr.gg: team pages, paginated match
// listings and match pages with their veto notes.
package vlr

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultBaseURL is the public site.
const DefaultBaseURL = "https://www.vlr.gg"

var (
	teamPathRe  = regexp.MustCompile(`/team/(\d+)/([^/?#]+)`)
	matchPathRe = regexp.MustCompile(`^/\d+/`)
)

// ErrInvalidTeamURL is returned when a URL does not name a team page.
var ErrInvalidTeamURL = errors.New("invalid team url")

// TeamRef identifies a team by its numeric id and URL slug.
type TeamRef struct {
	ID   string
	Slug string
}

// Site resolves URLs against a base, normally DefaultBaseURL.
type Site struct {
	base *url.URL
}

// NewSite parses baseURL, which must be an absolute http(s) URL.
func NewSite(baseURL string) (Site, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return Site{}, errors.Wrapf(err, "parse base url %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return Site{}, errors.Newf("base url %q is not absolute", baseURL)
	}
	return Site{base: u}, nil
}

// DefaultSite points at the public site.
func DefaultSite() Site {
	site, _ := NewSite(DefaultBaseURL)
	return site
}

// BaseURL returns the base without a trailing slash.
func (s Site) BaseURL() string {
	return s.baseURL().String()
}

func (s Site) baseURL() *url.URL {
	if s.base == nil {
		return DefaultSite().base
	}
	return s.base
}

// Resolve makes href absolute. Hrefs that already start with http pass
// through unchanged.
func (s Site) Resolve(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return s.BaseURL() + "/" + strings.TrimLeft(href, "/")
	}
	return s.baseURL().ResolveReference(ref).String()
}

// ParseTeamURL extracts the team reference from an absolute or site-relative
// team URL such as https://www.vlr.gg/team/2/sentinels.
func ParseTeamURL(raw string) (TeamRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TeamRef{}, errors.Mark(errors.New("team url is empty"), ErrInvalidTeamURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return TeamRef{}, errors.Mark(errors.Wrapf(err, "parse team url %q", raw), ErrInvalidTeamURL)
	}

	m := teamPathRe.FindStringSubmatch(u.EscapedPath())
	if m == nil {
		return TeamRef{}, errors.Mark(errors.Newf("team url %q does not match /team/{id}/{slug}", raw), ErrInvalidTeamURL)
	}
	return TeamRef{ID: m[1], Slug: m[2]}, nil
}

// TeamPageURL returns the absolute team page URL for raw.
func (s Site) TeamPageURL(raw string) string {
	return s.Resolve(strings.TrimSpace(raw))
}

// ListingURL is the completed-matches listing for a team. Further pages
// append &page=N.
func (s Site) ListingURL(team TeamRef) string {
	return fmt.Sprintf("%s/team/matches/%s/%s?group=completed", s.BaseURL(), team.ID, team.Slug)
}

// PageURL returns the listing URL for page n (n >= 2).
func PageURL(listingURL string, n int) string {
	return fmt.Sprintf("%s&page=%d", listingURL, n)
}

// IsMatchPageURL reports whether rawURL points at a match page
// (/{numeric-id}/...).
func IsMatchPageURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return matchPathRe.MatchString(u.EscapedPath())
}

// EventPath returns the path component of an absolute or site-relative URL.
func EventPath(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		if strings.HasPrefix(rawURL, "/event/") {
			return rawURL, true
		}
		return "", false
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path, true
}
