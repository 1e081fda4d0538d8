// Package vlrtest serves vlr-shaped HTML from an httptest server.
package vlrtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Card is one match card on a listing page.
type Card struct {
	Href string
	Date string
	// Anchor renders the card itself as the <a> element.
	Anchor bool
}

// Match describes a match page.
type Match struct {
	EventHref string
	EventName string
	Note      string
}

// TeamPage renders a team header with an h1 title and a trailing tag span.
func TeamPage(name string) string {
	return fmt.Sprintf(`<html><body>
<div class="team-header">
  <div class="team-header-name">
    <h1 class="wf-title">%s<span class="tag">#1</span></h1>
  </div>
</div>
</body></html>`, name)
}

// ListingPage renders match cards plus pagination links 1..pages.
func ListingPage(cards []Card, pages int) string {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"mod-dark\">\n")
	for _, c := range cards {
		date := ""
		if c.Date != "" {
			date = fmt.Sprintf(`<div class="m-item-date"><div>%s</div> 3:00 pm</div>`, c.Date)
		}
		if c.Anchor {
			fmt.Fprintf(&b, "<a class=\"wf-card fc-flex m-item\" href=\"%s\">%s</a>\n", c.Href, date)
			continue
		}
		fmt.Fprintf(&b, "<div class=\"wf-card fc-flex m-item\"><a href=\"%s\">match</a>%s</div>\n", c.Href, date)
	}
	b.WriteString("</div>\n")
	if pages > 1 {
		b.WriteString(`<div class="action-container-pages">`)
		for i := 1; i <= pages; i++ {
			if i == 1 {
				fmt.Fprintf(&b, `<span class="btn mod-page mod-active">%d</span>`, i)
				continue
			}
			fmt.Fprintf(&b, `<a class="btn mod-page" href="?group=completed&page=%d">%d</a>`, i, i)
		}
		b.WriteString("</div>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

// MatchPage renders a match header with an optional event link and note.
func MatchPage(m Match) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="match-header">`)
	if m.EventHref != "" {
		fmt.Fprintf(&b, `<a class="match-header-event" href="%s"><div><div style="font-weight: 700;">%s</div><div class="match-header-event-series">%s</div></div></a>`,
			m.EventHref, m.EventName, m.EventName)
	}
	b.WriteString(`<div class="match-header-vs"></div></div>`)
	if m.Note != "" {
		fmt.Fprintf(&b, `<div class="match-header-note">%s</div>`, m.Note)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// Server is a fake site keyed by request URI (path plus query).
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	pages    map[string]string
	failures map[string]int
	requests []string
}

func NewServer() *Server {
	s := &Server{
		pages:    make(map[string]string),
		failures: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Handle serves body for requestURI.
func (s *Server) Handle(requestURI, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[requestURI] = body
}

// Fail makes requestURI answer with status.
func (s *Server) Fail(requestURI string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[requestURI] = status
}

// Hits counts requests for requestURI.
func (s *Server) Hits(requestURI string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r == requestURI {
			n++
		}
	}
	return n
}

// Requests returns every request URI in arrival order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.RequestURI()

	s.mu.Lock()
	s.requests = append(s.requests, uri)
	status, failing := s.failures[uri]
	body, ok := s.pages[uri]
	s.mu.Unlock()

	if failing {
		w.WriteHeader(status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}
