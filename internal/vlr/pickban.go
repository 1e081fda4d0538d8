package vlr

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/fortuna/vetoscope/internal/aggregate"
)

// Strategy locates the raw veto text on a match page.
type Strategy func(doc *goquery.Document) (string, bool)

var (
	vetoWordRe = regexp.MustCompile(`(?i)\bveto\b`)
	segmentRe  = regexp.MustCompile(`(?i)(.*?)\s+(ban|pick)\s+(.*)`)
	segmentSep = regexp.MustCompile(`[;,]`)
)

// DefaultStrategies are tried in order until one yields text.
var DefaultStrategies = []Strategy{
	vetoContainerText,
	noteParagraphText,
	bodyLineText,
}

// vetoContainerText looks at the dedicated veto and header-note elements.
func vetoContainerText(doc *goquery.Document) (string, bool) {
	var found string
	doc.Find(".match-veto, .m-veto, .veto, .match-header-note, .match-header-vs-note").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !containsAny(strings.ToLower(text), "pick", "ban", "veto") {
			return true
		}
		found = strings.TrimSpace(text)
		return found == ""
	})
	return found, found != ""
}

// noteParagraphText accepts any paragraph mentioning both a pick and a ban.
func noteParagraphText(doc *goquery.Document) (string, bool) {
	var found string
	doc.Find("p, div.match-header-note, div.match-header-vs-note, .match-header-vs-note").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		lower := strings.ToLower(text)
		if containsAny(lower, "ban", "veto") && strings.Contains(lower, "pick") {
			found = strings.TrimSpace(text)
			return false
		}
		return true
	})
	return found, found != ""
}

// bodyLineText scans the page text for a semicolon-separated veto line.
func bodyLineText(doc *goquery.Document) (string, bool) {
	for _, line := range strings.Split(doc.Find("body").Text(), "\n") {
		if containsAny(strings.ToLower(line), "pick", "ban", "veto") && strings.Contains(line, ";") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				return trimmed, true
			}
		}
	}
	return "", false
}

// LocatePickBanText runs strategies in order and returns the first hit.
func LocatePickBanText(doc *goquery.Document, strategies []Strategy) (string, bool) {
	for _, strategy := range strategies {
		if text, ok := strategy(doc); ok {
			return text, true
		}
	}
	return "", false
}

// ParsePickBanText splits a veto line such as
// "MIBR ban Bind; FURIA ban Haven; MIBR pick Ascent" into actions, keeping
// only those made by filterTeam.
func ParsePickBanText(text, filterTeam string) []aggregate.PickBanAction {
	var out []aggregate.PickBanAction
	for _, part := range segmentSep.Split(text, -1) {
		part = vetoWordRe.ReplaceAllString(strings.TrimSpace(part), "ban")

		m := segmentRe.FindStringSubmatch(part)
		if m == nil {
			continue
		}

		team := collapseSpaces(strings.ReplaceAll(m[1], ".", " "))
		mapName := titleCase(strings.TrimSpace(m[3]))
		if mapName == "" || !TeamMatches(team, filterTeam) {
			continue
		}

		out = append(out, aggregate.PickBanAction{
			Team:   team,
			Action: aggregate.Action(strings.ToLower(m[2])),
			Map:    mapName,
		})
	}
	return out
}

// ExtractActions locates and parses the veto text on a match page. ok is
// false when no text was found or none of it belongs to filterTeam.
func ExtractActions(doc *goquery.Document, filterTeam string) ([]aggregate.PickBanAction, bool) {
	text, ok := LocatePickBanText(doc, DefaultStrategies)
	if !ok {
		return nil, false
	}
	actions := ParsePickBanText(text, filterTeam)
	return actions, len(actions) > 0
}

// titleCase upper-cases the first letter and lower-cases the rest.
func titleCase(s string) string {
	runes := []rune(strings.ToLower(s))
	if len(runes) == 0 {
		return ""
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
