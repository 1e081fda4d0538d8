package vlr

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ExtractTeamName reads the display name from a team page. The short tag in
// h2.team-header-tag wins; otherwise the h1.wf-title text without its .tag
// span is used. Returns "" when neither is present.
func ExtractTeamName(doc *goquery.Document) string {
	header := doc.Find(".team-header-name").First()
	if header.Length() > 0 {
		if tag := header.Find("h2.team-header-tag").First(); tag.Length() > 0 {
			return strings.TrimSpace(tag.Text())
		}
		if title := header.Find("h1.wf-title").First(); title.Length() > 0 {
			return titleText(title)
		}
	}

	if title := doc.Find("h1.wf-title").First(); title.Length() > 0 {
		return titleText(title)
	}
	return ""
}

// titleText concatenates direct text nodes and non-.tag span children.
func titleText(title *goquery.Selection) string {
	var b strings.Builder
	title.Contents().Each(func(_ int, child *goquery.Selection) {
		node := child.Get(0)
		switch {
		case node.Type == html.TextNode:
			b.WriteString(node.Data)
		case node.Type == html.ElementNode && node.Data == "span" && !child.HasClass("tag"):
			b.WriteString(child.Text())
		}
	})
	return strings.TrimSpace(b.String())
}
