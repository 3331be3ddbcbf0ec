package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DownloadLink is the install button state of a details page.
type DownloadLink struct {
	URL     string
	Enabled bool
	Found   bool
}

// FindDownloadLink locates the first button carrying an offers span and
// reads its url meta tag and disabled state. Found is false when the page
// has no such button.
func FindDownloadLink(body string) DownloadLink {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return DownloadLink{}
	}

	var link DownloadLink
	doc.Find("button").EachWithBreak(func(_ int, button *goquery.Selection) bool {
		if button.Find(`span[itemprop="offers"]`).Length() == 0 {
			return true
		}
		link.Found = true
		link.URL, _ = button.Find(`meta[itemprop="url"]`).First().Attr("content")
		_, disabled := button.Attr("disabled")
		if !disabled {
			disabled = button.Find("[disabled]").Length() > 0
		}
		link.Enabled = !disabled
		return false
	})
	return link
}
