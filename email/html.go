package email

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

//HTMLToText returns the visible text of an html document with runs of whitespace collapsed.
// Scripts and styles are dropped.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("HTMLToText: failed to create goquery doc: %v", err)
	}

	doc.Find("script, style, noscript, head").Remove()

	// keep block level elements apart once the tags are gone
	doc.Find("p, div, br, li, h1, h2, h3, h4, h5, h6, tr").Each(func(i int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	return strings.Join(strings.Fields(doc.Text()), " "), nil
}
