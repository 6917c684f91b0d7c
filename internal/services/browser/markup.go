package browser

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/harvester/internal/interfaces"
)

// createDocument creates a goquery.Document from HTML string
func createDocument(markup string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(markup))
}

// QueryMarkup evaluates a CSS selector against rendered markup. No match is
// an empty slice, not an error.
func QueryMarkup(markup, selector string) ([]interfaces.Element, error) {
	doc, err := createDocument(markup)
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}

	var elements []interfaces.Element
	doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		elements = append(elements, toElement(selector, i, s))
	})
	return elements, nil
}

func toElement(selector string, index int, s *goquery.Selection) interfaces.Element {
	attrs := make(map[string]string)
	if len(s.Nodes) > 0 {
		for _, attr := range s.Nodes[0].Attr {
			attrs[attr.Key] = attr.Val
		}
	}
	outer, _ := goquery.OuterHtml(s)
	return interfaces.Element{
		Selector: selector,
		Index:    index,
		Text:     strings.TrimSpace(s.Text()),
		HTML:     outer,
		Attrs:    attrs,
	}
}

// NormalizeText unescapes HTML entities and collapses whitespace runs
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(html.UnescapeString(text)), " ")
}

// PlainText strips tags from an HTML fragment and normalizes the remaining text
func PlainText(fragment string) string {
	doc, err := createDocument(fragment)
	if err != nil {
		return NormalizeText(fragment)
	}
	return NormalizeText(doc.Text())
}
