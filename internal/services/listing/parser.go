package listing

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/models"
)

// Parser turns a rendered search results page into listing records
type Parser struct {
	config common.ListingConfig
}

// NewParser creates a parser for the configured result layout
func NewParser(config common.ListingConfig) *Parser {
	return &Parser{config: config}
}

// Parse extracts one record per organic result that has a usable name,
// price and link. Sponsored results are skipped.
func (p *Parser) Parse(markup string) ([]*models.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing markup: %w", err)
	}

	var records []*models.Record
	doc.Find(p.config.ResultSelector).Each(func(i int, result *goquery.Selection) {
		title := result.Find(p.config.TitleSelector).First()
		ariaLabel, _ := title.Attr("aria-label")
		if p.config.SponsoredMarker != "" && strings.Contains(ariaLabel, p.config.SponsoredMarker) {
			return
		}

		name := p.name(title, ariaLabel)
		if name == "" {
			return
		}

		price := p.price(result)
		if price == "" {
			return
		}

		href, ok := result.Find(p.config.LinkSelector).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		records = append(records, models.NewListingRecord(name, price, p.absolute(strings.TrimSpace(href))))
	})

	return records, nil
}

// name prefers the heading's aria-label and falls back to its span text.
// Short or promotional names are rejected.
func (p *Parser) name(title *goquery.Selection, ariaLabel string) string {
	name := strings.TrimSpace(ariaLabel)
	if name == "" || strings.HasPrefix(name, "{") {
		name = strings.TrimSpace(title.Find("span").First().Text())
	}

	if len([]rune(name)) < p.config.MinNameLength {
		return ""
	}
	lower := strings.ToLower(name)
	for _, marker := range p.config.RejectNameMarkers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return ""
		}
	}
	return name
}

func (p *Parser) price(result *goquery.Selection) string {
	whole := strings.TrimSpace(result.Find(p.config.PriceWhole).First().Text())
	if whole == "" {
		return ""
	}
	fraction := strings.TrimSpace(result.Find(p.config.PriceFraction).First().Text())
	return whole + fraction
}

func (p *Parser) absolute(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return strings.TrimRight(p.config.BaseURL, "/") + "/" + strings.TrimLeft(href, "/")
}
