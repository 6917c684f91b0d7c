package stats

import (
	"context"
	"fmt"

	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
	"github.com/ternarybob/harvester/internal/services/browser"
)

// Summary counts records by which enrichment fields they carry
type Summary struct {
	Total             int `json:"total"`
	DetailsAndMedia   int `json:"details_and_media"`
	DetailsOnly       int `json:"details_only"`
	MediaOnly         int `json:"media_only"`
	NeitherDetailsNor int `json:"neither"`
	Published         int `json:"published"`
}

// Summarize classifies every record. A detail block that is only markup with
// no text counts as missing.
func Summarize(records []*models.Record) Summary {
	var s Summary
	for _, r := range records {
		s.Total++
		if r.Published() {
			s.Published++
		}

		hasDetail := browser.PlainText(r.DetailText()) != ""
		hasMedia := len(r.Media()) > 0

		switch {
		case hasDetail && hasMedia:
			s.DetailsAndMedia++
		case hasDetail:
			s.DetailsOnly++
		case hasMedia:
			s.MediaOnly++
		default:
			s.NeitherDetailsNor++
		}
	}
	return s
}

// SummarizeStore loads the store and summarises its records
func SummarizeStore(ctx context.Context, store interfaces.RecordStore) (Summary, error) {
	records, err := store.Load(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load %s: %w", store.Path(), err)
	}
	return Summarize(records), nil
}
