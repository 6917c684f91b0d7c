package listing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
	"github.com/ternarybob/harvester/internal/storage/recordstore"
)

// Result summarises a listing run
type Result struct {
	Pages       int
	Found       int
	Added       int
	Duplicates  int
	EmptyPages  int
	Interrupted bool
}

// Harvester pages through a search listing and appends unseen products to the
// record store, checkpointing after every page that produced something new.
type Harvester struct {
	surface interfaces.BrowserSurface
	store   interfaces.RecordStore
	parser  *Parser
	config  common.ListingConfig
	logger  arbor.ILogger
}

// NewHarvester creates a listing harvester
func NewHarvester(surface interfaces.BrowserSurface, store interfaces.RecordStore, config common.ListingConfig, logger arbor.ILogger) *Harvester {
	return &Harvester{
		surface: surface,
		store:   store,
		parser:  NewParser(config),
		config:  config,
		logger:  logger,
	}
}

// PageURL returns the URL of the 1-based results page
func PageURL(base, param string, page int) string {
	if page <= 1 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + param + "=" + strconv.Itoa(page)
}

// Run harvests from the configured listing URL until enough consecutive pages
// come back empty, the page limit is reached, or ctx is cancelled
func (h *Harvester) Run(ctx context.Context) (*Result, error) {
	if h.config.URL == "" {
		return nil, fmt.Errorf("listing url is required")
	}

	records, err := h.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, recordstore.ErrStoreNotFound) {
			return nil, err
		}
		records = nil
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.SourceRef()] = struct{}{}
	}

	emptyLimit := h.config.EmptyPageLimit
	if emptyLimit <= 0 {
		emptyLimit = 3
	}

	result := &Result{}
	consecutiveEmpty := 0

	for page := 1; h.config.MaxPages <= 0 || page <= h.config.MaxPages; page++ {
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}

		url := PageURL(h.config.URL, h.config.PageParam, page)
		h.logger.Info().Int("page", page).Str("url", url).Msg("Scraping listing page")
		result.Pages++

		found, err := h.scrape(ctx, url)
		if err != nil {
			h.logger.Warn().Err(err).Int("page", page).Msg("Listing page failed")
		}

		var added []*models.Record
		for _, r := range found {
			if _, dup := seen[r.SourceRef()]; dup {
				result.Duplicates++
				continue
			}
			seen[r.SourceRef()] = struct{}{}
			added = append(added, r)
		}
		result.Found += len(found)

		if len(found) == 0 {
			consecutiveEmpty++
			result.EmptyPages++
			h.logger.Info().
				Int("page", page).
				Int("consecutive_empty", consecutiveEmpty).
				Msg("No products on page")
			if consecutiveEmpty >= emptyLimit {
				h.logger.Info().Int("pages", emptyLimit).Msg("Consecutive empty pages, stopping")
				break
			}
			continue
		}
		consecutiveEmpty = 0

		if len(added) == 0 {
			continue
		}
		records = append(records, added...)
		result.Added += len(added)

		if err := h.store.Save(context.WithoutCancel(ctx), records); err != nil {
			return result, fmt.Errorf("failed to save listing page %d: %w", page, err)
		}
		h.logger.Info().
			Int("page", page).
			Int("added", len(added)).
			Int("total", len(records)).
			Str("store", h.store.Path()).
			Msg("Listing page saved")
	}

	return result, nil
}

func (h *Harvester) scrape(ctx context.Context, url string) ([]*models.Record, error) {
	if err := h.surface.Navigate(ctx, url); err != nil {
		return nil, err
	}
	markup, err := h.surface.Markup(ctx)
	if err != nil {
		return nil, err
	}
	return h.parser.Parse(markup)
}
