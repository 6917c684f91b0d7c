package extractor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
	"github.com/ternarybob/harvester/internal/services/browser"
)

// DefaultMaxDetailFragments is how many detail positions are tried for detail items
const DefaultMaxDetailFragments = 19

var backgroundURLPattern = regexp.MustCompile(`url\(["']?([^"')]+)["']?\)`)

// Extractor pulls media references and detail fragments from a rendered
// record page. It holds no retry logic: every call is a single pass over the
// current surface state, and absence is an empty result.
type Extractor struct {
	config       common.ExtractorConfig
	maxFragments int
	logger       arbor.ILogger
}

// NewExtractor creates an extractor from site layout configuration
func NewExtractor(config common.ExtractorConfig, maxFragments int, logger arbor.ILogger) *Extractor {
	if maxFragments <= 0 {
		maxFragments = DefaultMaxDetailFragments
	}
	return &Extractor{
		config:       config,
		maxFragments: maxFragments,
		logger:       logger,
	}
}

// ExtractMedia adds every acceptable media reference it can discover to set,
// stopping as soon as the set is full. Thumbnails are clicked one at a time to
// surface the images they reveal, so the visible page changes as a side effect.
// Returns the number of references added.
func (e *Extractor) ExtractMedia(ctx context.Context, surface interfaces.BrowserSurface, set *models.MediaSet) (int, error) {
	before := set.Len()
	if set.Full() {
		return 0, nil
	}

	thumbnails, err := e.thumbnails(ctx, surface)
	if err != nil {
		return set.Len() - before, err
	}

	if err := e.collect(ctx, surface, set); err != nil {
		return set.Len() - before, err
	}

	for _, thumb := range thumbnails {
		if set.Full() {
			break
		}
		if e.isVideo(thumb) {
			e.logger.Debug().
				Str("selector", thumb.Selector).
				Int("index", thumb.Index).
				Msg("Skipping video thumbnail")
			continue
		}

		if err := surface.Click(ctx, thumb); err != nil {
			e.logger.Warn().
				Err(err).
				Int("thumbnail", thumb.Index+1).
				Msg("Thumbnail click failed")
			continue
		}

		if err := e.collect(ctx, surface, set); err != nil {
			return set.Len() - before, err
		}
	}

	return set.Len() - before, nil
}

// collect runs the non-interactive discovery strategies against the current state
func (e *Extractor) collect(ctx context.Context, surface interfaces.BrowserSurface, set *models.MediaSet) error {
	for _, selector := range e.config.PrimarySelectors {
		if set.Full() {
			return nil
		}
		if err := e.collectAttr(ctx, surface, selector, "src", set); err != nil {
			return err
		}
	}

	if e.config.BackgroundSelector != "" && !set.Full() {
		elements, err := surface.Query(ctx, e.config.BackgroundSelector)
		if err != nil {
			return fmt.Errorf("background query failed: %w", err)
		}
		for _, el := range elements {
			if set.Full() {
				break
			}
			match := backgroundURLPattern.FindStringSubmatch(el.Attr("style"))
			if len(match) == 2 {
				e.accept(set, match[1])
			}
		}
	}

	if e.config.GallerySelector != "" && !set.Full() {
		if err := e.collectAttr(ctx, surface, e.config.GallerySelector, "src", set); err != nil {
			return err
		}
	}

	return nil
}

func (e *Extractor) collectAttr(ctx context.Context, surface interfaces.BrowserSurface, selector, attr string, set *models.MediaSet) error {
	elements, err := surface.Query(ctx, selector)
	if err != nil {
		return fmt.Errorf("query %s failed: %w", selector, err)
	}
	for _, el := range elements {
		if set.Full() {
			break
		}
		e.accept(set, el.Attr(attr))
	}
	return nil
}

// thumbnails returns the matches of the first selector in the fallback chain that finds any
func (e *Extractor) thumbnails(ctx context.Context, surface interfaces.BrowserSurface) ([]interfaces.Element, error) {
	for _, selector := range e.config.ThumbnailSelectors {
		elements, err := surface.Query(ctx, selector)
		if err != nil {
			return nil, fmt.Errorf("thumbnail query failed: %w", err)
		}
		if len(elements) > 0 {
			return elements, nil
		}
	}
	return nil, nil
}

func (e *Extractor) isVideo(el interfaces.Element) bool {
	class := el.Attr("class")
	for _, marker := range e.config.VideoMarkers {
		if marker == "" {
			continue
		}
		if strings.Contains(class, marker) || strings.Contains(el.HTML, marker) {
			return true
		}
	}
	return false
}

// accept adds url to set if it matches the configured prefix and one of the suffixes
func (e *Extractor) accept(set *models.MediaSet, url string) bool {
	url = strings.TrimSpace(url)
	if url == "" {
		return false
	}
	if e.config.MediaPrefix != "" && !strings.HasPrefix(url, e.config.MediaPrefix) {
		return false
	}
	if len(e.config.MediaSuffixes) > 0 {
		matched := false
		for _, suffix := range e.config.MediaSuffixes {
			if strings.HasSuffix(url, suffix) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return set.Add(url)
}

// ExtractDetails reads detail items by 1-based position and returns the
// ordered prefix that exists. Reading stops at the first missing position.
func (e *Extractor) ExtractDetails(ctx context.Context, surface interfaces.BrowserSurface) ([]string, error) {
	var fragments []string
	for i := 1; i <= e.maxFragments; i++ {
		selector := fmt.Sprintf(e.config.DetailItemSelector, i)
		elements, err := surface.Query(ctx, selector)
		if err != nil {
			return fragments, fmt.Errorf("detail item %d failed: %w", i, err)
		}
		if len(elements) == 0 {
			break
		}
		if text := browser.NormalizeText(elements[0].Text); text != "" {
			fragments = append(fragments, text)
		}
	}
	return fragments, nil
}

// DetailContainer is the selector that must materialise before probing details
func (e *Extractor) DetailContainer() string {
	return e.config.DetailContainer
}

// FormatDetails renders fragments as the persisted detail text
func FormatDetails(fragments []string) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		parts = append(parts, "<p>"+f+"</p>")
	}
	return strings.Join(parts, "\n")
}
