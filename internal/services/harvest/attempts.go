package harvest

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
	"github.com/ternarybob/harvester/internal/services/extractor"
	"github.com/ternarybob/harvester/internal/services/recovery"
)

// Removal reasons reported for records that end incomplete
const (
	ReasonMissingDetail         = "missing detail"
	ReasonMissingMedia          = "missing media"
	ReasonMissingDetailAndMedia = "missing detail and media"
	ReasonMissingSourceRef      = "missing source reference"
	ReasonUnreachable           = "source unreachable"
)

var errNotLoaded = errors.New("record source not loaded")

// AttemptResult is what the attempt loop learned about one record
type AttemptResult struct {
	SourceRef      string
	Detail         string
	Media          []string
	MediaAttempts  int
	DetailAttempts int
	Recoveries     int
	Faults         int
	// Loaded is set once any navigation to the source succeeded
	Loaded bool
}

// MediaFound reports whether at least one media reference is known
func (r *AttemptResult) MediaFound() bool {
	return len(r.Media) > 0
}

// DetailFound reports whether a detail block is known
func (r *AttemptResult) DetailFound() bool {
	return r.Detail != ""
}

// Keep applies the lifecycle predicate: detail and at least one media reference
func (r *AttemptResult) Keep() bool {
	return r.MediaFound() && r.DetailFound()
}

// RemovalReason names what is missing, or "" when the record is kept
func (r *AttemptResult) RemovalReason() string {
	switch {
	case !r.MediaFound() && !r.DetailFound():
		return ReasonMissingDetailAndMedia
	case !r.MediaFound():
		return ReasonMissingMedia
	case !r.DetailFound():
		return ReasonMissingDetail
	default:
		return ""
	}
}

// Attempter runs the bounded extraction attempts for a single record
type Attempter interface {
	Run(ctx context.Context, record *models.Record) *AttemptResult
}

// AttemptLoop drives the extractor and recovery policy against one surface,
// filling only the gaps a record has. Surface faults are counted as failed
// attempts and never returned.
type AttemptLoop struct {
	surface        interfaces.BrowserSurface
	extractor      *extractor.Extractor
	recovery       *recovery.Policy
	observer       interfaces.HarvestObserver
	logger         arbor.ILogger
	maxMedia       int
	mediaAttempts  int
	detailAttempts int
	detailWait     time.Duration

	navigated bool
}

var _ Attempter = (*AttemptLoop)(nil)

// NewAttemptLoop creates an attempt loop. observer may be nil.
func NewAttemptLoop(
	surface interfaces.BrowserSurface,
	ex *extractor.Extractor,
	policy *recovery.Policy,
	config common.HarvestConfig,
	observer interfaces.HarvestObserver,
	logger arbor.ILogger,
) *AttemptLoop {
	return &AttemptLoop{
		surface:        surface,
		extractor:      ex,
		recovery:       policy,
		observer:       observer,
		logger:         logger,
		maxMedia:       config.MaxMedia,
		mediaAttempts:  config.MediaAttempts,
		detailAttempts: config.DetailAttempts,
		detailWait:     common.ParseDuration(config.DetailWait, 10*time.Second),
	}
}

// Run navigates to the record's source and fills its missing media and
// detail. A record that ends with no media never gets a detail pass.
func (l *AttemptLoop) Run(ctx context.Context, record *models.Record) *AttemptResult {
	ref := record.SourceRef()
	result := &AttemptResult{SourceRef: ref}
	if record.HasDetail() {
		result.Detail = record.DetailText()
	}

	set := models.NewMediaSet(l.maxMedia, record.Media()...)

	l.navigated = false
	l.open(ctx, ref, result)

	l.runMedia(ctx, ref, set, result)
	result.Media = set.URLs()

	if !result.MediaFound() {
		l.logger.Warn().
			Str("url", ref).
			Int("attempts", result.MediaAttempts).
			Msg("No media found, skipping detail extraction")
		return result
	}

	if !result.DetailFound() {
		l.runDetail(ctx, ref, result)
	}

	return result
}

func (l *AttemptLoop) runMedia(ctx context.Context, ref string, set *models.MediaSet, result *AttemptResult) {
	ceiling := 0
	if set.Len() == 0 {
		ceiling = l.mediaAttempts
	}

	for attempt := 1; attempt <= ceiling; attempt++ {
		result.MediaAttempts++
		outcome := models.AttemptOutcome{SourceRef: ref, Phase: models.PhaseMedia, Attempt: attempt}

		if l.ensureOpen(ctx, ref, result, &outcome) {
			outcome.Recovered = l.recover(ctx, result)
			if _, err := l.extractor.ExtractMedia(ctx, l.surface, set); err != nil {
				outcome.Err = err
				result.Faults++
			}
		}
		outcome.Media = set.URLs()
		l.observe(outcome)

		if set.Len() > 0 {
			l.logger.Debug().
				Str("url", ref).
				Int("attempt", attempt).
				Int("media", set.Len()).
				Msg("Media found")
			return
		}

		l.logger.Debug().
			Str("url", ref).
			Int("attempt", attempt).
			Int("max_attempts", ceiling).
			Err(outcome.Err).
			Msg("No media on this attempt")

		if attempt < ceiling {
			l.refresh(ctx, ref, result)
		}
	}
}

func (l *AttemptLoop) runDetail(ctx context.Context, ref string, result *AttemptResult) {
	ceiling := l.detailAttempts

	for attempt := 1; attempt <= ceiling; attempt++ {
		result.DetailAttempts++
		outcome := models.AttemptOutcome{SourceRef: ref, Phase: models.PhaseDetail, Attempt: attempt}

		if l.ensureOpen(ctx, ref, result, &outcome) {
			if l.recover(ctx, result) {
				outcome.Recovered = true
				l.open(ctx, ref, result)
			}

			if l.navigated {
				outcome.Fragments = l.readDetails(ctx, result, &outcome)
			} else {
				outcome.Err = errNotLoaded
			}
		}
		l.observe(outcome)

		if len(outcome.Fragments) > 0 {
			result.Detail = extractor.FormatDetails(outcome.Fragments)
			l.logger.Debug().
				Str("url", ref).
				Int("attempt", attempt).
				Int("fragments", len(outcome.Fragments)).
				Msg("Details found")
			return
		}

		l.logger.Debug().
			Str("url", ref).
			Int("attempt", attempt).
			Int("max_attempts", ceiling).
			Err(outcome.Err).
			Msg("No details on this attempt")

		if attempt < ceiling {
			l.refresh(ctx, ref, result)
		}
	}
}

// readDetails waits for the detail container and reads its fragments
func (l *AttemptLoop) readDetails(ctx context.Context, result *AttemptResult, outcome *models.AttemptOutcome) []string {
	if container := l.extractor.DetailContainer(); container != "" {
		ready, err := l.surface.WaitFor(ctx, container, l.detailWait)
		if err != nil {
			outcome.Err = err
			result.Faults++
		}
		if !ready {
			return nil
		}
	}

	fragments, err := l.extractor.ExtractDetails(ctx, l.surface)
	if err != nil {
		outcome.Err = err
		result.Faults++
	}
	return fragments
}

// open navigates to the record source and remembers whether the page is ours
func (l *AttemptLoop) open(ctx context.Context, ref string, result *AttemptResult) {
	if err := l.surface.Navigate(ctx, ref); err != nil {
		l.navigated = false
		result.Faults++
		l.logger.Warn().Err(err).Str("url", ref).Msg("Navigation failed")
		return
	}
	l.navigated = true
	result.Loaded = true
}

// ensureOpen retries a failed navigation so extraction never reads another
// record's page. Returns false if the source is still not loaded.
func (l *AttemptLoop) ensureOpen(ctx context.Context, ref string, result *AttemptResult, outcome *models.AttemptOutcome) bool {
	if l.navigated {
		return true
	}
	l.open(ctx, ref, result)
	if !l.navigated {
		outcome.Err = errNotLoaded
	}
	return l.navigated
}

// refresh performs the full reload between failed attempts
func (l *AttemptLoop) refresh(ctx context.Context, ref string, result *AttemptResult) {
	if !l.navigated {
		l.open(ctx, ref, result)
		return
	}
	if err := l.surface.Reload(ctx); err != nil {
		l.navigated = false
		result.Faults++
		l.logger.Warn().Err(err).Str("url", ref).Msg("Reload failed")
	}
}

func (l *AttemptLoop) recover(ctx context.Context, result *AttemptResult) bool {
	recovered, err := l.recovery.Recover(ctx, l.surface)
	if err != nil {
		result.Faults++
		l.logger.Debug().Err(err).Msg("Recovery check failed")
		return false
	}
	if recovered {
		result.Recoveries++
	}
	return recovered
}

func (l *AttemptLoop) observe(outcome models.AttemptOutcome) {
	if l.observer != nil {
		l.observer.ObserveAttempt(outcome)
	}
}
