package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
	"github.com/ternarybob/harvester/internal/services/budget"
)

// DefaultMaxUnreachable is how many records in a row may fail to load before
// the surface is considered unavailable
const DefaultMaxUnreachable = 3

// ErrSurfaceUnavailable stops a session whose records repeatedly fail to load
var ErrSurfaceUnavailable = errors.New("rendering surface unavailable")

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithObserver reports record and session events to observer
func WithObserver(observer interfaces.HarvestObserver) Option {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

// WithJournal records every session report in journal
func WithJournal(journal interfaces.SessionJournal) Option {
	return func(o *Orchestrator) {
		o.journal = journal
	}
}

// WithMaxUnreachable sets how many consecutive unreachable records stop the session
func WithMaxUnreachable(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxUnreachable = n
		}
	}
}

// Orchestrator walks the record store once per session. Complete records are
// carried over, incomplete ones are attempted and then kept or dropped, and
// the store is checkpointed after every record that was worked on.
type Orchestrator struct {
	store     interfaces.RecordStore
	attempter Attempter
	observer  interfaces.HarvestObserver
	journal   interfaces.SessionJournal
	maxMedia  int
	logger    arbor.ILogger

	maxUnreachable int
}

// NewOrchestrator creates an orchestrator over store
func NewOrchestrator(store interfaces.RecordStore, attempter Attempter, maxMedia int, logger arbor.ILogger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		attempter: attempter,
		maxMedia:  maxMedia,
		logger:    logger,

		maxUnreachable: DefaultMaxUnreachable,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one session against clock. Cancelling ctx stops the session at
// the next record boundary; an attempt that has started always finishes and
// is checkpointed. The returned error is non-nil only for faults that leave
// the session unable to continue, such as a store that cannot be read or
// written. The report is always returned.
func (o *Orchestrator) Run(ctx context.Context, clock *budget.Controller) (*models.SessionReport, error) {
	report := &models.SessionReport{
		ID:          common.NewSessionID(),
		StorePath:   o.store.Path(),
		StartedAt:   clock.Start(),
		RunBudget:   clock.RunBudget(),
		GraceBudget: clock.GraceBudget(),
	}
	logger := o.logger.WithCorrelationId(report.ID)

	logger.Info().
		Str("store", report.StorePath).
		Dur("run_budget", report.RunBudget).
		Dur("grace_budget", report.GraceBudget).
		Msg("Harvest session started")

	records, err := o.store.Load(ctx)
	if err != nil {
		err = fmt.Errorf("failed to load record store: %w", err)
		o.finish(ctx, logger, clock, report, models.StopFailed, err)
		return report, err
	}
	report.Total = len(records)

	kept := make([]*models.Record, 0, len(records))
	stop := models.StopCompleted
	graceLogged := false
	unreachable := 0

	i := 0
	for ; i < len(records); i++ {
		record := records[i]

		status := clock.Status()
		if status == budget.StatusExpired {
			logger.Warn().
				Int("processed", i).
				Int("remaining", len(records)-i).
				Msg("Session budget expired, stopping")
			stop = models.StopExpired
			break
		}
		if status == budget.StatusGrace && !graceLogged {
			graceLogged = true
			logger.Warn().
				Dur("grace_remaining", clock.Remaining()).
				Msg("Run budget exhausted, only in-flight work continues")
		}

		if ctx.Err() != nil {
			logger.Warn().
				Int("processed", i).
				Int("remaining", len(records)-i).
				Msg("Session interrupted, stopping at record boundary")
			stop = models.StopInterrupted
			break
		}

		if record.IsComplete() {
			kept = append(kept, record)
			report.Skipped++
			logger.Debug().
				Int("index", i+1).
				Str("name", record.Name()).
				Msg("Skipping record, already complete")
			o.observeRecord(models.RecordDecision{
				Index:     i,
				SourceRef: record.SourceRef(),
				Name:      record.Name(),
				Decision:  models.DecisionSkipped,
			})
			continue
		}

		if status == budget.StatusGrace {
			logger.Warn().
				Int("index", i+1).
				Str("name", record.Name()).
				Msg("Grace period reserved for in-flight work, not starting new record")
			stop = models.StopGrace
			break
		}

		logger.Info().
			Int("index", i+1).
			Int("total", len(records)).
			Str("name", record.Name()).
			Msg("Processing record")

		started := clock.Elapsed()
		decision, merged := o.process(ctx, record, report)
		decision.Index = i
		decision.Duration = clock.Elapsed() - started

		if decision.Decision == models.DecisionUnreachable {
			// left in place untouched, nothing to checkpoint
			kept = append(kept, record)
			report.Unreachable++
			unreachable++
			logger.Warn().
				Str("name", decision.Name).
				Str("url", decision.SourceRef).
				Int("consecutive", unreachable).
				Msg("Record source could not be loaded, leaving it untouched")
			o.observeRecord(decision)

			if unreachable >= o.maxUnreachable {
				i++
				report.Remaining = len(records) - i
				err := fmt.Errorf("%w: %d consecutive records could not be loaded", ErrSurfaceUnavailable, unreachable)
				o.finish(ctx, logger, clock, report, models.StopFailed, err)
				return report, err
			}
			continue
		}
		unreachable = 0

		if merged != nil {
			kept = append(kept, merged)
			report.Kept++
			logger.Info().
				Str("name", decision.Name).
				Dur("duration", decision.Duration).
				Msg("Record kept")
		} else {
			report.Removed++
			logger.Warn().
				Str("name", decision.Name).
				Str("reason", decision.Reason).
				Msg("Record removed")
		}
		o.observeRecord(decision)

		if err := o.checkpoint(ctx, kept, records[i+1:]); err != nil {
			i++
			report.Remaining = len(records) - i
			o.finish(ctx, logger, clock, report, models.StopFailed, err)
			return report, err
		}
		report.Checkpoints++
	}

	report.Remaining = len(records) - i
	o.finish(ctx, logger, clock, report, stop, nil)
	return report, nil
}

// process runs the attempts for one record and returns the decision and, if
// the record is kept, its merged form
func (o *Orchestrator) process(ctx context.Context, record *models.Record, report *models.SessionReport) (models.RecordDecision, *models.Record) {
	decision := models.RecordDecision{
		SourceRef: record.SourceRef(),
		Name:      record.Name(),
	}

	if decision.SourceRef == "" {
		decision.Decision = models.DecisionRemoved
		decision.Reason = ReasonMissingSourceRef
		return decision, nil
	}

	// attempts run to completion even if the session is interrupted meanwhile
	result := o.attempter.Run(context.WithoutCancel(ctx), record)
	report.MediaAttempts += result.MediaAttempts
	report.DetailAttempts += result.DetailAttempts
	report.Recoveries += result.Recoveries

	if !result.Loaded {
		decision.Decision = models.DecisionUnreachable
		decision.Reason = ReasonUnreachable
		return decision, nil
	}

	if !result.Keep() {
		decision.Decision = models.DecisionRemoved
		decision.Reason = result.RemovalReason()
		return decision, nil
	}

	decision.Decision = models.DecisionKept
	return decision, record.Merge(result.Detail, result.Media, o.maxMedia)
}

// checkpoint persists kept records followed by the untouched remainder
func (o *Orchestrator) checkpoint(ctx context.Context, kept, rest []*models.Record) error {
	snapshot := make([]*models.Record, 0, len(kept)+len(rest))
	snapshot = append(snapshot, kept...)
	snapshot = append(snapshot, rest...)

	if err := o.store.Save(context.WithoutCancel(ctx), snapshot); err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, logger arbor.ILogger, clock *budget.Controller, report *models.SessionReport, stop models.StopReason, err error) {
	report.EndedAt = clock.Start().Add(clock.Elapsed())
	report.StopReason = stop
	if err != nil {
		report.Error = err.Error()
		logger.Error().Err(err).Msg("Harvest session failed")
	}

	logger.Info().
		Str("stop_reason", string(stop)).
		Int("total", report.Total).
		Int("skipped", report.Skipped).
		Int("kept", report.Kept).
		Int("removed", report.Removed).
		Int("unreachable", report.Unreachable).
		Int("remaining", report.Remaining).
		Dur("duration", report.Duration().Round(time.Second)).
		Msg("Harvest session finished")

	if o.observer != nil {
		o.observer.ObserveSession(report)
	}

	if o.journal != nil {
		if jerr := o.journal.SaveSession(context.WithoutCancel(ctx), report); jerr != nil {
			logger.Warn().Err(jerr).Msg("Failed to journal session report")
		}
	}
}

func (o *Orchestrator) observeRecord(decision models.RecordDecision) {
	if o.observer != nil {
		o.observer.ObserveRecord(decision)
	}
}
