package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// ErrSessionRunning is returned by Trigger while a session is still in progress
var ErrSessionRunning = errors.New("harvest session already running")

// SessionFunc runs one harvest session
type SessionFunc func(ctx context.Context) error

// Status is a snapshot of the scheduler state
type Status struct {
	Schedule  string
	Running   bool
	Runs      int
	Skipped   int
	LastRun   time.Time
	LastError string
	NextRun   time.Time
}

// Service starts harvest sessions on a cron schedule. A tick that arrives
// while the previous session is still running is skipped, never queued.
type Service struct {
	schedule string
	session  SessionFunc
	cron     *cron.Cron
	logger   arbor.ILogger

	mu        sync.Mutex
	ctx       context.Context
	entryID   cron.EntryID
	started   bool
	running   bool
	runs      int
	skipped   int
	lastRun   time.Time
	lastError string
}

// NewService validates the cron expression and creates an idle scheduler
func NewService(schedule string, session SessionFunc, logger arbor.ILogger) (*Service, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return &Service{
		schedule: schedule,
		session:  session,
		cron:     cron.New(),
		logger:   logger,
		ctx:      context.Background(),
	}, nil
}

// Start registers the session and begins ticking. Sessions receive ctx, so
// cancelling it interrupts the session in progress.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already running")
	}

	id, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Trigger(); err != nil && !errors.Is(err, ErrSessionRunning) {
			s.logger.Debug().Err(err).Msg("Scheduled session returned error")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.ctx = ctx
	s.entryID = id
	s.started = true
	s.cron.Start()

	s.logger.Info().
		Str("schedule", s.schedule).
		Str("next_run", s.cron.Entry(id).Next.Format(time.RFC3339)).
		Msg("Scheduler started")
	return nil
}

// Stop halts the ticker and waits for a running session to return
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// Trigger runs a session now on the calling goroutine. It returns
// ErrSessionRunning without waiting if another session holds the slot.
func (s *Service) Trigger() (err error) {
	s.mu.Lock()
	if s.running {
		s.skipped++
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous session still running, skipping this cycle")
		return ErrSessionRunning
	}
	s.running = true
	ctx := s.ctx
	s.mu.Unlock()

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in harvest session")
			err = fmt.Errorf("session panic: %v", r)
		}

		s.mu.Lock()
		s.running = false
		s.runs++
		s.lastRun = time.Now()
		s.lastError = ""
		if err != nil {
			s.lastError = err.Error()
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Error().Err(err).Dur("duration", time.Since(started)).Msg("Harvest session failed")
		} else {
			s.logger.Info().Dur("duration", time.Since(started)).Msg("Harvest session completed")
		}
	}()

	s.logger.Info().Msg("Harvest session started")
	return s.session(ctx)
}

// Status returns a snapshot of the scheduler
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Schedule:  s.schedule,
		Running:   s.running,
		Runs:      s.runs,
		Skipped:   s.skipped,
		LastRun:   s.lastRun,
		LastError: s.lastError,
	}
	if s.started {
		status.NextRun = s.cron.Entry(s.entryID).Next
	}
	return status
}
