// Package budget tracks a harvest session's wall-clock allowance.
package budget

import (
	"time"
)

// Status is the session budget state. It only ever advances.
type Status int

const (
	StatusNormal Status = iota
	StatusGrace
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusGrace:
		return "grace"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Clock returns the current time
type Clock func() time.Time

// Option configures a Controller
type Option func(*Controller)

// WithClock replaces time.Now, mainly for tests
func WithClock(clock Clock) Option {
	return func(c *Controller) {
		c.now = clock
	}
}

// Controller answers "how much session time is left" on demand. It runs no
// timers and stops nothing; callers poll Status at their own boundaries.
type Controller struct {
	now        Clock
	start      time.Time
	run        time.Duration
	grace      time.Duration
	status     Status
	graceSince time.Time
}

// New starts a session clock with the given run and grace windows.
// Negative windows are treated as zero.
func New(run, grace time.Duration, opts ...Option) *Controller {
	c := &Controller{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if run < 0 {
		run = 0
	}
	if grace < 0 {
		grace = 0
	}
	c.run = run
	c.grace = grace
	c.start = c.now()
	return c
}

// Start returns when the session began
func (c *Controller) Start() time.Time {
	return c.start
}

// RunBudget returns the run window
func (c *Controller) RunBudget() time.Duration {
	return c.run
}

// GraceBudget returns the grace window
func (c *Controller) GraceBudget() time.Duration {
	return c.grace
}

// Elapsed returns time since session start
func (c *Controller) Elapsed() time.Duration {
	return c.now().Sub(c.start)
}

// Remaining returns time left before the next transition, or zero once expired
func (c *Controller) Remaining() time.Duration {
	elapsed := c.Elapsed()
	switch c.Status() {
	case StatusNormal:
		return c.run - elapsed
	case StatusGrace:
		return c.run + c.grace - elapsed
	default:
		return 0
	}
}

// Status evaluates the transition rule against the current elapsed time.
// Normal -> Grace fires at most once; Expired is terminal.
func (c *Controller) Status() Status {
	elapsed := c.Elapsed()

	next := StatusNormal
	switch {
	case elapsed > c.run+c.grace:
		next = StatusExpired
	case elapsed > c.run:
		next = StatusGrace
	}

	if next > c.status {
		if c.status == StatusNormal && c.graceSince.IsZero() {
			c.graceSince = c.now()
		}
		c.status = next
	}
	return c.status
}

// GraceEnteredAt returns when the run budget was first seen exhausted
func (c *Controller) GraceEnteredAt() (time.Time, bool) {
	return c.graceSince, !c.graceSince.IsZero()
}
