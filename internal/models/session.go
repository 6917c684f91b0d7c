package models

import "time"

// StopReason explains why a harvest session ended
type StopReason string

const (
	StopCompleted   StopReason = "completed"
	StopGrace       StopReason = "grace_blocked"
	StopExpired     StopReason = "expired"
	StopInterrupted StopReason = "interrupted"
	StopFailed      StopReason = "failed"
)

// Phase names the sub-loop an attempt belongs to
type Phase string

const (
	PhaseMedia  Phase = "media"
	PhaseDetail Phase = "detail"
)

// Decision is the lifecycle outcome for a single record
type Decision string

const (
	DecisionSkipped Decision = "skipped"
	DecisionKept    Decision = "kept"
	DecisionRemoved Decision = "removed"
	// DecisionUnreachable leaves the record untouched because its source never loaded
	DecisionUnreachable Decision = "unreachable"
)

// AttemptOutcome is the transient result of one extraction attempt.
// It is reported to observers and folded into the record, never persisted.
type AttemptOutcome struct {
	SourceRef string
	Phase     Phase
	Attempt   int
	Media     []string
	Fragments []string
	Recovered bool
	Err       error
}

// Found reports whether the attempt met its phase's success criterion
func (o AttemptOutcome) Found() bool {
	if o.Phase == PhaseMedia {
		return len(o.Media) > 0
	}
	return len(o.Fragments) > 0
}

// RecordDecision is reported once per record the orchestrator looks at
type RecordDecision struct {
	Index     int
	SourceRef string
	Name      string
	Decision  Decision
	Reason    string
	Duration  time.Duration
}

// SessionReport summarises one invocation of the orchestrator
type SessionReport struct {
	ID             string        `json:"id"`
	StorePath      string        `json:"store_path"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        time.Time     `json:"ended_at"`
	RunBudget      time.Duration `json:"run_budget"`
	GraceBudget    time.Duration `json:"grace_budget"`
	StopReason     StopReason    `json:"stop_reason"`
	Error          string        `json:"error,omitempty"`
	Total          int           `json:"total"`
	Skipped        int           `json:"skipped"`
	Kept           int           `json:"kept"`
	Removed        int           `json:"removed"`
	Unreachable    int           `json:"unreachable"`
	Remaining      int           `json:"remaining"`
	MediaAttempts  int           `json:"media_attempts"`
	DetailAttempts int           `json:"detail_attempts"`
	Recoveries     int           `json:"recoveries"`
	Checkpoints    int           `json:"checkpoints"`
}

// Duration returns the wall-clock length of the session
func (r *SessionReport) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
