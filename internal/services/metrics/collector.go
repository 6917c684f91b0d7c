package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
)

// Collector turns harvest events into Prometheus metrics on its own registry
type Collector struct {
	registry *prometheus.Registry

	// AttemptsTotal counts extraction attempts per phase and result
	AttemptsTotal *prometheus.CounterVec
	// RecoveriesTotal counts interstitial dismissals
	RecoveriesTotal prometheus.Counter
	// RecordsTotal counts record decisions
	RecordsTotal *prometheus.CounterVec
	// RemovalsTotal counts removed records per reason
	RemovalsTotal *prometheus.CounterVec
	// RecordDuration tracks time spent on records that were worked on
	RecordDuration prometheus.Histogram
	// SessionsTotal counts finished sessions per stop reason
	SessionsTotal *prometheus.CounterVec
	// LastSessionRecords reports the last session's record counts by decision
	LastSessionRecords *prometheus.GaugeVec
	// LastSessionDuration reports the last session's wall-clock length
	LastSessionDuration prometheus.Gauge
	// LastSessionTimestamp reports when the last session ended
	LastSessionTimestamp prometheus.Gauge
}

var _ interfaces.HarvestObserver = (*Collector)(nil)

// NewCollector registers the harvester metrics on a fresh registry
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_attempts_total",
				Help: "Total number of extraction attempts",
			},
			[]string{"phase", "result"},
		),
		RecoveriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_recoveries_total",
				Help: "Total number of interstitial dismissals",
			},
		),
		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_total",
				Help: "Total number of record decisions",
			},
			[]string{"decision"},
		),
		RemovalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_removals_total",
				Help: "Total number of removed records by reason",
			},
			[]string{"reason"},
		),
		RecordDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_record_duration_seconds",
				Help:    "Time spent extracting a single record",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
		),
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_sessions_total",
				Help: "Total number of finished sessions",
			},
			[]string{"stop_reason"},
		),
		LastSessionRecords: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvester_last_session_records",
				Help: "Record counts of the most recent session",
			},
			[]string{"decision"},
		),
		LastSessionDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_last_session_duration_seconds",
				Help: "Wall-clock length of the most recent session",
			},
		),
		LastSessionTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_last_session_timestamp_seconds",
				Help: "Unix time the most recent session ended",
			},
		),
	}
}

// Registry returns the registry holding the harvester metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveAttempt(outcome models.AttemptOutcome) {
	result := "not_found"
	switch {
	case outcome.Found():
		result = "found"
	case outcome.Err != nil:
		result = "fault"
	}
	c.AttemptsTotal.WithLabelValues(string(outcome.Phase), result).Inc()
	if outcome.Recovered {
		c.RecoveriesTotal.Inc()
	}
}

func (c *Collector) ObserveRecord(decision models.RecordDecision) {
	c.RecordsTotal.WithLabelValues(string(decision.Decision)).Inc()
	if decision.Decision == models.DecisionRemoved {
		c.RemovalsTotal.WithLabelValues(decision.Reason).Inc()
	}
	if decision.Decision != models.DecisionSkipped {
		c.RecordDuration.Observe(decision.Duration.Seconds())
	}
}

func (c *Collector) ObserveSession(report *models.SessionReport) {
	c.SessionsTotal.WithLabelValues(string(report.StopReason)).Inc()
	c.LastSessionRecords.WithLabelValues(string(models.DecisionSkipped)).Set(float64(report.Skipped))
	c.LastSessionRecords.WithLabelValues(string(models.DecisionKept)).Set(float64(report.Kept))
	c.LastSessionRecords.WithLabelValues(string(models.DecisionRemoved)).Set(float64(report.Removed))
	c.LastSessionRecords.WithLabelValues(string(models.DecisionUnreachable)).Set(float64(report.Unreachable))
	c.LastSessionRecords.WithLabelValues("remaining").Set(float64(report.Remaining))
	c.LastSessionDuration.Set(report.Duration().Seconds())
	if !report.EndedAt.IsZero() {
		c.LastSessionTimestamp.Set(float64(report.EndedAt.Unix()))
	}
}

// WriteTextfile writes the registry in the node-exporter textfile format
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
