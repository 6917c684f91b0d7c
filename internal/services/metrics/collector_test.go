package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/harvester/internal/models"
)

func TestCollector_ObserveAttempt(t *testing.T) {
	c := NewCollector()

	c.ObserveAttempt(models.AttemptOutcome{Phase: models.PhaseMedia})
	c.ObserveAttempt(models.AttemptOutcome{Phase: models.PhaseMedia, Err: errors.New("timeout")})
	c.ObserveAttempt(models.AttemptOutcome{Phase: models.PhaseMedia, Media: []string{"m"}, Recovered: true})
	c.ObserveAttempt(models.AttemptOutcome{Phase: models.PhaseDetail, Fragments: []string{"d"}})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.AttemptsTotal.WithLabelValues("media", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.AttemptsTotal.WithLabelValues("media", "fault")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.AttemptsTotal.WithLabelValues("media", "found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.AttemptsTotal.WithLabelValues("detail", "found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RecoveriesTotal))
}

func TestCollector_ObserveRecord(t *testing.T) {
	c := NewCollector()

	c.ObserveRecord(models.RecordDecision{Decision: models.DecisionSkipped})
	c.ObserveRecord(models.RecordDecision{Decision: models.DecisionKept, Duration: 20 * time.Second})
	c.ObserveRecord(models.RecordDecision{Decision: models.DecisionRemoved, Reason: "missing media", Duration: time.Minute})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.RecordsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RecordsTotal.WithLabelValues("kept")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RemovalsTotal.WithLabelValues("missing media")))
	assert.Equal(t, 3, testutil.CollectAndCount(c.RecordsTotal, "harvester_records_total"))
}

func TestCollector_SessionTextfile(t *testing.T) {
	c := NewCollector()
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.ObserveSession(&models.SessionReport{
		StartedAt:   started,
		EndedAt:     started.Add(90 * time.Second),
		StopReason:  models.StopGrace,
		Kept:        4,
		Removed:     2,
		Skipped:     7,
		Unreachable: 1,
		Remaining:   3,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.SessionsTotal.WithLabelValues("grace_blocked")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.LastSessionRecords.WithLabelValues("kept")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.LastSessionRecords.WithLabelValues("unreachable")))
	assert.Equal(t, 90.0, testutil.ToFloat64(c.LastSessionDuration))

	path := filepath.Join(t.TempDir(), "textfile", "harvester.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `harvester_sessions_total{stop_reason="grace_blocked"} 1`), text)
	assert.True(t, strings.Contains(text, `harvester_last_session_records{decision="remaining"} 3`), text)
}
