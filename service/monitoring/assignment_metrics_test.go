package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAssignmentMetrics_ObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAssignmentMetrics(reg)

	m.ObserveRun("threshold", false, false, 0, 10*time.Millisecond)
	m.ObserveRun("threshold", true, true, 3, 20*time.Millisecond)
	m.ObserveFailure("ranked", OutcomeInsufficientData)
	m.ObservePruned(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("threshold", OutcomeAssigned)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("threshold", OutcomeFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ranked", OutcomeInsufficientData)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallback))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reviewRequired))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.invalidRows))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.pruned))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestAssignmentMetrics_NilSafe(t *testing.T) {
	var m *AssignmentMetrics
	assert.NotPanics(t, func() {
		m.ObserveRun("threshold", false, false, 0, time.Second)
		m.ObserveFailure("threshold", OutcomeError)
		m.ObservePruned(1)
	})
}
