package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.RecordRun("FixCode", "done")
	m.RecordRun("FixCode", "done")
	m.RecordRun("General", "error")
	m.RecordSelfCheck(true)
	m.RecordSelfCheck(false)
	m.RecordStage("retrieve", 3*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues("FixCode", "done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues("General", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SelfCheckFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration, "recall_stage_duration_seconds"))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 3)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRun("General", "done")
		m.RecordStage("emit", time.Second)
		m.RecordSelfCheck(false)
	})
}

func TestNewMetrics_Shared(t *testing.T) {
	assert.Same(t, NewMetrics(), NewMetrics())
}
