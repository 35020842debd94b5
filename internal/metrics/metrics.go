// Package metrics exposes Prometheus metrics for pipeline runs.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for recall. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	PipelineRuns      *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	SelfCheckFailures prometheus.Counter
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers the metrics on the default registry.
// Repeated calls return the same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = NewWithRegistry(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// NewWithRegistry registers a fresh set of metrics on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_pipeline_runs_total",
				Help: "Total number of pipeline runs by intent and outcome",
			},
			[]string{"intent", "outcome"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recall_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
			},
			[]string{"stage"},
		),
		SelfCheckFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "recall_selfcheck_failures_total",
				Help: "Total number of responses missing expected file or function names",
			},
		),
	}
}

// RecordRun records a finished pipeline run
func (m *Metrics) RecordRun(intent, outcome string) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(intent, outcome).Inc()
}

// RecordStage records how long a stage took
func (m *Metrics) RecordStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordSelfCheck counts failed self-checks
func (m *Metrics) RecordSelfCheck(passed bool) {
	if m == nil || passed {
		return
	}
	m.SelfCheckFailures.Inc()
}
