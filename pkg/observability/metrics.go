package observability

import (
	"context"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weft"

// Metrics holds the collectors fed by lifecycle hooks.
type Metrics struct {
	supersteps   *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	nodeFailures *prometheus.CounterVec
	checkpoints  *prometheus.CounterVec
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		supersteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "supersteps_total",
				Help:      "Supersteps started.",
			},
			[]string{"graph"},
		),
		nodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "duration_seconds",
				Help:      "Node execution duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"graph", "node"},
		),
		nodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "failures_total",
				Help:      "Node executions that returned an error, panicked or timed out.",
			},
			[]string{"graph", "node"},
		),
		checkpoints: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkpoints_total",
				Help:      "Checkpoints committed, by source.",
			},
			[]string{"source", "status"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "finished_total",
				Help:      "Invocations finished, by outcome.",
			},
			[]string{"graph", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "duration_seconds",
				Help:      "Invocation duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"graph"},
		),
	}
	reg.MustRegister(m.supersteps, m.nodeDuration, m.nodeFailures, m.checkpoints, m.runs, m.runDuration)
	return m
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns metrics registered once with the global Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// Hooks returns lifecycle hooks recording into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepStart: func(_ context.Context, e *domain.StepEvent) {
			m.supersteps.WithLabelValues(e.Graph).Inc()
		},
		OnNodeFinish: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeDuration.WithLabelValues(e.Graph, e.NodeID).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.nodeFailures.WithLabelValues(e.Graph, e.NodeID).Inc()
			}
		},
		OnStepCommit: func(_ context.Context, s *domain.Snapshot) {
			m.checkpoints.WithLabelValues(string(s.Source), string(s.Status)).Inc()
		},
		OnRunFinish: func(_ context.Context, e *domain.RunEvent) {
			m.runs.WithLabelValues(e.Graph, string(e.Status)).Inc()
			m.runDuration.WithLabelValues(e.Graph).Observe(e.Duration.Seconds())
		},
	}
}
