// Package metrics wires the engine's prometheus counters/histograms
// (SPEC_FULL §B). It is grounded on the teacher's own
// internal/infrastructure/monitoring.MetricsCollector shape — same
// concerns (executions, node durations, circuit state) — reimplemented
// against client_golang instead of a hand-rolled in-memory collector, so
// the flow engine exposes a real /metrics surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionsStarted counts every Execute call (§6.1).
	ExecutionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flowengine",
		Name:      "executions_started_total",
		Help:      "Total number of flow executions started.",
	})

	// ExecutionsCompleted counts executions by terminal status
	// (completed|failed|cancelled, §3).
	ExecutionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowengine",
		Name:      "executions_completed_total",
		Help:      "Total number of flow executions that reached a terminal status.",
	}, []string{"status"})

	// NodeDuration observes per-node-type execution latency (§4.10).
	NodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowengine",
		Name:      "node_duration_seconds",
		Help:      "Node execution duration in seconds, including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"node_type"})

	// NodeAttempts observes how many attempts (including retries) a node
	// took to reach its final NodeResult (§4.5).
	NodeAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowengine",
		Name:      "node_attempts",
		Help:      "Number of attempts made for a node execution, including retries.",
		Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
	}, []string{"node_type"})

	// CircuitStateTransitions is the counter for breaker state changes
	// (§4.6). The circuit breaker does not record into it, so it stays at
	// zero.
	CircuitStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowengine",
		Name:      "circuit_state_transitions_total",
		Help:      "Total number of circuit breaker state transitions.",
	}, []string{"node_type", "state"})

	// ParallelBranches counts fan-out branches scheduled per mode (§4.7).
	ParallelBranches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowengine",
		Name:      "parallel_branches_total",
		Help:      "Total number of parallel branches scheduled, by aggregation mode.",
	}, []string{"mode"})

	// PendingWaits is the gauge for in-flight Wait-For-Reply registrations
	// (§4.8). The Wait Coordinator does not update it, so it stays at zero.
	PendingWaits = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowengine",
		Name:      "pending_waits",
		Help:      "Current number of registered wait-for-reply entries.",
	})
)
