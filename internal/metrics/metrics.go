// Package metrics exposes Prometheus collectors for the monitoring engine and
// keeps the per-source call statistics reported by the stats endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Source call metrics
	SourceCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentions_source_calls_total",
			Help: "Total number of source searches by outcome",
		},
		[]string{"source", "result"}, // "success", "failure", "rejected"
	)

	SourceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mentions_source_latency_seconds",
			Help:    "Duration of source searches including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30, 60},
		},
		[]string{"source"},
	)

	SourceRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentions_source_retries_total",
			Help: "Total number of retried source attempts",
		},
		[]string{"source"},
	)

	// Circuit breaker metrics
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mentions_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"source"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentions_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"source", "from", "to"},
	)

	// Tick metrics
	Ticks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentions_ticks_total",
			Help: "Total number of monitoring ticks by outcome",
		},
		[]string{"outcome"}, // "completed", "panicked"
	)

	SkippedTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mentions_ticks_skipped_total",
			Help: "Ticks dropped because the previous tick of the same case was still running",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mentions_tick_duration_seconds",
			Help:    "Duration of monitoring ticks",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mentions_active_jobs",
			Help: "Current number of scheduled monitoring jobs",
		},
	)

	// Ingestion metrics
	MentionsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentions_ingested_total",
			Help: "Total number of mentions persisted",
		},
		[]string{"platform"},
	)

	MentionsFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentions_filtered_total",
			Help: "Total number of candidate mentions dropped by a pipeline stage",
		},
		[]string{"stage"}, // "keyword", "language", "dedup"
	)

	DedupFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mentions_dedup_fallback_total",
			Help: "Ticks that skipped deduplication because the existence check failed",
		},
	)

	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentions_alerts_total",
			Help: "Total number of alerts raised",
		},
		[]string{"severity"},
	)
)

// RecordSourceCall records the outcome and latency of one source search
func RecordSourceCall(source string, duration time.Duration, result string) {
	SourceCalls.WithLabelValues(source, result).Inc()
	SourceLatency.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordBreakerTransition updates the breaker gauge and transition counter
func RecordBreakerTransition(source, from, to string) {
	BreakerState.WithLabelValues(source).Set(BreakerStateValue(to))
	BreakerTransitions.WithLabelValues(source, from, to).Inc()
}

// BreakerStateValue maps a breaker state name onto the gauge value
func BreakerStateValue(state string) float64 {
	switch state {
	case "OPEN":
		return 2
	case "HALF_OPEN":
		return 1
	default:
		return 0
	}
}
