// Package metrics exposes Prometheus collectors for the reporting engine.
//
// Collectors are registered on the default registry via promauto and served
// by the health package at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Refresh cycle metrics
	RefreshCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmon_refresh_cycles_total",
			Help: "Total number of completed refresh cycles",
		},
		[]string{"mode", "outcome"}, // mode: initial, manual, background; outcome: success, failure, discarded
	)

	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cmon_refresh_cycle_duration_seconds",
			Help:    "Duration of refresh cycles in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	RefreshTriggersDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmon_refresh_triggers_dropped_total",
			Help: "Triggers dropped because a cycle was already in flight",
		},
		[]string{"mode"},
	)

	// Collector metrics
	PagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cmon_collector_pages_fetched_total",
			Help: "Total number of collection pages fetched",
		},
	)

	CollectedRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cmon_collector_records",
			Help: "Number of records in the last complete collection",
		},
	)

	CollectionTruncated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cmon_collector_truncated",
			Help: "1 when the last collection stopped at the page ceiling before the declared total",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cmon_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmon_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)
)

// BoolGauge converts a flag to a gauge value.
func BoolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
