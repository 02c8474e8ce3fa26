// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the sync layer:
// - Response cache efficiency
// - Circuit breakers and retries guarding backend calls
// - Realtime connection state, reconnects and fallback polling
// - Request batching
// - Backend REST latency
// - Display relay HTTP API and WebSocket fan-out

var (
	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheStaleServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_stale_served_total",
			Help: "Total number of expired entries served while revalidating",
		},
		[]string{"cache_type"},
	)

	CacheFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_fallbacks_total",
			Help: "Total number of fetch failures answered from a cached value",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"cache_type"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"cache_type", "reason"}, // reason: "capacity", "expired"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected", "canceled"
	)

	CircuitBreakerFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_failures",
			Help: "Current failure count held by the circuit breaker",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Retry Metrics
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retries scheduled after a transient failure",
		},
		[]string{"operation"},
	)

	// Realtime Metrics
	RealtimeState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_connection_state",
			Help: "Realtime manager state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=fallback_polling)",
		},
		[]string{"scope"},
	)

	RealtimeReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_reconnect_attempts_total",
			Help: "Total number of scheduled realtime reconnect attempts",
		},
		[]string{"scope"},
	)

	RealtimeFallbackPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_fallback_polls_total",
			Help: "Total number of fallback poll cycles",
		},
		[]string{"scope", "result"}, // result: "changed", "unchanged", "error"
	)

	RealtimeUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_updates_delivered_total",
			Help: "Total number of typed updates delivered to subscribers",
		},
		[]string{"kind", "source"}, // source: "live", "broadcast", "poll"
	)

	RealtimeUpdatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_updates_stale_dropped_total",
			Help: "Total number of updates dropped because a newer version was already delivered",
		},
	)

	RealtimeActiveManagers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_active_managers",
			Help: "Current number of realtime connection managers",
		},
	)

	// Batch Metrics
	BatchFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_flushes_total",
			Help: "Total number of batch flushes",
		},
		[]string{"batcher", "result"},
	)

	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_size",
			Help:    "Number of keys per flushed batch",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 250},
		},
		[]string{"batcher"},
	)

	// Backend REST Metrics
	StoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_request_duration_seconds",
			Help:    "Backend REST request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"table", "status"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket Metrics (display fan-out)
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of connected display clients",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to displays",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)
)

// Circuit breaker state values for CircuitBreakerState.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordStoreRequest records one backend REST round trip.
func RecordStoreRequest(table string, status int, duration time.Duration) {
	StoreRequestDuration.WithLabelValues(table, statusClass(status)).Observe(duration.Seconds())
}

// RecordBatchFlush records a flushed batch and its outcome.
func RecordBatchFlush(batcher string, size int, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	BatchFlushes.WithLabelValues(batcher, result).Inc()
	BatchSize.WithLabelValues(batcher).Observe(float64(size))
}

// RecordFallbackPoll records one fallback poll cycle for a scope.
func RecordFallbackPoll(scope string, changed bool, err error) {
	result := "unchanged"
	switch {
	case err != nil:
		result = "error"
	case changed:
		result = "changed"
	}
	RealtimeFallbackPolls.WithLabelValues(scope, result).Inc()
}

// ForgetScope removes per-scope series once a manager is closed so that
// finished games do not accumulate label values.
func ForgetScope(scope string) {
	RealtimeState.DeleteLabelValues(scope)
	RealtimeReconnects.DeleteLabelValues(scope)
	for _, result := range []string{"changed", "unchanged", "error"} {
		RealtimeFallbackPolls.DeleteLabelValues(scope, result)
	}
}

// statusClass maps an HTTP status to "2xx" style labels; 0 means transport error.
func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
