// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered on the default registry via promauto and
exposed by the display relay at /metrics:

	curl http://localhost:8088/metrics

# Available Metrics

Cache (label cache_type):
  - cache_hits_total, cache_misses_total
  - cache_stale_served_total, cache_fallbacks_total
  - cache_entries, cache_evictions_total{reason}

Circuit breakers (label name = database, realtime, api):
  - circuit_breaker_state (0=closed, 1=half-open, 2=open)
  - circuit_breaker_requests_total{result}
  - circuit_breaker_failures
  - circuit_breaker_state_transitions_total{from_state,to_state}

Realtime (label scope, e.g. game:42):
  - realtime_connection_state
  - realtime_reconnect_attempts_total
  - realtime_fallback_polls_total{result}
  - realtime_updates_delivered_total{kind,source}
  - realtime_updates_stale_dropped_total
  - realtime_active_managers

Other:
  - retry_attempts_total{operation}
  - batch_flushes_total, batch_size
  - store_request_duration_seconds{table,status}
  - api_requests_total, api_request_duration_seconds
  - websocket_connections, websocket_messages_sent_total, websocket_errors_total

# Cardinality

Per-scope series are deleted with ForgetScope when the last subscriber of a
game disconnects.
*/
package metrics
