// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

/*
Package resilience guards backend calls against transient failures and
failing dependencies.

# Retry

RetryWithBackoff retries a fallible call with exponential backoff:

	teams, err := resilience.RetryWithBackoff(ctx, func(ctx context.Context) ([]models.Team, error) {
	    return client.FetchTeams(ctx, gameID)
	}, resilience.DefaultRetryOptions())

Defaults: 3 retries (4 attempts), 1s initial delay doubling up to 30s.
Only errors classified by IsTransient are retried unless ShouldRetry is set.

# Circuit Breaker

Breaker wraps sony/gobreaker with a gradual-recovery failure count:

	CLOSED --(failures >= threshold)--> OPEN --(timeout)--> HALF_OPEN
	HALF_OPEN --(success)--> CLOSED (failures = 0)
	HALF_OPEN --(failure)--> OPEN

While CLOSED, each success decrements the failure count by one instead of
clearing it. Calls rejected by an open circuit return ErrCircuitOpen
without running.

# Registry

Registry holds one breaker per dependency family (database, realtime, api).
It is constructed once and injected; there are no package-level breakers.

Breaker transitions are logged and exported as circuit_breaker_* metrics.
*/
package resilience
