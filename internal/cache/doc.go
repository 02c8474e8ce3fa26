// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

/*
Package cache provides the shared response cache that sits in front of
backend fetches.

# Overview

The Manager provides:
  - TTL expiration (default 30s) checked on every lookup
  - In-flight de-duplication: concurrent misses on one key share one fetch
  - Stale-while-revalidate: expired data served at once, refreshed in the background
  - Degraded fallback: a failed fetch answers with any value still held
  - Capacity bound (default 100) with insertion-order eviction
  - Periodic sweep of expired entries (default every 5 minutes)

# Usage Example

	c := cache.New(cfg.Cache)

	teams, err := cache.Fetch(ctx, c, cache.Key("game", gameID, "teams"),
	    func(ctx context.Context) ([]models.Team, error) {
	        return client.Teams(ctx, gameID)
	    },
	    cache.WithTTL(10*time.Second),
	)

	// After a live update for this game:
	c.InvalidatePrefix(cache.Prefix("game", gameID))

# Lifecycle

The Manager has no goroutines of its own apart from background
revalidations. The sweep runs only while Run is active; the supervisor
registers it as a service for the lifetime of the process.

# Metrics

All counters carry a cache_type label (the Manager name, "response" by
default): cache_hits_total, cache_misses_total, cache_stale_served_total,
cache_fallbacks_total, cache_evictions_total{reason} and the cache_entries
gauge.

# Thread Safety

All methods are safe for concurrent use. Entries are immutable once stored;
Set replaces the entry rather than mutating it.
*/
package cache
