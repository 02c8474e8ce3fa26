// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

/*
Package store is the REST client for the hosted backend.

It reads the four game table families over the backend's PostgREST-style
interface:

	GET {url}/rest/v1/games?id=eq.{game}
	GET {url}/rest/v1/participants?game_id=eq.{game}
	GET {url}/rest/v1/teams?game_id=eq.{game}
	GET {url}/rest/v1/teams?id=in.(t1,t2,...)
	GET {url}/rest/v1/game_sessions?game_id=eq.{game}&order=updated_at.desc.nullslast&limit=1

Requests carry the API key both as the apikey header and as a bearer token.

# Resilience

Each request passes, in order, through:
  - the token bucket limiter (backend.rate_limit, backend.rate_burst)
  - the database circuit breaker
  - retry with backoff; server errors, 429 and network failures are retried

# Use by the realtime layer

Client implements realtime.Fetcher, so fallback polling reads through it.
With WithCache, reads are cached under game:{id}:{table} for a short TTL;
live updates for a game invalidate its prefix.
*/
package store
