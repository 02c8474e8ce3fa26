// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

/*
Package api provides the HTTP surface of the quiz relay.

Routes (chi):

	GET  /healthz                        liveness
	GET  /metrics                        Prometheus exposition
	GET  /ws?game={id}                   display WebSocket
	GET  /api/v1/health                  breakers, cache and watched games
	GET  /api/v1/games                   status of every watched game
	GET  /api/v1/games/{id}/status       status of one game
	POST /api/v1/games/{id}/broadcast    send an application event
	POST /api/v1/games/{id}/reconnect    reset attempts and reconnect
	GET  /api/v1/games/{id}/teams/{team} one team (batched, api breaker)

Every response uses the models.APIResponse envelope. Errors carry a
machine-readable code (see models.APIError).

Middleware order: request ID and logging context, real IP, panic recovery,
CORS, then per-IP rate limiting (go-chi/httprate) and request metrics on
the API group. Rate limiting is disabled when the configured budget is
zero.
*/
package api
