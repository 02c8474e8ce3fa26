// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/quizsync/internal/cache"
	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/realtime"
	"github.com/tomtom215/quizsync/internal/resilience"
	ws "github.com/tomtom215/quizsync/internal/websocket"
)

// Dependencies are the components the relay API reads and drives.
type Dependencies struct {
	Registry *realtime.Registry
	Hub      *ws.Hub
	Breakers *resilience.Registry
	Cache    *cache.Manager
	// Teams serves on-demand team lookups; nil disables the endpoint.
	Teams TeamLookup

	// AllowedOrigins are checked on display upgrades; "*" allows any.
	AllowedOrigins []string

	// Version is reported by the health endpoints.
	Version string
}

// Handler contains dependencies for API handlers
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, upgrader (this file)
//   - handlers_helpers.go: response helpers
//   - handlers_health.go: liveness and detailed health
//   - handlers_games.go: per-game status, broadcast and reconnect
//   - handlers_teams.go: batched team lookups
//   - handlers_websocket.go: display upgrade
type Handler struct {
	deps      Dependencies
	startTime time.Time
}

// NewHandler creates the API handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps, startTime: time.Now()}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts displays from the configured origins.
// Requests without an Origin header come from non-browser displays (kiosk
// players, scripts) and are accepted.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.deps.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
