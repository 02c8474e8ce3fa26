// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package api

import (
	"net/http"

	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/validation"
	ws "github.com/tomtom215/quizsync/internal/websocket"
)

// WebSocket upgrades a display connection for the game named by the
// "game" query parameter. The hub starts watching the game when its first
// display joins.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	game := r.URL.Query().Get("game")
	if verr := validation.ValidateGameID("game", game); verr != nil {
		respondAPIError(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}
	if h.deps.Hub == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Display hub not running", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(h.deps.Hub, conn, game)
	select {
	case h.deps.Hub.Register <- client:
		client.Start()
	case <-r.Context().Done():
		_ = conn.Close()
	}
}
