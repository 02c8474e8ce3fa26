// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/models"
	"github.com/tomtom215/quizsync/internal/realtime"
	"github.com/tomtom215/quizsync/internal/resilience"
	"github.com/tomtom215/quizsync/internal/validation"
)

// GameStatus describes one watched game.
type GameStatus struct {
	Game       string                    `json:"game"`
	Connection realtime.ConnectionStatus `json:"connection"`
	Watchers   int                       `json:"watchers"`
	Displays   int                       `json:"displays"`
}

func (h *Handler) gameStatus(game string, m *realtime.Manager) GameStatus {
	st := GameStatus{
		Game:       game,
		Connection: m.Status(),
		Watchers:   h.deps.Registry.Subscribers(game),
	}
	if h.deps.Hub != nil {
		st.Displays = h.deps.Hub.ClientCount(game)
	}
	return st
}

// ListGames returns the status of every watched game.
func (h *Handler) ListGames(w http.ResponseWriter, _ *http.Request) {
	games := []GameStatus{}
	for _, game := range h.deps.Registry.Scopes() {
		if m, ok := h.deps.Registry.Manager(game); ok {
			games = append(games, h.gameStatus(game, m))
		}
	}
	respondSuccess(w, http.StatusOK, games)
}

// managerFor resolves the {id} path parameter. It writes the error
// response and returns false when the id is invalid or unwatched.
func (h *Handler) managerFor(w http.ResponseWriter, r *http.Request) (string, *realtime.Manager, bool) {
	game := chi.URLParam(r, "id")
	if verr := validation.ValidateGameID("id", game); verr != nil {
		respondAPIError(w, http.StatusBadRequest, verr.ToAPIError())
		return "", nil, false
	}
	m, ok := h.deps.Registry.Manager(game)
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_WATCHED", "Game is not being watched", nil)
		return "", nil, false
	}
	return game, m, true
}

// GameStatus returns the connection status of one game.
func (h *Handler) GameStatus(w http.ResponseWriter, r *http.Request) {
	game, m, ok := h.managerFor(w, r)
	if !ok {
		return
	}
	respondSuccess(w, http.StatusOK, h.gameStatus(game, m))
}

// Broadcast sends an application event to every client subscribed to the
// game's channel. The payload goes out unchanged; receivers reconcile it
// like any other update.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	game, m, ok := h.managerFor(w, r)
	if !ok {
		return
	}

	var req models.BroadcastRequest
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, validation.CodeValidation, "Invalid JSON body", err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondAPIError(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}

	// Not being connected is a local condition, not a fault of the
	// realtime service, so it is checked outside the breaker.
	if !m.Status().IsConnected {
		respondError(w, http.StatusConflict, "NOT_CONNECTED", "Realtime channel is not connected", nil)
		return
	}

	send := func(ctx context.Context) error {
		return m.BroadcastEvent(ctx, req.Event, req.Payload)
	}
	var err error
	if h.deps.Breakers != nil {
		err = h.deps.Breakers.Realtime().Execute(r.Context(), send)
	} else {
		err = send(r.Context())
	}

	switch {
	case err == nil:
		logging.Ctx(r.Context()).Debug().Str("game", game).Str("event", req.Event).Msg("broadcast sent")
		respondSuccess(w, http.StatusAccepted, map[string]string{"game": game, "event": req.Event})
	case errors.Is(err, resilience.ErrCircuitOpen):
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Realtime service unavailable", err)
	case errors.Is(err, realtime.ErrNotConnected):
		respondError(w, http.StatusConflict, "NOT_CONNECTED", "Realtime channel is not connected", err)
	case errors.Is(err, realtime.ErrClosed):
		respondError(w, http.StatusNotFound, "NOT_WATCHED", "Game is not being watched", err)
	default:
		respondError(w, http.StatusBadGateway, "INTERNAL_ERROR", "Broadcast failed", err)
	}
}

// Reconnect resets the game's attempt counter and reconnects now.
func (h *Handler) Reconnect(w http.ResponseWriter, r *http.Request) {
	game, m, ok := h.managerFor(w, r)
	if !ok {
		return
	}
	if err := m.Reconnect(); err != nil {
		respondError(w, http.StatusNotFound, "NOT_WATCHED", "Game is not being watched", err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("game", game).Msg("manual reconnect requested")
	respondSuccess(w, http.StatusAccepted, map[string]string{"game": game})
}
