// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/models"
	"github.com/tomtom215/quizsync/internal/resilience"
	"github.com/tomtom215/quizsync/internal/store"
	"github.com/tomtom215/quizsync/internal/validation"
)

// TeamLookup resolves single teams by id. store.Client batches concurrent
// lookups into one backend request.
type TeamLookup interface {
	Configured() bool
	TeamByID(ctx context.Context, teamID string) (*models.Team, error)
}

// Team returns one team of a game. Scoreboards call it for every row whose
// team they have not seen yet, so bursts of lookups are common.
func (h *Handler) Team(w http.ResponseWriter, r *http.Request) {
	game := chi.URLParam(r, "id")
	if verr := validation.ValidateGameID("id", game); verr != nil {
		respondAPIError(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}
	teamID := chi.URLParam(r, "team")
	if verr := validation.ValidateGameID("team", teamID); verr != nil {
		respondAPIError(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}

	if h.deps.Teams == nil || !h.deps.Teams.Configured() {
		respondError(w, http.StatusServiceUnavailable, "BACKEND_NOT_CONFIGURED", "Team lookup needs backend credentials", nil)
		return
	}

	lookup := func(ctx context.Context) (*models.Team, error) {
		return h.deps.Teams.TeamByID(ctx, teamID)
	}
	var (
		team *models.Team
		err  error
	)
	if h.deps.Breakers != nil {
		team, err = resilience.ExecuteTyped(r.Context(), h.deps.Breakers.API(), lookup)
	} else {
		team, err = lookup(r.Context())
	}

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Backend API unavailable", err)
	case errors.Is(err, store.ErrNotConfigured):
		respondError(w, http.StatusServiceUnavailable, "BACKEND_NOT_CONFIGURED", "Team lookup needs backend credentials", err)
	case err != nil:
		logging.Ctx(r.Context()).Warn().Err(err).Str("team", teamID).Msg("team lookup failed")
		respondError(w, http.StatusBadGateway, "INTERNAL_ERROR", "Team lookup failed", err)
	case team == nil || team.GameID != game:
		respondError(w, http.StatusNotFound, "TEAM_NOT_FOUND", "Team not found in this game", nil)
	default:
		respondSuccess(w, http.StatusOK, team)
	}
}
