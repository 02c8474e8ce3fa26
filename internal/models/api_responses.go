// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package models

import (
	"time"
)

// APIResponse is the envelope for every display relay HTTP response.
//
// Example successful response:
//
//	{
//	  "status": "success",
//	  "data": {"game_id": "42", "state": "CONNECTED", "is_connected": true},
//	  "metadata": {"timestamp": "2026-03-02T09:15:00Z"}
//	}
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {"code": "NOT_CONNECTED", "message": "no realtime channel for game 42"},
//	  "metadata": {"timestamp": "2026-03-02T09:15:00Z"}
//	}
type APIResponse struct {
	Status   string    `json:"status"`
	Data     any       `json:"data,omitempty"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata contains response metadata.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// APIError carries a machine-readable code and a human-readable message.
//
// Codes used by the relay:
//   - VALIDATION_ERROR: malformed path or body
//   - NOT_WATCHED: the game has no active realtime manager
//   - NOT_CONNECTED: broadcast attempted without an established channel
//   - TEAM_NOT_FOUND: no such team in the game
//   - BACKEND_NOT_CONFIGURED: backend credentials missing
//   - SERVICE_UNAVAILABLE: circuit breaker open or display hub stopped
//   - TOO_MANY_REQUESTS: per-IP rate limit exceeded
//   - NOT_FOUND / METHOD_NOT_ALLOWED: unknown route or method
//   - INTERNAL_ERROR: anything else
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// BroadcastRequest is the body of POST /api/v1/games/{id}/broadcast.
type BroadcastRequest struct {
	Event   string         `json:"event" validate:"required,oneof=game_update participant_update team_update session_update"`
	Payload map[string]any `json:"payload" validate:"required"`
}
