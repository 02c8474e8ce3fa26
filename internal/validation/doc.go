// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

// Package validation validates display relay requests with
// go-playground/validator v10.
//
// A single validator instance is built once (it caches struct metadata) with
// the custom "gameid" tag. Failures convert to a models.APIError with code
// VALIDATION_ERROR:
//
//	var req models.BroadcastRequest
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    respondError(w, http.StatusBadRequest, verr.ToAPIError())
//	    return
//	}
package validation
