// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

/*
Package models defines the row types and update variants shared by the sync layer.

The hosted backend owns the schema; these structs mirror the columns the
realtime layer reads. Unknown columns are ignored on decode.

Key Components:

  - Game, Participant, Team, Session: one struct per watched table
  - GamePhase: coarse lifecycle (waiting, active, completed) used to pick polling presets
  - Update: sealed interface with one variant per entity
    (GameUpdate, ParticipantUpdate, TeamUpdate, SessionUpdate)
  - DecodeRow / DecodeBroadcast: build typed updates from raw channel payloads
  - APIResponse / APIError: display relay HTTP envelope

Consumers switch exhaustively over the variants:

	switch u := update.(type) {
	case models.GameUpdate:
	    render(u.Game)
	case models.TeamUpdate:
	    scoreboard.Apply(u.Team)
	case models.ParticipantUpdate, models.SessionUpdate:
	    // ...
	}

Every variant carries its Source (live row change, application broadcast or
fallback poll) and Change (insert, update, delete, snapshot). The delivery
contract is identical across sources; only latency differs.
*/
package models
