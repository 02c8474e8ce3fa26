// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

// Package polling provides the adaptive interval controller used by fallback
// polling. Quiet games are polled less often; any observed change snaps the
// interval back to its base. Phase presets (waiting, active, completed) tune
// the curve to how busy a game is expected to be.
package polling
