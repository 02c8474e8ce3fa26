// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

// Package batch coalesces many small keyed lookups into one bulk call.
//
// The display relay uses it for team lookups: every scoreboard row that
// needs a team name asks for one id, and the requests issued within the
// debounce window (default 50ms) become a single id=in.(...) query.
//
//	b := batch.New(func(ctx context.Context, ids []string) ([]models.Team, error) {
//	    return client.TeamsByIDs(ctx, ids)
//	}, batch.WithName("teams"))
//	team, err := b.Request(ctx, "team-7")
package batch
