// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

/*
Package realtime keeps a client's view of a game in sync with the backend.

# Overview

A Manager owns one subscription for one game (the scope). It receives row
changes for games, participants, teams and game_sessions plus application
broadcasts, and hands each one to the caller as a typed models.Update. When
the live channel cannot be kept up, the Manager falls back to polling the
backend through a Fetcher and diffing the results, and it keeps trying to
get back to live delivery.

# Connection State Machine

	DISCONNECTED --Start--> CONNECTING --SUBSCRIBED--> CONNECTED
	     ^                      |                          |
	     |                      +--failure--+--------------+
	     |                                  v
	     +-----------------------------RECONNECTING (delay << (failures-1))
	                                        |
	                          failures >= max, or transport not configured
	                                        v
	                                      FALLBACK_POLLING

Machine holds these transitions as pure logic and returns a Decision for
the caller to carry out. Reconnect resets the attempt counter and starts
over from CONNECTING; fallback polling keeps running until the next
SUBSCRIBED.

# Transports

Transport and Channel abstract the change-notification service:
  - wstransport: Phoenix-protocol WebSocket realtime endpoint
  - natstransport: NATS subjects, with an optional embedded server
  - memtransport: in-process broker for tests and single-binary demos

With WithBreaker, Transport.Open runs through the realtime circuit breaker.
A rejected open counts as one more channel failure.

# Delivery Rules

  - Row changes are filtered to the Manager's topic tables
  - Broadcasts with unknown event names are ignored
  - A Reconciler drops updates older than the last applied updated_at for
    the same row; equal timestamps and rows without one pass
  - Handler panics are recovered and logged

# Usage Example

	reg := realtime.NewRegistry(transport, client, realtime.ConfigFrom(cfg),
	    cfg.Realtime.Tables, realtime.WithCache(responses), realtime.WithBreaker(breakers.Realtime()))
	defer reg.Close()

	sub, err := reg.Watch(gameID, []string{models.TableParticipants}, func(u models.Update) {
	    if p, ok := u.(models.ParticipantUpdate); ok {
	        scoreboard.Apply(p)
	    }
	})
	if err != nil {
	    return err
	}
	defer sub.Close()

# Thread Safety

Each Manager runs a single goroutine that owns its state; public methods
communicate with it over channels. Handlers are called from that goroutine
and must not block for long.
*/
package realtime
