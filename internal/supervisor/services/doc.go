// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

/*
Package services provides suture.Service wrappers for relay components.

Each wrapper translates a component's lifecycle into suture's
context-aware Serve pattern and names itself via fmt.Stringer so
supervisor events identify it.

# Available Services

  - HTTPServerService: ListenAndServe with graceful Shutdown on cancel.
  - RunnerService: any RunWithContext-style loop (display hub, cache sweeper).
  - GameWatchService: holds a realtime subscription for one game.
  - EmbeddedNATSService: owns an in-process NATS server started by main.
  - ConfigWatchService: reloads the config file and applies live settings.

# Restart Semantics

Returning an error asks suture to restart the service after backoff. The
embedded broker and the config watcher cannot be re-registered in place,
so they return suture.ErrDoNotRestart instead.
*/
package services
