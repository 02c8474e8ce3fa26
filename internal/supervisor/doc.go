// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

/*
Package supervisor provides process supervision for the quiz relay using
suture v4.

# Overview

Long-running components live in a three-layer tree so a failure in one
layer is restarted without disturbing the others:

	RootSupervisor ("quizsync")
	├── InfraSupervisor ("infra-layer")
	│   ├── EmbeddedNATSService (nats transport with nats.embedded_server)
	│   ├── RunnerService "cache-sweeper"
	│   └── ConfigWatchService (when a config file is in use)
	├── RealtimeSupervisor ("realtime-layer")
	│   ├── RunnerService "display-hub"
	│   └── GameWatchService per game in realtime.games
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

GameSupervisor owns the GameWatchService set. Sync reconciles it with a
new list of games, which is how a config reload adds or drops watches
without a restart.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
	    return err
	}
	tree.AddRealtimeService(services.NewRunnerService("display-hub", hub.RunWithContext))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	games, _ := supervisor.NewGameSupervisor(tree, registry, nil)
	_ = games.Sync(cfg.Realtime.Games)

	return tree.Serve(ctx)

Supervisor events (service failures, backoff, restarts) are logged through
sutureslog into the zerolog-backed slog handler.

# Thread Safety

SupervisorTree and GameSupervisor are safe for concurrent use.
*/
package supervisor
