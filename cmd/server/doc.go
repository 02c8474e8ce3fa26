// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

/*
Package main is the quiz display relay.

The relay watches quiz games through the realtime connection manager and
fans typed updates out to scoreboard displays over WebSocket. It holds no
game state beyond short-lived response caches: live changes come from the
configured transport, and when that fails each game falls back to polling
the hosted backend's REST API.

# Components

	RootSupervisor ("quizsync")
	├── infra-layer
	│   ├── cache-sweeper
	│   ├── nats-embedded (REALTIME_TRANSPORT=nats, NATS_EMBEDDED_SERVER=true)
	│   └── config-watcher (when a config file is found)
	├── realtime-layer
	│   ├── display-hub
	│   └── game-watch:<id> for each WATCH_GAMES entry
	└── api-layer
	    └── http-server

# Configuration

Koanf v2 layers, highest priority first:

	Environment variables > config.yaml (or CONFIG_PATH) > defaults

Common variables:

	SUPABASE_URL=https://xyz.supabase.co   # backend REST and realtime base
	SUPABASE_ANON_KEY=<key>                # API key for both
	REALTIME_TRANSPORT=websocket           # websocket, nats or memory
	WATCH_GAMES=game-1,game-2              # games watched before any display joins
	NATS_URL=nats://127.0.0.1:4222
	NATS_EMBEDDED_SERVER=false
	HTTP_PORT=8088
	CORS_ORIGINS=https://quiz.example.com
	LOG_LEVEL=info
	LOG_FORMAT=json

Without SUPABASE_URL and SUPABASE_ANON_KEY every game starts in fallback
polling with nothing to poll; the relay still serves broadcasts on the
nats and memory transports.

# Hot Reload

When a config file is in use, edits to logging.level and realtime.games
apply without a restart. Other settings need one.

# Signals

SIGINT and SIGTERM cancel the root context. The HTTP server drains for
SHUTDOWN_TIMEOUT, display connections are closed, every game subscription
is released, and the transport is closed last.
*/
package main
