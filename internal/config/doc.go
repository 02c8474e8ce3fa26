// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

/*
Package config provides centralized configuration management for Quizsync.

Configuration is loaded with Koanf v2 in three layers, later layers winning:

 1. Built-in defaults (defaultConfig)
 2. Optional YAML file: CONFIG_PATH, else config.yaml / config.yml / /etc/quizsync/
 3. Environment variables mapped explicitly by envTransformFunc

Unmapped environment variables are ignored so unrelated process environment
never leaks into configuration.

# Configuration Structure

  - BackendConfig: hosted data store URL, API key, REST pacing
  - RealtimeConfig: transport choice, reconnect backoff, fallback polling
  - NATSConfig: NATS transport and optional embedded server
  - CacheConfig: TTL, capacity and sweep interval of the response cache
  - RetryConfig / BreakerConfig: resilience for every backend call
  - BatchConfig: debounce window of the request batcher
  - PollingConfig: default adaptive polling parameters
  - ServerConfig: display relay HTTP listener, CORS and rate limiting
  - LoggingConfig / SupervisorConfig: ambient settings

# Environment Variables

Backend:
  - SUPABASE_URL (or BACKEND_URL): base URL of the hosted backend
  - SUPABASE_ANON_KEY (or BACKEND_API_KEY): public API key
  - BACKEND_TIMEOUT: per-request timeout (default: 10s)
  - BACKEND_RATE_LIMIT / BACKEND_RATE_BURST: REST pacing (default: 20/s, burst 10)

Realtime:
  - REALTIME_TRANSPORT: websocket, nats or memory (default: websocket)
  - REALTIME_URL: websocket endpoint override
  - REALTIME_RECONNECT_DELAY: base reconnect delay (default: 1s)
  - REALTIME_MAX_RECONNECT_ATTEMPTS: attempts before fallback polling (default: 5)
  - REALTIME_FALLBACK_INTERVAL: fallback poll interval (default: 5s)
  - REALTIME_TABLES: comma-separated watched tables
  - WATCH_GAMES: comma-separated game ids watched from startup

Server:
  - HTTP_HOST / HTTP_PORT: listener (default: 0.0.0.0:8088)
  - CORS_ORIGINS: comma-separated allowed origins (default: *)
  - RATE_LIMIT_REQS / RATE_LIMIT_WINDOW: per-IP API rate limit

Logging:
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER

# Credentials

Absent backend credentials are valid configuration. BackendConfig.Configured
reports false and the realtime layer runs in fallback polling mode without
attempting a channel connection.

# Hot Reload

WatchConfigFile watches the YAML file; the display relay uses it to apply
LOG_LEVEL changes without a restart.
*/
package config
