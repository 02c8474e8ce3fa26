// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

// Package logging provides centralized zerolog-based structured logging for Quizsync.
//
// Every component in the sync layer (cache, breakers, realtime managers, the
// display relay) logs through this package so that a single configuration
// controls level, format and caller information.
//
// # Overview
//
// The package provides:
//   - Zero-allocation structured logging via zerolog
//   - JSON output for production, console output for development
//   - Context-aware logging with correlation and game scope propagation
//   - slog adapter for Suture v4 integration
//   - Redaction helpers for backend credentials and participant names
//
// # Quick Start
//
//	import "github.com/tomtom215/quizsync/internal/logging"
//
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	logging.Info().Str("game_id", gameID).Msg("Subscribed to game")
//	logging.Warn().Err(err).Int("attempt", 2).Msg("Realtime channel error")
//
//	ctx = logging.ContextWithScope(ctx, "game:"+gameID)
//	logging.Ctx(ctx).Info().Msg("Entering fallback polling")
//
// # Configuration
//
// Environment Variables (mapped by internal/config):
//
//	LOG_LEVEL   - Minimum log level: trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  - Output format: json, console (default: json)
//	LOG_CALLER  - Include caller file:line: true, false (default: false)
//
// # Component Loggers
//
//	logger := logging.WithComponent("realtime")
//	logger.Info().Str("state", "connected").Msg("Channel subscribed")
//
// # Redaction
//
// The backend API key and participant display names never reach the log
// stream verbatim:
//
//	logging.Info().
//	    Str("backend", logging.SanitizeURL(cfg.Backend.URL)).
//	    Str("api_key", logging.SanitizeSecret(cfg.Backend.APIKey)).
//	    Msg("Backend configured")
//
// # Thread Safety
//
// All exported functions are safe for concurrent use. The global logger
// is protected by sync.RWMutex for configuration changes.
package logging
