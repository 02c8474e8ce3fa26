// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/quizsync/config.yaml",
	"/etc/quizsync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultTables are the table families watched for every game.
var DefaultTables = []string{"games", "participants", "teams", "game_sessions"}

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:       "",
			APIKey:    "",
			Timeout:   10 * time.Second,
			RateLimit: 20,
			RateBurst: 10,
		},
		Realtime: RealtimeConfig{
			Transport:            TransportWebSocket,
			ReconnectDelay:       1 * time.Second,
			MaxReconnectAttempts: 5,
			FallbackInterval:     5 * time.Second,
			HeartbeatInterval:    25 * time.Second,
			AdaptivePolling:      true,
			Tables:               append([]string(nil), DefaultTables...),
			Games:                []string{},
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			Host:           "127.0.0.1",
			Port:           4222,
			SubjectPrefix:  "quiz",
		},
		Cache: CacheConfig{
			DefaultTTL:           30 * time.Second,
			MaxEntries:           100,
			SweepInterval:        5 * time.Minute,
			StaleWhileRevalidate: true,
		},
		Retry: RetryConfig{
			MaxRetries:    3,
			InitialDelay:  1 * time.Second,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 2,
		},
		Breaker: BreakerConfig{
			Threshold: 5,
			Timeout:   60 * time.Second,
		},
		Batch: BatchConfig{
			Delay: 50 * time.Millisecond,
		},
		Polling: PollingConfig{
			BaseInterval:   2 * time.Second,
			MaxInterval:    15 * time.Second,
			Multiplier:     1.5,
			ResetThreshold: 2,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8088,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in defaults
//  2. Config File: optional YAML config file (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment Variables: override any mapped setting
//
// The result is not validated; call Validate (or use Load).
func LoadWithKoanf() (*Config, error) {
	return loadFrom(findConfigFile())
}

// LoadFile loads configuration from an explicit YAML path layered over the
// defaults and under the environment. Used by the config watcher on reload.
func LoadFile(path string) (*Config, error) {
	return loadFrom(path)
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// SUPABASE_URL -> backend.url, REALTIME_TRANSPORT -> realtime.transport
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first config file found, or empty string if none.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigFilePath exposes the resolved config file path (empty if none).
func ConfigFilePath() string {
	return findConfigFile()
}

// sliceConfigPaths defines which config paths are parsed as comma-separated slices.
var sliceConfigPaths = []string{
	"realtime.tables",
	"realtime.games",
	"server.cors_origins",
}

// processSliceFields converts comma-separated env values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	// Backend
	"supabase_url":       "backend.url",
	"supabase_anon_key":  "backend.api_key",
	"backend_url":        "backend.url",
	"backend_api_key":    "backend.api_key",
	"backend_timeout":    "backend.timeout",
	"backend_rate_limit": "backend.rate_limit",
	"backend_rate_burst": "backend.rate_burst",

	// Realtime
	"realtime_transport":              "realtime.transport",
	"realtime_url":                    "realtime.url",
	"realtime_reconnect_delay":        "realtime.reconnect_delay",
	"realtime_max_reconnect_attempts": "realtime.max_reconnect_attempts",
	"realtime_fallback_interval":      "realtime.fallback_interval",
	"realtime_heartbeat_interval":     "realtime.heartbeat_interval",
	"realtime_adaptive_polling":       "realtime.adaptive_polling",
	"realtime_tables":                 "realtime.tables",
	"watch_games":                     "realtime.games",

	// NATS
	"nats_url":             "nats.url",
	"nats_embedded_server": "nats.embedded_server",
	"nats_host":            "nats.host",
	"nats_port":            "nats.port",
	"nats_subject_prefix":  "nats.subject_prefix",

	// Cache
	"cache_default_ttl":            "cache.default_ttl",
	"cache_max_entries":            "cache.max_entries",
	"cache_sweep_interval":         "cache.sweep_interval",
	"cache_stale_while_revalidate": "cache.stale_while_revalidate",

	// Retry
	"retry_max_retries":    "retry.max_retries",
	"retry_initial_delay":  "retry.initial_delay",
	"retry_max_delay":      "retry.max_delay",
	"retry_backoff_factor": "retry.backoff_factor",

	// Circuit breaker
	"breaker_threshold": "breaker.threshold",
	"breaker_timeout":   "breaker.timeout",

	// Batcher
	"batch_delay": "batch.delay",

	// Polling
	"polling_base_interval":   "polling.base_interval",
	"polling_max_interval":    "polling.max_interval",
	"polling_multiplier":      "polling.multiplier",
	"polling_reset_threshold": "polling.reset_threshold",

	// Server
	"http_host":         "server.host",
	"http_port":         "server.port",
	"http_timeout":      "server.timeout",
	"shutdown_timeout":  "server.shutdown_timeout",
	"cors_origins":      "server.cors_origins",
	"rate_limit_reqs":   "server.rate_limit_reqs",
	"rate_limit_window": "server.rate_limit_window",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - SUPABASE_URL -> backend.url
//   - SUPABASE_ANON_KEY -> backend.api_key
//   - REALTIME_TRANSPORT -> realtime.transport
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchConfigFile sets up a file watcher for hot-reload capability.
// The callback runs on the watcher goroutine; the caller is responsible for
// synchronizing access to any configuration it swaps.
//
//	err := config.WatchConfigFile(path, func() {
//	    newCfg, err := config.LoadFile(path)
//	    if err != nil {
//	        logging.Warn().Err(err).Msg("Config reload failed")
//	        return
//	    }
//	    logging.SetLevelString(newCfg.Logging.Level)
//	})
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(_ interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
