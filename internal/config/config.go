// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package config

import (
	"strings"
	"time"
)

// Transport names accepted by RealtimeConfig.Transport.
const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
	TransportMemory    = "memory"
)

// Config holds all configuration for the display relay and the sync layer it embeds.
type Config struct {
	Backend    BackendConfig    `koanf:"backend"`
	Realtime   RealtimeConfig   `koanf:"realtime"`
	NATS       NATSConfig       `koanf:"nats"`
	Cache      CacheConfig      `koanf:"cache"`
	Retry      RetryConfig      `koanf:"retry"`
	Breaker    BreakerConfig    `koanf:"breaker"`
	Batch      BatchConfig      `koanf:"batch"`
	Polling    PollingConfig    `koanf:"polling"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// BackendConfig points at the hosted data store that serves rows over REST
// and change notifications over its realtime endpoint.
type BackendConfig struct {
	// URL is the base URL of the hosted backend, e.g. https://xyz.supabase.co
	URL string `koanf:"url"`

	// APIKey is the anonymous/public API key sent as apikey header and query param.
	APIKey string `koanf:"api_key"`

	// Timeout bounds each REST request.
	Timeout time.Duration `koanf:"timeout"`

	// RateLimit is the steady-state REST request budget per second. 0 disables pacing.
	RateLimit float64 `koanf:"rate_limit"`

	// RateBurst is the token bucket burst size.
	RateBurst int `koanf:"rate_burst"`
}

// Configured reports whether credentials are present. Without them the
// realtime layer goes straight to fallback polling.
func (b BackendConfig) Configured() bool {
	return strings.TrimSpace(b.URL) != "" && strings.TrimSpace(b.APIKey) != ""
}

// RealtimeConfig controls the realtime connection manager.
type RealtimeConfig struct {
	// Transport selects the change-notification channel: websocket, nats or memory.
	Transport string `koanf:"transport"`

	// URL overrides the websocket endpoint. Empty derives it from Backend.URL.
	URL string `koanf:"url"`

	ReconnectDelay       time.Duration `koanf:"reconnect_delay"`
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts"`
	FallbackInterval     time.Duration `koanf:"fallback_interval"`
	HeartbeatInterval    time.Duration `koanf:"heartbeat_interval"`

	// AdaptivePolling lets the polling optimizer stretch the fallback interval
	// while nothing changes.
	AdaptivePolling bool `koanf:"adaptive_polling"`

	// Tables are the watched table families for every game.
	Tables []string `koanf:"tables"`

	// Games are game IDs watched from startup, before any display connects.
	Games []string `koanf:"games"`
}

// NATSConfig configures the NATS transport.
type NATSConfig struct {
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	SubjectPrefix  string `koanf:"subject_prefix"`
}

// CacheConfig controls the shared response cache.
type CacheConfig struct {
	DefaultTTL           time.Duration `koanf:"default_ttl"`
	MaxEntries           int           `koanf:"max_entries"`
	SweepInterval        time.Duration `koanf:"sweep_interval"`
	StaleWhileRevalidate bool          `koanf:"stale_while_revalidate"`
}

// RetryConfig controls retry-with-backoff for backend calls.
type RetryConfig struct {
	MaxRetries    int           `koanf:"max_retries"`
	InitialDelay  time.Duration `koanf:"initial_delay"`
	MaxDelay      time.Duration `koanf:"max_delay"`
	BackoffFactor float64       `koanf:"backoff_factor"`
}

// BreakerConfig controls every circuit breaker in the registry.
type BreakerConfig struct {
	Threshold int           `koanf:"threshold"`
	Timeout   time.Duration `koanf:"timeout"`
}

// BatchConfig controls the request batcher debounce window.
type BatchConfig struct {
	Delay time.Duration `koanf:"delay"`
}

// PollingConfig is the default polling optimizer configuration used when
// a game's phase is unknown.
type PollingConfig struct {
	BaseInterval   time.Duration `koanf:"base_interval"`
	MaxInterval    time.Duration `koanf:"max_interval"`
	Multiplier     float64       `koanf:"multiplier"`
	ResetThreshold int           `koanf:"reset_threshold"`
}

// ServerConfig holds display relay HTTP settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig holds suture tree tuning.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// RealtimeURL returns the websocket endpoint for the websocket transport.
// An explicit Realtime.URL wins; otherwise it is derived from Backend.URL
// by switching the scheme and appending /realtime/v1/websocket.
func (c *Config) RealtimeURL() string {
	if c.Realtime.URL != "" {
		return c.Realtime.URL
	}
	return deriveRealtimeURL(c.Backend.URL)
}

// Load loads configuration with Koanf and validates it.
func Load() (*Config, error) {
	cfg, err := LoadWithKoanf()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
