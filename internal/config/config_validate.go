// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package config

import (
	"fmt"
	"strings"
)

// Validate checks that configuration values are usable.
// Missing backend credentials are not an error: the relay then runs in
// polling-only mode against whatever fetcher is available.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateBackend,
		c.validateRealtime,
		c.validateNATS,
		c.validateCache,
		c.validateRetry,
		c.validateBreaker,
		c.validateBatch,
		c.validatePolling,
		c.validateServer,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.URL != "" {
		if err := validateHTTPURL(c.Backend.URL, "SUPABASE_URL"); err != nil {
			return fmt.Errorf("SUPABASE_URL is invalid: %w", err)
		}
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive, got %v", c.Backend.Timeout)
	}
	if c.Backend.RateLimit < 0 {
		return fmt.Errorf("BACKEND_RATE_LIMIT must be >= 0, got %v", c.Backend.RateLimit)
	}
	if c.Backend.RateLimit > 0 && c.Backend.RateBurst < 1 {
		return fmt.Errorf("BACKEND_RATE_BURST must be >= 1 when rate limiting is enabled, got %d", c.Backend.RateBurst)
	}
	return nil
}

func (c *Config) validateRealtime() error {
	switch c.Realtime.Transport {
	case TransportWebSocket, TransportNATS, TransportMemory:
	default:
		return fmt.Errorf("REALTIME_TRANSPORT must be one of websocket, nats, memory; got %q", c.Realtime.Transport)
	}
	if c.Realtime.URL != "" {
		if err := validateWebSocketURL(c.Realtime.URL, "REALTIME_URL"); err != nil {
			return err
		}
	}
	if c.Realtime.ReconnectDelay <= 0 {
		return fmt.Errorf("REALTIME_RECONNECT_DELAY must be positive, got %v", c.Realtime.ReconnectDelay)
	}
	if c.Realtime.MaxReconnectAttempts < 0 {
		return fmt.Errorf("REALTIME_MAX_RECONNECT_ATTEMPTS must be >= 0, got %d", c.Realtime.MaxReconnectAttempts)
	}
	if c.Realtime.FallbackInterval <= 0 {
		return fmt.Errorf("REALTIME_FALLBACK_INTERVAL must be positive, got %v", c.Realtime.FallbackInterval)
	}
	if c.Realtime.HeartbeatInterval <= 0 {
		return fmt.Errorf("REALTIME_HEARTBEAT_INTERVAL must be positive, got %v", c.Realtime.HeartbeatInterval)
	}
	if len(c.Realtime.Tables) == 0 {
		return fmt.Errorf("REALTIME_TABLES must list at least one table")
	}
	for _, g := range c.Realtime.Games {
		if strings.TrimSpace(g) == "" {
			return fmt.Errorf("WATCH_GAMES contains an empty game id")
		}
	}
	return nil
}

func (c *Config) validateNATS() error {
	if c.Realtime.Transport != TransportNATS {
		return nil
	}
	if err := validateNATSURL(c.NATS.URL); err != nil {
		return err
	}
	if c.NATS.EmbeddedServer && (c.NATS.Port < 1 || c.NATS.Port > 65535) {
		return fmt.Errorf("NATS_PORT must be between 1 and 65535, got %d", c.NATS.Port)
	}
	if c.NATS.SubjectPrefix == "" || strings.ContainsAny(c.NATS.SubjectPrefix, " *>") {
		return fmt.Errorf("NATS_SUBJECT_PREFIX must be a non-empty subject token, got %q", c.NATS.SubjectPrefix)
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.DefaultTTL < 0 {
		return fmt.Errorf("CACHE_DEFAULT_TTL must be >= 0, got %v", c.Cache.DefaultTTL)
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be >= 1, got %d", c.Cache.MaxEntries)
	}
	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("CACHE_SWEEP_INTERVAL must be positive, got %v", c.Cache.SweepInterval)
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("RETRY_MAX_RETRIES must be >= 0, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.InitialDelay <= 0 || c.Retry.MaxDelay <= 0 {
		return fmt.Errorf("RETRY_INITIAL_DELAY and RETRY_MAX_DELAY must be positive")
	}
	if c.Retry.InitialDelay > c.Retry.MaxDelay {
		return fmt.Errorf("RETRY_INITIAL_DELAY (%v) must not exceed RETRY_MAX_DELAY (%v)", c.Retry.InitialDelay, c.Retry.MaxDelay)
	}
	if c.Retry.BackoffFactor < 1 {
		return fmt.Errorf("RETRY_BACKOFF_FACTOR must be >= 1, got %v", c.Retry.BackoffFactor)
	}
	return nil
}

func (c *Config) validateBreaker() error {
	if c.Breaker.Threshold < 1 {
		return fmt.Errorf("BREAKER_THRESHOLD must be >= 1, got %d", c.Breaker.Threshold)
	}
	if c.Breaker.Timeout <= 0 {
		return fmt.Errorf("BREAKER_TIMEOUT must be positive, got %v", c.Breaker.Timeout)
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.Delay <= 0 {
		return fmt.Errorf("BATCH_DELAY must be positive, got %v", c.Batch.Delay)
	}
	return nil
}

func (c *Config) validatePolling() error {
	p := c.Polling
	if p.BaseInterval <= 0 || p.MaxInterval <= 0 {
		return fmt.Errorf("POLLING_BASE_INTERVAL and POLLING_MAX_INTERVAL must be positive")
	}
	if p.BaseInterval > p.MaxInterval {
		return fmt.Errorf("POLLING_BASE_INTERVAL (%v) must not exceed POLLING_MAX_INTERVAL (%v)", p.BaseInterval, p.MaxInterval)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("POLLING_MULTIPLIER must be >= 1, got %v", p.Multiplier)
	}
	if p.ResetThreshold < 1 {
		return fmt.Errorf("POLLING_RESET_THRESHOLD must be >= 1, got %d", p.ResetThreshold)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %v", c.Server.Timeout)
	}
	if c.Server.RateLimitReqs < 0 {
		return fmt.Errorf("RATE_LIMIT_REQS must be >= 0, got %d", c.Server.RateLimitReqs)
	}
	if c.Server.RateLimitReqs > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive when rate limiting is enabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic, disabled; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
