// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// realtimePath is appended to the backend URL to reach the websocket endpoint.
const realtimePath = "/realtime/v1/websocket"

// validateHTTPURL validates that a URL is properly formatted for HTTP/HTTPS services.
// Validates: scheme (http/https), host present, no paths or query params.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return fmt.Errorf("%s should be base URL only, remove path: %s", fieldName, parsedURL.Path)
	}
	if parsedURL.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsedURL.RawQuery)
	}
	return nil
}

// validateWebSocketURL validates a ws:// or wss:// endpoint (path allowed).
func validateWebSocketURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsedURL.Scheme != "ws" && parsedURL.Scheme != "wss" {
		return fmt.Errorf("%s scheme must be ws or wss, got: %s", fieldName, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	return nil
}

// validateNATSURL validates that the NATS URL is properly formatted.
// Supports nats://, tls:// and ws:// schemes.
func validateNATSURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("NATS_URL failed to parse URL: %w", err)
	}
	switch parsedURL.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return fmt.Errorf("NATS_URL scheme must be nats, tls, ws or wss, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("NATS_URL host is required")
	}
	return nil
}

// deriveRealtimeURL maps https://host -> wss://host/realtime/v1/websocket.
// Returns empty string for an empty or unparseable backend URL.
func deriveRealtimeURL(backendURL string) string {
	if backendURL == "" {
		return ""
	}
	u, err := url.Parse(backendURL)
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + realtimePath
	u.RawQuery = ""
	return u.String()
}
