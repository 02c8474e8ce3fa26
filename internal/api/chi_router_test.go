// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/quizsync/internal/config"
	ws "github.com/tomtom215/quizsync/internal/websocket"
)

func TestRateLimit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.ServerConfig{RateLimitReqs: 2, RateLimitWindow: time.Minute})

	for i := 0; i < 2; i++ {
		if w, _ := env.do(t, http.MethodGet, "/api/v1/games", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
	w, resp := env.do(t, http.MethodGet, "/api/v1/games", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != "TOO_MANY_REQUESTS" {
		t.Errorf("error = %+v", resp.Error)
	}

	// Liveness is never limited.
	if w, _ := env.do(t, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("healthz = %d", w.Code)
	}
}

func TestRateLimit_DisabledByDefault(t *testing.T) {
	t.Parallel()

	cfg := ChiMiddlewareConfigFrom(config.ServerConfig{})
	if !cfg.RateLimitDisabled {
		t.Error("zero budget should disable rate limiting")
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.ServerConfig{CORSOrigins: []string{"https://quiz.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/games", nil)
	req.Header.Set("Origin", "https://quiz.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://quiz.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.ServerConfig{})
	env.do(t, http.MethodGet, "/api/v1/games", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "api_requests_total") {
		t.Error("api request metrics not exported")
	}
}

func TestCheckWebSocketOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"https://a.example"}, "", true},
		{"listed origin", []string{"https://a.example"}, "https://a.example", true},
		{"unlisted origin", []string{"https://a.example"}, "https://evil.example", false},
		{"wildcard", []string{"*"}, "https://any.example", true},
		{"nothing configured", nil, "https://a.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewHandler(Dependencies{AllowedOrigins: tt.allowed})
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := h.checkWebSocketOrigin(req); got != tt.want {
				t.Errorf("checkWebSocketOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWebSocket_InvalidGame(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.ServerConfig{})
	w, resp := env.do(t, http.MethodGet, "/ws?game=bad%20id", "")
	if w.Code != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("GET /ws bad game = %d %+v", w.Code, resp.Error)
	}
}

func TestWebSocket_DisplayReceivesUpdates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.ServerConfig{})
	srv := httptest.NewServer(env.server)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?game=game-1"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	waitUntil(t, "display registered", func() bool { return env.hub.ClientCount("game-1") == 1 })
	waitUntil(t, "game watched", func() bool {
		_, ok := env.registry.Manager("game-1")
		return ok
	})

	env.hub.BroadcastJSON("game-1", ws.MessageTypeStatus, map[string]string{"state": "CONNECTED"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ws.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != ws.MessageTypeStatus || msg.Game != "game-1" {
		t.Errorf("message = %+v", msg)
	}

	_ = conn.Close()
	waitUntil(t, "display released", func() bool { return env.hub.ClientCount("game-1") == 0 })
}
