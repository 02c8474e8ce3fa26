// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/quizsync/internal/cache"
	"github.com/tomtom215/quizsync/internal/config"
	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/models"
	"github.com/tomtom215/quizsync/internal/polling"
	"github.com/tomtom215/quizsync/internal/realtime"
	"github.com/tomtom215/quizsync/internal/realtime/memtransport"
	"github.com/tomtom215/quizsync/internal/resilience"
	ws "github.com/tomtom215/quizsync/internal/websocket"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "error",
		Format: "console",
		Output: io.Discard,
	})
}

type emptyFetcher struct{}

func (emptyFetcher) FetchGame(context.Context, string) (*models.Game, error) { return nil, nil }
func (emptyFetcher) FetchParticipants(context.Context, string) ([]models.Participant, error) {
	return nil, nil
}
func (emptyFetcher) FetchTeams(context.Context, string) ([]models.Team, error) { return nil, nil }
func (emptyFetcher) FetchSession(context.Context, string) (*models.Session, error) {
	return nil, nil
}

var allTables = []string{models.TableGames, models.TableParticipants, models.TableTeams, models.TableSessions}

// fakeTeams is a TeamLookup backed by a map.
type fakeTeams struct {
	mu         sync.Mutex
	configured bool
	teams      map[string]models.Team
	err        error
	calls      int
}

func (f *fakeTeams) Configured() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configured
}

func (f *fakeTeams) TeamByID(_ context.Context, id string) (*models.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	team, ok := f.teams[id]
	if !ok {
		return nil, nil
	}
	return &team, nil
}

func (f *fakeTeams) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	broker   *memtransport.Broker
	teams    *fakeTeams
	registry *realtime.Registry
	hub      *ws.Hub
	breakers *resilience.Registry
	handler  *Handler
	server   http.Handler
}

func newTestEnv(t *testing.T, serverCfg config.ServerConfig) *testEnv {
	t.Helper()

	env := &testEnv{
		broker: memtransport.New(),
		teams: &fakeTeams{
			configured: true,
			teams: map[string]models.Team{
				"t1": {ID: "t1", GameID: "game-1", Name: "Red", Score: 30},
				"t9": {ID: "t9", GameID: "game-9", Name: "Blue"},
			},
		},
	}
	env.registry = realtime.NewRegistry(env.broker, emptyFetcher{}, realtime.Config{
		ReconnectDelay:       2 * time.Millisecond,
		MaxReconnectAttempts: 1,
		FallbackInterval:     time.Second,
		Polling:              polling.DefaultConfig(),
	}, allTables)
	t.Cleanup(func() { _ = env.registry.Close() })

	env.hub = ws.NewHub(env.registry)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = env.hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	env.breakers = resilience.NewRegistry(config.BreakerConfig{Threshold: 1, Timeout: time.Minute})
	env.handler = NewHandler(Dependencies{
		Registry:       env.registry,
		Hub:            env.hub,
		Breakers:       env.breakers,
		Cache:          cache.New(config.CacheConfig{DefaultTTL: time.Second, MaxEntries: 10}),
		Teams:          env.teams,
		AllowedOrigins: serverCfg.CORSOrigins,
		Version:        "test",
	})
	env.server = NewRouter(env.handler, NewChiMiddleware(ChiMiddlewareConfigFrom(serverCfg))).SetupChi()
	return env
}

// watch starts a realtime manager for game and waits for the given state.
func (env *testEnv) watch(t *testing.T, game string, want realtime.State) *realtime.Manager {
	t.Helper()
	sub, err := env.registry.Watch(game, nil, func(models.Update) {})
	if err != nil {
		t.Fatalf("Watch(%s): %v", game, err)
	}
	t.Cleanup(sub.Close)
	m, ok := env.registry.Manager(game)
	if !ok {
		t.Fatalf("no manager for %s", game)
	}
	waitUntil(t, string(want), func() bool { return m.Status().State == want })
	return m
}

func (env *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)

	var resp models.APIResponse
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s %s: invalid JSON body %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, resp
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// dataMap re-decodes the envelope's data field.
func dataMap(t *testing.T, resp models.APIResponse) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %T, want object", resp.Data)
	}
	return m
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.ServerConfig{})
	w, resp := env.do(t, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || resp.Status != "success" {
		t.Fatalf("GET /healthz = %d %+v", w.Code, resp)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestHealth_DegradedWhileBreakerOpen(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.ServerConfig{})
	env.watch(t, "game-1", realtime.StateConnected)

	_, resp := env.do(t, http.MethodGet, "/api/v1/health", "")
	data := dataMap(t, resp)
	if data["status"] != "ok" {
		t.Errorf("status = %v, want ok", data["status"])
	}
	games, _ := data["games"].([]any)
	if len(games) != 1 || games[0] != "game-1" {
		t.Errorf("games = %v", data["games"])
	}
	if _, ok := data["cache"].(map[string]any); !ok {
		t.Errorf("cache stats missing: %v", data)
	}

	_ = env.breakers.Database().Execute(context.Background(), func(context.Context) error {
		return errors.New("backend down")
	})

	_, resp = env.do(t, http.MethodGet, "/api/v1/health", "")
	if got := dataMap(t, resp)["status"]; got != "degraded" {
		t.Errorf("status with open breaker = %v, want degraded", got)
	}
}

func TestGames_ListAndStatus(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.ServerConfig{})
	env.watch(t, "game-1", realtime.StateConnected)

	w, resp := env.do(t, http.MethodGet, "/api/v1/games", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	list, ok := resp.Data.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("list data = %v", resp.Data)
	}

	w, resp = env.do(t, http.MethodGet, "/api/v1/games/game-1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	data := dataMap(t, resp)
	conn, _ := data["connection"].(map[string]any)
	if conn["state"] != string(realtime.StateConnected) || conn["is_connected"] != true {
		t.Errorf("connection = %v", conn)
	}
	if data["watchers"] != float64(1) {
		t.Errorf("watchers = %v", data["watchers"])
	}
}

func TestGames_Errors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.ServerConfig{})

	tests := []struct {
		name   string
		method string
		path   string
		status int
		code   string
	}{
		{"unwatched status", http.MethodGet, "/api/v1/games/game-9/status", http.StatusNotFound, "NOT_WATCHED"},
		{"unwatched reconnect", http.MethodPost, "/api/v1/games/game-9/reconnect", http.StatusNotFound, "NOT_WATCHED"},
		{"invalid id", http.MethodGet, "/api/v1/games/bad.id/status", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown route", http.MethodGet, "/api/v1/nope", http.StatusNotFound, "NOT_FOUND"},
		{"wrong method", http.MethodDelete, "/api/v1/games/game-1/status", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := env.do(t, tt.method, tt.path, "")
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.code)
			}
		})
	}
}

func TestBroadcast_Sent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.ServerConfig{})
	env.watch(t, "game-1", realtime.StateConnected)

	w, _ := env.do(t, http.MethodPost, "/api/v1/games/game-1/broadcast",
		`{"event":"participant_update","payload":{"id":"p1","score":40}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("broadcast = %d %s", w.Code, w.Body.String())
	}

	sent := env.broker.Sent()
	if len(sent) != 1 {
		t.Fatalf("Sent = %d, want 1", len(sent))
	}
	if sent[0].Scope != "game-1" || sent[0].Event != models.EventParticipantUpdate {
		t.Errorf("sent = %+v", sent[0])
	}
	var payload map[string]any
	if err := json.Unmarshal(sent[0].Payload, &payload); err != nil || payload["id"] != "p1" {
		t.Errorf("payload = %s (%v)", sent[0].Payload, err)
	}
}

func TestBroadcast_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		setup  func(env *testEnv)
		state  realtime.State
		status int
		code   string
	}{
		{
			name:   "unknown event",
			body:   `{"event":"question_update","payload":{"id":"q1"}}`,
			state:  realtime.StateConnected,
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "missing payload",
			body:   `{"event":"game_update"}`,
			state:  realtime.StateConnected,
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "malformed json",
			body:   `{"event":`,
			state:  realtime.StateConnected,
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "not connected",
			body:   `{"event":"game_update","payload":{"id":"game-1"}}`,
			setup:  func(env *testEnv) { env.broker.SetJoinStatus(realtime.StatusChannelError) },
			state:  realtime.StateFallbackPolling,
			status: http.StatusConflict,
			code:   "NOT_CONNECTED",
		},
		{
			name: "breaker open",
			body: `{"event":"game_update","payload":{"id":"game-1"}}`,
			setup: func(env *testEnv) {
				_ = env.breakers.Realtime().Execute(context.Background(), func(context.Context) error {
					return errors.New("realtime down")
				})
			},
			state:  realtime.StateConnected,
			status: http.StatusServiceUnavailable,
			code:   "SERVICE_UNAVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, config.ServerConfig{})
			if tt.setup != nil {
				tt.setup(env)
			}
			env.watch(t, "game-1", tt.state)

			w, resp := env.do(t, http.MethodPost, "/api/v1/games/game-1/broadcast", tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.code)
			}
			if len(env.broker.Sent()) != 0 {
				t.Errorf("rejected broadcast reached the transport: %+v", env.broker.Sent())
			}
		})
	}
}

func TestReconnect_Accepted(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.ServerConfig{})
	env.watch(t, "game-1", realtime.StateConnected)
	before := env.broker.Opens()

	w, _ := env.do(t, http.MethodPost, "/api/v1/games/game-1/reconnect", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("reconnect = %d", w.Code)
	}
	waitUntil(t, "reopen", func() bool { return env.broker.Opens() > before })
}

func TestTeam_Lookup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"found", "/api/v1/games/game-1/teams/t1", http.StatusOK, ""},
		{"other game", "/api/v1/games/game-1/teams/t9", http.StatusNotFound, "TEAM_NOT_FOUND"},
		{"missing", "/api/v1/games/game-1/teams/t404", http.StatusNotFound, "TEAM_NOT_FOUND"},
		{"invalid team id", "/api/v1/games/game-1/teams/bad.id", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid game id", "/api/v1/games/bad.id/teams/t1", http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, config.ServerConfig{})
			w, resp := env.do(t, http.MethodGet, tt.path, "")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			if tt.code == "" {
				if data := dataMap(t, resp); data["id"] != "t1" || data["name"] != "Red" {
					t.Errorf("team = %v", data)
				}
				return
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.code)
			}
		})
	}
}

func TestTeam_NotConfigured(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.ServerConfig{})
	env.teams.mu.Lock()
	env.teams.configured = false
	env.teams.mu.Unlock()

	w, resp := env.do(t, http.MethodGet, "/api/v1/games/game-1/teams/t1", "")
	if w.Code != http.StatusServiceUnavailable || resp.Error == nil || resp.Error.Code != "BACKEND_NOT_CONFIGURED" {
		t.Errorf("response = %d %+v", w.Code, resp.Error)
	}
	if env.teams.callCount() != 0 {
		t.Error("lookup should not run without credentials")
	}
}

func TestTeam_FailuresOpenAPIBreaker(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.ServerConfig{})
	env.teams.mu.Lock()
	env.teams.err = errors.New("backend down")
	env.teams.mu.Unlock()

	w, _ := env.do(t, http.MethodGet, "/api/v1/games/game-1/teams/t1", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("first failure = %d, want 502", w.Code)
	}
	if env.breakers.API().State() != resilience.StateOpen {
		t.Fatalf("api breaker = %s, want OPEN", env.breakers.API().State())
	}

	w, resp := env.do(t, http.MethodGet, "/api/v1/games/game-1/teams/t1", "")
	if w.Code != http.StatusServiceUnavailable || resp.Error == nil || resp.Error.Code != "SERVICE_UNAVAILABLE" {
		t.Errorf("with open breaker = %d %+v", w.Code, resp.Error)
	}
	if env.teams.callCount() != 1 {
		t.Errorf("lookups = %d, want the open breaker to skip the second", env.teams.callCount())
	}
	if env.breakers.Database().State() != resilience.StateClosed {
		t.Error("api failures must not touch the database breaker")
	}
}
