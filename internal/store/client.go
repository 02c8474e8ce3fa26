// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/quizsync/internal/batch"
	"github.com/tomtom215/quizsync/internal/cache"
	"github.com/tomtom215/quizsync/internal/config"
	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/metrics"
	"github.com/tomtom215/quizsync/internal/models"
	"github.com/tomtom215/quizsync/internal/resilience"
)

const (
	restPath = "/rest/v1/"

	// DefaultFetchTTL is how long a polled table read is cached. It stays
	// below every polling interval so consecutive polls see fresh rows.
	DefaultFetchTTL = 750 * time.Millisecond

	maxErrorBody = 512
)

// ErrNotConfigured is returned by every fetch when the backend URL or API
// key is missing.
var ErrNotConfigured = errors.New("backend not configured")

// HTTPError is a non-2xx response from the backend.
type HTTPError struct {
	Table      string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend %s: status %d: %s", e.Table, e.StatusCode, e.Body)
}

// Transient reports whether the request is worth retrying: server errors
// and rate limiting.
func (e *HTTPError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client reads game rows from the backend REST interface.
//
// Every request waits on the rate limiter, runs through the database
// circuit breaker and is retried with backoff on transient failures.
// Table reads are cached per game so several consumers polling the same
// game share one request.
//
// Client implements realtime.Fetcher.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *resilience.Breaker
	retry    resilience.RetryOptions
	cache    *cache.Manager
	fetchTTL time.Duration
	teams    *batch.Batcher[string, *models.Team]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBreaker sets the circuit breaker guarding requests.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithRetry sets the retry policy.
func WithRetry(opts resilience.RetryOptions) Option {
	return func(c *Client) { c.retry = opts }
}

// WithCache caches table reads in m for ttl.
func WithCache(m *cache.Manager, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = m
		if ttl > 0 {
			c.fetchTTL = ttl
		}
	}
}

// WithBatchDelay sets the debounce window for TeamByID lookups.
func WithBatchDelay(d time.Duration) Option {
	return func(c *Client) {
		c.teams = batch.New(c.teamsByIDs, batch.WithName("teams"), batch.WithDelay(d))
	}
}

// New creates a Client for the backend in cfg.
func New(cfg config.BackendConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		http:     &http.Client{Timeout: timeout},
		retry:    resilience.DefaultRetryOptions(),
		fetchTTL: DefaultFetchTTL,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	c.teams = batch.New(c.teamsByIDs, batch.WithName("teams"))

	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewBreaker(resilience.FamilyDatabase, resilience.BreakerSettings{})
	}
	return c
}

// Configured reports whether the backend URL and API key are set.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// FetchGame returns the game row, or nil if it does not exist.
func (c *Client) FetchGame(ctx context.Context, gameID string) (*models.Game, error) {
	rows, err := cached(ctx, c, gameID, models.TableGames, func(ctx context.Context) ([]models.Game, error) {
		return query[models.Game](ctx, c, models.TableGames, url.Values{"id": {"eq." + gameID}})
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// FetchParticipants returns every participant of the game.
func (c *Client) FetchParticipants(ctx context.Context, gameID string) ([]models.Participant, error) {
	return cached(ctx, c, gameID, models.TableParticipants, func(ctx context.Context) ([]models.Participant, error) {
		return query[models.Participant](ctx, c, models.TableParticipants, byGame(gameID))
	})
}

// FetchTeams returns every team of the game.
func (c *Client) FetchTeams(ctx context.Context, gameID string) ([]models.Team, error) {
	return cached(ctx, c, gameID, models.TableTeams, func(ctx context.Context) ([]models.Team, error) {
		return query[models.Team](ctx, c, models.TableTeams, byGame(gameID))
	})
}

// FetchSession returns the most recently updated session of the game, or
// nil if none exists.
func (c *Client) FetchSession(ctx context.Context, gameID string) (*models.Session, error) {
	rows, err := cached(ctx, c, gameID, models.TableSessions, func(ctx context.Context) ([]models.Session, error) {
		q := byGame(gameID)
		q.Set("order", "updated_at.desc.nullslast")
		q.Set("limit", "1")
		return query[models.Session](ctx, c, models.TableSessions, q)
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// TeamByID looks up one team. Lookups issued within the batch window are
// combined into a single request. A missing team yields nil.
func (c *Client) TeamByID(ctx context.Context, teamID string) (*models.Team, error) {
	return c.teams.Request(ctx, teamID)
}

// Close flushes pending team lookups and rejects further ones.
func (c *Client) Close() {
	c.teams.Close()
}

// teamsByIDs is the batch function behind TeamByID. Results follow the
// order of ids; duplicates share one row.
func (c *Client) teamsByIDs(ctx context.Context, ids []string) ([]*models.Team, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	rows, err := query[models.Team](ctx, c, models.TableTeams, url.Values{
		"id": {"in.(" + strings.Join(unique, ",") + ")"},
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Team, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}
	out := make([]*models.Team, len(ids))
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out, nil
}

func byGame(gameID string) url.Values {
	return url.Values{"game_id": {"eq." + gameID}}
}

// cached reads through the response cache when one is configured.
func cached[T any](ctx context.Context, c *Client, gameID, table string, fetch func(ctx context.Context) ([]T, error)) ([]T, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if c.cache == nil {
		return fetch(ctx)
	}
	return cache.Fetch(ctx, c.cache, cache.Key("game", gameID, table), fetch,
		cache.WithTTL(c.fetchTTL), cache.WithoutStaleWhileRevalidate())
}

// query GETs rows of table matching q, guarded by limiter, breaker and retry.
func query[T any](ctx context.Context, c *Client, table string, q url.Values) ([]T, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	q.Set("select", "*")
	reqURL := c.baseURL + restPath + table + "?" + q.Encode()

	opts := c.retry
	opts.Operation = "store." + table

	return resilience.RetryWithBackoff(ctx, func(ctx context.Context) ([]T, error) {
		return resilience.ExecuteTyped(ctx, c.breaker, func(ctx context.Context) ([]T, error) {
			return get[T](ctx, c, table, reqURL)
		})
	}, opts)
}

func get[T any](ctx context.Context, c *Client, table, reqURL string) ([]T, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordStoreRequest(table, 0, time.Since(start))
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	defer resp.Body.Close()
	metrics.RecordStoreRequest(table, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := &HTTPError{Table: table, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		logging.Ctx(ctx).Debug().Err(err).Str("url", logging.SanitizeURL(reqURL)).Msg("Backend request failed")
		return nil, err
	}

	var rows []T
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", table, err)
	}
	return rows, nil
}
