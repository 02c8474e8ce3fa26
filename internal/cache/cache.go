// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/quizsync/internal/config"
	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/metrics"
)

const (
	// DefaultTTL applies when neither the config nor the call sets one.
	DefaultTTL = 30 * time.Second

	// DefaultMaxEntries bounds the number of cached keys.
	DefaultMaxEntries = 100

	// DefaultSweepInterval is how often Run removes expired entries.
	DefaultSweepInterval = 5 * time.Minute
)

// Entry represents a cached value with its freshness window.
// ExpiresAt is never before Timestamp; the entry is fresh while now < ExpiresAt.
type Entry struct {
	Data      any
	Timestamp time.Time
	ExpiresAt time.Time
}

// FetchFunc loads the value for a key on a miss.
type FetchFunc func(ctx context.Context) (any, error)

// Stats is a point-in-time copy of cache counters.
type Stats struct {
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	StaleServed int64     `json:"stale_served"`
	Fallbacks   int64     `json:"fallbacks"`
	Evictions   int64     `json:"evictions"`
	Entries     int       `json:"entries"`
	LastSweep   time.Time `json:"last_sweep,omitempty"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithName sets the cache_type label used in metrics.
func WithName(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.name = name
		}
	}
}

// GetOption adjusts a single Get call.
type GetOption func(*getOptions)

type getOptions struct {
	ttl time.Duration
	swr bool
}

// WithTTL overrides the default TTL for the entry stored by this call.
// A zero TTL stores an entry that is already expired.
func WithTTL(ttl time.Duration) GetOption {
	return func(o *getOptions) {
		if ttl >= 0 {
			o.ttl = ttl
		}
	}
}

// WithStaleWhileRevalidate serves an expired entry immediately and refreshes
// it in the background.
func WithStaleWhileRevalidate() GetOption {
	return func(o *getOptions) { o.swr = true }
}

// WithoutStaleWhileRevalidate disables stale serving for this call even when
// the Manager enables it by default.
func WithoutStaleWhileRevalidate() GetOption {
	return func(o *getOptions) { o.swr = false }
}

// Manager is a keyed TTL cache that sits in front of fetch functions.
//
// Concurrent misses on one key share a single fetch (golang.org/x/sync
// singleflight). Capacity is bounded by MaxEntries with insertion-order
// eviction. A failed fetch falls back to whatever value is still held for
// the key, fresh or not.
//
// Thread Safety: safe for concurrent use. One instance is meant to be shared
// process-wide.
type Manager struct {
	name          string
	ttl           time.Duration
	maxEntries    int
	sweepInterval time.Duration
	swr           bool
	now           func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
	stats   Stats

	group singleflight.Group
}

// New creates a Manager from cache configuration. Zero values fall back to
// the package defaults.
func New(cfg config.CacheConfig, opts ...Option) *Manager {
	m := &Manager{
		name:          "response",
		ttl:           cfg.DefaultTTL,
		maxEntries:    cfg.MaxEntries,
		sweepInterval: cfg.SweepInterval,
		swr:           cfg.StaleWhileRevalidate,
		now:           time.Now,
		entries:       make(map[string]*Entry),
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.maxEntries <= 0 {
		m.maxEntries = DefaultMaxEntries
	}
	if m.sweepInterval <= 0 {
		m.sweepInterval = DefaultSweepInterval
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the value for key, calling fetch when there is no fresh entry.
//
// Resolution order:
//   - fresh entry: returned without calling fetch
//   - expired entry with stale-while-revalidate: expired value returned,
//     fetch runs in the background
//   - fetch already in flight for key: joins it
//   - otherwise fetch runs; success is stored with ExpiresAt = now + ttl
//
// When fetch fails and an entry (even expired) is held for key, that value
// is returned with a nil error. Otherwise the fetch error is returned.
//
// Cancelling ctx stops this caller's wait. The shared fetch keeps running for
// any other caller joined on it and still populates the cache.
func (m *Manager) Get(ctx context.Context, key string, fetch FetchFunc, opts ...GetOption) (any, error) {
	o := getOptions{ttl: m.ttl, swr: m.swr}
	for _, opt := range opts {
		opt(&o)
	}

	if e, ok := m.lookup(key); ok {
		if m.now().Before(e.ExpiresAt) {
			m.count(&m.stats.Hits, metrics.CacheHits)
			return e.Data, nil
		}
		if o.swr {
			m.count(&m.stats.StaleServed, metrics.CacheStaleServed)
			m.revalidate(ctx, key, fetch, o.ttl)
			return e.Data, nil
		}
	}
	m.count(&m.stats.Misses, metrics.CacheMisses)

	ch := m.group.DoChan(key, func() (any, error) {
		return m.load(context.WithoutCancel(ctx), key, fetch, o.ttl)
	})

	select {
	case res := <-ch:
		if res.Err == nil {
			return res.Val, nil
		}
		if e, ok := m.lookup(key); ok {
			m.count(&m.stats.Fallbacks, metrics.CacheFallbacks)
			logging.Ctx(ctx).Warn().Err(res.Err).Str("cache_key", key).
				Msg("Fetch failed, serving cached value")
			return e.Data, nil
		}
		return nil, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fetch is a typed wrapper over Manager.Get.
func Fetch[T any](ctx context.Context, m *Manager, key string, fetch func(ctx context.Context) (T, error), opts ...GetOption) (T, error) {
	var zero T
	v, err := m.Get(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, opts...)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: key %q holds %T, not %T", key, v, zero)
	}
	return t, nil
}

func (m *Manager) load(ctx context.Context, key string, fetch FetchFunc, ttl time.Duration) (any, error) {
	data, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	m.Set(key, data, ttl)
	return data, nil
}

func (m *Manager) revalidate(ctx context.Context, key string, fetch FetchFunc, ttl time.Duration) {
	bg := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		return m.load(bg, key, fetch, ttl)
	})
	go func() {
		if res := <-ch; res.Err != nil && !errors.Is(res.Err, context.Canceled) {
			logging.Ctx(bg).Warn().Err(res.Err).Str("cache_key", key).
				Msg("Background revalidation failed")
		}
	}()
}

// Set stores data under key with the given TTL. A new key inserted while the
// cache is full evicts the oldest inserted key first. Overwriting an existing
// key keeps its position and never evicts.
func (m *Manager) Set(key string, data any, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	now := m.now()
	e := &Entry{Data: data, Timestamp: now, ExpiresAt: now.Add(ttl)}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists {
		for len(m.order) >= m.maxEntries {
			oldest := m.order[0]
			// Shift down in place so the backing array stays at capacity.
			n := copy(m.order, m.order[1:])
			m.order[n] = ""
			m.order = m.order[:n]
			delete(m.entries, oldest)
			m.stats.Evictions++
			metrics.CacheEvictions.WithLabelValues(m.name, "capacity").Inc()
		}
		m.order = append(m.order, key)
	}
	m.entries[key] = e
	metrics.CacheSize.WithLabelValues(m.name).Set(float64(len(m.entries)))
}

// Peek returns the entry for key without touching stats or freshness.
func (m *Manager) Peek(key string) (Entry, bool) {
	e, ok := m.lookup(key)
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Invalidate removes key. It reports whether the key was present.
func (m *Manager) Invalidate(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		return false
	}
	m.removeLocked(key)
	return true
}

// InvalidatePattern removes every key matching re and returns how many were
// removed.
func (m *Manager) InvalidatePattern(re *regexp.Regexp) int {
	return m.removeMatching(re.MatchString)
}

// InvalidatePrefix removes every key starting with prefix. Use Prefix to
// build one, so "game:g1:" does not also match "game:g10:...".
func (m *Manager) InvalidatePrefix(prefix string) int {
	return m.removeMatching(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// Clear removes all entries.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
	m.order = nil
	metrics.CacheSize.WithLabelValues(m.name).Set(0)
}

// Sweep removes expired entries and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.order[:0]
	removed := 0
	for _, key := range m.order {
		if !now.Before(m.entries[key].ExpiresAt) {
			delete(m.entries, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	clear(m.order[len(kept):])
	m.order = kept
	m.stats.Evictions += int64(removed)
	m.stats.LastSweep = now
	if removed > 0 {
		metrics.CacheEvictions.WithLabelValues(m.name, "expired").Add(float64(removed))
	}
	metrics.CacheSize.WithLabelValues(m.name).Set(float64(len(m.entries)))
	return removed
}

// Run sweeps expired entries every SweepInterval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logging.Debug().Str("cache", m.name).Int("removed", n).Msg("Swept expired cache entries")
			}
		}
	}
}

// Stats returns a copy of the current counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Entries = len(m.entries)
	return s
}

// HitRate returns hits as a percentage of hits plus misses.
func (m *Manager) HitRate() float64 {
	s := m.Stats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total) * 100.0
}

// Len returns the number of held entries, expired or not.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Name returns the cache_type label.
func (m *Manager) Name() string {
	return m.name
}

// Key joins parts with ':' into a cache key, e.g. Key("game", id, "teams").
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Prefix returns the key prefix covering every key under parts, including
// the trailing separator: Prefix("game", "g1") is "game:g1:".
func Prefix(parts ...string) string {
	return Key(parts...) + ":"
}

func (m *Manager) lookup(key string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok
}

func (m *Manager) removeMatching(match func(key string) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.order[:0]
	removed := 0
	for _, key := range m.order {
		if match(key) {
			delete(m.entries, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	clear(m.order[len(kept):])
	m.order = kept
	if removed > 0 {
		metrics.CacheSize.WithLabelValues(m.name).Set(float64(len(m.entries)))
	}
	return removed
}

func (m *Manager) removeLocked(key string) {
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	metrics.CacheSize.WithLabelValues(m.name).Set(float64(len(m.entries)))
}

func (m *Manager) count(field *int64, vec *prometheus.CounterVec) {
	m.mu.Lock()
	*field++
	m.mu.Unlock()
	vec.WithLabelValues(m.name).Inc()
}
