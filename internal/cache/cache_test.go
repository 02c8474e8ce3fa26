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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/quizsync/internal/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, cfg config.CacheConfig) (*Manager, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	return New(cfg, WithClock(clk.Now), WithName(t.Name())), clk
}

func constFetch(calls *atomic.Int32, v any) FetchFunc {
	return func(context.Context) (any, error) {
		calls.Add(1)
		return v, nil
	}
}

func TestManager_HitAvoidsFetch(t *testing.T) {
	t.Parallel()
	m, clk := newTestManager(t, config.CacheConfig{})
	ctx := context.Background()

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		v, err := m.Get(ctx, "game:1", constFetch(&calls, "row"))
		if err != nil || v != "row" {
			t.Fatalf("Get = %v, %v", v, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", calls.Load())
	}

	clk.Advance(DefaultTTL - time.Millisecond)
	if _, err := m.Get(ctx, "game:1", constFetch(&calls, "row")); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("entry should still be fresh just before ExpiresAt")
	}

	clk.Advance(time.Millisecond)
	if _, err := m.Get(ctx, "game:1", constFetch(&calls, "row")); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("entry at ExpiresAt should be a miss, calls = %d", calls.Load())
	}

	s := m.Stats()
	if s.Hits != 3 || s.Misses != 2 {
		t.Errorf("stats = %+v, want 3 hits 2 misses", s)
	}
}

func TestManager_ZeroTTLAlwaysMisses(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, config.CacheConfig{})
	ctx := context.Background()

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		if _, err := m.Get(ctx, "k", constFetch(&calls, i), WithTTL(0)); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 3 {
		t.Errorf("fetch calls = %d, want 3", calls.Load())
	}
	e, ok := m.Peek("k")
	if !ok || !e.ExpiresAt.Equal(e.Timestamp) {
		t.Errorf("entry = %+v, want ExpiresAt == Timestamp", e)
	}
}

func TestManager_ConcurrentMissesShareOneFetch(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, config.CacheConfig{})

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const callers = 10
	var started, wg sync.WaitGroup
	results := make([]any, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		started.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			results[i], _ = m.Get(context.Background(), "participants:g1", fetch)
		}(i)
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", calls.Load())
	}
	for i, r := range results {
		if r != "shared" {
			t.Errorf("caller %d got %v", i, r)
		}
	}
}

func TestManager_SharedFetchFailureSeenByAll(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, config.CacheConfig{})

	boom := errors.New("backend down")
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return nil, boom
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Get(context.Background(), "k", fetch)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", calls.Load())
	}
	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Errorf("caller %d err = %v, want %v", i, err, boom)
		}
	}
}

func TestManager_StaleWhileRevalidate(t *testing.T) {
	t.Parallel()
	m, clk := newTestManager(t, config.CacheConfig{})
	ctx := context.Background()

	m.Set("session:g1", "old", time.Second)
	clk.Advance(2 * time.Second)

	refreshed := make(chan struct{})
	fetch := func(context.Context) (any, error) {
		defer close(refreshed)
		return "new", nil
	}

	v, err := m.Get(ctx, "session:g1", fetch, WithStaleWhileRevalidate())
	if err != nil || v != "old" {
		t.Fatalf("Get = %v, %v; want stale value", v, err)
	}

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("background revalidation never ran")
	}
	waitFor(t, func() bool {
		e, ok := m.Peek("session:g1")
		return ok && e.Data == "new"
	})

	e, _ := m.Peek("session:g1")
	if !e.ExpiresAt.Equal(clk.Now().Add(DefaultTTL)) {
		t.Errorf("revalidated ExpiresAt = %v, want now+ttl", e.ExpiresAt)
	}
	if m.Stats().StaleServed != 1 {
		t.Errorf("StaleServed = %d, want 1", m.Stats().StaleServed)
	}
}

func TestManager_StaleRevalidationFailureKeepsValue(t *testing.T) {
	t.Parallel()
	m, clk := newTestManager(t, config.CacheConfig{StaleWhileRevalidate: true})
	ctx := context.Background()

	m.Set("k", "old", time.Second)
	clk.Advance(time.Minute)

	done := make(chan struct{})
	v, err := m.Get(ctx, "k", func(context.Context) (any, error) {
		defer close(done)
		return nil, errors.New("still down")
	})
	if err != nil || v != "old" {
		t.Fatalf("Get = %v, %v", v, err)
	}
	<-done
	time.Sleep(10 * time.Millisecond)
	if e, ok := m.Peek("k"); !ok || e.Data != "old" {
		t.Errorf("stale entry should survive a failed revalidation, got %+v", e)
	}
}

func TestManager_FailureFallsBackToExpiredValue(t *testing.T) {
	t.Parallel()
	m, clk := newTestManager(t, config.CacheConfig{})
	ctx := context.Background()

	m.Set("teams:g1", "last-known", time.Second)
	clk.Advance(time.Hour)

	v, err := m.Get(ctx, "teams:g1", func(context.Context) (any, error) {
		return nil, errors.New("timeout")
	})
	if err != nil {
		t.Fatalf("expected degraded fallback, got error %v", err)
	}
	if v != "last-known" {
		t.Errorf("fallback value = %v", v)
	}
	if m.Stats().Fallbacks != 1 {
		t.Errorf("Fallbacks = %d, want 1", m.Stats().Fallbacks)
	}

	_, err = m.Get(ctx, "never-cached", func(context.Context) (any, error) {
		return nil, errors.New("timeout")
	})
	if err == nil {
		t.Error("miss with failing fetch and no entry should return the error")
	}
}

func TestManager_CapacityEvictsOldestInserted(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, config.CacheConfig{})

	for i := 0; i < DefaultMaxEntries; i++ {
		m.Set(fmt.Sprintf("k%03d", i), i, time.Minute)
	}
	// Overwrite keeps position and does not evict.
	m.Set("k000", "updated", time.Minute)
	if m.Len() != DefaultMaxEntries {
		t.Fatalf("Len = %d, want %d", m.Len(), DefaultMaxEntries)
	}

	m.Set("k100", 100, time.Minute)
	if m.Len() != DefaultMaxEntries {
		t.Errorf("Len = %d after 101st key, want %d", m.Len(), DefaultMaxEntries)
	}
	if _, ok := m.Peek("k000"); ok {
		t.Error("oldest inserted key should have been evicted")
	}
	if _, ok := m.Peek("k001"); !ok {
		t.Error("only one entry should be evicted")
	}
	if m.Stats().Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", m.Stats().Evictions)
	}
}

func TestManager_Invalidation(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, config.CacheConfig{})

	m.Set(Key("game", "g1", "teams"), 1, time.Minute)
	m.Set(Key("game", "g1", "participants"), 2, time.Minute)
	m.Set(Key("game", "g2", "teams"), 3, time.Minute)

	if !m.Invalidate(Key("game", "g2", "teams")) {
		t.Error("Invalidate should report an existing key")
	}
	if m.Invalidate("missing") {
		t.Error("Invalidate should report a missing key as absent")
	}

	m.Set(Key("game", "g2", "teams"), 3, time.Minute)
	if n := m.InvalidatePattern(regexp.MustCompile(`^game:g1:`)); n != 2 {
		t.Errorf("InvalidatePattern removed %d, want 2", n)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
	if n := m.InvalidatePrefix(Prefix("game", "g2")); n != 1 {
		t.Errorf("InvalidatePrefix removed %d, want 1", n)
	}

	m.Set("a", 1, time.Minute)
	m.Set("b", 2, time.Minute)
	m.Clear()
	if m.Len() != 0 {
		t.Errorf("Len after Clear = %d", m.Len())
	}
}

func TestManager_InvalidatePrefixStaysWithinGame(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, config.CacheConfig{})

	m.Set(Key("game", "game-1", "teams"), 1, time.Minute)
	m.Set(Key("game", "game-10", "teams"), 2, time.Minute)
	m.Set(Key("game", "game-11", "participants"), 3, time.Minute)

	if n := m.InvalidatePrefix(Prefix("game", "game-1")); n != 1 {
		t.Errorf("InvalidatePrefix removed %d, want 1", n)
	}
	for _, key := range []string{Key("game", "game-10", "teams"), Key("game", "game-11", "participants")} {
		if _, ok := m.Peek(key); !ok {
			t.Errorf("%s was removed by another game's invalidation", key)
		}
	}
	if _, ok := m.Peek(Key("game", "game-1", "teams")); ok {
		t.Error("game-1 rows should be gone")
	}
}

func TestManager_EvictionKeepsOrderCompact(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, config.CacheConfig{MaxEntries: 3})

	for i := 0; i < 50; i++ {
		m.Set(fmt.Sprintf("k%d", i), i, time.Minute)
	}
	m.mu.Lock()
	n, capacity := len(m.order), cap(m.order)
	m.mu.Unlock()
	if n != 3 || capacity > 4 {
		t.Errorf("order len = %d cap = %d, want 3 entries in a bounded array", n, capacity)
	}
	for _, key := range []string{"k47", "k48", "k49"} {
		if _, ok := m.Peek(key); !ok {
			t.Errorf("newest key %s evicted", key)
		}
	}
}

func TestManager_Sweep(t *testing.T) {
	t.Parallel()
	m, clk := newTestManager(t, config.CacheConfig{})

	m.Set("short", 1, time.Second)
	m.Set("long", 2, time.Hour)
	clk.Advance(time.Minute)

	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if _, ok := m.Peek("short"); ok {
		t.Error("expired entry should be swept")
	}
	if _, ok := m.Peek("long"); !ok {
		t.Error("fresh entry should survive the sweep")
	}
	if !m.Stats().LastSweep.Equal(clk.Now()) {
		t.Errorf("LastSweep = %v", m.Stats().LastSweep)
	}

	// A swept key can be inserted again without evicting anything.
	m.Set("short", 3, time.Minute)
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestManager_RunSweepsUntilCancelled(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	m := New(config.CacheConfig{SweepInterval: 10 * time.Millisecond}, WithClock(clk.Now), WithName(t.Name()))
	m.Set("k", 1, time.Second)
	clk.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	waitFor(t, func() bool { return m.Len() == 0 })
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestManager_CallerCancelDoesNotAbortSharedFetch(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, config.CacheConfig{})

	release := make(chan struct{})
	var fetchCtxErr atomic.Value
	fetch := func(ctx context.Context) (any, error) {
		<-release
		fetchCtxErr.Store(fmt.Sprint(ctx.Err()))
		return "done", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := m.Get(ctx, "k", fetch)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller got %v", err)
	}

	close(release)
	waitFor(t, func() bool {
		_, ok := m.Peek("k")
		return ok
	})
	if got := fetchCtxErr.Load(); got != "<nil>" {
		t.Errorf("fetch saw ctx error %v", got)
	}
}

func TestFetch_Typed(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, config.CacheConfig{})
	ctx := context.Background()

	ids, err := Fetch(ctx, m, "ids", func(context.Context) ([]string, error) {
		return []string{"a", "b"}, nil
	})
	if err != nil || len(ids) != 2 {
		t.Fatalf("Fetch = %v, %v", ids, err)
	}

	m.Set("wrong", 42, time.Minute)
	if _, err := Fetch(ctx, m, "wrong", func(context.Context) (string, error) {
		return "", nil
	}); err == nil {
		t.Error("type mismatch should be an error")
	}
}

func TestManager_HitRate(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t, config.CacheConfig{})
	if m.HitRate() != 0 {
		t.Error("empty cache hit rate should be 0")
	}

	var calls atomic.Int32
	ctx := context.Background()
	_, _ = m.Get(ctx, "k", constFetch(&calls, 1)) // miss
	_, _ = m.Get(ctx, "k", constFetch(&calls, 1)) // hit
	_, _ = m.Get(ctx, "k", constFetch(&calls, 1)) // hit

	want := 66.66666666666667
	if got := m.HitRate(); got < want-0.01 || got > want+0.01 {
		t.Errorf("HitRate = %.2f, want %.2f", got, want)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}
