// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/quizsync/internal/metrics"
)

var (
	// ErrClosed is returned by Request after Close.
	ErrClosed = errors.New("batcher closed")

	// ErrMissingResult is returned to callers whose position lies beyond
	// the result slice returned by the batch function.
	ErrMissingResult = errors.New("batch function returned no result for key")
)

// DefaultDelay is the debounce window when none is configured.
const DefaultDelay = 50 * time.Millisecond

// BatchFunc resolves many keys in one call. results[i] answers keys[i].
type BatchFunc[K comparable, R any] func(ctx context.Context, keys []K) ([]R, error)

type options struct {
	delay time.Duration
	name  string
	ctx   context.Context
}

// Option configures a Batcher.
type Option func(*options)

// WithDelay sets the debounce window.
func WithDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithName labels the batcher in metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithContext sets the context passed to the batch function. It is not tied
// to any single caller because one flush serves many callers.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

type result[R any] struct {
	val R
	err error
}

type pending[K comparable, R any] struct {
	key  K
	done chan result[R]
}

// Batcher coalesces keyed requests issued within a debounce window into a
// single BatchFunc call.
//
// Every Request restarts the window, so a steady trickle of requests keeps
// postponing the flush. There is no size cap. Each queued request is
// resolved exactly once with the result at its own index.
//
// Thread Safety: safe for concurrent use.
type Batcher[K comparable, R any] struct {
	fn   BatchFunc[K, R]
	opts options

	mu     sync.Mutex
	queue  []*pending[K, R]
	timer  *time.Timer
	gen    uint64 // bumped whenever the window restarts or is flushed
	closed bool
}

// New creates a Batcher around fn.
func New[K comparable, R any](fn BatchFunc[K, R], opts ...Option) *Batcher[K, R] {
	o := options{delay: DefaultDelay, name: "default", ctx: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Batcher[K, R]{fn: fn, opts: o}
}

// Request queues key for the next flush and waits for its result.
// Cancelling ctx stops the wait; the key stays in the batch.
func (b *Batcher[K, R]) Request(ctx context.Context, key K) (R, error) {
	var zero R
	p := &pending[K, R]{key: key, done: make(chan result[R], 1)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return zero, ErrClosed
	}
	b.queue = append(b.queue, p)
	b.restartWindowLocked()
	b.mu.Unlock()

	select {
	case r := <-p.done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Pending returns the number of queued requests.
func (b *Batcher[K, R]) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Flush sends the queued requests now instead of waiting for the window.
func (b *Batcher[K, R]) Flush() {
	b.mu.Lock()
	items := b.takeLocked()
	b.mu.Unlock()
	b.run(items)
}

// Close flushes what is queued and rejects later requests with ErrClosed.
func (b *Batcher[K, R]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.Flush()
}

// restartWindowLocked arms a fresh debounce timer. A timer that already
// fired but has not taken the lock yet sees a newer generation and backs off.
func (b *Batcher[K, R]) restartWindowLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	b.timer = time.AfterFunc(b.opts.delay, func() { b.flushWindow(gen) })
}

func (b *Batcher[K, R]) flushWindow(gen uint64) {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	items := b.takeLocked()
	b.mu.Unlock()
	b.run(items)
}

func (b *Batcher[K, R]) takeLocked() []*pending[K, R] {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	items := b.queue
	b.queue = nil
	return items
}

func (b *Batcher[K, R]) run(items []*pending[K, R]) {
	if len(items) == 0 {
		return
	}

	keys := make([]K, len(items))
	for i, p := range items {
		keys[i] = p.key
	}

	results, err := b.fn(b.opts.ctx, keys)
	metrics.RecordBatchFlush(b.opts.name, len(keys), err)

	for i, p := range items {
		switch {
		case err != nil:
			p.done <- result[R]{err: err}
		case i < len(results):
			p.done <- result[R]{val: results[i]}
		default:
			p.done <- result[R]{err: fmt.Errorf("%w: index %d of %d", ErrMissingResult, i, len(results))}
		}
	}
}
