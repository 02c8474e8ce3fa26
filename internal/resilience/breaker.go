// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/metrics"
)

// ErrCircuitOpen is returned when a breaker rejects a call without running it.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerState is the externally visible breaker state.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerSettings configures a Breaker.
type BreakerSettings struct {
	// Threshold is the failure count that opens the circuit. Default: 5
	Threshold int
	// Timeout is how long the circuit stays open before a trial request. Default: 60s
	Timeout time.Duration
}

// BreakerSnapshot is a point-in-time view of a breaker.
type BreakerSnapshot struct {
	Name            string       `json:"name"`
	State           BreakerState `json:"state"`
	Failures        int          `json:"failures"`
	LastFailureTime time.Time    `json:"last_failure_time,omitempty"`
}

// Breaker guards one dependency family with a circuit breaker.
//
// The state machine is gobreaker's. What differs from a plain gobreaker is
// the failure count that decides tripping: every failure adds one, every
// success while closed removes one (never below zero), and the count is
// cleared when the circuit closes. A dependency that fails intermittently
// therefore trips only when failures outpace successes.
//
// A failing trial request in HALF_OPEN reopens the circuit immediately; a
// successful one closes it.
//
// Thread Safety: all methods are safe for concurrent use.
type Breaker struct {
	name      string
	threshold int
	cb        *gobreaker.CircuitBreaker[any]

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
}

// NewBreaker creates a breaker named after the dependency family it guards.
func NewBreaker(name string, settings BreakerSettings) *Breaker {
	if settings.Threshold <= 0 {
		settings.Threshold = 5
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 60 * time.Second
	}

	b := &Breaker{name: name, threshold: settings.Threshold}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(metrics.BreakerClosed)
	metrics.CircuitBreakerFailures.WithLabelValues(name).Set(0)

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(_ gobreaker.Counts) bool {
			return b.Failures() >= b.threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: b.onStateChange,
	})
	return b
}

// Name returns the dependency family name.
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs fn unless the circuit is open.
// An open circuit returns an error wrapping ErrCircuitOpen without calling fn.
// Caller cancellation (context.Canceled) neither counts as failure nor success:
// a cancelled trial request leaves a HALF_OPEN circuit half-open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteTyped(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteTyped runs fn through b and returns its typed result.
func ExecuteTyped[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	result, err := b.cb.Execute(func() (any, error) {
		v, err := fn(ctx)
		b.record(err)
		return v, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			return zero, fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
		}
		if errors.Is(err, context.Canceled) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "canceled").Inc()
			return zero, err
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return zero, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()

	typed, ok := result.(T)
	if !ok && result != nil {
		return zero, fmt.Errorf("circuit breaker %s: unexpected result type %T", b.name, result)
	}
	return typed, nil
}

// record updates the failure ledger; it runs before gobreaker evaluates
// ReadyToTrip for the same call.
func (b *Breaker) record(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	b.mu.Lock()
	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
	} else if b.failures > 0 {
		b.failures--
	}
	failures := b.failures
	b.mu.Unlock()
	metrics.CircuitBreakerFailures.WithLabelValues(b.name).Set(float64(failures))
}

// onStateChange runs under gobreaker's lock; it must not call back into b.cb.
func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	if to == gobreaker.StateClosed {
		b.mu.Lock()
		b.failures = 0
		b.mu.Unlock()
		metrics.CircuitBreakerFailures.WithLabelValues(name).Set(0)
	}

	fromState, toState := mapState(from), mapState(to)
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
	metrics.CircuitBreakerTransitions.WithLabelValues(name, string(fromState), string(toState)).Inc()

	event := logging.Info()
	if to == gobreaker.StateOpen {
		event = logging.Warn().Int("failures", b.Failures())
	}
	event.Str("breaker", name).
		Str("from", string(fromState)).
		Str("to", string(toState)).
		Msg("Circuit breaker state transition")
}

// State returns the current state. An open breaker whose timeout has
// elapsed reports HALF_OPEN.
func (b *Breaker) State() BreakerState {
	return mapState(b.cb.State())
}

// Failures returns the current failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Snapshot returns the breaker's current state.
func (b *Breaker) Snapshot() BreakerSnapshot {
	state := b.State()
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		Name:            b.name,
		State:           state,
		Failures:        b.failures,
		LastFailureTime: b.lastFailure,
	}
}

func mapState(s gobreaker.State) BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return metrics.BreakerHalfOpen
	case gobreaker.StateOpen:
		return metrics.BreakerOpen
	default:
		return metrics.BreakerClosed
	}
}
