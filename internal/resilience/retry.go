// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/tomtom215/quizsync/internal/config"
	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/metrics"
)

// RetryOptions configures RetryWithBackoff. Start from DefaultRetryOptions;
// a zero MaxRetries means a single attempt.
type RetryOptions struct {
	// Operation labels logs and the retry_attempts_total metric.
	Operation string

	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// ShouldRetry decides whether a failure of the given attempt (1-based)
	// is retried. Default: IsTransient.
	ShouldRetry func(err error, attempt int) bool

	// OnRetry observes each scheduled retry before the wait.
	OnRetry func(err error, attempt int, delay time.Duration)

	// Sleep waits for d or until ctx is done. Default: a timer select.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryOptions returns 3 retries, 1s initial delay, 30s cap, factor 2.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
	}
}

// RetryOptionsFromConfig maps the retry config section onto RetryOptions.
func RetryOptionsFromConfig(cfg config.RetryConfig, operation string) RetryOptions {
	return RetryOptions{
		Operation:     operation,
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
	}
}

func (o *RetryOptions) applyDefaults() {
	d := DefaultRetryOptions()
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = d.InitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = d.MaxDelay
	}
	if o.BackoffFactor < 1 {
		o.BackoffFactor = d.BackoffFactor
	}
	if o.ShouldRetry == nil {
		o.ShouldRetry = func(err error, _ int) bool { return IsTransient(err) }
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	if o.Operation == "" {
		o.Operation = "unnamed"
	}
}

// RetryWithBackoff calls fn until it succeeds, the retry budget is spent,
// or ShouldRetry rejects the error. Total attempts never exceed MaxRetries+1.
// The delay starts at InitialDelay and grows by BackoffFactor up to MaxDelay.
//
// Cancelling ctx aborts a pending wait; the returned error then joins the
// last attempt's error with ctx.Err(). An attempt already running is not
// interrupted beyond the ctx it receives.
func RetryWithBackoff[T any](ctx context.Context, fn func(ctx context.Context) (T, error), opts RetryOptions) (T, error) {
	opts.applyDefaults()
	var zero T
	delay := opts.InitialDelay

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt > opts.MaxRetries || !opts.ShouldRetry(err, attempt) {
			return zero, err
		}

		if opts.OnRetry != nil {
			opts.OnRetry(err, attempt, delay)
		}
		metrics.RetryAttempts.WithLabelValues(opts.Operation).Inc()
		logging.Ctx(ctx).Debug().
			Err(err).
			Str("operation", opts.Operation).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Retrying after transient failure")

		if sleepErr := opts.Sleep(ctx, delay); sleepErr != nil {
			return zero, errors.Join(err, sleepErr)
		}
		delay = nextDelay(delay, opts.BackoffFactor, opts.MaxDelay)
	}
}

// Retry is RetryWithBackoff for functions without a result.
func Retry(ctx context.Context, fn func(ctx context.Context) error, opts RetryOptions) error {
	_, err := RetryWithBackoff(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts)
	return err
}

func nextDelay(delay time.Duration, factor float64, maxDelay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * factor)
	if next > maxDelay || next <= 0 {
		return maxDelay
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// transientMarkers are lowercase message fragments that indicate a network failure.
var transientMarkers = []string{
	"network",
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"fetch failed",
	"unexpected eof",
}

// IsTransient reports whether err looks like a network or timeout failure
// worth retrying. Caller cancellation and open circuits are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var transient interface{ Transient() bool }
	if errors.As(err, &transient) {
		return transient.Transient()
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
