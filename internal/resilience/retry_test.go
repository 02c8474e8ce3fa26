// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"
)

// recordingSleep captures requested delays without waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestRetryWithBackoff_ExhaustsAfterMaxRetriesPlusOne(t *testing.T) {
	t.Parallel()

	rec := &recordingSleep{}
	opts := DefaultRetryOptions()
	opts.Sleep = rec.sleep

	calls := 0
	netErr := errors.New("network unreachable")
	_, err := RetryWithBackoff(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, netErr
	}, opts)

	if !errors.Is(err, netErr) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(rec.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", rec.delays, want)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, rec.delays[i], want[i])
		}
		if i > 0 && rec.delays[i] <= rec.delays[i-1] {
			t.Errorf("delays not strictly increasing: %v", rec.delays)
		}
	}
}

func TestRetryWithBackoff_DelayCappedAtMax(t *testing.T) {
	t.Parallel()

	rec := &recordingSleep{}
	opts := RetryOptions{
		MaxRetries:    6,
		InitialDelay:  time.Second,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 3,
		Sleep:         rec.sleep,
	}
	_, _ = RetryWithBackoff(context.Background(), func(context.Context) (string, error) {
		return "", errors.New("request timeout")
	}, opts)

	for _, d := range rec.delays {
		if d > opts.MaxDelay {
			t.Errorf("delay %v exceeds max %v", d, opts.MaxDelay)
		}
	}
	if last := rec.delays[len(rec.delays)-1]; last != opts.MaxDelay {
		t.Errorf("last delay = %v, want %v", last, opts.MaxDelay)
	}
}

func TestRetryWithBackoff_ShouldRetryFalseStopsImmediately(t *testing.T) {
	t.Parallel()

	rec := &recordingSleep{}
	opts := DefaultRetryOptions()
	opts.Sleep = rec.sleep
	opts.ShouldRetry = func(error, int) bool { return false }
	retried := false
	opts.OnRetry = func(error, int, time.Duration) { retried = true }

	calls := 0
	_, err := RetryWithBackoff(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("connection refused")
	}, opts)

	if err == nil || calls != 1 || retried || len(rec.delays) != 0 {
		t.Errorf("calls=%d retried=%v delays=%v err=%v", calls, retried, rec.delays, err)
	}
}

func TestRetryWithBackoff_NonTransientNotRetried(t *testing.T) {
	t.Parallel()

	opts := DefaultRetryOptions()
	opts.Sleep = (&recordingSleep{}).sleep

	calls := 0
	_, err := RetryWithBackoff(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("permission denied for table teams")
	}, opts)
	if err == nil || calls != 1 {
		t.Errorf("calls = %d, err = %v", calls, err)
	}
}

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	var attempts []int
	opts := DefaultRetryOptions()
	opts.Sleep = (&recordingSleep{}).sleep
	opts.OnRetry = func(_ error, attempt int, _ time.Duration) { attempts = append(attempts, attempt) }

	calls := 0
	got, err := RetryWithBackoff(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("fetch failed: %w", io.ErrUnexpectedEOF)
		}
		return "ok", nil
	}, opts)

	if err != nil || got != "ok" {
		t.Fatalf("got %q, %v", got, err)
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
}

func TestRetryWithBackoff_ContextCancelDuringWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	opts := DefaultRetryOptions()
	opts.InitialDelay = time.Hour
	opts.MaxDelay = time.Hour

	lastErr := errors.New("connection reset by peer")
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Retry(ctx, func(context.Context) error { return lastErr }, opts)
	if time.Since(start) > 5*time.Second {
		t.Fatal("retry did not abort on cancellation")
	}
	if !errors.Is(err, lastErr) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected joined error, got %v", err)
	}
}

func TestRetryWithBackoff_ZeroMaxRetries(t *testing.T) {
	t.Parallel()

	opts := DefaultRetryOptions()
	opts.MaxRetries = 0
	calls := 0
	_ = Retry(context.Background(), func(context.Context) error {
		calls++
		return errors.New("timeout")
	}, opts)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

type statusErr struct{ transient bool }

func (e statusErr) Error() string   { return "http status" }
func (e statusErr) Transient() bool { return e.transient }

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("fetch: %w", context.Canceled), false},
		{"circuit open", fmt.Errorf("%w: database", ErrCircuitOpen), false},
		{"deadline", context.DeadlineExceeded, true},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, true},
		{"econnrefused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"econnreset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"message network", errors.New("Network request failed"), true},
		{"message fetch failed", errors.New("TypeError: fetch failed"), true},
		{"transient status", statusErr{transient: true}, true},
		{"permanent status", statusErr{transient: false}, false},
		{"validation", errors.New("invalid game code"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
