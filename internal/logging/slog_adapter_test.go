// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newCapturingSlog(level zerolog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf).Level(level)
	return slog.New(NewSlogHandlerWithLogger(zl)), &buf
}

func TestSlogHandler_Enabled(t *testing.T) {
	t.Parallel()

	h := NewSlogHandlerWithLogger(zerolog.New(nil).Level(zerolog.WarnLevel))
	tests := []struct {
		level slog.Level
		want  bool
	}{
		{slog.LevelDebug, false},
		{slog.LevelInfo, false},
		{slog.LevelWarn, true},
		{slog.LevelError, true},
	}
	for _, tt := range tests {
		if got := h.Enabled(context.Background(), tt.level); got != tt.want {
			t.Errorf("Enabled(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestSlogHandler_Handle(t *testing.T) {
	t.Parallel()

	logger, buf := newCapturingSlog(zerolog.DebugLevel)
	logger.Warn("service restarted",
		"service", "cache-sweeper",
		"attempt", 3,
		"backoff", 2*time.Second,
		"healthy", false,
		"err", errors.New("panic recovered"),
	)

	out := buf.String()
	for _, want := range []string{
		`"level":"warn"`,
		`"message":"service restarted"`,
		`"service":"cache-sweeper"`,
		`"attempt":3`,
		`"healthy":false`,
		`"err":"panic recovered"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestSlogHandler_FilteredLevel(t *testing.T) {
	t.Parallel()

	logger, buf := newCapturingSlog(zerolog.ErrorLevel)
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected no output below level, got: %s", buf.String())
	}
}

func TestSlogHandler_WithAttrsAndGroups(t *testing.T) {
	t.Parallel()

	logger, buf := newCapturingSlog(zerolog.DebugLevel)
	logger.With("tree", "root").
		WithGroup("supervisor").
		WithGroup("event").
		Info("backoff", "service", "http", slog.Group("timing", "delay", "1s"))

	out := buf.String()
	for _, want := range []string{
		`"tree":"root"`,
		`"supervisor.event.service":"http"`,
		`"supervisor.event.timing.delay":"1s"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestSlogHandler_EmptyGroupIsNoop(t *testing.T) {
	t.Parallel()

	h := NewSlogHandlerWithLogger(zerolog.Nop())
	if h.WithGroup("") != h {
		t.Error("WithGroup(\"\") should return the same handler")
	}
}

func TestSlogHandler_CorrelationIDFromContext(t *testing.T) {
	t.Parallel()

	logger, buf := newCapturingSlog(zerolog.DebugLevel)
	ctx := ContextWithCorrelationID(context.Background(), "slog0001")
	logger.InfoContext(ctx, "with context")

	if !strings.Contains(buf.String(), `"correlation_id":"slog0001"`) {
		t.Errorf("expected correlation_id, got: %s", buf.String())
	}
}

func TestSlogToZerologLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   slog.Level
		want zerolog.Level
	}{
		{slog.LevelDebug - 4, zerolog.TraceLevel},
		{slog.LevelDebug, zerolog.DebugLevel},
		{slog.LevelInfo, zerolog.InfoLevel},
		{slog.LevelWarn, zerolog.WarnLevel},
		{slog.LevelError, zerolog.ErrorLevel},
		{slog.LevelError + 4, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		if got := slogToZerologLevel(tt.in); got != tt.want {
			t.Errorf("slogToZerologLevel(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
