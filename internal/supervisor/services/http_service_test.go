// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// fakeHTTPServer blocks in ListenAndServe until Shutdown unless
// listenErr is set.
type fakeHTTPServer struct {
	listenErr   error
	shutdownErr error
	listening   chan struct{}
	stop        chan struct{}
	shutdowns   atomic.Int32
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{listening: make(chan struct{}, 1), stop: make(chan struct{})}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	select {
	case f.listening <- struct{}{}:
	default:
	}
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	if f.shutdowns.Add(1) == 1 {
		close(f.stop)
	}
	return f.shutdownErr
}

func TestHTTPServerService_Defaults(t *testing.T) {
	t.Parallel()

	var _ suture.Service = (*HTTPServerService)(nil)

	for _, timeout := range []time.Duration{0, -time.Second} {
		svc := NewHTTPServerService(newFakeHTTPServer(), timeout)
		if svc.shutdownTimeout != 10*time.Second {
			t.Errorf("timeout %v: shutdownTimeout = %v, want 10s", timeout, svc.shutdownTimeout)
		}
	}
	if got := NewHTTPServerService(newFakeHTTPServer(), time.Second).String(); got != "http-server" {
		t.Errorf("String() = %q", got)
	}
}

func TestHTTPServerService_Serve(t *testing.T) {
	t.Parallel()

	bindErr := errors.New("bind: address already in use")
	shutdownErr := errors.New("shutdown timeout")

	tests := []struct {
		name        string
		listenErr   error
		shutdownErr error
		cancel      bool
		want        error
	}{
		{name: "graceful shutdown", cancel: true, want: context.Canceled},
		{name: "listen failure", listenErr: bindErr, want: bindErr},
		{name: "shutdown failure", shutdownErr: shutdownErr, cancel: true, want: shutdownErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newFakeHTTPServer()
			server.listenErr = tt.listenErr
			server.shutdownErr = tt.shutdownErr
			svc := NewHTTPServerService(server, time.Second)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			errCh := make(chan error, 1)
			go func() { errCh <- svc.Serve(ctx) }()

			<-server.listening
			if tt.cancel {
				cancel()
			}

			select {
			case err := <-errCh:
				if !errors.Is(err, tt.want) {
					t.Errorf("Serve() = %v, want %v", err, tt.want)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Serve did not return")
			}
			if tt.cancel && server.shutdowns.Load() != 1 {
				t.Errorf("Shutdown calls = %d, want 1", server.shutdowns.Load())
			}
		})
	}
}
