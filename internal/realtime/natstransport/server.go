// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package natstransport

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer runs a NATS broker inside the process, for single-machine
// classroom setups without a separate broker.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
}

// ServerOptions configures an EmbeddedServer. Port -1 picks a free port.
type ServerOptions struct {
	Host  string
	Port  int
	NoLog bool
}

// StartEmbedded starts an embedded NATS server and waits until it accepts
// connections.
func StartEmbedded(opts ServerOptions) (*EmbeddedServer, error) {
	ns, err := server.NewServer(&server.Options{
		ServerName: "quizsync",
		Host:       opts.Host,
		Port:       opts.Port,
		NoLog:      opts.NoLog,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	if !opts.NoLog {
		ns.ConfigureLogger()
	}
	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}

	return &EmbeddedServer{server: ns, clientURL: ns.ClientURL()}, nil
}

// ClientURL returns the URL clients connect to.
func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

// Shutdown stops the server, waiting for it unless ctx is already done.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.server.WaitForShutdown()
		return nil
	}
}

// IsRunning reports whether the server is running.
func (s *EmbeddedServer) IsRunning() bool {
	return s.server.Running()
}
