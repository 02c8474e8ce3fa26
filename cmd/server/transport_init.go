// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/tomtom215/quizsync/internal/config"
	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/realtime"
	"github.com/tomtom215/quizsync/internal/realtime/memtransport"
	"github.com/tomtom215/quizsync/internal/realtime/natstransport"
	"github.com/tomtom215/quizsync/internal/realtime/wstransport"
)

// TransportComponents is the selected change-notification transport plus
// the embedded NATS server when one was started for it.
type TransportComponents struct {
	Transport realtime.Transport
	Embedded  *natstransport.EmbeddedServer
}

// InitTransport builds the transport named by realtime.transport. For nats
// with nats.embedded_server it starts the in-process server first and
// points the transport at it.
func InitTransport(cfg *config.Config) (*TransportComponents, error) {
	switch cfg.Realtime.Transport {
	case config.TransportWebSocket:
		t := wstransport.FromConfig(cfg)
		if !t.Configured() {
			logging.Warn().Msg("realtime websocket not configured, games will be polled")
		} else {
			logging.Info().Str("url", logging.SanitizeURL(cfg.RealtimeURL())).Msg("realtime websocket transport")
		}
		return &TransportComponents{Transport: t}, nil

	case config.TransportNATS:
		natsCfg := natstransport.FromConfig(cfg.NATS)
		comps := &TransportComponents{}
		if cfg.NATS.EmbeddedServer {
			srv, err := natstransport.StartEmbedded(natstransport.ServerOptions{
				Host:  cfg.NATS.Host,
				Port:  cfg.NATS.Port,
				NoLog: true,
			})
			if err != nil {
				return nil, fmt.Errorf("start embedded NATS server: %w", err)
			}
			comps.Embedded = srv
			natsCfg.URL = srv.ClientURL()
			logging.Info().Str("url", natsCfg.URL).Msg("embedded NATS server started")
		}
		comps.Transport = natstransport.New(natsCfg)
		logging.Info().Str("url", logging.SanitizeURL(natsCfg.URL)).Msg("realtime NATS transport")
		return comps, nil

	case config.TransportMemory:
		logging.Warn().Msg("in-memory transport: only broadcasts sent through this relay are delivered")
		return &TransportComponents{Transport: memtransport.New()}, nil

	default:
		return nil, fmt.Errorf("unknown realtime transport %q", cfg.Realtime.Transport)
	}
}

// Close closes the transport, then stops the embedded server if it was
// not already stopped by its supervised service.
func (c *TransportComponents) Close(ctx context.Context) {
	if closer, ok := c.Transport.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logging.Warn().Err(err).Msg("error closing realtime transport")
		}
	}
	if c.Embedded != nil && c.Embedded.IsRunning() {
		if err := c.Embedded.Shutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("error stopping embedded NATS server")
		}
	}
}
