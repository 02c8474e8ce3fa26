// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/quizsync/internal/logging"
)

// EmbeddedBroker is satisfied by *natstransport.EmbeddedServer.
type EmbeddedBroker interface {
	ClientURL() string
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// ErrBrokerStopped is returned when the embedded broker stops on its own.
var ErrBrokerStopped = errors.New("embedded NATS server stopped")

// EmbeddedNATSService owns the lifecycle of an in-process NATS server that
// main started before building the NATS transport.
//
// The server cannot be restarted in place, so a broker that dies
// unexpectedly ends the service with suture.ErrDoNotRestart; game managers
// fall back to polling until the process is restarted.
type EmbeddedNATSService struct {
	broker          EmbeddedBroker
	shutdownTimeout time.Duration
	checkInterval   time.Duration
	name            string
}

// NewEmbeddedNATSService wraps broker.
func NewEmbeddedNATSService(broker EmbeddedBroker, shutdownTimeout time.Duration) *EmbeddedNATSService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &EmbeddedNATSService{
		broker:          broker,
		shutdownTimeout: shutdownTimeout,
		checkInterval:   5 * time.Second,
		name:            "nats-embedded",
	}
}

// Serve implements suture.Service.
func (s *EmbeddedNATSService) Serve(ctx context.Context) error {
	if !s.broker.IsRunning() {
		logging.Error().Msg("embedded NATS server is not running")
		return fmt.Errorf("%w: %w", ErrBrokerStopped, suture.ErrDoNotRestart)
	}
	logging.Info().Str("url", s.broker.ClientURL()).Msg("embedded NATS server supervised")

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.broker.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("embedded NATS shutdown: %w", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if !s.broker.IsRunning() {
				logging.Error().Msg("embedded NATS server stopped unexpectedly")
				return fmt.Errorf("%w: %w", ErrBrokerStopped, suture.ErrDoNotRestart)
			}
		}
	}
}

// String implements fmt.Stringer for suture's logs.
func (s *EmbeddedNATSService) String() string {
	return s.name
}
