// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package services

import (
	"context"
)

// ContextRunner is any component with a blocking, context-scoped run loop:
// *websocket.Hub (RunWithContext) and *cache.Manager (Run).
type ContextRunner func(ctx context.Context) error

// RunnerService adapts a context-scoped run loop to suture.Service.
//
//	tree.AddMessagingService(services.NewRunnerService("display-hub", hub.RunWithContext))
//	tree.AddInfraService(services.NewRunnerService("cache-sweeper", responses.Run))
type RunnerService struct {
	run  ContextRunner
	name string
}

// NewRunnerService wraps run under name.
func NewRunnerService(name string, run ContextRunner) *RunnerService {
	return &RunnerService{run: run, name: name}
}

// Serve implements suture.Service by delegating to the run loop.
func (s *RunnerService) Serve(ctx context.Context) error {
	return s.run(ctx)
}

// String implements fmt.Stringer for suture's logs.
func (s *RunnerService) String() string {
	return s.name
}
