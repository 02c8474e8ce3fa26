// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/quizsync/internal/api"
	"github.com/tomtom215/quizsync/internal/cache"
	"github.com/tomtom215/quizsync/internal/config"
	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/realtime"
	"github.com/tomtom215/quizsync/internal/resilience"
	"github.com/tomtom215/quizsync/internal/store"
	"github.com/tomtom215/quizsync/internal/supervisor"
	"github.com/tomtom215/quizsync/internal/supervisor/services"
	ws "github.com/tomtom215/quizsync/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("Relay stopped with error")
	}
	logging.Info().Msg("Relay stopped gracefully")
}

//nolint:gocyclo // sequential wiring of the relay's components
func run(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Str("version", version).
		Str("transport", cfg.Realtime.Transport).
		Bool("backend_configured", cfg.Backend.Configured()).
		Strs("games", cfg.Realtime.Games).
		Msg("Starting quiz display relay")

	// Shared by the store client (fetch de-dup) and the managers' fallback
	// polls, so a poll never hits the backend twice for one snapshot.
	responses := cache.New(cfg.Cache, cache.WithName("responses"))
	breakers := resilience.NewRegistry(cfg.Breaker)

	client := store.New(cfg.Backend,
		store.WithBreaker(breakers.Database()),
		store.WithRetry(resilience.RetryOptionsFromConfig(cfg.Retry, "store")),
		store.WithCache(responses, store.DefaultFetchTTL),
		store.WithBatchDelay(cfg.Batch.Delay),
	)
	defer client.Close()
	if !client.Configured() {
		logging.Warn().Msg("Backend credentials missing, fallback polling disabled")
	}

	transport, err := InitTransport(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		transport.Close(closeCtx)
	}()

	registry := realtime.NewRegistry(transport.Transport, client, realtime.ConfigFrom(cfg), cfg.Realtime.Tables,
		realtime.WithCache(responses), realtime.WithBreaker(breakers.Realtime()))
	defer func() {
		if err := registry.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing realtime registry")
		}
	}()

	hub := ws.NewHub(registry)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	// Infra layer
	tree.AddInfraService(services.NewRunnerService("cache-sweeper", responses.Run))
	if transport.Embedded != nil {
		tree.AddInfraService(services.NewEmbeddedNATSService(transport.Embedded, cfg.Server.ShutdownTimeout))
	}

	// Realtime layer
	tree.AddRealtimeService(services.NewRunnerService("display-hub", hub.RunWithContext))
	games, err := supervisor.NewGameSupervisor(tree, registry, nil)
	if err != nil {
		return fmt.Errorf("create game supervisor: %w", err)
	}
	if err := games.Sync(cfg.Realtime.Games); err != nil {
		logging.Warn().Err(err).Msg("Some configured games could not be watched")
	}

	if path := config.ConfigFilePath(); path != "" {
		tree.AddInfraService(services.NewConfigWatchService(path, func(next *config.Config) {
			logging.SetLevelString(next.Logging.Level)
			if err := games.Sync(next.Realtime.Games); err != nil {
				logging.Warn().Err(err).Msg("Some reloaded games could not be watched")
			}
		}))
	}

	// API layer
	handler := api.NewHandler(api.Dependencies{
		Registry:       registry,
		Hub:            hub,
		Breakers:       breakers,
		Cache:          responses,
		Teams:          client,
		AllowedOrigins: cfg.Server.CORSOrigins,
		Version:        version,
	})
	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(cfg.Server)))
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		// Display websockets set their own write deadlines.
		IdleTimeout: 60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
		err = <-errCh
	case err = <-errCh:
	}

	var runErr error
	if err != nil && !errors.Is(err, context.Canceled) {
		runErr = fmt.Errorf("supervisor tree: %w", err)
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	return runErr
}
