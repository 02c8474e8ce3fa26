// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	return &Router{handler: handler, chiMiddleware: mw}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight is answered

	r.Get("/healthz", router.handler.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	// Display connections are long-lived; they are not rate limited per
	// message, only at upgrade.
	r.With(router.chiMiddleware.RateLimit()).Get("/ws", router.handler.WebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APIMetrics())

		r.Get("/health", router.handler.Health)
		r.Get("/games", router.handler.ListGames)
		r.Route("/games/{id}", func(r chi.Router) {
			r.Get("/status", router.handler.GameStatus)
			r.Post("/broadcast", router.handler.Broadcast)
			r.Post("/reconnect", router.handler.Reconnect)
			r.Get("/teams/{team}", router.handler.Team)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return r
}
