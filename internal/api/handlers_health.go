// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/quizsync/internal/cache"
	"github.com/tomtom215/quizsync/internal/resilience"
)

// HealthStatus is the body of GET /api/v1/health.
type HealthStatus struct {
	Status   string                       `json:"status"`
	Version  string                       `json:"version,omitempty"`
	Uptime   float64                      `json:"uptime_seconds"`
	Games    []string                     `json:"games"`
	Displays int                          `json:"displays"`
	Breakers []resilience.BreakerSnapshot `json:"breakers,omitempty"`
	Cache    *CacheHealth                 `json:"cache,omitempty"`
}

// CacheHealth summarizes the response cache.
type CacheHealth struct {
	cache.Stats
	HitRate float64 `json:"hit_rate"`
}

// Healthz is the liveness check. It answers 200 as long as the process
// serves HTTP.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health reports watched games, breaker states and cache statistics.
// Status is "degraded" while any circuit breaker is open.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	status := HealthStatus{
		Status:  "ok",
		Version: h.deps.Version,
		Uptime:  time.Since(h.startTime).Seconds(),
		Games:   []string{},
	}
	if h.deps.Registry != nil {
		status.Games = h.deps.Registry.Scopes()
	}
	if h.deps.Hub != nil {
		status.Displays = h.deps.Hub.GetClientCount()
	}
	if h.deps.Breakers != nil {
		status.Breakers = h.deps.Breakers.Snapshots()
		for _, b := range status.Breakers {
			if b.State == resilience.StateOpen {
				status.Status = "degraded"
			}
		}
	}
	if h.deps.Cache != nil {
		status.Cache = &CacheHealth{Stats: h.deps.Cache.Stats(), HitRate: h.deps.Cache.HitRate()}
	}
	respondSuccess(w, http.StatusOK, status)
}
