// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package resilience

import (
	"sort"
	"sync"

	"github.com/tomtom215/quizsync/internal/config"
)

// Dependency families with their own breaker.
const (
	FamilyDatabase = "database"
	FamilyRealtime = "realtime"
	FamilyAPI      = "api"
)

// Registry owns one independent Breaker per dependency family.
// Construct it once at startup and inject it; breakers never share state.
type Registry struct {
	settings BreakerSettings

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry with the standard families pre-built.
func NewRegistry(cfg config.BreakerConfig) *Registry {
	r := &Registry{
		settings: BreakerSettings{Threshold: cfg.Threshold, Timeout: cfg.Timeout},
		breakers: make(map[string]*Breaker),
	}
	for _, name := range []string{FamilyDatabase, FamilyRealtime, FamilyAPI} {
		r.breakers[name] = NewBreaker(name, r.settings)
	}
	return r
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[name]; ok {
		return b
	}
	b = NewBreaker(name, r.settings)
	r.breakers[name] = b
	return b
}

// Database returns the breaker guarding row fetches.
func (r *Registry) Database() *Breaker { return r.Get(FamilyDatabase) }

// Realtime returns the breaker guarding channel subscribe and send.
func (r *Registry) Realtime() *Breaker { return r.Get(FamilyRealtime) }

// API returns the breaker guarding backend lookups made on behalf of
// display requests.
func (r *Registry) API() *Breaker { return r.Get(FamilyAPI) }

// Snapshots returns every breaker's state sorted by name.
func (r *Registry) Snapshots() []BreakerSnapshot {
	r.mu.RLock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.RUnlock()

	out := make([]BreakerSnapshot, 0, len(list))
	for _, b := range list {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
