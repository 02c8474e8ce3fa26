// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package realtime

import (
	"sync"
	"time"

	"github.com/tomtom215/quizsync/internal/metrics"
	"github.com/tomtom215/quizsync/internal/models"
)

// Reconciler orders updates arriving from the live channel and from fallback
// polls. Per row ("table:id") the newest updated_at wins: an update older
// than one already delivered is dropped. Updates without a timestamp always
// pass, and a delete clears the row's history.
type Reconciler struct {
	mu       sync.Mutex
	versions map[string]time.Time
}

// NewReconciler creates an empty Reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{versions: make(map[string]time.Time)}
}

// Accept reports whether u should be delivered and records its version.
func (r *Reconciler) Accept(u models.Update) bool {
	key := u.EntityKey()

	r.mu.Lock()
	defer r.mu.Unlock()

	if u.Meta().Change == models.ChangeDelete {
		delete(r.versions, key)
		return true
	}

	v := u.Version()
	if v.IsZero() {
		return true
	}
	if prev, ok := r.versions[key]; ok && v.Before(prev) {
		metrics.RealtimeUpdatesDropped.Inc()
		return false
	}
	r.versions[key] = v
	return true
}

// Len returns the number of rows with a recorded version.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.versions)
}
