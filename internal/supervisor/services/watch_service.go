// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/models"
	"github.com/tomtom215/quizsync/internal/realtime"
)

// Watcher is satisfied by *realtime.Registry.
type Watcher interface {
	Watch(scope string, tables []string, handler realtime.Handler) (*realtime.Subscription, error)
}

// WatchStats is a snapshot of what a GameWatchService has received.
type WatchStats struct {
	Updates      int64     `json:"updates"`
	LastUpdateAt time.Time `json:"last_update_at,omitempty"`
	LastSource   string    `json:"last_source,omitempty"`
}

// GameWatchService keeps a realtime subscription open for one game while it
// is supervised. Displays that join later share the already-connected
// channel instead of waiting for a fresh subscribe.
//
// A failed Watch is returned to suture, which retries with backoff.
type GameWatchService struct {
	watcher Watcher
	game    string
	tables  []string

	mu    sync.Mutex
	stats WatchStats
}

// NewGameWatchService creates a watch for game over tables (nil means all
// watched tables).
func NewGameWatchService(watcher Watcher, game string, tables []string) *GameWatchService {
	return &GameWatchService{watcher: watcher, game: game, tables: tables}
}

// Serve implements suture.Service.
func (s *GameWatchService) Serve(ctx context.Context) error {
	sub, err := s.watcher.Watch(s.game, s.tables, s.record)
	if err != nil {
		return fmt.Errorf("watch game %s: %w", s.game, err)
	}
	defer sub.Close()

	logging.Debug().Str("game", s.game).Msg("startup watch active")
	<-ctx.Done()
	return ctx.Err()
}

func (s *GameWatchService) record(u models.Update) {
	meta := u.Meta()
	s.mu.Lock()
	s.stats.Updates++
	s.stats.LastUpdateAt = time.Now()
	s.stats.LastSource = string(meta.Source)
	s.mu.Unlock()
}

// Stats returns what the watch has received so far.
func (s *GameWatchService) Stats() WatchStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Game returns the watched game id.
func (s *GameWatchService) Game() string {
	return s.game
}

// String implements fmt.Stringer for suture's logs.
func (s *GameWatchService) String() string {
	return "game-watch:" + s.game
}
