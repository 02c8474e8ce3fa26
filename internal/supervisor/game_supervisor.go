// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package supervisor

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/supervisor/services"
	"github.com/tomtom215/quizsync/internal/validation"
)

// Errors for GameSupervisor.
var (
	ErrGameAlreadyWatched = errors.New("game is already watched")
	ErrGameNotWatched     = errors.New("game is not watched")
	ErrNilSupervisorTree  = errors.New("supervisor tree cannot be nil")
	ErrNilWatcher         = errors.New("watcher cannot be nil")
)

// WatchStatus describes one supervised game watch.
type WatchStatus struct {
	Game      string    `json:"game"`
	StartedAt time.Time `json:"started_at"`
	services.WatchStats
}

type managedWatch struct {
	token     suture.ServiceToken
	service   *services.GameWatchService
	startedAt time.Time
}

// GameSupervisor keeps one supervised GameWatchService per configured
// game and reconciles that set when the configuration changes.
//
// Thread Safety: all methods are safe for concurrent use.
type GameSupervisor struct {
	tree    *SupervisorTree
	watcher services.Watcher
	tables  []string

	mu      sync.RWMutex
	watches map[string]*managedWatch
}

// NewGameSupervisor creates a supervisor adding watches to tree's realtime
// layer. tables nil means every table the watcher serves.
func NewGameSupervisor(tree *SupervisorTree, watcher services.Watcher, tables []string) (*GameSupervisor, error) {
	if tree == nil {
		return nil, ErrNilSupervisorTree
	}
	if watcher == nil {
		return nil, ErrNilWatcher
	}
	return &GameSupervisor{
		tree:    tree,
		watcher: watcher,
		tables:  tables,
		watches: make(map[string]*managedWatch),
	}, nil
}

// AddGame starts watching game.
func (s *GameSupervisor) AddGame(game string) error {
	if verr := validation.ValidateGameID("game", game); verr != nil {
		return verr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.watches[game]; exists {
		return ErrGameAlreadyWatched
	}
	svc := services.NewGameWatchService(s.watcher, game, s.tables)
	s.watches[game] = &managedWatch{
		token:     s.tree.AddRealtimeService(svc),
		service:   svc,
		startedAt: time.Now(),
	}

	logging.Info().Str("game", game).Msg("game watch added to supervisor")
	return nil
}

// RemoveGame stops watching game. Displays connected to the game keep
// their own subscription.
func (s *GameSupervisor) RemoveGame(game string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	managed, exists := s.watches[game]
	if !exists {
		return ErrGameNotWatched
	}
	delete(s.watches, game)
	if err := s.tree.RemoveRealtimeService(managed.token); err != nil {
		return fmt.Errorf("remove watch for %s: %w", game, err)
	}

	logging.Info().Str("game", game).Msg("game watch removed from supervisor")
	return nil
}

// Sync makes the watched set equal to games. Individual failures are
// logged and returned joined; the remaining games are still reconciled.
func (s *GameSupervisor) Sync(games []string) error {
	want := make(map[string]bool, len(games))
	for _, g := range games {
		want[g] = true
	}

	var errs []error
	for _, g := range s.Games() {
		if !want[g] {
			if err := s.RemoveGame(g); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for g := range want {
		if s.IsWatched(g) {
			continue
		}
		if err := s.AddGame(g); err != nil {
			logging.Warn().Err(err).Str("game", g).Msg("failed to watch configured game")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsWatched reports whether game has a supervised watch.
func (s *GameSupervisor) IsWatched(game string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.watches[game]
	return ok
}

// Games returns the watched game ids, sorted.
func (s *GameSupervisor) Games() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	games := make([]string, 0, len(s.watches))
	for g := range s.watches {
		games = append(games, g)
	}
	sort.Strings(games)
	return games
}

// Statuses returns the status of every watch, sorted by game.
func (s *GameSupervisor) Statuses() []WatchStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]WatchStatus, 0, len(s.watches))
	for g, m := range s.watches {
		out = append(out, WatchStatus{Game: g, StartedAt: m.startedAt, WatchStats: m.service.Stats()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Game < out[j].Game })
	return out
}
