// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package realtime

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/models"
)

// ErrUnwatchedTable is returned by Watch for a table the registry does not
// subscribe to.
var ErrUnwatchedTable = errors.New("table is not watched")

// Registry shares one Manager per scope among any number of consumers.
// The first Watch on a scope starts its manager; the last Subscription.Close
// shuts it down.
type Registry struct {
	transport Transport
	fetcher   Fetcher
	cfg       Config
	tables    []string
	opts      []Option

	mu     sync.Mutex
	scopes map[string]*sharedScope
	nextID uint64
	closed bool
}

type sharedScope struct {
	mgr *Manager

	mu   sync.RWMutex
	subs map[uint64]*Subscription
}

// Subscription is one consumer's interest in a scope. Close is the only
// disposal operation and is safe to call more than once.
type Subscription struct {
	id       uint64
	scope    string
	tables   []string
	handler  Handler
	registry *Registry
	once     sync.Once
}

// NewRegistry creates a Registry whose managers subscribe to tables.
func NewRegistry(transport Transport, fetcher Fetcher, cfg Config, tables []string, opts ...Option) *Registry {
	return &Registry{
		transport: transport,
		fetcher:   fetcher,
		cfg:       cfg,
		tables:    slices.Clone(tables),
		opts:      opts,
		scopes:    make(map[string]*sharedScope),
	}
}

// Watch registers handler for updates of tables in scope. An empty tables
// list means every watched table.
func (r *Registry) Watch(scope string, tables []string, handler Handler) (*Subscription, error) {
	if scope == "" {
		return nil, errors.New("watch: empty scope")
	}
	if handler == nil {
		return nil, errors.New("watch: nil handler")
	}
	for _, t := range tables {
		if !slices.Contains(r.tables, t) {
			return nil, fmt.Errorf("watch %s: %w: %q", scope, ErrUnwatchedTable, t)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	r.nextID++
	sub := &Subscription{
		id:       r.nextID,
		scope:    scope,
		tables:   slices.Clone(tables),
		handler:  handler,
		registry: r,
	}

	s, ok := r.scopes[scope]
	if !ok {
		s = &sharedScope{subs: make(map[uint64]*Subscription)}
		r.scopes[scope] = s
	}
	s.mu.Lock()
	s.subs[sub.id] = sub
	s.mu.Unlock()

	if !ok {
		topic := Topic{Scope: scope, Tables: slices.Clone(r.tables)}
		s.mgr = NewManager(topic, r.transport, r.fetcher, s.dispatch, r.cfg, r.opts...)
		logging.Info().Str("scope", scope).Msg("Started realtime manager")
	}
	return sub, nil
}

// Manager returns the running manager for scope.
func (r *Registry) Manager(scope string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scopes[scope]
	if !ok {
		return nil, false
	}
	return s.mgr, true
}

// Scopes returns the scopes with at least one subscription, sorted.
func (r *Registry) Scopes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.scopes))
	for scope := range r.scopes {
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}

// Subscribers returns how many subscriptions scope has.
func (r *Registry) Subscribers(scope string) int {
	r.mu.Lock()
	s, ok := r.scopes[scope]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Close shuts down every manager. Later Watch calls fail with ErrClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	scopes := r.scopes
	r.scopes = make(map[string]*sharedScope)
	r.mu.Unlock()

	for _, s := range scopes {
		_ = s.mgr.Close()
	}
	return nil
}

func (r *Registry) release(sub *Subscription) {
	r.mu.Lock()
	s, ok := r.scopes[sub.scope]
	if !ok {
		r.mu.Unlock()
		return
	}
	s.mu.Lock()
	delete(s.subs, sub.id)
	remaining := len(s.subs)
	s.mu.Unlock()

	if remaining > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.scopes, sub.scope)
	r.mu.Unlock()

	_ = s.mgr.Close()
	logging.Info().Str("scope", sub.scope).Msg("Stopped realtime manager")
}

func (s *sharedScope) dispatch(u models.Update) {
	table := models.TableForKind(u.Kind())

	s.mu.RLock()
	targets := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if len(sub.tables) == 0 || slices.Contains(sub.tables, table) {
			targets = append(targets, sub)
		}
	}
	s.mu.RUnlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })
	for _, sub := range targets {
		sub.handler(u)
	}
}

// Scope returns the subscribed scope.
func (s *Subscription) Scope() string { return s.scope }

// Close removes the subscription. The scope's manager is closed when its
// last subscription goes away.
func (s *Subscription) Close() {
	s.once.Do(func() { s.registry.release(s) })
}
