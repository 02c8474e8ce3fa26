// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package polling

import (
	"sync"
	"time"

	"github.com/tomtom215/quizsync/internal/config"
	"github.com/tomtom215/quizsync/internal/models"
)

// Config holds the optimizer parameters.
type Config struct {
	BaseInterval   time.Duration
	MaxInterval    time.Duration
	Multiplier     float64
	ResetThreshold int
}

// DefaultConfig returns the parameters used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BaseInterval:   2 * time.Second,
		MaxInterval:    15 * time.Second,
		Multiplier:     1.5,
		ResetThreshold: 2,
	}
}

// FromConfig converts the polling section of the application config.
func FromConfig(c config.PollingConfig) Config {
	return Config{
		BaseInterval:   c.BaseInterval,
		MaxInterval:    c.MaxInterval,
		Multiplier:     c.Multiplier,
		ResetThreshold: c.ResetThreshold,
	}
}

// Preset returns the parameters tuned for a game phase. A waiting room
// tolerates slower polling than a running round; a finished game barely
// changes at all. Unknown phases get DefaultConfig.
func Preset(phase models.GamePhase) Config {
	switch phase {
	case models.PhaseWaiting:
		return Config{BaseInterval: 3 * time.Second, MaxInterval: 15 * time.Second, Multiplier: 1.5, ResetThreshold: 2}
	case models.PhaseActive:
		return Config{BaseInterval: time.Second, MaxInterval: 5 * time.Second, Multiplier: 1.5, ResetThreshold: 3}
	case models.PhaseCompleted:
		return Config{BaseInterval: 10 * time.Second, MaxInterval: 60 * time.Second, Multiplier: 2.0, ResetThreshold: 1}
	default:
		return DefaultConfig()
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseInterval <= 0 {
		c.BaseInterval = d.BaseInterval
	}
	if c.MaxInterval < c.BaseInterval {
		c.MaxInterval = c.BaseInterval
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.ResetThreshold < 1 {
		c.ResetThreshold = d.ResetThreshold
	}
	return c
}

// State is the optimizer's observable state.
type State struct {
	ConsecutiveNoChanges int
	CurrentInterval      time.Duration
}

// Optimizer adapts a poll interval to how often polls observe changes.
//
// A change resets the interval to BaseInterval. Once ResetThreshold polls in
// a row saw no change, every further no-change poll multiplies the interval
// by Multiplier, clamped to MaxInterval. The interval therefore always lies
// within [BaseInterval, MaxInterval].
//
// The optimizer does no I/O and owns no timers; callers use the returned
// interval as their next poll delay.
type Optimizer struct {
	mu    sync.Mutex
	cfg   Config
	state State
}

// New creates an Optimizer starting at cfg.BaseInterval.
func New(cfg Config) *Optimizer {
	cfg = cfg.withDefaults()
	return &Optimizer{
		cfg:   cfg,
		state: State{CurrentInterval: cfg.BaseInterval},
	}
}

// OnChangeDetected resets the optimizer and returns BaseInterval.
func (o *Optimizer) OnChangeDetected() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = State{CurrentInterval: o.cfg.BaseInterval}
	return o.state.CurrentInterval
}

// OnNoChange records a poll that saw nothing new and returns the next
// interval, which may be unchanged.
func (o *Optimizer) OnNoChange() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.state.ConsecutiveNoChanges++
	if o.state.ConsecutiveNoChanges >= o.cfg.ResetThreshold {
		next := time.Duration(float64(o.state.CurrentInterval) * o.cfg.Multiplier)
		o.state.CurrentInterval = min(next, o.cfg.MaxInterval)
	}
	return o.state.CurrentInterval
}

// Reset is OnChangeDetected without the return value.
func (o *Optimizer) Reset() {
	o.OnChangeDetected()
}

// Reconfigure swaps the parameters, e.g. when the game phase changes, and
// restarts from the new BaseInterval.
func (o *Optimizer) Reconfigure(cfg Config) time.Duration {
	cfg = cfg.withDefaults()
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = cfg
	o.state = State{CurrentInterval: cfg.BaseInterval}
	return cfg.BaseInterval
}

// Interval returns the current interval.
func (o *Optimizer) Interval() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.CurrentInterval
}

// State returns a copy of the current state.
func (o *Optimizer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Config returns the active parameters.
func (o *Optimizer) Config() Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}
