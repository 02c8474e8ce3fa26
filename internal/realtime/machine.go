// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package realtime

import "time"

// State is the connection state of a Manager.
type State string

const (
	StateDisconnected    State = "DISCONNECTED"
	StateConnecting      State = "CONNECTING"
	StateConnected       State = "CONNECTED"
	StateReconnecting    State = "RECONNECTING"
	StateFallbackPolling State = "FALLBACK_POLLING"
)

// gaugeValue maps a state to the realtime_connection_state gauge value.
func (s State) gaugeValue() float64 {
	switch s {
	case StateConnecting:
		return 1
	case StateConnected:
		return 2
	case StateReconnecting:
		return 3
	case StateFallbackPolling:
		return 4
	default:
		return 0
	}
}

// ConnectionStatus is the externally visible status of a Manager.
type ConnectionStatus struct {
	State             State  `json:"state"`
	IsConnected       bool   `json:"is_connected"`
	IsReconnecting    bool   `json:"is_reconnecting"`
	Polling           bool   `json:"polling"`
	LastError         string `json:"last_error,omitempty"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
}

// Action is a side effect the Manager must perform after a transition.
type Action int

const (
	ActionNone Action = iota
	// ActionConnect opens a new channel, replacing any current one.
	ActionConnect
	// ActionScheduleReconnect arms the reconnect timer for Decision.Delay.
	ActionScheduleReconnect
	// ActionStartFallback starts the fallback poll loop.
	ActionStartFallback
	// ActionStopFallback stops the fallback poll loop.
	ActionStopFallback
)

func (a Action) String() string {
	switch a {
	case ActionConnect:
		return "connect"
	case ActionScheduleReconnect:
		return "schedule_reconnect"
	case ActionStartFallback:
		return "start_fallback"
	case ActionStopFallback:
		return "stop_fallback"
	default:
		return "none"
	}
}

// Decision is what a Machine transition asks the caller to do.
type Decision struct {
	Action Action
	Delay  time.Duration
}

// maxBackoffShift keeps ReconnectDelay << attempts from overflowing.
const maxBackoffShift = 30

// MachineConfig parameterizes reconnect backoff.
type MachineConfig struct {
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// Machine is the pure connection state machine. It owns no timers and
// performs no I/O; every event returns the Decision the caller executes.
//
// Fallback polling is tracked separately from the state because polling keeps
// running while a manual reconnect is in progress and stops only once a
// channel is subscribed again.
//
// Not safe for concurrent use; a Manager drives it from one goroutine.
type Machine struct {
	cfg       MachineConfig
	state     State
	attempts  int
	polling   bool
	closed    bool
	lastError string
}

// NewMachine returns a Machine in StateDisconnected.
func NewMachine(cfg MachineConfig) *Machine {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}
	return &Machine{cfg: cfg, state: StateDisconnected}
}

// Start begins the first connection. Without credentials there is nothing
// to connect to and the machine goes straight to fallback polling.
func (m *Machine) Start(configured bool) Decision {
	if m.closed {
		return Decision{}
	}
	return m.connectOrFallback(configured)
}

// Reconnect is a manual reconnect: the attempt counter and last error are
// cleared and a connect starts immediately.
func (m *Machine) Reconnect(configured bool) Decision {
	if m.closed {
		return Decision{}
	}
	m.attempts = 0
	m.lastError = ""
	return m.connectOrFallback(configured)
}

func (m *Machine) connectOrFallback(configured bool) Decision {
	if !configured {
		m.state = StateFallbackPolling
		return m.startFallback()
	}
	m.state = StateConnecting
	return Decision{Action: ActionConnect}
}

// OnSubscribed records a successful channel subscription.
func (m *Machine) OnSubscribed() Decision {
	if m.closed {
		return Decision{}
	}
	m.state = StateConnected
	m.attempts = 0
	m.lastError = ""
	if m.polling {
		m.polling = false
		return Decision{Action: ActionStopFallback}
	}
	return Decision{}
}

// OnChannelFailure records a failed connect, channel error, timeout or close.
// The n-th consecutive failure schedules a reconnect after
// ReconnectDelay * 2^(n-1); the MaxReconnectAttempts-th switches to fallback
// polling instead.
func (m *Machine) OnChannelFailure(reason string) Decision {
	if m.closed {
		return Decision{}
	}
	m.lastError = reason
	m.attempts++

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.state = StateFallbackPolling
		return m.startFallback()
	}

	delay := m.cfg.ReconnectDelay << min(m.attempts-1, maxBackoffShift)
	m.state = StateReconnecting
	return Decision{Action: ActionScheduleReconnect, Delay: delay}
}

// OnReconnectTimer fires the scheduled reconnect.
func (m *Machine) OnReconnectTimer() Decision {
	if m.state != StateReconnecting {
		return Decision{}
	}
	m.state = StateConnecting
	return Decision{Action: ActionConnect}
}

// Close moves to StateDisconnected. Later events are ignored.
func (m *Machine) Close() Decision {
	m.closed = true
	m.state = StateDisconnected
	if m.polling {
		m.polling = false
		return Decision{Action: ActionStopFallback}
	}
	return Decision{}
}

func (m *Machine) startFallback() Decision {
	if m.polling {
		return Decision{}
	}
	m.polling = true
	return Decision{Action: ActionStartFallback}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Attempts returns the number of consecutive failures since the last success.
func (m *Machine) Attempts() int { return m.attempts }

// Polling reports whether fallback polling should be running.
func (m *Machine) Polling() bool { return m.polling }

// Status returns the externally visible status.
func (m *Machine) Status() ConnectionStatus {
	return ConnectionStatus{
		State:             m.state,
		IsConnected:       m.state == StateConnected,
		IsReconnecting:    m.state == StateReconnecting || (m.state == StateConnecting && m.attempts > 0),
		Polling:           m.polling,
		LastError:         m.lastError,
		ReconnectAttempts: m.attempts,
	}
}
