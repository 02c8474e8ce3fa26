// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package realtime

import (
	"testing"
	"time"
)

func newTestMachine() *Machine {
	return NewMachine(MachineConfig{ReconnectDelay: time.Second, MaxReconnectAttempts: 5})
}

func TestMachine_StartConnects(t *testing.T) {
	t.Parallel()

	m := newTestMachine()
	if m.State() != StateDisconnected {
		t.Fatalf("initial state = %s", m.State())
	}
	if d := m.Start(true); d.Action != ActionConnect {
		t.Errorf("Start = %v, want connect", d.Action)
	}
	if m.State() != StateConnecting {
		t.Errorf("state = %s, want CONNECTING", m.State())
	}
}

func TestMachine_StartWithoutCredentialsPolls(t *testing.T) {
	t.Parallel()

	m := newTestMachine()
	if d := m.Start(false); d.Action != ActionStartFallback {
		t.Errorf("Start = %v, want start_fallback", d.Action)
	}
	if m.State() != StateFallbackPolling || !m.Polling() {
		t.Errorf("state = %s polling = %v", m.State(), m.Polling())
	}
}

func TestMachine_ExponentialBackoffThenFallback(t *testing.T) {
	t.Parallel()

	m := newTestMachine()
	m.Start(true)
	m.OnSubscribed()
	if !m.Status().IsConnected {
		t.Fatalf("status after subscribe = %+v", m.Status())
	}

	wantDelays := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, want := range wantDelays {
		d := m.OnChannelFailure("CHANNEL_ERROR")
		if d.Action != ActionScheduleReconnect || d.Delay != want {
			t.Fatalf("failure #%d: decision = %+v, want reconnect after %v", i+1, d, want)
		}
		if m.State() != StateReconnecting {
			t.Fatalf("failure #%d: state = %s", i+1, m.State())
		}
		if m.Attempts() != i+1 {
			t.Fatalf("failure #%d: attempts = %d", i+1, m.Attempts())
		}
		if d := m.OnReconnectTimer(); d.Action != ActionConnect {
			t.Fatalf("timer #%d: decision = %+v", i+1, d)
		}
	}

	d := m.OnChannelFailure("CHANNEL_ERROR")
	if d.Action != ActionStartFallback {
		t.Fatalf("fifth failure: decision = %+v, want start_fallback", d)
	}
	if m.State() != StateFallbackPolling || !m.Polling() {
		t.Errorf("state = %s polling = %v", m.State(), m.Polling())
	}
	if st := m.Status(); st.LastError != "CHANNEL_ERROR" || st.IsConnected || st.ReconnectAttempts != 5 {
		t.Errorf("status = %+v", st)
	}

	if d := m.OnChannelFailure("CLOSED"); d.Action != ActionNone {
		t.Errorf("failure while polling should not restart polling, got %+v", d)
	}
}

func TestMachine_FallbackAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		max      int
		failures int
	}{
		{"zero falls back at once", 0, 1},
		{"one falls back at once", 1, 1},
		{"two", 2, 2},
		{"five", 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := NewMachine(MachineConfig{ReconnectDelay: time.Millisecond, MaxReconnectAttempts: tt.max})
			m.Start(true)
			for i := 1; i < tt.failures; i++ {
				if d := m.OnChannelFailure("x"); d.Action != ActionScheduleReconnect {
					t.Fatalf("failure #%d = %v, want schedule_reconnect", i, d.Action)
				}
				m.OnReconnectTimer()
			}
			if d := m.OnChannelFailure("x"); d.Action != ActionStartFallback {
				t.Errorf("failure #%d = %v, want start_fallback", tt.failures, d.Action)
			}
		})
	}
}

func TestMachine_SubscribedResetsAndStopsFallback(t *testing.T) {
	t.Parallel()

	m := NewMachine(MachineConfig{ReconnectDelay: time.Millisecond, MaxReconnectAttempts: 0})
	m.Start(true)
	if d := m.OnChannelFailure("boom"); d.Action != ActionStartFallback {
		t.Fatalf("zero max attempts should fall back at once, got %+v", d)
	}

	if d := m.Reconnect(true); d.Action != ActionConnect {
		t.Fatalf("Reconnect = %+v", d)
	}
	if !m.Polling() {
		t.Error("polling continues until the channel is subscribed again")
	}
	if st := m.Status(); st.LastError != "" || st.ReconnectAttempts != 0 {
		t.Errorf("Reconnect should reset status, got %+v", st)
	}

	if d := m.OnSubscribed(); d.Action != ActionStopFallback {
		t.Errorf("OnSubscribed = %+v, want stop_fallback", d)
	}
	st := m.Status()
	if !st.IsConnected || st.Polling || st.ReconnectAttempts != 0 || st.State != StateConnected {
		t.Errorf("status = %+v", st)
	}
}

func TestMachine_SubscribedAfterRetriesResetsAttempts(t *testing.T) {
	t.Parallel()

	m := newTestMachine()
	m.Start(true)
	m.OnChannelFailure("x")
	m.OnReconnectTimer()
	m.OnChannelFailure("x")
	m.OnReconnectTimer()
	if !m.Status().IsReconnecting {
		t.Error("connecting after a failure should report reconnecting")
	}

	if d := m.OnSubscribed(); d.Action != ActionNone {
		t.Errorf("OnSubscribed without polling = %+v", d)
	}
	if m.Attempts() != 0 {
		t.Errorf("attempts = %d, want 0", m.Attempts())
	}

	// Backoff starts over after a successful subscribe.
	if d := m.OnChannelFailure("x"); d.Delay != time.Second {
		t.Errorf("delay = %v, want 1s", d.Delay)
	}
}

func TestMachine_StaleTimerIgnored(t *testing.T) {
	t.Parallel()

	m := newTestMachine()
	m.Start(true)
	m.OnSubscribed()
	if d := m.OnReconnectTimer(); d.Action != ActionNone {
		t.Errorf("timer in CONNECTED should be ignored, got %+v", d)
	}
}

func TestMachine_CloseIgnoresLaterEvents(t *testing.T) {
	t.Parallel()

	m := newTestMachine()
	m.Start(false)
	if d := m.Close(); d.Action != ActionStopFallback {
		t.Errorf("Close while polling = %+v", d)
	}
	for _, d := range []Decision{
		m.OnSubscribed(),
		m.OnChannelFailure("x"),
		m.OnReconnectTimer(),
		m.Reconnect(true),
		m.Start(true),
	} {
		if d.Action != ActionNone {
			t.Errorf("event after Close produced %v", d.Action)
		}
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %s", m.State())
	}
}
