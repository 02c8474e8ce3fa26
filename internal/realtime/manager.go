// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/quizsync/internal/cache"
	"github.com/tomtom215/quizsync/internal/config"
	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/metrics"
	"github.com/tomtom215/quizsync/internal/models"
	"github.com/tomtom215/quizsync/internal/polling"
	"github.com/tomtom215/quizsync/internal/resilience"
)

// Config parameterizes a Manager.
type Config struct {
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	FallbackInterval     time.Duration
	// AdaptivePolling lets the polling optimizer stretch the fallback
	// interval for quiet games, using the preset for the game phase.
	AdaptivePolling bool
	// Polling seeds the optimizer until the game phase is known.
	Polling polling.Config
}

// DefaultConfig returns the default manager parameters.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:       time.Second,
		MaxReconnectAttempts: 5,
		FallbackInterval:     5 * time.Second,
		AdaptivePolling:      true,
		Polling:              polling.DefaultConfig(),
	}
}

// ConfigFrom builds manager parameters from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		ReconnectDelay:       cfg.Realtime.ReconnectDelay,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		FallbackInterval:     cfg.Realtime.FallbackInterval,
		AdaptivePolling:      cfg.Realtime.AdaptivePolling,
		Polling:              polling.FromConfig(cfg.Polling),
	}
}

func (c Config) initialPolling() polling.Config {
	p := c.Polling
	p.BaseInterval = c.FallbackInterval
	p.MaxInterval = max(p.MaxInterval, c.FallbackInterval)
	return p
}

// Option configures a Manager.
type Option func(*Manager)

// WithCache makes the manager drop cached rows for its scope whenever a live
// update arrives, so the next direct fetch is not served stale data.
func WithCache(c *cache.Manager) Option {
	return func(m *Manager) { m.cache = c }
}

// WithBreaker guards channel opens with b. While the circuit is open, opens
// fail fast and count as channel failures, so the manager reaches fallback
// polling without dialling a service known to be down.
func WithBreaker(b *resilience.Breaker) Option {
	return func(m *Manager) { m.breaker = b }
}

type openResult struct {
	gen uint64
	ch  Channel
	err error
}

type pollOutcome struct {
	gen uint64
	pollResult
}

// loop holds state owned by the event-loop goroutine.
type loop struct {
	ch   Channel
	envs <-chan Envelope
	gen  uint64

	reconnectTimer *time.Timer
	reconnectC     <-chan time.Time

	pollTimer *time.Timer
	pollC     <-chan time.Time
	pollGen   uint64
	phase     models.GamePhase
}

// Manager keeps one scope (a game) in sync over a realtime channel, with
// reconnect backoff and fallback polling.
//
// All connection state is owned by a single event-loop goroutine started by
// NewManager. The pure Machine decides transitions; the loop executes the
// resulting timers, channel opens and polls. Handler calls happen on the
// loop goroutine in delivery order.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Manager struct {
	topic     Topic
	transport Transport
	fetcher   Fetcher
	handler   Handler
	cfg       Config
	cache     *cache.Manager
	breaker   *resilience.Breaker
	log       zerolog.Logger

	machine   *Machine
	recon     *Reconciler
	poller    *poller
	optimizer *polling.Optimizer

	reconnectReq chan struct{}
	channelReq   chan chan Channel
	opened       chan openResult
	polled       chan pollOutcome

	mu     sync.RWMutex
	status ConnectionStatus

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager starts a Manager for topic. Close must be called to release
// the channel and stop the loop.
func NewManager(topic Topic, transport Transport, fetcher Fetcher, handler Handler, cfg Config, opts ...Option) *Manager {
	if cfg.FallbackInterval <= 0 {
		cfg.FallbackInterval = DefaultConfig().FallbackInterval
	}
	// Fetches made on the manager's behalf log with its component and scope.
	base := logging.With().
		Str("component", "realtime").
		Str("transport", transport.Name()).
		Logger()
	ctx := logging.ContextWithLogger(logging.ContextWithScope(context.Background(), topic.Scope), base)
	ctx, cancel := context.WithCancel(ctx)

	m := &Manager{
		topic:     topic,
		transport: transport,
		fetcher:   fetcher,
		handler:   handler,
		cfg:       cfg,
		log:       *logging.Ctx(ctx),
		machine: NewMachine(MachineConfig{
			ReconnectDelay:       cfg.ReconnectDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		}),
		recon:        NewReconciler(),
		poller:       newPoller(topic, fetcher),
		optimizer:    polling.New(cfg.initialPolling()),
		reconnectReq: make(chan struct{}, 1),
		channelReq:   make(chan chan Channel),
		opened:       make(chan openResult),
		polled:       make(chan pollOutcome),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	metrics.RealtimeActiveManagers.Inc()
	go m.run()
	return m
}

// Scope returns the scope this manager syncs.
func (m *Manager) Scope() string { return m.topic.Scope }

// Topic returns the subscribed topic.
func (m *Manager) Topic() Topic { return m.topic }

// Status returns the current connection status.
func (m *Manager) Status() ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Done is closed once the manager has shut down.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Reconnect resets the attempt counter and reconnects immediately.
func (m *Manager) Reconnect() error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.reconnectReq <- struct{}{}:
	default:
		// A reconnect is already pending.
	}
	return nil
}

// BroadcastEvent sends an application event over the subscribed channel.
// payload is sent as-is when it is []byte or json.RawMessage and JSON
// encoded otherwise. Delivery is not confirmed.
func (m *Manager) BroadcastEvent(ctx context.Context, event string, payload any) error {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case json.RawMessage:
		data = p
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encode %s payload: %w", event, err)
		}
	}

	reply := make(chan Channel, 1)
	select {
	case m.channelReq <- reply:
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	ch := <-reply
	if ch == nil {
		return ErrNotConnected
	}
	if err := ch.Send(ctx, event, data); err != nil {
		return fmt.Errorf("broadcast %s: %w", event, err)
	}
	return nil
}

// Close unsubscribes, stops all timers and waits for the loop to exit.
func (m *Manager) Close() error {
	m.closeOnce.Do(m.cancel)
	<-m.done
	return nil
}

func (m *Manager) run() {
	defer close(m.done)
	l := &loop{}

	m.apply(l, m.machine.Start(m.transport.Configured()))
	for {
		m.publish()

		select {
		case <-m.ctx.Done():
			m.teardown(l)
			return

		case <-m.reconnectReq:
			m.log.Info().Msg("Manual reconnect requested")
			m.apply(l, m.machine.Reconnect(m.transport.Configured()))

		case reply := <-m.channelReq:
			if l.ch != nil && m.machine.State() == StateConnected {
				reply <- l.ch
			} else {
				reply <- nil
			}

		case res := <-m.opened:
			if res.gen != l.gen {
				if res.ch != nil {
					_ = res.ch.Close()
				}
				continue
			}
			if res.err != nil {
				m.log.Warn().Err(res.err).Msg("Failed to open realtime channel")
				m.apply(l, m.machine.OnChannelFailure(res.err.Error()))
				continue
			}
			l.ch = res.ch
			l.envs = res.ch.Envelopes()

		case env, ok := <-l.envs:
			if !ok {
				m.dropChannel(l)
				m.apply(l, m.machine.OnChannelFailure(string(StatusClosed)))
				continue
			}
			m.handleEnvelope(l, env)

		case <-l.reconnectC:
			l.reconnectC = nil
			m.apply(l, m.machine.OnReconnectTimer())

		case <-l.pollC:
			l.pollC = nil
			go m.runPoll(l.pollGen)

		case out := <-m.polled:
			if out.gen != l.pollGen || !m.machine.Polling() {
				continue
			}
			m.finishPoll(l, out)
		}
	}
}

func (m *Manager) handleEnvelope(l *loop, env Envelope) {
	switch env.Kind {
	case EnvelopeStatus:
		switch env.Status {
		case StatusSubscribed:
			m.log.Info().Msg("Realtime channel subscribed")
			m.apply(l, m.machine.OnSubscribed())
		case StatusChannelError, StatusTimedOut, StatusClosed:
			reason := string(env.Status)
			if env.Err != nil {
				reason = reason + ": " + env.Err.Error()
			}
			m.log.Warn().Str("status", string(env.Status)).AnErr("cause", env.Err).Msg("Realtime channel lost")
			m.dropChannel(l)
			m.apply(l, m.machine.OnChannelFailure(reason))
		}

	case EnvelopeRowChange:
		if !m.topic.Watches(env.Table) {
			return
		}
		u, err := models.DecodeRow(env.Table, env.Change, models.SourceLive, env.Row)
		if err != nil {
			m.log.Warn().Err(err).Str("table", env.Table).Msg("Dropping undecodable row change")
			return
		}
		m.deliver(u)

	case EnvelopeBroadcast:
		u, err := models.DecodeBroadcast(env.Event, env.Payload)
		if err != nil {
			if errors.Is(err, models.ErrUnknownEvent) {
				m.log.Debug().Str("event", env.Event).Msg("Ignoring broadcast event")
			} else {
				m.log.Warn().Err(err).Str("event", env.Event).Msg("Dropping undecodable broadcast")
			}
			return
		}
		if !m.topic.Watches(models.TableForKind(u.Kind())) {
			return
		}
		m.deliver(u)
	}
}

func (m *Manager) apply(l *loop, d Decision) {
	switch d.Action {
	case ActionConnect:
		m.dropChannel(l)
		stopTimer(l.reconnectTimer)
		l.reconnectC = nil
		l.gen++
		go m.open(l.gen)

	case ActionScheduleReconnect:
		stopTimer(l.reconnectTimer)
		l.reconnectTimer = time.NewTimer(d.Delay)
		l.reconnectC = l.reconnectTimer.C
		metrics.RealtimeReconnects.WithLabelValues(m.topic.Scope).Inc()
		m.log.Info().
			Int("attempt", m.machine.Attempts()).
			Dur("delay", d.Delay).
			Msg("Scheduling realtime reconnect")

	case ActionStartFallback:
		l.pollGen++
		m.optimizer.Reset()
		stopTimer(l.pollTimer)
		l.pollTimer = time.NewTimer(0)
		l.pollC = l.pollTimer.C
		m.log.Warn().
			Str("last_error", m.machine.Status().LastError).
			Msg("Realtime unavailable, falling back to polling")

	case ActionStopFallback:
		l.pollGen++
		stopTimer(l.pollTimer)
		l.pollC = nil
		m.log.Info().Msg("Realtime restored, fallback polling stopped")
	}
}

func (m *Manager) open(gen uint64) {
	ch, err := m.openChannel()
	select {
	case m.opened <- openResult{gen: gen, ch: ch, err: err}:
	case <-m.ctx.Done():
		if ch != nil {
			_ = ch.Close()
		}
	}
}

func (m *Manager) openChannel() (Channel, error) {
	if m.breaker == nil {
		return m.transport.Open(m.ctx, m.topic)
	}
	return resilience.ExecuteTyped(m.ctx, m.breaker, func(ctx context.Context) (Channel, error) {
		return m.transport.Open(ctx, m.topic)
	})
}

func (m *Manager) runPoll(gen uint64) {
	res := m.poller.poll(m.ctx)
	select {
	case m.polled <- pollOutcome{gen: gen, pollResult: res}:
	case <-m.ctx.Done():
	}
}

func (m *Manager) finishPoll(l *loop, out pollOutcome) {
	changed := len(out.updates) > 0
	metrics.RecordFallbackPoll(m.topic.Scope, changed, out.err)
	if out.err != nil {
		m.log.Warn().Err(out.err).Msg("Fallback poll failed")
	}
	if changed && logging.IsLevelEnabled(zerolog.DebugLevel) {
		m.log.Debug().Interface("changes", countByKind(out.updates)).Msg("Fallback poll found changes")
	}
	for _, u := range out.updates {
		m.deliver(u)
	}

	if m.cfg.AdaptivePolling && out.phase != "" && out.phase != l.phase {
		l.phase = out.phase
		m.optimizer.Reconfigure(polling.Preset(out.phase))
		m.log.Debug().Str("phase", string(out.phase)).Msg("Polling preset changed")
	}

	next := m.cfg.FallbackInterval
	if m.cfg.AdaptivePolling {
		if changed {
			next = m.optimizer.OnChangeDetected()
		} else {
			next = m.optimizer.OnNoChange()
		}
	}
	l.pollTimer = time.NewTimer(next)
	l.pollC = l.pollTimer.C
}

func (m *Manager) deliver(u models.Update) {
	if !m.recon.Accept(u) {
		return
	}
	meta := u.Meta()
	if m.cache != nil && meta.Source != models.SourcePoll {
		m.cache.InvalidatePrefix(cache.Prefix("game", m.topic.Scope))
	}
	metrics.RealtimeUpdates.WithLabelValues(string(u.Kind()), string(meta.Source)).Inc()
	if p, ok := u.(models.ParticipantUpdate); ok && meta.Change == models.ChangeInsert {
		m.log.Debug().Str("participant", logging.SanitizeName(p.Participant.Nickname)).Msg("Participant joined")
	}

	defer func() {
		if r := recover(); r != nil {
			logging.CtxErr(m.ctx, fmt.Errorf("handler panic: %v", r)).Str("entity", u.EntityKey()).Msg("Update handler panicked")
		}
	}()
	m.handler(u)
}

func (m *Manager) dropChannel(l *loop) {
	if l.ch == nil {
		return
	}
	if err := l.ch.Close(); err != nil {
		m.log.Debug().Err(err).Msg("Error closing realtime channel")
	}
	l.ch = nil
	l.envs = nil
}

func (m *Manager) publish() {
	st := m.machine.Status()
	m.mu.Lock()
	prev := m.status.State
	m.status = st
	m.mu.Unlock()

	if prev != st.State {
		metrics.RealtimeState.WithLabelValues(m.topic.Scope).Set(st.State.gaugeValue())
		m.log.Debug().Str("from", string(prev)).Str("to", string(st.State)).Msg("Realtime state changed")
	}
}

func (m *Manager) teardown(l *loop) {
	m.machine.Close()
	stopTimer(l.reconnectTimer)
	stopTimer(l.pollTimer)
	m.dropChannel(l)
	m.publish()
	metrics.RealtimeActiveManagers.Dec()
	metrics.ForgetScope(m.topic.Scope)
	m.log.Debug().Msg("Realtime manager closed")
}

func countByKind(updates []models.Update) map[models.Kind]int {
	counts := make(map[models.Kind]int)
	for _, u := range updates {
		counts[u.Kind()]++
	}
	return counts
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
