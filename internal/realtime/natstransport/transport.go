// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

// Package natstransport carries realtime change and broadcast events over
// NATS core subjects:
//
//	<prefix>.<scope>.changes.<table>    row changes, JSON {"type","record","old_record"}
//	<prefix>.<scope>.broadcast.<event>  application events, raw JSON payload
//
// All channels of a Transport share one NATS connection. A disconnect ends
// every open channel with CHANNEL_ERROR so the realtime manager runs its
// reconnect logic; nats.go keeps reconnecting the connection underneath.
package natstransport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/tomtom215/quizsync/internal/config"
	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/models"
	"github.com/tomtom215/quizsync/internal/realtime"
)

const (
	// DefaultSubjectPrefix is the first subject token.
	DefaultSubjectPrefix = "quiz"

	bufferSize = 256
)

// ErrInvalidScope is returned for scopes that cannot be a subject token.
var ErrInvalidScope = errors.New("scope is not a valid subject token")

// Config configures the NATS transport.
type Config struct {
	URL           string
	SubjectPrefix string
	// ConnectTimeout bounds the initial dial. Zero uses the nats.go default.
	ConnectTimeout time.Duration
}

// FromConfig builds transport settings from the application config. When an
// embedded server is running, its URL should be passed instead of NATS.URL.
func FromConfig(cfg config.NATSConfig) Config {
	return Config{URL: cfg.URL, SubjectPrefix: cfg.SubjectPrefix}
}

// rowMessage is the body of a change subject.
type rowMessage struct {
	Type      models.Change   `json:"type"`
	Record    json.RawMessage `json:"record,omitempty"`
	OldRecord json.RawMessage `json:"old_record,omitempty"`
}

// Transport implements realtime.Transport over NATS.
type Transport struct {
	cfg Config

	mu       sync.Mutex
	conn     *nats.Conn
	channels map[*channel]struct{}
}

// New creates a Transport. The connection is dialled on first use.
func New(cfg Config) *Transport {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	return &Transport{cfg: cfg, channels: make(map[*channel]struct{})}
}

// Name implements realtime.Transport.
func (t *Transport) Name() string { return "nats" }

// Configured implements realtime.Transport.
func (t *Transport) Configured() bool { return t.cfg.URL != "" }

// ChangeSubject returns the subject for row changes of table in scope.
func (t *Transport) ChangeSubject(scope, table string) string {
	return t.cfg.SubjectPrefix + "." + scope + ".changes." + table
}

// BroadcastSubject returns the subject for broadcast event in scope.
func (t *Transport) BroadcastSubject(scope, event string) string {
	return t.cfg.SubjectPrefix + "." + scope + ".broadcast." + event
}

func (t *Transport) connect() (*nats.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil && !t.conn.IsClosed() {
		return t.conn, nil
	}

	opts := []nats.Option{
		nats.Name("quizsync-realtime"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.Warn().Err(err).Msg("NATS disconnected")
			t.failAll(realtime.StatusChannelError, err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info().Str("url", logging.SanitizeURL(nc.ConnectedUrl())).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			t.failAll(realtime.StatusClosed, nats.ErrConnectionClosed)
		}),
	}
	if t.cfg.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(t.cfg.ConnectTimeout))
	}

	nc, err := nats.Connect(t.cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", logging.SanitizeURL(t.cfg.URL), err)
	}
	t.conn = nc
	return nc, nil
}

// Open implements realtime.Transport. The channel reports SUBSCRIBED once
// the server has acknowledged its subscriptions.
func (t *Transport) Open(ctx context.Context, topic realtime.Topic) (realtime.Channel, error) {
	if !t.Configured() {
		return nil, errors.New("nats transport: url is required")
	}
	if !validToken(topic.Scope) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, topic.Scope)
	}

	nc, err := t.connect()
	if err != nil {
		return nil, err
	}

	c := &channel{
		transport: t,
		conn:      nc,
		topic:     topic,
		envs:      make(chan realtime.Envelope, bufferSize),
	}

	changes, err := nc.Subscribe(t.ChangeSubject(topic.Scope, "*"), c.onChange)
	if err != nil {
		return nil, fmt.Errorf("subscribe changes: %w", err)
	}
	c.subs = append(c.subs, changes)
	broadcasts, err := nc.Subscribe(t.BroadcastSubject(topic.Scope, "*"), c.onBroadcast)
	if err != nil {
		c.unsubscribe()
		return nil, fmt.Errorf("subscribe broadcasts: %w", err)
	}
	c.subs = append(c.subs, broadcasts)

	if err := nc.FlushWithContext(ctx); err != nil {
		c.unsubscribe()
		return nil, fmt.Errorf("confirm subscriptions: %w", err)
	}

	t.mu.Lock()
	t.channels[c] = struct{}{}
	t.mu.Unlock()

	c.emit(realtime.StatusEnvelope(realtime.StatusSubscribed, nil))
	return c, nil
}

// PublishRow publishes a row change for scope. It is how a backend bridge
// (or a test) feeds the transport.
func (t *Transport) PublishRow(scope, table string, change models.Change, row []byte) error {
	msg := rowMessage{Type: change, Record: row}
	if change == models.ChangeDelete {
		msg = rowMessage{Type: change, OldRecord: row}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode row change: %w", err)
	}
	return t.publish(t.ChangeSubject(scope, table), data)
}

// PublishBroadcast publishes an application event for scope.
func (t *Transport) PublishBroadcast(scope, event string, payload []byte) error {
	if !validToken(event) {
		return fmt.Errorf("invalid broadcast event %q", event)
	}
	return t.publish(t.BroadcastSubject(scope, event), payload)
}

func (t *Transport) publish(subject string, data []byte) error {
	nc, err := t.connect()
	if err != nil {
		return err
	}
	if err := nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the shared connection. Open channels end with CLOSED.
func (t *Transport) Close() error {
	t.mu.Lock()
	nc := t.conn
	t.conn = nil
	t.mu.Unlock()
	if nc == nil {
		return nil
	}
	if err := nc.Drain(); err != nil {
		nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

func (t *Transport) failAll(status realtime.ChannelStatus, err error) {
	t.mu.Lock()
	chans := make([]*channel, 0, len(t.channels))
	for c := range t.channels {
		chans = append(chans, c)
	}
	t.channels = make(map[*channel]struct{})
	t.mu.Unlock()

	for _, c := range chans {
		c.end(status, err)
	}
}

func (t *Transport) forget(c *channel) {
	t.mu.Lock()
	delete(t.channels, c)
	t.mu.Unlock()
}

// validToken reports whether s can be used as a single subject token.
func validToken(s string) bool {
	return s != "" && !strings.ContainsAny(s, ".*> \t\r\n")
}

// channel is a pair of subscriptions for one scope.
type channel struct {
	transport *Transport
	conn      *nats.Conn
	topic     realtime.Topic
	subs      []*nats.Subscription

	mu    sync.Mutex
	envs  chan realtime.Envelope
	ended bool
}

func (c *channel) Envelopes() <-chan realtime.Envelope { return c.envs }

// Send implements realtime.Channel. Subscribers on the same scope,
// including this channel, receive the event.
func (c *channel) Send(_ context.Context, event string, payload []byte) error {
	c.mu.Lock()
	ended := c.ended
	c.mu.Unlock()
	if ended {
		return errors.New("nats channel closed")
	}
	if !validToken(event) {
		return fmt.Errorf("invalid broadcast event %q", event)
	}
	if err := c.conn.Publish(c.transport.BroadcastSubject(c.topic.Scope, event), payload); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}

// Close unsubscribes and closes the envelope channel without a status.
func (c *channel) Close() error {
	c.transport.forget(c)
	c.end("", nil)
	return nil
}

func (c *channel) onChange(msg *nats.Msg) {
	table := lastToken(msg.Subject)
	if !c.topic.Watches(table) {
		return
	}
	var body rowMessage
	if err := json.Unmarshal(msg.Data, &body); err != nil {
		logging.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping malformed row change")
		return
	}
	row := body.Record
	if body.Type == models.ChangeDelete {
		row = body.OldRecord
	}
	c.emit(realtime.RowChangeEnvelope(table, body.Type, row))
}

func (c *channel) onBroadcast(msg *nats.Msg) {
	c.emit(realtime.BroadcastEnvelope(lastToken(msg.Subject), msg.Data))
}

func (c *channel) emit(env realtime.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	select {
	case c.envs <- env:
	default:
		logging.Warn().Str("scope", c.topic.Scope).Str("kind", string(env.Kind)).Msg("NATS channel buffer full, dropping envelope")
	}
}

// end delivers an optional final status and closes the envelope channel.
func (c *channel) end(status realtime.ChannelStatus, err error) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	if status != "" {
		select {
		case c.envs <- realtime.StatusEnvelope(status, err):
		default:
		}
	}
	close(c.envs)
	c.mu.Unlock()

	c.unsubscribe()
}

func (c *channel) unsubscribe() {
	for _, s := range c.subs {
		_ = s.Unsubscribe()
	}
}

func lastToken(subject string) string {
	if i := strings.LastIndexByte(subject, '.'); i >= 0 {
		return subject[i+1:]
	}
	return subject
}
