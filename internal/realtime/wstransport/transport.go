// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package wstransport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/quizsync/internal/config"
	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/models"
	"github.com/tomtom215/quizsync/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1024 * 1024

	defaultHeartbeat        = 25 * time.Second
	defaultJoinTimeout      = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	bufferSize              = 256
)

// Config configures the websocket transport.
type Config struct {
	// URL is the realtime websocket endpoint, e.g.
	// wss://project.example.co/realtime/v1/websocket.
	URL               string
	APIKey            string
	HeartbeatInterval time.Duration
	JoinTimeout       time.Duration
	HandshakeTimeout  time.Duration
}

// Transport opens Phoenix-style realtime channels over gorilla/websocket.
// Each channel uses its own connection.
type Transport struct {
	cfg    Config
	dialer *websocket.Dialer
}

// New creates a Transport.
func New(cfg Config) *Transport {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = defaultJoinTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Transport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// FromConfig builds a Transport from the application config.
func FromConfig(cfg *config.Config) *Transport {
	return New(Config{
		URL:               cfg.RealtimeURL(),
		APIKey:            cfg.Backend.APIKey,
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
	})
}

// Name implements realtime.Transport.
func (t *Transport) Name() string { return "websocket" }

// Configured implements realtime.Transport.
func (t *Transport) Configured() bool {
	return t.cfg.URL != "" && t.cfg.APIKey != ""
}

func (t *Transport) endpoint() (string, error) {
	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	q := u.Query()
	q.Set("apikey", t.cfg.APIKey)
	q.Set("vsn", protocolVsn)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open implements realtime.Transport. It dials, sends the join and returns;
// the join reply arrives on the channel as SUBSCRIBED or CHANNEL_ERROR.
func (t *Transport) Open(ctx context.Context, topic realtime.Topic) (realtime.Channel, error) {
	if !t.Configured() {
		return nil, errors.New("websocket transport: url and api key are required")
	}
	endpoint, err := t.endpoint()
	if err != nil {
		return nil, err
	}

	conn, resp, err := t.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", logging.SanitizeURL(endpoint), err)
	}
	conn.SetReadLimit(maxMessageSize)

	c := &channel{
		conn:      conn,
		topic:     channelTopic(topic.Scope),
		joinRef:   uuid.NewString(),
		heartbeat: t.cfg.HeartbeatInterval,
		joinWait:  t.cfg.JoinTimeout,
		envs:      make(chan realtime.Envelope, bufferSize),
		out:       make(chan []byte, bufferSize),
		done:      make(chan struct{}),
		log: logging.With().
			Str("component", "wstransport").
			Str("scope", topic.Scope).
			Logger(),
	}

	join, err := c.joinMessage(topic, t.cfg.APIKey)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.out <- join

	go c.writePump()
	go c.readPump()
	return c, nil
}

// channel is one joined Phoenix topic on its own connection.
//
// readPump owns envs and closes it on exit. writePump is the only writer on
// the connection. Join and heartbeat timeouts are detected by writePump,
// recorded with fail, and reported by readPump once the closed connection
// ends its read.
type channel struct {
	conn      *websocket.Conn
	topic     string
	joinRef   string
	heartbeat time.Duration
	joinWait  time.Duration
	log       zerolog.Logger

	ref            atomic.Uint64
	joined         atomic.Bool
	pendingBeatRef atomic.Value // string

	envs chan realtime.Envelope
	out  chan []byte
	done chan struct{}

	closeOnce sync.Once
	failOnce  sync.Once
	failMu    sync.Mutex
	failState realtime.ChannelStatus
	failErr   error
}

func (c *channel) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1), 10)
}

func (c *channel) joinMessage(topic realtime.Topic, apiKey string) ([]byte, error) {
	filters := make([]postgresFilter, 0, len(topic.Tables))
	for _, table := range topic.Tables {
		filters = append(filters, postgresFilter{
			Event:  "*",
			Schema: "public",
			Table:  table,
			Filter: filterFor(table, topic.Scope),
		})
	}
	payload, err := json.Marshal(joinPayload{
		Config:      joinConfig{PostgresChanges: filters},
		AccessToken: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("encode join: %w", err)
	}
	return json.Marshal(message{
		Topic:   c.topic,
		Event:   eventJoin,
		Payload: payload,
		Ref:     c.joinRef,
		JoinRef: c.joinRef,
	})
}

func (c *channel) Envelopes() <-chan realtime.Envelope { return c.envs }

// Send implements realtime.Channel with a broadcast push.
func (c *channel) Send(ctx context.Context, event string, payload []byte) error {
	if !c.joined.Load() {
		return realtime.ErrNotConnected
	}
	inner, err := json.Marshal(broadcastPayload{Type: eventBroadcast, Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}
	data, err := json.Marshal(message{
		Topic:   c.topic,
		Event:   eventBroadcast,
		Payload: inner,
		Ref:     c.nextRef(),
		JoinRef: c.joinRef,
	})
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}

	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return errors.New("websocket channel closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close leaves the topic and closes the connection.
func (c *channel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// fail records why the channel ended and closes the connection so that
// readPump returns. Only the first failure is kept.
func (c *channel) fail(status realtime.ChannelStatus, err error) {
	c.failOnce.Do(func() {
		c.failMu.Lock()
		c.failState = status
		c.failErr = err
		c.failMu.Unlock()
		_ = c.conn.Close()
	})
}

func (c *channel) failure() (realtime.ChannelStatus, error) {
	c.failMu.Lock()
	defer c.failMu.Unlock()
	return c.failState, c.failErr
}

func (c *channel) emit(env realtime.Envelope) bool {
	select {
	case c.envs <- env:
		return true
	case <-c.done:
		return false
	}
}

func (c *channel) closedByUs() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *channel) readPump() {
	defer func() {
		if !c.closedByUs() {
			status, err := c.failure()
			if status == "" {
				status = realtime.StatusChannelError
			}
			c.emit(realtime.StatusEnvelope(status, err))
		}
		close(c.envs)
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.fail(realtime.StatusClosed, err)
			} else {
				c.fail(realtime.StatusChannelError, err)
			}
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn().Err(err).Msg("Dropping malformed realtime frame")
			continue
		}
		if !c.handle(msg) {
			return
		}
	}
}

// handle processes one inbound frame. It returns false when the channel
// should stop reading.
func (c *channel) handle(msg message) bool {
	if msg.Topic == heartbeatTopic {
		if msg.Event == eventReply {
			if pending, _ := c.pendingBeatRef.Load().(string); pending == msg.Ref {
				c.pendingBeatRef.Store("")
			}
		}
		return true
	}
	if msg.Topic != c.topic {
		return true
	}

	switch msg.Event {
	case eventReply:
		if msg.Ref != c.joinRef {
			return true
		}
		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil || reply.Status != "ok" {
			c.fail(realtime.StatusChannelError, fmt.Errorf("join rejected: %s", string(reply.Response)))
			return false
		}
		c.joined.Store(true)
		return c.emit(realtime.StatusEnvelope(realtime.StatusSubscribed, nil))

	case eventPostgresChanges:
		var p changePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.log.Warn().Err(err).Msg("Dropping malformed postgres_changes payload")
			return true
		}
		row := p.Data.Record
		change := models.Change(p.Data.Type)
		if change == models.ChangeDelete {
			row = p.Data.OldRecord
		}
		return c.emit(realtime.RowChangeEnvelope(p.Data.Table, change, row))

	case eventBroadcast:
		var p broadcastPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.log.Warn().Err(err).Msg("Dropping malformed broadcast payload")
			return true
		}
		return c.emit(realtime.BroadcastEnvelope(p.Event, p.Payload))

	case eventSystem:
		var p systemPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil && p.Status == "error" {
			c.fail(realtime.StatusChannelError, fmt.Errorf("realtime system error: %s", p.Message))
			return false
		}
		return true

	case eventError:
		c.fail(realtime.StatusChannelError, errors.New("server reported channel error"))
		return false

	case eventClose:
		c.fail(realtime.StatusClosed, nil)
		return false
	}
	return true
}

func (c *channel) writePump() {
	ticker := time.NewTicker(c.heartbeat)
	joinTimer := time.NewTimer(c.joinWait)
	defer func() {
		ticker.Stop()
		joinTimer.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.out:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.fail(realtime.StatusChannelError, err)
				return
			}

		case <-joinTimer.C:
			if !c.joined.Load() {
				c.fail(realtime.StatusTimedOut, errors.New("join timed out"))
				return
			}

		case <-ticker.C:
			if pending, _ := c.pendingBeatRef.Load().(string); pending != "" {
				c.fail(realtime.StatusTimedOut, errors.New("heartbeat timed out"))
				return
			}
			ref := c.nextRef()
			c.pendingBeatRef.Store(ref)
			data, _ := json.Marshal(message{Topic: heartbeatTopic, Event: eventHeartbeat, Payload: json.RawMessage(`{}`), Ref: ref})
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.fail(realtime.StatusChannelError, err)
				return
			}

		case <-c.done:
			leave, _ := json.Marshal(message{Topic: c.topic, Event: eventLeave, Payload: json.RawMessage(`{}`), Ref: c.nextRef(), JoinRef: c.joinRef})
			_ = c.write(websocket.TextMessage, leave)
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *channel) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
