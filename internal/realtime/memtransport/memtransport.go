// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

// Package memtransport is an in-process realtime transport. Channels opened
// on one Broker see each other's broadcasts and any row changes published
// through the Broker. It backs realtime.transport=memory and the realtime
// tests.
package memtransport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/quizsync/internal/models"
	"github.com/tomtom215/quizsync/internal/realtime"
)

const bufferSize = 256

// Sent records one broadcast sent through a channel.
type Sent struct {
	Scope   string
	Event   string
	Payload []byte
}

// Broker is the in-memory change-notification service.
type Broker struct {
	mu         sync.Mutex
	channels   map[string]map[*channel]struct{}
	configured bool
	openErr    error
	joinStatus realtime.ChannelStatus
	opens      int
	dropped    int
	sent       []Sent
}

// New creates a configured Broker that accepts every subscription.
func New() *Broker {
	return &Broker{
		channels:   make(map[string]map[*channel]struct{}),
		configured: true,
		joinStatus: realtime.StatusSubscribed,
	}
}

// Name implements realtime.Transport.
func (b *Broker) Name() string { return "memory" }

// Configured implements realtime.Transport.
func (b *Broker) Configured() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.configured
}

// SetConfigured simulates missing credentials.
func (b *Broker) SetConfigured(ok bool) {
	b.mu.Lock()
	b.configured = ok
	b.mu.Unlock()
}

// SetOpenError makes Open fail with err; nil restores normal opens.
func (b *Broker) SetOpenError(err error) {
	b.mu.Lock()
	b.openErr = err
	b.mu.Unlock()
}

// SetJoinStatus sets the first status new channels report. Anything other
// than StatusSubscribed rejects the join and ends the channel.
func (b *Broker) SetJoinStatus(status realtime.ChannelStatus) {
	b.mu.Lock()
	b.joinStatus = status
	b.mu.Unlock()
}

// Open implements realtime.Transport.
func (b *Broker) Open(ctx context.Context, topic realtime.Topic) (realtime.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.opens++
	if b.openErr != nil {
		return nil, b.openErr
	}

	ch := &channel{broker: b, topic: topic, envs: make(chan realtime.Envelope, bufferSize)}
	if b.joinStatus != realtime.StatusSubscribed {
		ch.envs <- realtime.StatusEnvelope(b.joinStatus, errors.New("join rejected"))
		close(ch.envs)
		ch.closed = true
		return ch, nil
	}

	set, ok := b.channels[topic.Scope]
	if !ok {
		set = make(map[*channel]struct{})
		b.channels[topic.Scope] = set
	}
	set[ch] = struct{}{}
	ch.envs <- realtime.StatusEnvelope(realtime.StatusSubscribed, nil)
	return ch, nil
}

// PublishRow delivers a row change to channels on scope that watch table.
// It returns the number of channels reached.
func (b *Broker) PublishRow(scope, table string, change models.Change, row []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for ch := range b.channels[scope] {
		if !ch.topic.Watches(table) {
			continue
		}
		if b.deliverLocked(ch, realtime.RowChangeEnvelope(table, change, row)) {
			n++
		}
	}
	return n
}

// PublishBroadcast delivers a broadcast to every channel on scope.
func (b *Broker) PublishBroadcast(scope, event string, payload []byte) int {
	return b.broadcast(nil, scope, event, payload)
}

// Fail reports status on every channel of scope and ends them, as a
// dropped connection would.
func (b *Broker) Fail(scope string, status realtime.ChannelStatus, cause error) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.channels[scope]
	n := 0
	for ch := range set {
		b.deliverLocked(ch, realtime.StatusEnvelope(status, cause))
		ch.closeLocked()
		n++
	}
	delete(b.channels, scope)
	return n
}

// Opens returns how many times Open was called.
func (b *Broker) Opens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

// Channels returns the number of open channels on scope.
func (b *Broker) Channels(scope string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels[scope])
}

// Sent returns the broadcasts sent through channels so far.
func (b *Broker) Sent() []Sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Sent, len(b.sent))
	copy(out, b.sent)
	return out
}

// Dropped returns how many envelopes were discarded on full buffers.
func (b *Broker) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *Broker) broadcast(from *channel, scope, event string, payload []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if from != nil {
		b.sent = append(b.sent, Sent{Scope: scope, Event: event, Payload: payload})
	}
	n := 0
	for ch := range b.channels[scope] {
		if ch == from {
			continue
		}
		if b.deliverLocked(ch, realtime.BroadcastEnvelope(event, payload)) {
			n++
		}
	}
	return n
}

func (b *Broker) deliverLocked(ch *channel, env realtime.Envelope) bool {
	if ch.closed {
		return false
	}
	select {
	case ch.envs <- env:
		return true
	default:
		b.dropped++
		return false
	}
}

type channel struct {
	broker *Broker
	topic  realtime.Topic
	envs   chan realtime.Envelope
	closed bool
}

func (c *channel) Envelopes() <-chan realtime.Envelope { return c.envs }

func (c *channel) Send(ctx context.Context, event string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.broker.mu.Lock()
	closed := c.closed
	c.broker.mu.Unlock()
	if closed {
		return fmt.Errorf("memtransport: send on closed channel for %s", c.topic.Scope)
	}
	c.broker.broadcast(c, c.topic.Scope, event, payload)
	return nil
}

func (c *channel) Close() error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if set, ok := c.broker.channels[c.topic.Scope]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(c.broker.channels, c.topic.Scope)
		}
	}
	c.closeLocked()
	return nil
}

func (c *channel) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.envs)
}
