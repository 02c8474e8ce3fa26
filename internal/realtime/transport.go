// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package realtime

import (
	"context"
	"errors"

	"github.com/goccy/go-json"

	"github.com/tomtom215/quizsync/internal/models"
)

var (
	// ErrNotConnected is returned by BroadcastEvent when no channel is
	// subscribed.
	ErrNotConnected = errors.New("realtime channel not connected")

	// ErrClosed is returned after a Manager or Registry has been closed.
	ErrClosed = errors.New("realtime manager closed")
)

// Topic names what a channel subscribes to: change events for Tables
// filtered to rows of one Scope (a game id), plus broadcasts on that scope.
type Topic struct {
	Scope  string
	Tables []string
}

// Watches reports whether table is part of the topic.
func (t Topic) Watches(table string) bool {
	for _, tb := range t.Tables {
		if tb == table {
			return true
		}
	}
	return false
}

// EnvelopeKind discriminates inbound channel messages.
type EnvelopeKind string

const (
	EnvelopeStatus    EnvelopeKind = "status"
	EnvelopeRowChange EnvelopeKind = "row-change"
	EnvelopeBroadcast EnvelopeKind = "broadcast"
)

// ChannelStatus is a channel lifecycle notification.
type ChannelStatus string

const (
	StatusSubscribed   ChannelStatus = "SUBSCRIBED"
	StatusChannelError ChannelStatus = "CHANNEL_ERROR"
	StatusTimedOut     ChannelStatus = "TIMED_OUT"
	StatusClosed       ChannelStatus = "CLOSED"
)

// Envelope is one inbound message from a Channel. Which fields are set
// depends on Kind:
//   - status: Status, and Err for failures
//   - row-change: Table, Change, Row (the old row for deletes)
//   - broadcast: Event, Payload
type Envelope struct {
	Kind    EnvelopeKind
	Status  ChannelStatus
	Err     error
	Table   string
	Change  models.Change
	Row     json.RawMessage
	Event   string
	Payload json.RawMessage
}

// StatusEnvelope builds a status Envelope.
func StatusEnvelope(status ChannelStatus, err error) Envelope {
	return Envelope{Kind: EnvelopeStatus, Status: status, Err: err}
}

// RowChangeEnvelope builds a row-change Envelope.
func RowChangeEnvelope(table string, change models.Change, row []byte) Envelope {
	return Envelope{Kind: EnvelopeRowChange, Table: table, Change: change, Row: row}
}

// BroadcastEnvelope builds a broadcast Envelope.
func BroadcastEnvelope(event string, payload []byte) Envelope {
	return Envelope{Kind: EnvelopeBroadcast, Event: event, Payload: payload}
}

// Channel is one subscription on a change-notification service.
//
// Envelopes delivers inbound messages in order; the first status message
// is StatusSubscribed on success or a failure status. The returned channel
// is closed when the subscription ends for any reason. Close unsubscribes
// and is safe to call more than once.
type Channel interface {
	Envelopes() <-chan Envelope
	Send(ctx context.Context, event string, payload []byte) error
	Close() error
}

// Transport opens Channels.
type Transport interface {
	// Name identifies the transport in logs.
	Name() string
	// Configured reports whether the transport has what it needs to connect.
	// An unconfigured transport is never dialled.
	Configured() bool
	// Open starts a subscription. Subscription success or failure is
	// reported on the channel; an error here means the channel could not be
	// created at all.
	Open(ctx context.Context, topic Topic) (Channel, error)
}

// Fetcher reads current rows directly from the backend for fallback polling.
type Fetcher interface {
	FetchGame(ctx context.Context, gameID string) (*models.Game, error)
	FetchParticipants(ctx context.Context, gameID string) ([]models.Participant, error)
	FetchTeams(ctx context.Context, gameID string) ([]models.Team, error)
	// FetchSession returns the game's current session, or nil if none exists.
	FetchSession(ctx context.Context, gameID string) (*models.Session, error)
}

// Handler receives typed updates. It is called from the Manager's event
// loop and must not block for long.
type Handler func(models.Update)
