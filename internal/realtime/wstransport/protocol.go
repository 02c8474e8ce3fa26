// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package wstransport

import (
	"github.com/goccy/go-json"

	"github.com/tomtom215/quizsync/internal/models"
)

// Phoenix channel events used by the realtime service.
const (
	eventJoin            = "phx_join"
	eventLeave           = "phx_leave"
	eventReply           = "phx_reply"
	eventError           = "phx_error"
	eventClose           = "phx_close"
	eventHeartbeat       = "heartbeat"
	eventPostgresChanges = "postgres_changes"
	eventBroadcast       = "broadcast"
	eventSystem          = "system"

	heartbeatTopic = "phoenix"
	protocolVsn    = "1.0.0"
)

// message is one Phoenix frame in the JSON v1 serializer.
type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
	JoinRef string          `json:"join_ref,omitempty"`
}

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

type joinConfig struct {
	Broadcast       broadcastConfig  `json:"broadcast"`
	Presence        presenceConfig   `json:"presence"`
	PostgresChanges []postgresFilter `json:"postgres_changes"`
}

type broadcastConfig struct {
	Self bool `json:"self"`
	Ack  bool `json:"ack"`
}

type presenceConfig struct {
	Key string `json:"key"`
}

type postgresFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data changeData `json:"data"`
}

type changeData struct {
	Type      string          `json:"type"`
	Schema    string          `json:"schema"`
	Table     string          `json:"table"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record"`
}

type broadcastPayload struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type systemPayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// filterFor returns the row filter that scopes table to one game.
func filterFor(table, scope string) string {
	if table == models.TableGames {
		return "id=eq." + scope
	}
	return "game_id=eq." + scope
}

// channelTopic is the Phoenix topic for a scope.
func channelTopic(scope string) string {
	return "realtime:game:" + scope
}
