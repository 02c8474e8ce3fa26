// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package models

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Errors returned by the decoders.
var (
	ErrUnknownTable = errors.New("unknown table")
	ErrUnknownEvent = errors.New("unknown broadcast event")
	ErrMissingID    = errors.New("row has no id")
)

// Broadcast event types carried on the application channel.
const (
	EventGameUpdate        = "game_update"
	EventParticipantUpdate = "participant_update"
	EventTeamUpdate        = "team_update"
	EventSessionUpdate     = "session_update"
)

// BroadcastEventForKind returns the broadcast event type for an entity kind.
func BroadcastEventForKind(k Kind) string {
	return string(k) + "_update"
}

// DecodeRow decodes a raw table row into its typed Update variant.
func DecodeRow(table string, change Change, source Source, raw []byte) (Update, error) {
	meta := UpdateMeta{Source: source, Change: change}
	switch table {
	case TableGames:
		var g Game
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", table, err)
		}
		if g.ID == "" {
			return nil, fmt.Errorf("decode %s row: %w", table, ErrMissingID)
		}
		return GameUpdate{UpdateMeta: meta, Game: g}, nil
	case TableParticipants:
		var p Participant
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", table, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("decode %s row: %w", table, ErrMissingID)
		}
		return ParticipantUpdate{UpdateMeta: meta, Participant: p}, nil
	case TableTeams:
		var t Team
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", table, err)
		}
		if t.ID == "" {
			return nil, fmt.Errorf("decode %s row: %w", table, ErrMissingID)
		}
		return TeamUpdate{UpdateMeta: meta, Team: t}, nil
	case TableSessions:
		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", table, err)
		}
		if s.ID == "" {
			return nil, fmt.Errorf("decode %s row: %w", table, ErrMissingID)
		}
		return SessionUpdate{UpdateMeta: meta, Session: s}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
}

// DecodeBroadcast decodes an application-level broadcast whose payload is
// the full row of the named entity.
func DecodeBroadcast(event string, payload []byte) (Update, error) {
	var table string
	switch event {
	case EventGameUpdate:
		table = TableGames
	case EventParticipantUpdate:
		table = TableParticipants
	case EventTeamUpdate:
		table = TableTeams
	case EventSessionUpdate:
		table = TableSessions
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	return DecodeRow(table, ChangeUpdate, SourceBroadcast, payload)
}

// wireUpdate is the JSON shape pushed to display clients.
type wireUpdate struct {
	Kind        Kind         `json:"kind"`
	Source      Source       `json:"source"`
	Change      Change       `json:"change"`
	Game        *Game        `json:"game,omitempty"`
	Participant *Participant `json:"participant,omitempty"`
	Team        *Team        `json:"team,omitempty"`
	Session     *Session     `json:"session,omitempty"`
}

// EncodeUpdate renders an Update with an explicit "kind" discriminator.
func EncodeUpdate(u Update) ([]byte, error) {
	meta := u.Meta()
	w := wireUpdate{Kind: u.Kind(), Source: meta.Source, Change: meta.Change}
	switch v := u.(type) {
	case GameUpdate:
		w.Game = &v.Game
	case ParticipantUpdate:
		w.Participant = &v.Participant
	case TeamUpdate:
		w.Team = &v.Team
	case SessionUpdate:
		w.Session = &v.Session
	default:
		return nil, fmt.Errorf("encode update: unsupported variant %T", u)
	}
	return json.Marshal(w)
}

// RowPayload returns the bare row JSON of an Update, as sent in broadcasts.
func RowPayload(u Update) ([]byte, error) {
	switch v := u.(type) {
	case GameUpdate:
		return json.Marshal(v.Game)
	case ParticipantUpdate:
		return json.Marshal(v.Participant)
	case TeamUpdate:
		return json.Marshal(v.Team)
	case SessionUpdate:
		return json.Marshal(v.Session)
	}
	return nil, fmt.Errorf("row payload: unsupported variant %T", u)
}
