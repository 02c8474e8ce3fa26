// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package models

import "time"

// Kind names the entity an Update carries.
type Kind string

const (
	KindGame        Kind = "game"
	KindParticipant Kind = "participant"
	KindTeam        Kind = "team"
	KindSession     Kind = "session"
)

// Source records which path produced an Update.
type Source string

const (
	SourceLive      Source = "live"
	SourceBroadcast Source = "broadcast"
	SourcePoll      Source = "poll"
)

// Change is the row-level operation behind an Update.
type Change string

const (
	ChangeInsert   Change = "INSERT"
	ChangeUpdate   Change = "UPDATE"
	ChangeDelete   Change = "DELETE"
	ChangeSnapshot Change = "SNAPSHOT"
)

// Update is a typed change notification. The variant set is closed:
// GameUpdate, ParticipantUpdate, TeamUpdate and SessionUpdate.
type Update interface {
	Kind() Kind
	// EntityKey identifies the row as "table:id".
	EntityKey() string
	// Version is the row's updated_at, or zero when unknown.
	Version() time.Time
	Meta() UpdateMeta

	isUpdate()
}

// UpdateMeta is carried by every variant.
type UpdateMeta struct {
	Source Source `json:"source"`
	Change Change `json:"change"`
}

// GameUpdate carries a games row.
type GameUpdate struct {
	UpdateMeta
	Game Game `json:"game"`
}

// ParticipantUpdate carries a participants row.
type ParticipantUpdate struct {
	UpdateMeta
	Participant Participant `json:"participant"`
}

// TeamUpdate carries a teams row.
type TeamUpdate struct {
	UpdateMeta
	Team Team `json:"team"`
}

// SessionUpdate carries a game_sessions row.
type SessionUpdate struct {
	UpdateMeta
	Session Session `json:"session"`
}

func (GameUpdate) Kind() Kind        { return KindGame }
func (ParticipantUpdate) Kind() Kind { return KindParticipant }
func (TeamUpdate) Kind() Kind        { return KindTeam }
func (SessionUpdate) Kind() Kind     { return KindSession }

func (u GameUpdate) EntityKey() string        { return TableGames + ":" + u.Game.ID }
func (u ParticipantUpdate) EntityKey() string { return TableParticipants + ":" + u.Participant.ID }
func (u TeamUpdate) EntityKey() string        { return TableTeams + ":" + u.Team.ID }
func (u SessionUpdate) EntityKey() string     { return TableSessions + ":" + u.Session.ID }

func (u GameUpdate) Version() time.Time        { return deref(u.Game.UpdatedAt) }
func (u ParticipantUpdate) Version() time.Time { return deref(u.Participant.UpdatedAt) }
func (u TeamUpdate) Version() time.Time        { return deref(u.Team.UpdatedAt) }
func (u SessionUpdate) Version() time.Time     { return deref(u.Session.UpdatedAt) }

func (m UpdateMeta) Meta() UpdateMeta { return m }

func (GameUpdate) isUpdate()        {}
func (ParticipantUpdate) isUpdate() {}
func (TeamUpdate) isUpdate()        {}
func (SessionUpdate) isUpdate()     {}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// TableForKind returns the table backing an entity kind.
func TableForKind(k Kind) string {
	switch k {
	case KindGame:
		return TableGames
	case KindParticipant:
		return TableParticipants
	case KindTeam:
		return TableTeams
	case KindSession:
		return TableSessions
	}
	return ""
}

// KindForTable is the inverse of TableForKind.
func KindForTable(table string) (Kind, bool) {
	switch table {
	case TableGames:
		return KindGame, true
	case TableParticipants:
		return KindParticipant, true
	case TableTeams:
		return KindTeam, true
	case TableSessions:
		return KindSession, true
	}
	return "", false
}
