// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Table names of the watched entity families.
const (
	TableGames        = "games"
	TableParticipants = "participants"
	TableTeams        = "teams"
	TableSessions     = "game_sessions"
)

// GamePhase is the coarse lifecycle of a game.
type GamePhase string

const (
	PhaseWaiting   GamePhase = "waiting"
	PhaseActive    GamePhase = "active"
	PhaseCompleted GamePhase = "completed"
)

// Valid reports whether p is a known phase.
func (p GamePhase) Valid() bool {
	switch p {
	case PhaseWaiting, PhaseActive, PhaseCompleted:
		return true
	}
	return false
}

// Round identifies which mini-game a session is running.
type Round int

const (
	RoundNumberGuess Round = 1
	RoundStealPoints Round = 2
	RoundRelayQuiz   Round = 3
)

// Game is a row of the games table.
type Game struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	Name         string     `json:"name"`
	Status       GamePhase  `json:"status"`
	CurrentRound Round      `json:"current_round"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// Participant is a row of the participants table (a student who joined with the game code).
type Participant struct {
	ID          string     `json:"id"`
	GameID      string     `json:"game_id"`
	TeamID      *string    `json:"team_id,omitempty"`
	Nickname    string     `json:"nickname"`
	Score       int        `json:"score"`
	IsConnected bool       `json:"is_connected"`
	JoinedAt    time.Time  `json:"joined_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Team is a row of the teams table.
type Team struct {
	ID        string     `json:"id"`
	GameID    string     `json:"game_id"`
	Name      string     `json:"name"`
	Color     string     `json:"color"`
	Score     int        `json:"score"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Session is a row of the game_sessions table: the live state of one round.
type Session struct {
	ID             string          `json:"id"`
	GameID         string          `json:"game_id"`
	Round          Round           `json:"round"`
	Phase          string          `json:"phase"`
	QuestionIndex  int             `json:"question_index"`
	BuzzerHolderID *string         `json:"buzzer_holder_id,omitempty"`
	ActiveTeamID   *string         `json:"active_team_id,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	EndsAt         *time.Time      `json:"ends_at,omitempty"`
	State          json.RawMessage `json:"state,omitempty"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
}
