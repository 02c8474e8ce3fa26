// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestDecodeRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		table    string
		raw      string
		wantKind Kind
		wantKey  string
	}{
		{"game", TableGames, `{"id":"g1","code":"ABCD","status":"active","current_round":2}`, KindGame, "games:g1"},
		{"participant", TableParticipants, `{"id":"p1","game_id":"g1","nickname":"Ana","score":30}`, KindParticipant, "participants:p1"},
		{"team", TableTeams, `{"id":"t1","game_id":"g1","name":"Red","score":120,"extra_column":true}`, KindTeam, "teams:t1"},
		{"session", TableSessions, `{"id":"s1","game_id":"g1","round":3,"state":{"leg":2}}`, KindSession, "game_sessions:s1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u, err := DecodeRow(tt.table, ChangeUpdate, SourceLive, []byte(tt.raw))
			if err != nil {
				t.Fatalf("DecodeRow: %v", err)
			}
			if u.Kind() != tt.wantKind {
				t.Errorf("Kind() = %s, want %s", u.Kind(), tt.wantKind)
			}
			if u.EntityKey() != tt.wantKey {
				t.Errorf("EntityKey() = %s, want %s", u.EntityKey(), tt.wantKey)
			}
			if u.Meta().Source != SourceLive || u.Meta().Change != ChangeUpdate {
				t.Errorf("unexpected meta %+v", u.Meta())
			}
		})
	}
}

func TestDecodeRow_Errors(t *testing.T) {
	t.Parallel()

	if _, err := DecodeRow("questions", ChangeInsert, SourceLive, []byte(`{"id":"q"}`)); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("expected ErrUnknownTable, got %v", err)
	}
	if _, err := DecodeRow(TableTeams, ChangeInsert, SourceLive, []byte(`{"name":"no id"}`)); !errors.Is(err, ErrMissingID) {
		t.Errorf("expected ErrMissingID, got %v", err)
	}
	if _, err := DecodeRow(TableTeams, ChangeInsert, SourceLive, []byte(`{not json`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestDecodeBroadcast(t *testing.T) {
	t.Parallel()

	u, err := DecodeBroadcast(EventTeamUpdate, []byte(`{"id":"t9","score":45}`))
	if err != nil {
		t.Fatalf("DecodeBroadcast: %v", err)
	}
	tu, ok := u.(TeamUpdate)
	if !ok {
		t.Fatalf("expected TeamUpdate, got %T", u)
	}
	if tu.Team.Score != 45 || tu.Source != SourceBroadcast {
		t.Errorf("unexpected update %+v", tu)
	}

	if _, err := DecodeBroadcast("buzzer_pressed", []byte(`{}`)); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestVersion(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	withTS := GameUpdate{Game: Game{ID: "g", UpdatedAt: &ts}}
	if !withTS.Version().Equal(ts) {
		t.Errorf("Version() = %v, want %v", withTS.Version(), ts)
	}
	if !(SessionUpdate{Session: Session{ID: "s"}}).Version().IsZero() {
		t.Error("missing updated_at should give zero version")
	}
}

func TestEncodeUpdate(t *testing.T) {
	t.Parallel()

	data, err := EncodeUpdate(TeamUpdate{
		UpdateMeta: UpdateMeta{Source: SourcePoll, Change: ChangeSnapshot},
		Team:       Team{ID: "t1", Name: "Blue", Score: 7},
	})
	if err != nil {
		t.Fatalf("EncodeUpdate: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["kind"] != "team" || decoded["source"] != "poll" || decoded["change"] != "SNAPSHOT" {
		t.Errorf("unexpected envelope: %s", data)
	}
	if _, ok := decoded["team"]; !ok {
		t.Errorf("expected team payload: %s", data)
	}
	if strings.Contains(string(data), `"game"`) {
		t.Errorf("unrelated variants should be omitted: %s", data)
	}
}

func TestKindTableMapping(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{KindGame, KindParticipant, KindTeam, KindSession} {
		table := TableForKind(k)
		back, ok := KindForTable(table)
		if !ok || back != k {
			t.Errorf("round trip for %s failed: table=%q back=%q", k, table, back)
		}
		if BroadcastEventForKind(k) == "" {
			t.Errorf("no broadcast event for %s", k)
		}
	}
	if _, ok := KindForTable("questions"); ok {
		t.Error("questions should not map to a kind")
	}
	if BroadcastEventForKind(KindSession) != EventSessionUpdate {
		t.Errorf("session event = %q", BroadcastEventForKind(KindSession))
	}
}

func TestGamePhaseValid(t *testing.T) {
	t.Parallel()

	for _, p := range []GamePhase{PhaseWaiting, PhaseActive, PhaseCompleted} {
		if !p.Valid() {
			t.Errorf("%s should be valid", p)
		}
	}
	if GamePhase("paused").Valid() {
		t.Error("paused should be invalid")
	}
}
