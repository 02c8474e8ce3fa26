// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package validation

import (
	"strings"
	"testing"

	"github.com/tomtom215/quizsync/internal/models"
)

func TestGetValidator_Singleton(t *testing.T) {
	t.Parallel()

	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestIsGameID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		want bool
	}{
		{"g1", true},
		{"3f2b8c1e-7a4d-4e1b-9c2f-0d5e6a7b8c9d", true},
		{"room_7", true},
		{"", false},
		{"a.b", false},
		{"a b", false},
		{"a/b", false},
		{"*", false},
		{strings.Repeat("x", 65), false},
	}
	for _, tt := range tests {
		if got := IsGameID(tt.id); got != tt.want {
			t.Errorf("IsGameID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestValidateStruct_BroadcastRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     models.BroadcastRequest
		wantErr bool
		field   string
	}{
		{
			name: "valid",
			req:  models.BroadcastRequest{Event: models.EventTeamUpdate, Payload: map[string]any{"id": "t1"}},
		},
		{
			name:    "missing event",
			req:     models.BroadcastRequest{Payload: map[string]any{"id": "t1"}},
			wantErr: true,
			field:   "Event",
		},
		{
			name:    "unknown event",
			req:     models.BroadcastRequest{Event: "confetti", Payload: map[string]any{"id": "t1"}},
			wantErr: true,
			field:   "Event",
		},
		{
			name:    "missing payload",
			req:     models.BroadcastRequest{Event: models.EventGameUpdate},
			wantErr: true,
			field:   "Payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			verr := ValidateStruct(&tt.req)
			if !tt.wantErr {
				if verr != nil {
					t.Fatalf("unexpected error: %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("expected validation error")
			}
			if got := verr.Errors()[0].Field(); got != tt.field {
				t.Errorf("field = %q, want %q", got, tt.field)
			}
			apiErr := verr.ToAPIError()
			if apiErr.Code != CodeValidation || apiErr.Details["field"] != tt.field {
				t.Errorf("APIError = %+v", apiErr)
			}
		})
	}
}

func TestValidateStruct_GameIDTag(t *testing.T) {
	t.Parallel()

	type watchRequest struct {
		GameID string `validate:"required,gameid"`
	}
	if verr := ValidateStruct(&watchRequest{GameID: "g1"}); verr != nil {
		t.Errorf("valid id rejected: %v", verr)
	}
	verr := ValidateStruct(&watchRequest{GameID: "bad.id"})
	if verr == nil {
		t.Fatal("expected error for dotted id")
	}
	if verr.Errors()[0].Tag() != "gameid" {
		t.Errorf("tag = %s", verr.Errors()[0].Tag())
	}
}

func TestValidateGameID(t *testing.T) {
	t.Parallel()

	if verr := ValidateGameID("id", "g1"); verr != nil {
		t.Errorf("unexpected error: %v", verr)
	}
	if verr := ValidateGameID("id", ""); verr == nil || verr.Errors()[0].Tag() != "required" {
		t.Errorf("empty id error = %v", verr)
	}
	verr := ValidateGameID("game", "a b")
	if verr == nil {
		t.Fatal("expected error")
	}
	if msg := verr.Error(); !strings.Contains(msg, "game") {
		t.Errorf("message = %q", msg)
	}
}

func TestToAPIError_Multiple(t *testing.T) {
	t.Parallel()

	verr := ValidateStruct(&models.BroadcastRequest{})
	if verr == nil || len(verr.Errors()) != 2 {
		t.Fatalf("expected two errors, got %v", verr)
	}
	apiErr := verr.ToAPIError()
	fields, ok := apiErr.Details["fields"].([]map[string]any)
	if !ok || len(fields) != 2 {
		t.Errorf("details = %+v", apiErr.Details)
	}
}
