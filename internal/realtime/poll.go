// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package realtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tomtom215/quizsync/internal/models"
)

// polledRow is the last snapshot a poll saw for one row.
type polledRow struct {
	table  string
	update models.Update
	raw    []byte
}

// pollResult is the outcome of one poll cycle.
type pollResult struct {
	updates []models.Update
	phase   models.GamePhase
	err     error
}

// poller fetches the watched tables for one scope and turns the difference
// from the previous cycle into updates. Unchanged rows produce nothing;
// rows that disappeared produce a delete.
type poller struct {
	topic   Topic
	fetcher Fetcher

	mu   sync.Mutex
	last map[string]polledRow
}

func newPoller(topic Topic, fetcher Fetcher) *poller {
	return &poller{topic: topic, fetcher: fetcher, last: make(map[string]polledRow)}
}

func (p *poller) poll(ctx context.Context) pollResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res pollResult
	var failed []string
	var errs []error

	for _, table := range p.topic.Tables {
		rows, err := p.fetchTable(ctx, table)
		if err != nil {
			failed = append(failed, table)
			errs = append(errs, fmt.Errorf("%s: %w", table, err))
			continue
		}
		res.updates = append(res.updates, p.diff(table, rows)...)
		for _, u := range rows {
			if g, ok := u.(models.GameUpdate); ok {
				res.phase = g.Game.Status
			}
		}
	}

	if len(failed) > 0 {
		res.err = fmt.Errorf("poll %s (%s): %w", p.topic.Scope, strings.Join(failed, ", "), errors.Join(errs...))
	}
	return res
}

// diff compares fresh rows of one table with the previous cycle.
func (p *poller) diff(table string, rows []models.Update) []models.Update {
	var out []models.Update
	seen := make(map[string]struct{}, len(rows))

	for _, u := range rows {
		key := u.EntityKey()
		seen[key] = struct{}{}
		raw, err := models.RowPayload(u)
		if err != nil {
			continue
		}
		if prev, ok := p.last[key]; ok && bytes.Equal(prev.raw, raw) {
			continue
		}
		p.last[key] = polledRow{table: table, update: u, raw: raw}
		out = append(out, u)
	}

	for key, prev := range p.last {
		if prev.table != table {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		delete(p.last, key)
		out = append(out, withMeta(prev.update, models.UpdateMeta{Source: models.SourcePoll, Change: models.ChangeDelete}))
	}
	return out
}

func (p *poller) fetchTable(ctx context.Context, table string) ([]models.Update, error) {
	scope := p.topic.Scope
	meta := models.UpdateMeta{Source: models.SourcePoll, Change: models.ChangeSnapshot}

	switch table {
	case models.TableGames:
		g, err := p.fetcher.FetchGame(ctx, scope)
		if err != nil || g == nil {
			return nil, err
		}
		return []models.Update{models.GameUpdate{UpdateMeta: meta, Game: *g}}, nil
	case models.TableParticipants:
		list, err := p.fetcher.FetchParticipants(ctx, scope)
		if err != nil {
			return nil, err
		}
		out := make([]models.Update, 0, len(list))
		for _, row := range list {
			out = append(out, models.ParticipantUpdate{UpdateMeta: meta, Participant: row})
		}
		return out, nil
	case models.TableTeams:
		list, err := p.fetcher.FetchTeams(ctx, scope)
		if err != nil {
			return nil, err
		}
		out := make([]models.Update, 0, len(list))
		for _, row := range list {
			out = append(out, models.TeamUpdate{UpdateMeta: meta, Team: row})
		}
		return out, nil
	case models.TableSessions:
		s, err := p.fetcher.FetchSession(ctx, scope)
		if err != nil || s == nil {
			return nil, err
		}
		return []models.Update{models.SessionUpdate{UpdateMeta: meta, Session: *s}}, nil
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnknownTable, table)
}

// withMeta returns a copy of u carrying meta.
func withMeta(u models.Update, meta models.UpdateMeta) models.Update {
	switch v := u.(type) {
	case models.GameUpdate:
		v.UpdateMeta = meta
		return v
	case models.ParticipantUpdate:
		v.UpdateMeta = meta
		return v
	case models.TeamUpdate:
		v.UpdateMeta = meta
		return v
	case models.SessionUpdate:
		v.UpdateMeta = meta
		return v
	}
	return u
}
