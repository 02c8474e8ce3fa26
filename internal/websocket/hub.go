// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/quizsync/internal/logging"
	"github.com/tomtom215/quizsync/internal/metrics"
	"github.com/tomtom215/quizsync/internal/models"
	"github.com/tomtom215/quizsync/internal/realtime"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication
const (
	MessageTypeUpdate = "update"
	MessageTypeStatus = "status"
	MessageTypeError  = "error"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
)

// Message is one frame sent to a display.
type Message struct {
	Type string `json:"type"`
	Game string `json:"game,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Watcher starts realtime delivery for a game. *realtime.Registry
// implements it.
type Watcher interface {
	Watch(scope string, tables []string, handler realtime.Handler) (*realtime.Subscription, error)
}

type outbound struct {
	game string
	msg  Message
}

// room is the set of displays showing one game, plus the realtime
// subscription that feeds them.
type room struct {
	clients map[*Client]bool
	sub     *realtime.Subscription
}

// Hub groups display clients by game and fans realtime updates out to them.
//
// The first display of a game starts a realtime watch for it; when the
// last display of that game leaves, the watch is released.
type Hub struct {
	watcher    Watcher
	rooms      map[string]*room
	broadcast  chan outbound
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a Hub. A nil watcher disables automatic watches.
func NewHub(watcher Watcher) *Hub {
	return &Hub{
		watcher:    watcher,
		broadcast:  make(chan outbound, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[string]*room),
	}
}

// RunWithContext processes registrations and broadcasts until ctx is done,
// then closes every client and releases every watch.
//
// DETERMINISM: priority-based selection. Shutdown first, then client
// lifecycle events, then broadcasts, so a client registered before a
// broadcast is queued always receives it.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case out := <-h.broadcast:
			h.broadcastToClients(out)
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	r, ok := h.rooms[c.game]
	if !ok {
		r = &room{clients: make(map[*Client]bool)}
		h.rooms[c.game] = r
	}
	r.clients[c] = true
	startWatch := !ok && h.watcher != nil
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	logging.Info().Str("game", c.game).Int("total_clients", h.GetClientCount()).Msg("display connected")

	if !startWatch {
		return
	}
	sub, err := h.watcher.Watch(c.game, nil, h.updateHandler(c.game))
	if err != nil {
		metrics.WSErrors.WithLabelValues("watch").Inc()
		logging.Warn().Err(err).Str("game", c.game).Msg("failed to watch game for display")
		select {
		case c.send <- Message{Type: MessageTypeError, Game: c.game, Data: err.Error()}:
		default:
		}
		h.unregister(c)
		return
	}

	h.mu.Lock()
	r.sub = sub
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	sub := h.removeLocked(c)
	h.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// removeLocked drops c and returns the room's subscription if c was its
// last client.
func (h *Hub) removeLocked(c *Client) *realtime.Subscription {
	r, ok := h.rooms[c.game]
	if !ok || !r.clients[c] {
		return nil
	}
	delete(r.clients, c)
	close(c.send)
	metrics.WSConnections.Dec()
	logging.Info().Str("game", c.game).Msg("display disconnected")

	if len(r.clients) > 0 {
		return nil
	}
	delete(h.rooms, c.game)
	return r.sub
}

func (h *Hub) updateHandler(game string) realtime.Handler {
	return func(u models.Update) {
		h.BroadcastUpdate(game, u)
	}
}

// logGracefulShutdown closes every client and logs the shutdown. ctx.Err()
// is not logged as an error; cancellation is the expected path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// sortedClients returns r's clients in ID order.
func sortedClients(r *room) []*Client {
	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// broadcastToClients sends a message to every display of one game in ID
// order. Clients whose buffer is full are dropped.
func (h *Hub) broadcastToClients(out outbound) {
	h.mu.Lock()
	r, ok := h.rooms[out.game]
	if !ok {
		h.mu.Unlock()
		return
	}

	var toRemove []*Client
	for _, c := range sortedClients(r) {
		select {
		case c.send <- out.msg:
			metrics.WSMessagesSent.Inc()
		default:
			toRemove = append(toRemove, c)
		}
	}

	var released *realtime.Subscription
	for _, c := range toRemove {
		metrics.WSErrors.WithLabelValues("slow_client").Inc()
		if sub := h.removeLocked(c); sub != nil {
			released = sub
		}
	}
	h.mu.Unlock()

	if released != nil {
		released.Close()
	}
}

// closeAllClients closes every client and releases every watch.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	games := make([]string, 0, len(h.rooms))
	for g := range h.rooms {
		games = append(games, g)
	}
	sort.Strings(games)

	var subs []*realtime.Subscription
	for _, g := range games {
		r := h.rooms[g]
		for _, c := range sortedClients(r) {
			close(c.send)
			metrics.WSConnections.Dec()
		}
		if r.sub != nil {
			subs = append(subs, r.sub)
		}
	}
	h.rooms = make(map[string]*room)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// BroadcastUpdate sends a realtime update to every display of game.
func (h *Hub) BroadcastUpdate(game string, u models.Update) {
	data, err := models.EncodeUpdate(u)
	if err != nil {
		logging.Warn().Err(err).Str("game", game).Msg("failed to encode update for displays")
		return
	}
	h.enqueue(game, Message{Type: MessageTypeUpdate, Game: game, Data: json.RawMessage(data)})
}

// BroadcastJSON sends an arbitrary message to every display of game.
func (h *Hub) BroadcastJSON(game, messageType string, data any) {
	h.enqueue(game, Message{Type: messageType, Game: game, Data: data})
}

func (h *Hub) enqueue(game string, msg Message) {
	select {
	case h.broadcast <- outbound{game: game, msg: msg}:
	default:
		metrics.WSErrors.WithLabelValues("broadcast_full").Inc()
		logging.Warn().Str("game", game).Str("message_type", msg.Type).Msg("broadcast channel full, dropping message")
	}
}

// GetClientCount returns the number of connected displays.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, r := range h.rooms {
		n += len(r.clients)
	}
	return n
}

// ClientCount returns the number of displays showing game.
func (h *Hub) ClientCount(game string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[game]; ok {
		return len(r.clients)
	}
	return 0
}

// Games returns the games with at least one display, sorted.
func (h *Hub) Games() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	games := make([]string, 0, len(h.rooms))
	for g := range h.rooms {
		games = append(games, g)
	}
	sort.Strings(games)
	return games
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
