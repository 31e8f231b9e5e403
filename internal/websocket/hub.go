// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package websocket

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/driftlight/heliopause/internal/audit"
	"github.com/driftlight/heliopause/internal/logging"
	"github.com/driftlight/heliopause/internal/metrics"
)

// Message types for the live-tail protocol.
const (
	MessageTypeAuditEvent = "audit_event"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
)

// broadcastBuffer is how many frames may queue hub-wide before
// BroadcastEvent starts dropping from the live tail.
const broadcastBuffer = 256

// Message is the envelope for every frame sent to a tail client.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub maintains the set of connected tail clients and fans newly
// persisted audit events out to them. The tail is best-effort: the
// store is the system of record, and a client that cannot keep up is
// dropped rather than allowed to apply backpressure to the pipeline.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	metrics    *metrics.Recorder
	mu         sync.RWMutex
}

var _ audit.Broadcaster = (*Hub)(nil)

// NewHub creates a hub. The recorder may be nil.
func NewHub(rec *metrics.Recorder) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, broadcastBuffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		metrics:    rec,
	}
}

// String implements fmt.Stringer for supervisor logs.
func (h *Hub) String() string {
	return "websocket-hub"
}

// Serve runs the hub loop until ctx is canceled, then closes every
// connected client and returns ctx.Err(). It implements suture.Service
// and runs under the messaging branch of the supervision tree; because
// shutdown leaves no orphaned connections, a supervisor restart starts
// from a clean slate.
//
// Go's select picks among ready cases at random, so the loop drains in
// explicit priority order: shutdown first, then lifecycle changes, then
// broadcasts. A frame is never fanned out while a registration it
// should include is still queued.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.attach(client)
			continue
		case client := <-h.Unregister:
			h.detach(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.attach(client)
		case client := <-h.Unregister:
			h.detach(client)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) attach(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.TrackWSConnection(true)
	logging.Info().Int("total_clients", total).Msg("audit stream client connected")
}

func (h *Hub) detach(client *Client) {
	h.mu.Lock()
	known := h.clients[client]
	if known {
		h.dropLocked(client)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if known {
		logging.Info().Int("total_clients", total).Msg("audit stream client disconnected")
	}
}

// snapshotLocked returns the connected clients ordered by ID, so that
// delivery order and slow-client eviction are reproducible. Callers
// must hold h.mu.
func (h *Hub) snapshotLocked() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	slices.SortFunc(clients, func(a, b *Client) int {
		return cmp.Compare(a.id, b.id)
	})
	return clients
}

// dropLocked closes a client's send channel and forgets it. Closing the
// channel is what stops the client's write pump. Callers must hold h.mu.
func (h *Hub) dropLocked(client *Client) {
	close(client.send)
	delete(h.clients, client)
	h.metrics.TrackWSConnection(false)
}

// fanOut delivers one frame to every connected client. A client whose
// send buffer is already full is dropped instead of being waited on.
func (h *Hub) fanOut(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var stalled []*Client
	for _, client := range h.snapshotLocked() {
		select {
		case client.send <- msg:
		default:
			stalled = append(stalled, client)
		}
	}

	for _, client := range stalled {
		h.dropLocked(client)
		logging.Warn().Uint64("client_id", client.id).Msg("dropping slow audit stream client")
	}
}

// shutdown closes every connected client. The context error is reported
// as a reason string, not logged through Err: cancellation is how the
// hub is asked to stop, not a failure.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	closed := len(h.clients)
	for _, client := range h.snapshotLocked() {
		h.dropLocked(client)
	}
	h.mu.Unlock()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", shutdownReason(ctx)).
		Int("clients_closed", closed).
		Msg("websocket hub stopped")
}

// shutdownReason distinguishes the normal supervisor stop from an
// expired shutdown deadline, for the stop log line.
func shutdownReason(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "deadline_exceeded"
	}
	return "canceled"
}

// BroadcastEvent queues a persisted audit event for delivery to every
// connected client. It implements audit.Broadcaster and is called by
// the audit pipeline after each successful store write.
//
// Never blocks: if the hub's queue is full the event is dropped from
// the live tail. The stored copy is unaffected.
func (h *Hub) BroadcastEvent(event *audit.Event) {
	if !h.enqueue(Message{Type: MessageTypeAuditEvent, Data: event}) {
		logging.Warn().Msg("broadcast queue full, audit event dropped from live tail")
	}
}

// BroadcastJSON queues an arbitrary typed frame for every connected
// client, with the same drop-on-full behavior as BroadcastEvent.
func (h *Hub) BroadcastJSON(messageType string, data any) {
	if !h.enqueue(Message{Type: messageType, Data: data}) {
		logging.Warn().Str("message_type", messageType).Msg("broadcast queue full, message dropped")
	}
}

func (h *Hub) enqueue(msg Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		return false
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
