// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftlight/heliopause/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound frames. The tail is read-only; clients
	// only ever send small keepalive messages.
	maxMessageSize = 512

	// sendBuffer is how many outbound messages may queue per client
	// before the hub treats it as too slow to keep.
	sendBuffer = 256
)

// nextClientID hands out monotonically increasing client IDs. The hub
// fans out in ID order so that delivery and slow-client eviction do not
// depend on map iteration order.
var nextClientID atomic.Uint64

// Client bridges one websocket connection and the hub. The hub owns the
// send channel: it closes it to tell the write pump to hang up.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	id   uint64
	send chan Message
}

// NewClient wraps an upgraded connection. The caller still has to
// register the client with the hub and call Start.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		id:   nextClientID.Add(1),
		send: make(chan Message, sendBuffer),
	}
}

// ID returns the client's hub-ordering identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// Start launches the read and write pumps. Each connection gets exactly
// one of each; all conn writes happen on the write pump goroutine.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump consumes inbound frames until the connection drops, then
// unregisters the client. The only message honored is the
// application-level ping; anything else is discarded without ending the
// session.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	// The deadline is bumped on every protocol pong; a peer that stops
	// answering pings times out within pongWait.
	bumpDeadline := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	c.conn.SetReadLimit(maxMessageSize)
	if err := bumpDeadline(); err != nil {
		logging.Error().Err(err).Uint64("client_id", c.id).Msg("audit stream read deadline not set")
		return
	}
	c.conn.SetPongHandler(func(string) error { return bumpDeadline() })

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("audit stream client read failed")
			}
			return
		}
		if msg.Type != MessageTypePing {
			continue
		}
		// Reply best-effort. A client that pings while its own send
		// buffer is full will be dropped by the hub soon anyway.
		select {
		case c.send <- Message{Type: MessageTypePong}:
		default:
		}
	}
}

// writePump serializes queued messages onto the connection and keeps the
// session alive with protocol-level pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub dropped us or is shutting down.
				deadline := time.Now().Add(writeWait)
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("audit stream client write failed")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
