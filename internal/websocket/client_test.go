// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftlight/heliopause/internal/audit"
)

// dial connects to a test server and returns the client side of the
// websocket. The connection is closed when the test ends.
func dial(t testing.TB, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// dialPeer starts a test server that runs serverFn on the upgraded
// connection, dials it, and returns the client side. The server-side
// connection is closed when serverFn returns.
func dialPeer(t *testing.T, serverFn func(t *testing.T, conn *websocket.Conn)) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		serverFn(t, conn)
	}))
	t.Cleanup(srv.Close)
	return dial(t, srv)
}

// awaitSignal fails the test if ch does not fire within a second.
func awaitSignal(t *testing.T, ch <-chan bool, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Errorf("%s: timed out", what)
	}
}

func TestNewClient(t *testing.T) {
	hub := NewHub(nil)
	conn := dialPeer(t, func(t *testing.T, conn *websocket.Conn) {
		time.Sleep(50 * time.Millisecond)
	})

	client := NewClient(hub, conn)
	if client == nil {
		t.Fatal("NewClient returned nil")
	}
	if client.hub != hub {
		t.Error("hub not set")
	}
	if client.conn != conn {
		t.Error("conn not set")
	}
	if cap(client.send) != sendBuffer {
		t.Errorf("cap(send) = %d, want %d", cap(client.send), sendBuffer)
	}

	second := NewClient(hub, conn)
	if second.ID() <= client.ID() {
		t.Errorf("IDs not monotonic: %d then %d", client.ID(), second.ID())
	}
}

func TestClient_Constants(t *testing.T) {
	if writeWait != 10*time.Second {
		t.Errorf("writeWait = %v, want 10s", writeWait)
	}
	if pongWait != 60*time.Second {
		t.Errorf("pongWait = %v, want 60s", pongWait)
	}
	if pingPeriod != (pongWait*9)/10 {
		t.Errorf("pingPeriod = %v, want (pongWait*9)/10", pingPeriod)
	}
	if maxMessageSize != 512 {
		t.Errorf("maxMessageSize = %d, want 512", maxMessageSize)
	}
}

func TestClient_WritePump_SendMessage(t *testing.T) {
	received := make(chan bool, 1)
	conn := dialPeer(t, func(t *testing.T, conn *websocket.Conn) {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Errorf("read: %v", err)
			return
		}
		if msg.Type != MessageTypeAuditEvent {
			t.Errorf("Type = %q, want %q", msg.Type, MessageTypeAuditEvent)
		}
		received <- true
	})

	client := NewClient(NewHub(nil), conn)
	go client.writePump()

	client.send <- Message{Type: MessageTypeAuditEvent, Data: sampleEvent("ev-write")}

	awaitSignal(t, received, "message not received")
}

func TestClient_ReadPump_PingPong(t *testing.T) {
	hub := setupHub(t)

	gotPong := make(chan bool, 1)
	conn := dialPeer(t, func(t *testing.T, conn *websocket.Conn) {
		if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
			t.Errorf("write ping: %v", err)
			return
		}
		var reply Message
		if err := conn.ReadJSON(&reply); err != nil {
			t.Errorf("read pong: %v", err)
			return
		}
		if reply.Type == MessageTypePong {
			gotPong <- true
		}
		time.Sleep(100 * time.Millisecond)
	})

	NewClient(hub, conn).Start()

	awaitSignal(t, gotPong, "pong not received")
}

// TestClient_ReadPump_IgnoresNonPingMessages verifies the tail is
// read-only: anything other than a ping is discarded, the connection
// stays up, and a subsequent ping is still answered.
func TestClient_ReadPump_IgnoresNonPingMessages(t *testing.T) {
	hub := setupHub(t)

	gotPong := make(chan bool, 1)
	conn := dialPeer(t, func(t *testing.T, conn *websocket.Conn) {
		if err := conn.WriteJSON(Message{Type: "subscribe", Data: "validation.rejected"}); err != nil {
			t.Errorf("write subscribe: %v", err)
			return
		}
		if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
			t.Errorf("write ping: %v", err)
			return
		}

		var reply Message
		if err := conn.ReadJSON(&reply); err != nil {
			t.Errorf("read reply: %v", err)
			return
		}
		if reply.Type == MessageTypePong {
			gotPong <- true
		} else {
			t.Errorf("first reply Type = %q, want %q", reply.Type, MessageTypePong)
		}
		time.Sleep(100 * time.Millisecond)
	})

	NewClient(hub, conn).Start()

	awaitSignal(t, gotPong, "pong not received")
}

func TestClient_DisconnectUnregisters(t *testing.T) {
	hub := setupHub(t)

	conn := dialPeer(t, func(t *testing.T, conn *websocket.Conn) {
		// Returning drops the server side of the connection.
		time.Sleep(50 * time.Millisecond)
	})

	client := NewClient(hub, conn)
	registerClient(t, hub, client)
	client.Start()

	waitFor(t, func() bool { return hub.GetClientCount() == 0 }, "client not unregistered after disconnect")
}

// TestClient_WritePump_ChannelClose verifies that when the hub closes
// the send channel the write pump says goodbye with a normal-closure
// frame before hanging up.
func TestClient_WritePump_ChannelClose(t *testing.T) {
	gotClose := make(chan bool, 1)
	conn := dialPeer(t, func(t *testing.T, conn *websocket.Conn) {
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					gotClose <- true
				} else {
					t.Errorf("read ended with %v, want normal closure", err)
				}
				return
			}
		}
	})

	client := NewClient(NewHub(nil), conn)
	go client.writePump()
	close(client.send)

	awaitSignal(t, gotClose, "close frame not received")
}

// TestClient_EndToEnd exercises the production wiring: the server side
// upgrades, registers a client with the hub, and a broadcast event
// arrives at the remote end as JSON.
func TestClient_EndToEnd(t *testing.T) {
	hub := setupHub(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		client := NewClient(hub, conn)
		hub.Register <- client
		client.Start()
	}))
	t.Cleanup(srv.Close)

	conn := dial(t, srv)

	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "client not registered")

	hub.BroadcastEvent(sampleEvent("ev-tail"))

	if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}

	if msg.Type != MessageTypeAuditEvent {
		t.Errorf("Type = %q, want %q", msg.Type, MessageTypeAuditEvent)
	}
	data, ok := msg.Data.(map[string]any)
	if !ok {
		t.Fatalf("Data is %T, want event object", msg.Data)
	}
	if data["id"] != "ev-tail" {
		t.Errorf("event id = %v, want %q", data["id"], "ev-tail")
	}
	if data["type"] != string(audit.EventTypeValidationRejected) {
		t.Errorf("event type = %v, want %q", data["type"], audit.EventTypeValidationRejected)
	}
	if data["path"] != "/api/v1/contact" {
		t.Errorf("event path = %v, want %q", data["path"], "/api/v1/contact")
	}
}

func BenchmarkClient_SendMessage(b *testing.B) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	conn := dial(b, srv)
	client := NewClient(NewHub(nil), conn)
	go client.writePump()

	message := Message{Type: MessageTypeAuditEvent, Data: sampleEvent("ev-bench")}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		select {
		case client.send <- message:
		default:
			// Buffer full, skip.
		}
	}
}
