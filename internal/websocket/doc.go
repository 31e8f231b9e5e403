// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// Package websocket provides the live tail of the audit trail.
//
// Newly persisted audit events are streamed over gorilla/websocket to
// connected admin clients, so an operator can watch rejections as they
// happen without polling the query API.
//
// # Architecture
//
// A single Hub brokers all connections:
//
//	audit.Pipeline -> Hub.BroadcastEvent -> broadcast queue -> fan-out
//	                                                             |
//	                                             one send buffer per Client
//
// The Hub runs as a suture.Service under the messaging branch of the
// supervision tree. Each Client owns two goroutines: a read pump that
// answers application-level pings and detects disconnects, and a write
// pump that serializes frames and sends protocol pings on a ticker.
// Frames are Message envelopes with a type tag:
//
//	audit_event  a newly persisted audit event (data is the full event)
//	ping         client keepalive request
//	pong         server keepalive response
//
// The tail is read-only: inbound messages other than ping are discarded.
//
// # Delivery Semantics
//
// The tail is best-effort; the audit store is the system of record. If
// the hub's broadcast queue is full the event is dropped from the tail,
// never from the store. A client whose send buffer fills up is
// disconnected rather than allowed to apply backpressure to the audit
// pipeline. Fan-out walks clients in connection order, so eviction under
// load is reproducible.
//
// # Wiring
//
//	hub := websocket.NewHub(recorder)
//	tree.AddMessagingService(hub)
//
//	// The hub is the pipeline's Broadcaster: every event the pipeline
//	// persists is fanned out to tail clients.
//	pipeline, err := audit.NewPipeline(topic, subscriber, store, hub, wmLogger)
//
// The HTTP upgrade endpoint lives in internal/api and is mounted at
// GET /api/v1/audit/stream behind admin token verification and an
// origin check. The websocket_connections gauge tracks the number of
// connected clients.
package websocket
