// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// Package audit provides the gateway's security event trail.
//
// Every defensive decision the gateway makes - a rejected payload, a
// failed CSRF check, a throttled client, a gate fault - is recorded as
// a structured Event and persisted for compliance and forensic
// analysis.
//
// # Overview
//
// The audit system provides:
//   - Structured event logging with typed event categories
//   - DuckDB persistence for a durable audit trail
//   - Asynchronous buffered writes for minimal latency impact
//   - Automatic retention enforcement via a supervised sweeper
//   - An optional Watermill pipeline (in-process channels or NATS
//     JetStream) so external consumers can subscribe to the same topic
//   - SIEM integration via Common Event Format (CEF) export
//   - Flexible querying with multi-dimensional filters
//
// # Event Types
//
// Gate decisions:
//   - validation.rejected: request blocked with ERROR findings
//   - validation.warned: request accepted with WARNING findings
//   - validation.fail_open: gate fault, request allowed unvalidated
//   - validation.fail_closed: gate fault, request rejected
//   - request.exempted: request bypassed the gate via exempt path
//
// Perimeter defenses:
//   - csrf.failure: cross-site request rejected
//   - ratelimit.exceeded: client over its request budget
//
// Storage defenses:
//   - storage.constraint_violation: database constraint mapped to a 400
//
// Admin surface and lifecycle:
//   - audit.queried, audit.exported: admin access to the trail
//   - server.start, server.stop: gateway lifecycle
//
// # Architecture
//
// The logger uses a producer-consumer pattern:
//
//	Logger.Log() -> Event Buffer (chan) -> Async Writer -> Sink
//	                     |                      |
//	                 Non-blocking           Background goroutine
//
// Log never blocks the request path: events are buffered in a channel
// and drained by a background goroutine. A full buffer drops the event,
// warns, and increments a counter. Close drains the buffer before
// returning.
//
// The Sink decides where drained events go. StoreSink writes them to a
// Store directly. PublisherSink publishes them on the pipeline topic
// (audit.events); the Pipeline service consumes the topic, persists to
// the Store, and pushes each persisted event to the WebSocket live
// tail. With the nats build tag the pipeline can ride NATS JetStream -
// external (including an embedded single-binary server) - so SIEM
// consumers subscribe to the same subject the gateway publishes on.
//
// # Usage
//
// Direct-to-store logging:
//
//	store := audit.NewDuckDBStore(db)
//	logger := audit.NewLogger(audit.NewStoreSink(store), audit.DefaultConfig(), rec)
//	defer logger.Close()
//
//	logger.LogValidationRejected(ctx, r, result.Errors)
//	logger.LogCSRFFailure(ctx, r, "mismatch")
//
// Pipeline logging:
//
//	pubsub := audit.NewGoChannelPubSub(wmLogger)
//	logger := audit.NewLogger(audit.NewPublisherSink(pubsub, topic, rec), cfg, rec)
//	pipeline, _ := audit.NewPipeline(topic, pubsub, store, hub, wmLogger)
//	supervisor.Add(pipeline)
//
// Querying:
//
//	events, err := store.Query(ctx, audit.QueryFilter{
//	    Types:     []audit.EventType{audit.EventTypeValidationRejected},
//	    StartTime: &start,
//	    Limit:     100,
//	    OrderDesc: true,
//	})
//
// # Retention
//
// RetentionSweeper deletes events older than RetentionDays every
// CleanupInterval. It implements suture.Service and restarts under
// supervision if it fails.
//
// # Thread Safety
//
// All exported functions are safe for concurrent use. The stores
// synchronize internally; the logger hands events between goroutines
// over its channel.
package audit
