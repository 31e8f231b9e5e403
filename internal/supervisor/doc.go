// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

/*
Package supervisor provides process supervision for the gateway using
suture v4.

The tree organizes the gateway's long-running services into three
layers for failure isolation:

	root ("heliopause")
	├── data-layer
	│   └── audit retention sweeper
	├── messaging-layer
	│   ├── audit pipeline (Watermill router)
	│   └── WebSocket live-tail hub
	└── api-layer
	    └── HTTP server

This hierarchy ensures that a crash in the audit pipeline does not
take the HTTP listener down with it, and that the retention sweeper
restarting does not interrupt the live tail. Each layer carries its
own failure counter, so restart storms in one layer never push a
sibling layer into backoff.

# Restart behavior

Crashed services are restarted automatically. Each failure increments
a per-layer counter that decays exponentially (FailureDecay seconds);
when the counter exceeds FailureThreshold, restarts are delayed by
FailureBackoff. The defaults match suture's production defaults:
threshold 5, decay 30s, backoff 15s, shutdown timeout 10s.

# Service interface

All supervised services implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Returning nil stops the service permanently; returning an error
triggers a restart; a canceled context means shutdown was requested
and the service should return promptly. The audit pipeline, retention
sweeper, and live-tail hub implement this interface directly; the
HTTP server is adapted by the services subpackage.

# Shutdown

Context cancellation propagates through the tree and each service
gets ShutdownTimeout to stop. Services that fail to stop in time are
reported by UnstoppedServiceReport, which main logs before exiting.

Structured supervision events (starts, stops, failures, backoff) are
emitted through a sutureslog hook over the slog adapter in
internal/logging, so they land in the same zerolog stream as the rest
of the gateway.
*/
package supervisor
