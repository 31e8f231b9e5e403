// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

/*
Package services provides suture.Service adapters for components that do
not implement the interface themselves.

Most long-running components in this codebase implement suture.Service
directly - the audit pipeline, the retention sweeper, and the live-tail
hub all expose Serve(ctx) and String() and are added to the supervision
tree as-is. The one component that cannot is net/http's Server, whose
ListenAndServe blocks without taking a context and whose graceful
shutdown is a separate method.

HTTPServerService bridges that gap:

	server := &http.Server{Addr: cfg.Server.Addr(), Handler: router}
	svc := services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout)
	tree.AddAPIService(svc)

The wrapper starts ListenAndServe in a goroutine, waits for either a
server error or context cancellation, and on cancellation calls
Shutdown with a fresh timeout context so in-flight requests drain
before the supervisor considers the service stopped.

# Restart semantics

The supervisor restarts any service whose Serve returns an error it
does not recognize as a clean stop. Returning nil retires the service,
and returning ctx.Err() after a cancellation counts as a normal
shutdown. http.ErrServerClosed is swallowed since it is the expected
result of a graceful Shutdown, not a crash.

The supervision tree itself lives in internal/supervisor; restart
backoff and failure thresholds come from github.com/thejerf/suture/v4.
*/
package services
