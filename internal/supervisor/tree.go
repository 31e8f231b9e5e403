// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds the restart policy shared by every supervisor in
// the tree.
type TreeConfig struct {
	// FailureThreshold is the failure score at which a supervisor
	// stops restarting immediately and enters backoff.
	FailureThreshold float64

	// FailureDecay is the half-life, in seconds, of the failure score.
	FailureDecay float64

	// FailureBackoff is how long a supervisor sits out once the
	// threshold is crossed.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds the graceful stop of each service.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig mirrors suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultTreeConfig.
func (c TreeConfig) withDefaults() TreeConfig {
	def := DefaultTreeConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = def.FailureDecay
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = def.FailureBackoff
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}

// spec converts the config into a suture.Spec. The event hook is only
// attached at the root; child supervisors inherit it when added.
func (c TreeConfig) spec(hook suture.EventHook) suture.Spec {
	return suture.Spec{
		EventHook:        hook,
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// Tree is the gateway's supervision hierarchy. Services are grouped
// into three child supervisors under one root:
//
//	heliopause
//	├── data-layer       retention sweeper
//	├── messaging-layer  audit pipeline, live-tail hub, embedded NATS
//	└── api-layer        HTTP server
//
// Grouping is what buys failure isolation. A crash-looping audit
// pipeline burns the messaging layer's failure budget, not the API
// layer's, so the HTTP listener stays up while the pipeline backs off.
type Tree struct {
	root      *suture.Supervisor
	data      *suture.Supervisor
	messaging *suture.Supervisor
	api       *suture.Supervisor
	logger    *slog.Logger
	config    TreeConfig
}

// NewTree builds the three-layer tree. Lifecycle events are reported
// through the given slog logger via sutureslog.
func NewTree(logger *slog.Logger, config TreeConfig) (*Tree, error) {
	config = config.withDefaults()

	// sutureslog's hook constructor has a pointer receiver; the
	// handler wraps the slog logger fed by our zerolog adapter.
	hook := (&sutureslog.Handler{Logger: logger}).MustHook()

	root := suture.New("heliopause", config.spec(hook))
	data := suture.New("data-layer", config.spec(nil))
	messaging := suture.New("messaging-layer", config.spec(nil))
	api := suture.New("api-layer", config.spec(nil))

	root.Add(data)
	root.Add(messaging)
	root.Add(api)

	return &Tree{
		root:      root,
		data:      data,
		messaging: messaging,
		api:       api,
		logger:    logger,
		config:    config,
	}, nil
}

// AddDataService supervises a persistence-adjacent service, like the
// retention sweeper.
func (t *Tree) AddDataService(svc suture.Service) suture.ServiceToken {
	return t.data.Add(svc)
}

// AddMessagingService supervises an event-plumbing service: the audit
// pipeline, the live-tail hub, or the embedded broker.
func (t *Tree) AddMessagingService(svc suture.Service) suture.ServiceToken {
	return t.messaging.Add(svc)
}

// AddAPIService supervises the HTTP-facing services.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until ctx is canceled, blocking the caller.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in its own goroutine and returns the
// channel that yields the terminal error. main prefers this over
// Serve so it can keep watching for shutdown signals.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that outlived the shutdown
// timeout. Worth logging when a graceful stop takes too long.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
