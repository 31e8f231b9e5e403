// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

//go:build !nats

// This file provides a no-op stub for the NATS JetStream transport.
// It is only compiled when the "nats" build tag is NOT enabled.
//
// Build without NATS support (default):
//
//	go build -o heliopause ./cmd/server

package main

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/driftlight/heliopause/internal/config"
	"github.com/driftlight/heliopause/internal/logging"
)

// natsTransport is a stub for non-NATS builds.
type natsTransport struct{}

// initNATSTransport returns nil so main uses the in-process transport.
// Warns when the config asks for NATS that is not compiled in.
func initNATSTransport(cfg *config.Config, _ watermill.LoggerAdapter) (*natsTransport, error) {
	if cfg.Audit.NATS.Enabled {
		logging.Warn().Msg("audit.nats.enabled is set but NATS support is not compiled (build with -tags nats)")
	}
	return nil, nil
}

// Publisher returns nil for non-NATS builds.
func (t *natsTransport) Publisher() message.Publisher {
	return nil
}

// Subscriber returns nil for non-NATS builds.
func (t *natsTransport) Subscriber() message.Subscriber {
	return nil
}

// Shutdown is a no-op for non-NATS builds.
func (t *natsTransport) Shutdown(_ context.Context) {}
