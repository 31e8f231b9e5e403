// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

//go:build nats

// This file provides the NATS JetStream transport for the audit
// pipeline. It is only compiled when the "nats" build tag is enabled.
//
// Build with NATS support:
//
//	go build -tags nats -o heliopause ./cmd/server

package main

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/driftlight/heliopause/internal/audit"
	"github.com/driftlight/heliopause/internal/config"
	"github.com/driftlight/heliopause/internal/logging"
)

// natsTransport carries the JetStream transport for the audit
// pipeline: an optional embedded broker plus the publisher and
// subscriber connected to it.
type natsTransport struct {
	embedded   *audit.EmbeddedServer
	publisher  message.Publisher
	subscriber message.Subscriber
}

// initNATSTransport builds the JetStream transport when
// audit.nats.enabled is set. Returns nil when the config leaves NATS
// off, so main falls back to the in-process transport.
func initNATSTransport(cfg *config.Config, logger watermill.LoggerAdapter) (*natsTransport, error) {
	if !cfg.Audit.NATS.Enabled {
		return nil, nil
	}

	opts := audit.DefaultNATSOptions()
	opts.URL = cfg.Audit.NATS.URL
	opts.Embedded = cfg.Audit.NATS.Embedded
	if cfg.Audit.NATS.StoreDir != "" {
		opts.StoreDir = cfg.Audit.NATS.StoreDir
	}
	if cfg.Audit.NATS.MaxMemory > 0 {
		opts.MaxMemory = cfg.Audit.NATS.MaxMemory
	}
	if cfg.Audit.NATS.MaxStore > 0 {
		opts.MaxStore = cfg.Audit.NATS.MaxStore
	}
	if cfg.Audit.NATS.DurableName != "" {
		opts.DurableName = cfg.Audit.NATS.DurableName
	}
	if cfg.Audit.NATS.QueueGroup != "" {
		opts.QueueGroup = cfg.Audit.NATS.QueueGroup
	}

	t := &natsTransport{}

	if opts.Embedded {
		srv, err := audit.NewEmbeddedServer(opts)
		if err != nil {
			return nil, err
		}
		t.embedded = srv
		// Clients dial the embedded broker, not the configured URL.
		opts.URL = srv.ClientURL()
		logging.Info().
			Str("url", opts.URL).
			Str("store_dir", opts.StoreDir).
			Msg("Embedded NATS server started")
	}

	publisher, err := audit.NewNATSPublisher(opts, logger)
	if err != nil {
		t.Shutdown(context.Background())
		return nil, err
	}
	t.publisher = publisher

	subscriber, err := audit.NewNATSSubscriber(opts, logger)
	if err != nil {
		t.Shutdown(context.Background())
		return nil, err
	}
	t.subscriber = subscriber

	logging.Info().Str("url", opts.URL).Msg("Audit pipeline connected to NATS JetStream")
	return t, nil
}

// Publisher returns the JetStream publisher.
func (t *natsTransport) Publisher() message.Publisher {
	return t.publisher
}

// Subscriber returns the durable JetStream subscriber.
func (t *natsTransport) Subscriber() message.Subscriber {
	return t.subscriber
}

// Shutdown closes the subscriber, the publisher, then the embedded
// broker. Safe on a nil or partially constructed transport.
func (t *natsTransport) Shutdown(ctx context.Context) {
	if t == nil {
		return
	}

	if t.subscriber != nil {
		if err := t.subscriber.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing NATS subscriber")
		}
	}
	if t.publisher != nil {
		if err := t.publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing NATS publisher")
		}
	}
	if t.embedded != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := t.embedded.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("Error shutting down embedded NATS server")
		}
	}
}
