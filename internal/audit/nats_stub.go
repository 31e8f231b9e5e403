// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

//go:build !nats

package audit

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// ErrNATSSupport is returned by the JetStream constructors in builds
// without the nats tag. The default build uses in-process Go channels.
var ErrNATSSupport = errors.New("built without nats support")

// NewNATSPublisher is unavailable in this build.
func NewNATSPublisher(opts NATSOptions, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nil, ErrNATSSupport
}

// NewNATSSubscriber is unavailable in this build.
func NewNATSSubscriber(opts NATSOptions, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nil, ErrNATSSupport
}

// EmbeddedServer is unavailable in this build.
type EmbeddedServer struct{}

// NewEmbeddedServer is unavailable in this build.
func NewEmbeddedServer(opts NATSOptions) (*EmbeddedServer, error) {
	return nil, ErrNATSSupport
}

// ClientURL returns an empty URL in this build.
func (s *EmbeddedServer) ClientURL() string {
	return ""
}

// Shutdown is a no-op in this build.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	return nil
}

// IsRunning always reports false in this build.
func (s *EmbeddedServer) IsRunning() bool {
	return false
}
