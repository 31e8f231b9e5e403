// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package audit

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/driftlight/heliopause/internal/logging"
	"github.com/driftlight/heliopause/internal/metrics"
)

// DefaultTopic is the pipeline subject audit events are published on.
const DefaultTopic = "audit.events"

// NATSOptions configures the optional JetStream transport. Only honored
// in builds with the nats tag; the default build uses in-process Go
// channels.
type NATSOptions struct {
	// URL of an external NATS server. Ignored when Embedded is set.
	URL string

	// Embedded starts an in-process nats-server instead of dialing URL.
	Embedded bool
	Host     string
	Port     int
	StoreDir string

	MaxMemory int64
	MaxStore  int64

	DurableName string
	QueueGroup  string

	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSOptions returns production defaults for the JetStream
// transport.
func DefaultNATSOptions() NATSOptions {
	return NATSOptions{
		URL:           "nats://127.0.0.1:4222",
		Embedded:      true,
		Host:          "127.0.0.1",
		Port:          4222,
		StoreDir:      "./data/nats",
		MaxMemory:     64 << 20,
		MaxStore:      256 << 20,
		DurableName:   "heliopause-audit",
		QueueGroup:    "heliopause",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
	}
}

// NewGoChannelPubSub returns the in-process pub/sub used when no broker
// is configured. The same value serves as both publisher and subscriber.
func NewGoChannelPubSub(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, logger)
}

// PublisherSink publishes buffered events to the pipeline topic instead
// of writing them to the store directly. A pipeline handler on the other
// end persists them, and external consumers can subscribe to the same
// topic.
type PublisherSink struct {
	publisher message.Publisher
	topic     string
	metrics   *metrics.Recorder
}

// NewPublisherSink creates a sink over the given publisher.
func NewPublisherSink(publisher message.Publisher, topic string, rec *metrics.Recorder) *PublisherSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &PublisherSink{
		publisher: publisher,
		topic:     topic,
		metrics:   rec,
	}
}

// Write serializes the event and publishes it.
func (s *PublisherSink) Write(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(event.ID, data)
	msg.Metadata.Set("type", string(event.Type))
	msg.Metadata.Set("severity", string(event.Severity))

	err = s.publisher.Publish(s.topic, msg)
	if s.metrics != nil {
		s.metrics.RecordAuditPublish(err)
	}
	return err
}

// Close is a no-op; the publisher's owner closes it after the pipeline
// has drained. With the in-process pubsub, publisher and subscriber are
// the same object, so closing here would cut off in-flight events.
func (s *PublisherSink) Close() error {
	return nil
}

// Broadcaster pushes persisted events to live-tail clients. Implemented
// by the WebSocket hub.
type Broadcaster interface {
	BroadcastEvent(event *Event)
}

// Pipeline consumes published audit events, persists them to the store,
// and feeds the live tail. It implements suture.Service and runs under
// the messaging layer of the supervision tree.
type Pipeline struct {
	router      *message.Router
	store       Store
	broadcaster Broadcaster
	topic       string
}

// NewPipeline wires a consuming handler onto the given subscriber.
// The broadcaster may be nil.
func NewPipeline(topic string, subscriber message.Subscriber, store Store, broadcaster Broadcaster, logger watermill.LoggerAdapter) (*Pipeline, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 100 * time.Millisecond,
			Logger:          logger,
		}.Middleware,
	)

	p := &Pipeline{
		router:      router,
		store:       store,
		broadcaster: broadcaster,
		topic:       topic,
	}

	router.AddNoPublisherHandler(
		"audit-persist",
		topic,
		subscriber,
		p.handle,
	)

	return p, nil
}

// handle persists one published event and broadcasts it.
func (p *Pipeline) handle(msg *message.Message) error {
	var event Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		// Malformed payloads are dropped rather than retried forever.
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping malformed audit message")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.store.Save(ctx, &event); err != nil {
		return err
	}

	if p.broadcaster != nil {
		p.broadcaster.BroadcastEvent(&event)
	}

	return nil
}

// Serve runs the pipeline until the context is canceled.
func (p *Pipeline) Serve(ctx context.Context) error {
	if err := p.router.Run(ctx); err != nil {
		return err
	}
	return ctx.Err()
}

// Running returns a channel that closes once the router is consuming.
func (p *Pipeline) Running() <-chan struct{} {
	return p.router.Running()
}

// Close stops the router.
func (p *Pipeline) Close() error {
	return p.router.Close()
}

// String names the service in supervisor logs.
func (p *Pipeline) String() string {
	return "audit-pipeline"
}
