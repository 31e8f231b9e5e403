// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/driftlight/heliopause/internal/api"
	"github.com/driftlight/heliopause/internal/audit"
	"github.com/driftlight/heliopause/internal/auth"
	"github.com/driftlight/heliopause/internal/config"
	"github.com/driftlight/heliopause/internal/csrf"
	"github.com/driftlight/heliopause/internal/dbmap"
	"github.com/driftlight/heliopause/internal/gate"
	"github.com/driftlight/heliopause/internal/logging"
	"github.com/driftlight/heliopause/internal/metrics"
	"github.com/driftlight/heliopause/internal/ratelimit"
	"github.com/driftlight/heliopause/internal/storage"
	"github.com/driftlight/heliopause/internal/supervisor"
	"github.com/driftlight/heliopause/internal/supervisor/services"
	"github.com/driftlight/heliopause/internal/validation"
	ws "github.com/driftlight/heliopause/internal/websocket"
)

// version is stamped at release time via
// -ldflags "-X main.version=v1.2.3".
var version = "dev"

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("environment", cfg.Server.Environment).
		Str("addr", cfg.Server.Addr()).
		Msg("Starting Heliopause")

	for _, warning := range cfg.ProductionWarnings() {
		logging.Warn().Msg("Configuration: " + warning)
	}

	// A bad secrets key should stop the process now, not when a later
	// reload hits the first enc: value.
	if secret := os.Getenv(config.SecretsKeyEnvVar); secret != "" {
		if err := config.ValidateEncryptionSetup(secret); err != nil {
			logging.Fatal().Err(err).Msg("Secrets key failed its self-check")
		}
	}

	// Logging settings follow the config file while running;
	// everything else needs a restart.
	watched, err := config.WatchConfigFile(func(newCfg *config.Config, err error) {
		if err != nil {
			logging.Error().Err(err).Msg("Config reload failed, keeping previous configuration")
			return
		}
		logging.Init(logging.Config{
			Level:  newCfg.Logging.Level,
			Format: newCfg.Logging.Format,
			Caller: newCfg.Logging.Caller,
		})
		logging.Info().Str("level", newCfg.Logging.Level).Msg("Config file reloaded, logging settings applied")
	})
	switch {
	case err != nil:
		logging.Warn().Err(err).Msg("Config file watch unavailable, live reload disabled")
	case watched != "":
		logging.Info().Str("path", watched).Msg("Watching config file for logging changes")
	}

	// Root context; canceling it begins graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	// sutureslog bridges supervisor events into zerolog through the
	// slog adapter.
	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// === AUDIT TRAIL ===

	auditStore, auditDB := initAuditStore(ctx, cfg)

	// The hub exists in every configuration: the live tail is fed by
	// the pipeline or, with the direct sink, by a tee in main.
	wsHub := ws.NewHub(rec)

	auditSink, pipeline, pubsub, transport := initAuditSink(cfg, auditStore, wsHub, rec)

	auditLogger := audit.NewLogger(auditSink, &audit.Config{
		Enabled:         cfg.Audit.Enabled,
		MinSeverity:     audit.ParseSeverity(cfg.Audit.MinSeverity),
		RetentionDays:   cfg.Audit.RetentionDays,
		CleanupInterval: cfg.Audit.CleanupInterval,
		BufferSize:      cfg.Audit.BufferSize,
	}, rec)

	// === CSRF PROTECTION ===

	var csrfMw *csrf.Middleware
	var csrfStore csrf.Store
	if cfg.CSRF.Enabled {
		csrfStore, err = csrf.NewStore(csrf.StoreType(cfg.CSRF.Store), cfg.CSRF.StorePath)
		if err != nil {
			logging.Fatal().Err(err).Str("store", cfg.CSRF.Store).Msg("Failed to create CSRF store")
		}

		// FailureHook stays unset: the gate audits each refusal
		// itself, and the hook would record the same event twice.
		csrfMw = csrf.New(csrf.Config{
			CookieName:   cfg.CSRF.CookieName,
			HeaderName:   cfg.CSRF.HeaderName,
			FormField:    cfg.CSRF.FormField,
			CookieSecure: cfg.CSRF.CookieSecure,
			TokenTTL:     cfg.CSRF.TokenTTL,
			ExemptPaths:  cfg.CSRF.ExemptPaths,
		}, csrfStore, rec)

		switch s := csrfStore.(type) {
		case *csrf.MemoryStore:
			s.StartCleanupRoutine(ctx, 10*time.Minute)
		case *csrf.BadgerStore:
			s.StartGCRoutine(ctx, 5*time.Minute)
		}
		logging.Info().Str("store", cfg.CSRF.Store).Msg("CSRF protection enabled")
	} else {
		logging.Warn().Msg("CSRF protection is DISABLED (HELIOPAUSE_CSRF_ENABLED=false)")
	}

	// === REQUEST GATE ===

	requestGate := gate.New(gate.Config{
		Options: validation.Options{
			Thorough:        cfg.Validation.Thorough,
			MaxDepth:        cfg.Validation.MaxDepth,
			MaxArrayLength:  cfg.Validation.MaxArrayLength,
			MaxStringLength: cfg.Validation.MaxStringLength,
			Sanitize:        cfg.Validation.Sanitize,
		},
		FailClosed:   cfg.Validation.FailClosed,
		MaxBodyBytes: cfg.Validation.MaxBodyBytes,
		ExemptPaths:  cfg.Validation.ExemptPaths,
	}, auditLogger, rec)

	if cfg.RateLimit.Enabled {
		bucket := ratelimit.NewTokenBucket(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		bucket.StartSweep(ctx, 10*time.Minute)
		requestGate.SetRateLimiter(bucket)
	}
	if csrfMw != nil {
		requestGate.SetTokenVerifier(csrfMw)
	}

	if cfg.Validation.FailClosed {
		logging.Info().Msg("Request gate fails closed: gate faults reject requests")
	} else {
		logging.Info().Msg("Request gate fails open: gate faults admit requests unvalidated")
	}

	// === DEMONSTRATION STORAGE (optional) ===

	var pool *pgxpool.Pool
	var contacts api.ContactSaver
	var newsletter api.SubscriptionStore
	if cfg.Database.Enabled {
		pool, err = storage.Connect(ctx, cfg.Database)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to connect to database")
		}
		if err := storage.Bootstrap(ctx, pool); err != nil {
			logging.Fatal().Err(err).Msg("Failed to bootstrap database schema")
		}
		contacts = storage.NewContactStore(pool, rec)
		newsletter = storage.NewNewsletterStore(pool, rec)
		logging.Info().
			Str("dsn", config.MaskCredential(cfg.Database.DSN)).
			Msg("Database connected, demonstration endpoints enabled")
	} else {
		logging.Info().Msg("Database disabled, demonstration endpoints answer 503")
	}

	mapper := dbmap.New(nil, rec)

	// === HTTP SURFACE ===

	handler := api.NewHandler(cfg, contacts, newsletter, mapper, auditLogger)
	handler.SetHub(wsHub)
	handler.SetAuditStore(auditStore)
	if csrfMw != nil {
		handler.SetCSRF(csrfMw)
	}
	if pool != nil {
		handler.SetDatabasePinger(pool)
	}

	router := api.NewRouter(cfg, handler, api.NewChiMiddleware(cfg, auditLogger, rec))
	router.ConfigureGate(requestGate)

	if cfg.Auth.AdminTokenSecret != "" {
		verifier, err := auth.NewTokenVerifier(cfg.Auth.AdminTokenSecret, cfg.Auth.Issuer)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create admin token verifier")
		}
		router.ConfigureAuth(verifier)
		router.ConfigureAudit(api.NewAuditHandlers(auditStore, auditLogger, wsHub, cfg.CORS.AllowedOrigins))
		logging.Info().Str("issuer", cfg.Auth.Issuer).Msg("Admin audit API enabled")
	} else {
		logging.Warn().Msg("Admin audit API disabled (HELIOPAUSE_ADMIN_TOKEN_SECRET unset)")
	}

	if cfg.Metrics.Enabled {
		router.ConfigureMetrics(reg)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// === SUPERVISOR TREE ===

	if cfg.Audit.Enabled {
		tree.AddDataService(audit.NewRetentionSweeper(auditStore, cfg.Audit.RetentionDays, cfg.Audit.CleanupInterval))
	}
	tree.AddMessagingService(wsHub)
	if pipeline != nil {
		tree.AddMessagingService(pipeline)
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	auditLogger.LogServerStart(version)
	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, stopping services")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	// Drain and close in dependency order: the audit buffer first so
	// late events reach the sink, then the pipeline and transport,
	// then the stores under them.
	auditLogger.LogServerStop()
	if err := auditLogger.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing audit logger")
	}
	if pipeline != nil {
		if err := pipeline.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit pipeline")
		}
	}
	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit pubsub")
		}
	}
	transport.Shutdown(context.Background())
	if csrfStore != nil {
		if err := csrfStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing CSRF store")
		}
	}
	if pool != nil {
		pool.Close()
	}
	if auditDB != nil {
		if err := auditDB.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit database")
		}
	}

	logging.Info().Msg("Heliopause stopped gracefully")
}

// initAuditStore opens the configured audit backend. The returned
// *sql.DB is non-nil only for DuckDB and must be closed by the caller
// after the store's last use.
func initAuditStore(ctx context.Context, cfg *config.Config) (audit.Store, *sql.DB) {
	if cfg.Audit.Store != "duckdb" {
		logging.Info().Msg("Audit store: in-memory ring (events lost on restart)")
		return audit.NewMemoryStore(0), nil
	}

	// DuckDB creates the file but not its parent directory.
	if dir := filepath.Dir(cfg.Audit.StorePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			logging.Fatal().Err(err).Str("dir", dir).Msg("Failed to create audit store directory")
		}
	}

	db, err := sql.Open("duckdb", cfg.Audit.StorePath)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Audit.StorePath).Msg("Failed to open audit database")
	}

	store := audit.NewDuckDBStore(db)
	if err := store.CreateTable(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to create audit events table")
	}

	logging.Info().Str("path", cfg.Audit.StorePath).Msg("Audit store: DuckDB")
	return store, db
}

// initAuditSink selects how buffered audit events reach the store.
// With the watermill sink, events are published to the pipeline topic
// and a supervised consumer persists them; external consumers can
// subscribe to the same subject. The default writes to the store
// directly and tees events to the live-tail hub.
func initAuditSink(cfg *config.Config, store audit.Store, hub *ws.Hub, rec *metrics.Recorder) (audit.Sink, *audit.Pipeline, *gochannel.GoChannel, *natsTransport) {
	if cfg.Audit.Sink != "watermill" {
		return &broadcastSink{Sink: audit.NewStoreSink(store), hub: hub}, nil, nil, nil
	}

	wmLogger := logging.NewWatermillLogger()

	var publisher message.Publisher
	var subscriber message.Subscriber
	var pubsub *gochannel.GoChannel

	// JetStream transport only in builds with the nats tag; the stub
	// returns nil and main falls back to in-process channels.
	transport, err := initNATSTransport(cfg, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize NATS transport")
	}
	if transport != nil {
		publisher = transport.Publisher()
		subscriber = transport.Subscriber()
		logging.Info().Msg("Audit pipeline transport: NATS JetStream")
	} else {
		pubsub = audit.NewGoChannelPubSub(wmLogger)
		publisher = pubsub
		subscriber = pubsub
		logging.Info().Msg("Audit pipeline transport: in-process channels")
	}

	pipeline, err := audit.NewPipeline(cfg.Audit.Topic, subscriber, store, hub, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create audit pipeline")
	}

	return audit.NewPublisherSink(publisher, cfg.Audit.Topic, rec), pipeline, pubsub, transport
}

// broadcastSink tees direct store writes to the live-tail hub. The
// pipeline broadcasts after persisting; this keeps the tail alive
// when no pipeline is in play.
type broadcastSink struct {
	audit.Sink
	hub *ws.Hub
}

func (s *broadcastSink) Write(ctx context.Context, event *audit.Event) error {
	if err := s.Sink.Write(ctx, event); err != nil {
		return err
	}
	s.hub.BroadcastEvent(event)
	return nil
}
