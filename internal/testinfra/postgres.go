// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultPostgresImage is the Postgres image used for storage tests.
	// Pinned to a major version so constraint error text stays stable.
	DefaultPostgresImage = "postgres:16-alpine"

	// DefaultPostgresPort is the in-container Postgres port.
	DefaultPostgresPort = "5432"
)

// PostgresContainer represents a running Postgres container for testing.
type PostgresContainer struct {
	testcontainers.Container

	// DSN is a ready-to-use connection string for the mapped host port,
	// with sslmode=disable suitable for pgxpool.ParseConfig.
	DSN string
}

// PostgresOption configures the Postgres container.
type PostgresOption func(*postgresConfig)

type postgresConfig struct {
	image        string
	database     string
	username     string
	password     string
	startTimeout time.Duration
	logger       testcontainers.Logging
}

// WithPostgresImage sets a custom Postgres Docker image.
func WithPostgresImage(image string) PostgresOption {
	return func(c *postgresConfig) {
		c.image = image
	}
}

// WithDatabase sets the database name created at startup.
func WithDatabase(name string) PostgresOption {
	return func(c *postgresConfig) {
		c.database = name
	}
}

// WithCredentials sets the superuser name and password.
func WithCredentials(username, password string) PostgresOption {
	return func(c *postgresConfig) {
		c.username = username
		c.password = password
	}
}

// WithPostgresStartTimeout sets the timeout for waiting for Postgres to start.
func WithPostgresStartTimeout(timeout time.Duration) PostgresOption {
	return func(c *postgresConfig) {
		c.startTimeout = timeout
	}
}

// WithContainerLogger routes container lifecycle logs somewhere
// visible, typically NewContainerLogger(t).
func WithContainerLogger(logger testcontainers.Logging) PostgresOption {
	return func(c *postgresConfig) {
		c.logger = logger
	}
}

// NewPostgresContainer creates and starts a new Postgres container for testing.
//
// Example:
//
//	ctx := context.Background()
//	pg, err := NewPostgresContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer pg.Terminate(ctx)
//
//	pool, err := pgxpool.New(ctx, pg.DSN)
func NewPostgresContainer(ctx context.Context, opts ...PostgresOption) (*PostgresContainer, error) {
	cfg := &postgresConfig{
		image:        DefaultPostgresImage,
		database:     "heliopause_test",
		username:     "heliopause",
		password:     "heliopause",
		startTimeout: 60 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	// Build container request. Postgres logs the "ready to accept
	// connections" line twice: once during initdb's throwaway server and
	// once for the real one, so wait for the second occurrence.
	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{DefaultPostgresPort + "/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     cfg.username,
			"POSTGRES_PASSWORD": cfg.password,
			"POSTGRES_DB":       cfg.database,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort(DefaultPostgresPort+"/tcp"),
		).WithDeadline(cfg.startTimeout),
	}

	// Start container
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
		Logger:           cfg.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create postgres container: %w", err)
	}

	// Get container host and port
	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, DefaultPostgresPort)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.username, cfg.password, host, port.Port(), cfg.database)

	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
	}, nil
}

// Terminate stops and removes the Postgres container.
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.Container.Terminate(ctx)
}

// Logs returns the container logs for debugging.
func (c *PostgresContainer) Logs(ctx context.Context) (string, error) {
	reader, err := c.Container.Logs(ctx)
	if err != nil {
		return "", fmt.Errorf("get logs: %w", err)
	}
	defer reader.Close()

	var logs []byte
	buf := make([]byte, 1024)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			logs = append(logs, buf[:n]...)
		}
		if err != nil {
			break
		}
	}

	return string(logs), nil
}
