// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

//go:build integration

package testinfra

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

// IsDockerAvailable probes the Docker daemon with a short deadline.
func IsDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

// SkipIfNoDocker skips tests that need containers when no daemon is
// reachable, so the integration suite degrades instead of erroring on
// machines without Docker.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()
	if !IsDockerAvailable() {
		t.Skip("no Docker daemon reachable")
	}
}

// CleanupContainer terminates a container from a deferred call,
// downgrading teardown failures to test log lines.
func CleanupContainer(t *testing.T, ctx context.Context, container testcontainers.Container) {
	t.Helper()

	if container == nil {
		return
	}
	if err := container.Terminate(ctx); err != nil {
		t.Logf("container terminate failed: %v", err)
	}
}

// ContainerLogger routes testcontainers' own log lines into the
// test's output, where -v and failure reports pick them up.
type ContainerLogger struct {
	t *testing.T
}

// NewContainerLogger wraps t as a testcontainers.Logging.
func NewContainerLogger(t *testing.T) *ContainerLogger {
	return &ContainerLogger{t: t}
}

// Printf implements testcontainers.Logging.
func (l *ContainerLogger) Printf(format string, v ...any) {
	l.t.Logf(format, v...)
}
