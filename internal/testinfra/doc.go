// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// Package testinfra underpins the integration suites that need real
// backing services. It drives Docker through testcontainers-go so the
// storage tests exercise an actual Postgres server instead of a
// stand-in.
//
// # Postgres Container
//
// The PostgresContainer provides a real Postgres instance for exercising the
// storage layer, including genuine constraint violations (SQLSTATE 23505 and
// friends) that in-memory fakes cannot produce:
//
//	func TestContactStore(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//
//	    ctx := context.Background()
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, pg.Container)
//
//	    pool, err := storage.Connect(ctx, config.DatabaseConfig{
//	        Enabled: true,
//	        DSN:     pg.DSN,
//	    })
//	    // ...
//	}
//
// # Why a Real Server
//
// Constraint-violation mapping is driven by the exact PgError the server
// returns (SQLSTATE, constraint name, table name). Testing against a real
// Postgres validates that contract; a hand-built PgError only validates our
// own assumptions about it.
//
// # Running in CI
//
// These tests require Docker and network access. They are tagged
// `integration` and skip gracefully when Docker is unavailable. First run
// may need to download the container image; subsequent runs use the cache.
package testinfra
