// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// Package storage persists the demo application's contact messages and
// newsletter signups in Postgres via pgx/v5.
//
// The package exists as much for what it returns as for what it stores:
// its Save/Subscribe errors are raw pgconn.PgError values (wrapped, so
// errors.As still reaches them), which the API layer feeds through
// dbmap to turn integrity violations into field-attributed validation
// errors. The bundled schema names its constraints to match dbmap's
// default mapping table, so a duplicate newsletter signup surfaces to
// the client as a 400 at body.email rather than a generic 500.
//
// Every statement runs through a sony/gobreaker circuit breaker, one
// per store. Constraint violations count as breaker successes: they
// prove the database is up and enforcing its schema, and a burst of
// duplicate signups must not take the store offline. Breaker state and
// per-request outcomes are exported through the metrics recorder.
//
// Stores accept the Querier interface rather than *pgxpool.Pool so unit
// tests can drive the breaker and error paths with canned errors; the
// Docker-gated integration test exercises the real thing, including
// genuine SQLSTATE 23505/23514 violations.
package storage
