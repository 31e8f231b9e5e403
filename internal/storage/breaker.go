// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package storage

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/driftlight/heliopause/internal/dbmap"
	"github.com/driftlight/heliopause/internal/logging"
	"github.com/driftlight/heliopause/internal/metrics"
)

// Breaker names, also used as the metric label.
const (
	breakerContact    = "contact-store"
	breakerNewsletter = "newsletter-store"
)

// newBreaker builds the circuit breaker guarding one store's statements.
//
// Configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 30 second timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
//
// Constraint violations count as successes: they prove the database is
// reachable and enforcing its schema, and a burst of duplicate signups
// must not open the circuit.
func newBreaker[T any](name string, rec *metrics.Recorder) *gobreaker.CircuitBreaker[T] {
	rec.SetBreakerState(name, 0)

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6

			if shouldTrip {
				logging.Warn().
					Str("breaker", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("opening storage circuit")
			}

			return shouldTrip
		},

		IsSuccessful: func(err error) bool {
			return err == nil || dbmap.IsConstraintViolation(err)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("storage circuit state transition")

			rec.SetBreakerState(name, breakerStateValue(to))
		},
	})
}

// observe records the outcome of one statement run through a breaker.
func observe(rec *metrics.Recorder, name string, err error) {
	switch {
	case err == nil:
		rec.RecordBreakerRequest(name, "success")
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		rec.RecordBreakerRequest(name, "rejected")
		logging.Warn().Str("breaker", name).Err(err).Msg("storage request rejected by open circuit")
	case dbmap.IsConstraintViolation(err):
		// Counted as success by the breaker; the mapper upstream turns
		// it into a client-facing validation error.
		rec.RecordBreakerRequest(name, "success")
	default:
		rec.RecordBreakerRequest(name, "failure")
	}
}

// breakerStateValue converts breaker state to the gauge value
// (0=closed, 1=half-open, 2=open).
func breakerStateValue(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
