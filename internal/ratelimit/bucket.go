// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package ratelimit

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket implements the gate's rate-limit capability with one
// token bucket per client. Buckets are created on first sight and
// evicted after an idle period by the sweep routine.
type TokenBucket struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rate    rate.Limit
	burst   int
	idleTTL time.Duration
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucket allows a burst of requests per client, refilling one
// slot per window.
func NewTokenBucket(requests int, window time.Duration) *TokenBucket {
	if requests < 1 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &TokenBucket{
		clients: make(map[string]*clientBucket),
		rate:    rate.Every(window),
		burst:   requests,
		idleTTL: time.Hour,
	}
}

// Allow reports whether the request's client has capacity left.
func (tb *TokenBucket) Allow(r *http.Request) bool {
	return tb.AllowKey(clientIP(r))
}

// AllowKey consumes one token for the given client key.
func (tb *TokenBucket) AllowKey(key string) bool {
	tb.mu.Lock()
	entry, ok := tb.clients[key]
	if !ok {
		entry = &clientBucket{limiter: rate.NewLimiter(tb.rate, tb.burst)}
		tb.clients[key] = entry
	}
	entry.lastSeen = time.Now()
	limiter := entry.limiter
	tb.mu.Unlock()

	return limiter.Allow()
}

// Len returns the number of tracked clients.
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.clients)
}

// StartSweep evicts idle client buckets at the given interval until
// the context is canceled.
func (tb *TokenBucket) StartSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tb.evictIdle(time.Now().Add(-tb.idleTTL))
			}
		}
	}()
}

func (tb *TokenBucket) evictIdle(olderThan time.Time) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	evicted := 0
	for key, entry := range tb.clients {
		if entry.lastSeen.Before(olderThan) {
			delete(tb.clients, key)
			evicted++
		}
	}
	return evicted
}

// clientIP extracts the client address. The RealIP middleware runs
// earlier in the chain, so RemoteAddr already reflects forwarding
// headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
