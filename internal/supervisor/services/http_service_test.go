// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var _ suture.Service = (*HTTPServerService)(nil)

// fakeServer stands in for *http.Server. By default ListenAndServe
// blocks until Shutdown, like the real thing.
type fakeServer struct {
	listenErr   error
	shutdownErr error

	started  chan struct{}
	release  chan struct{}
	shutdown chan struct{}
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		shutdown: make(chan struct{}, 1),
	}
}

func (f *fakeServer) ListenAndServe() error {
	close(f.started)
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.release
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdown <- struct{}{}
	close(f.release)
	return f.shutdownErr
}

func (f *fakeServer) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(time.Second):
		t.Fatal("server never started")
	}
}

func TestNewHTTPServerService_TimeoutFallback(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    time.Duration
	}{
		{"explicit", 30 * time.Second, 30 * time.Second},
		{"zero falls back", 0, 10 * time.Second},
		{"negative falls back", -time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewHTTPServerService(newFakeServer(), tt.timeout)
			if svc.shutdownTimeout != tt.want {
				t.Errorf("shutdownTimeout = %v, want %v", svc.shutdownTimeout, tt.want)
			}
		})
	}
}

func TestHTTPServerService_GracefulStop(t *testing.T) {
	server := newFakeServer()
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	server.waitStarted(t)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	select {
	case <-server.shutdown:
	default:
		t.Error("Shutdown was never called")
	}
}

func TestHTTPServerService_ListenerFailure(t *testing.T) {
	bindErr := errors.New("listen tcp :8085: address already in use")
	server := newFakeServer()
	server.listenErr = bindErr

	svc := NewHTTPServerService(server, time.Second)
	err := svc.Serve(context.Background())

	if !errors.Is(err, bindErr) {
		t.Errorf("Serve() = %v, want wrapped %v", err, bindErr)
	}
}

func TestHTTPServerService_ShutdownFailure(t *testing.T) {
	drainErr := errors.New("connections did not drain")
	server := newFakeServer()
	server.shutdownErr = drainErr

	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	server.waitStarted(t)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, drainErr) {
			t.Errorf("Serve() = %v, want wrapped %v", err, drainErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestHTTPServerService_String(t *testing.T) {
	svc := NewHTTPServerService(newFakeServer(), time.Second)
	if svc.String() != "http-server" {
		t.Errorf("String() = %q, want http-server", svc.String())
	}
}

func TestHTTPServerService_UnderSupervision(t *testing.T) {
	server := newFakeServer()
	svc := NewHTTPServerService(server, time.Second)

	sup := suture.New("api-probe", suture.Spec{
		FailureThreshold: 3,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          2 * time.Second,
	})
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	server.waitStarted(t)
	cancel()

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}

	select {
	case <-server.shutdown:
	default:
		t.Error("Shutdown was never called during supervised stop")
	}
}
