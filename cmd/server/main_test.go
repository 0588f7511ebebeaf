package main

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"salestrack/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ImportMinYear: 2024})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}

	err = validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", AdminPassword: "admin", ImportMinYear: 2024})
	if err == nil {
		t.Fatalf("expected short admin password to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", AdminPassword: "k3pl-ARSIV-2024", ImportMinYear: 2024})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigRejectsImportYearOutOfRange(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ImportMinYear: 24})
	if err == nil {
		t.Fatalf("expected two-digit import year to be rejected")
	}
}

type fakeServer struct {
	listenErr    error
	closed       chan struct{}
	shutdownDone atomic.Bool
}

func newFakeServer(listenErr error) *fakeServer {
	return &fakeServer{listenErr: listenErr, closed: make(chan struct{})}
}

func (f *fakeServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.closed
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	if f.listenErr == nil {
		close(f.closed)
	}
	time.Sleep(20 * time.Millisecond)
	f.shutdownDone.Store(true)
	return nil
}

func TestServeDrainsDispatcherAfterShutdown(t *testing.T) {
	server := newFakeServer(nil)
	ctx, cancel := context.WithCancel(context.Background())

	var drainedEarly atomic.Bool
	dispatch := func(ctx context.Context) error {
		<-ctx.Done()
		if !server.shutdownDone.Load() {
			drainedEarly.Store(true)
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- serve(ctx, server, dispatch, time.Second) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not return after cancel")
	}
	if drainedEarly.Load() {
		t.Fatalf("expected dispatcher to drain only after shutdown returned")
	}
}

func TestServeStopsDispatcherWhenServerFails(t *testing.T) {
	listenErr := errors.New("address in use")
	server := newFakeServer(listenErr)

	dispatch := func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- serve(context.Background(), server, dispatch, time.Second) }()

	select {
	case err := <-done:
		if !errors.Is(err, listenErr) {
			t.Fatalf("expected listen error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not return after server failure")
	}
	if !server.shutdownDone.Load() {
		t.Fatalf("expected shutdown to run before dispatcher stopped")
	}
}
