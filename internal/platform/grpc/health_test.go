package grpc

import (
	"context"
	"testing"
	"time"
)

const testService = "classpulse.live.Broker"

func startHealthServer(t *testing.T) (*HealthServer, func()) {
	t.Helper()

	server, err := NewHealthServer("127.0.0.1:0", testService)
	if err != nil {
		t.Fatalf("new health server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx)
	}()

	stop := func() {
		cancel()
		select {
		case err := <-serveErr:
			if err != nil {
				t.Errorf("serve returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("health server did not stop on cancel")
		}
	}
	return server, stop
}

func TestNewHealthServerRequiresAddr(t *testing.T) {
	if _, err := NewHealthServer(" "); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestProbeSucceedsWhenServing(t *testing.T) {
	server, stop := startHealthServer(t)
	defer stop()
	server.SetServing(true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := Probe(ctx, server.Addr(), testService, nil); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if err := Probe(ctx, server.Addr(), "", nil); err != nil {
		t.Fatalf("probe overall: %v", err)
	}
}

func TestProbeWaitsForTransitionToServing(t *testing.T) {
	server, stop := startHealthServer(t)
	defer stop()

	go func() {
		time.Sleep(200 * time.Millisecond)
		server.SetServing(true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := Probe(ctx, server.Addr(), testService, nil); err != nil {
		t.Fatalf("probe after transition: %v", err)
	}
}

func TestProbeRespectsContextWhenNotServing(t *testing.T) {
	server, stop := startHealthServer(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var attempts int
	logf := func(string, ...any) { attempts++ }
	if err := Probe(ctx, server.Addr(), testService, logf); err == nil {
		t.Fatal("expected context error, got nil")
	}
	if attempts == 0 {
		t.Fatal("expected waiting attempts to be logged")
	}
}

func TestWaitForHealthRequiresConn(t *testing.T) {
	if err := WaitForHealth(context.Background(), nil, "", nil); err == nil {
		t.Fatal("expected error for nil connection")
	}
}

func TestNilHealthServerIsSafe(t *testing.T) {
	var s *HealthServer
	if s.Addr() != "" {
		t.Fatal("expected empty addr")
	}
	s.SetServing(true)
	s.Close()
	if err := s.Serve(context.Background()); err == nil {
		t.Fatal("expected error for nil server")
	}
}
