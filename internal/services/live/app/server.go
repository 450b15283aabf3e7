// Package server hosts the live activity broker over websockets.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	platformgrpc "github.com/classpulse/live/internal/platform/grpc"
	"github.com/classpulse/live/internal/platform/timeouts"
)

// HealthService is the gRPC health service name reported by the broker.
const HealthService = "classpulse.live.Broker"

// Config defines the inputs for the live transport boundary.
type Config struct {
	HTTPAddr          string
	GRPCAddr          string
	AllowedOrigins    []string
	JWTSecret         string
	JWTIssuer         string
	OutboxSize        int
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the live HTTP/WebSocket process and its health endpoint.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	health          *platformgrpc.HealthServer
}

// NewServer builds a configured live server. The gRPC health listener is
// bound immediately when GRPCAddr is set.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	authorizer := newTokenAuthorizer(config.JWTSecret, config.JWTIssuer, nil)
	if authorizer == nil {
		log.Printf("live: identity tokens disabled; every client may control sessions")
	}
	handler := newHandler(newLiveRouter(authorizer != nil), handlerOptions{
		authorizer:     authorizer,
		allowedOrigins: normalizeOrigins(config.AllowedOrigins),
		outboxSize:     config.OutboxSize,
	})

	var health *platformgrpc.HealthServer
	if grpcAddr := strings.TrimSpace(config.GRPCAddr); grpcAddr != "" {
		var err error
		health, err = platformgrpc.NewHealthServer(grpcAddr, HealthService)
		if err != nil {
			return nil, fmt.Errorf("init health server: %w", err)
		}
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           handler,
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
		health: health,
	}, nil
}

func normalizeOrigins(origins []string) []string {
	normalized := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			normalized = append(normalized, origin)
		}
	}
	return normalized
}

// Run creates and serves a live server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init live server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve live: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server, and the health endpoint when
// configured, until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("live server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	healthErr := make(chan error, 1)
	if s.health != nil {
		go func() {
			healthErr <- s.health.Serve(healthCtx)
		}()
	}

	serveErr := make(chan error, 1)
	log.Printf("live server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()
	s.health.SetServing(true)

	select {
	case <-ctx.Done():
		s.health.SetServing(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return s.waitHealth(stopHealth, healthErr)
	case err := <-serveErr:
		s.health.SetServing(false)
		if errors.Is(err, http.ErrServerClosed) {
			return s.waitHealth(stopHealth, healthErr)
		}
		_ = s.waitHealth(stopHealth, healthErr)
		return fmt.Errorf("serve http: %w", err)
	case err := <-healthErr:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		_ = s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err == nil {
			err = errors.New("health server stopped")
		}
		return err
	}
}

func (s *Server) waitHealth(stop context.CancelFunc, healthErr <-chan error) error {
	if s.health == nil {
		return nil
	}
	stop()
	return <-healthErr
}

// HealthAddr returns the bound gRPC health address, or "" when disabled.
func (s *Server) HealthAddr() string {
	if s == nil {
		return ""
	}
	return s.health.Addr()
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Close()
	}
	if err := s.httpServer.Close(); err != nil {
		log.Printf("live: close http server: %v", err)
	}
}
