// Package live parses live broker command flags and composes the transport
// entrypoint.
package live

import (
	"context"
	"flag"
	"fmt"
	"log"

	entrypoint "github.com/classpulse/live/internal/platform/cmd"
	"github.com/classpulse/live/internal/platform/config"
	platformgrpc "github.com/classpulse/live/internal/platform/grpc"
	"github.com/classpulse/live/internal/platform/timeouts"
	server "github.com/classpulse/live/internal/services/live/app"
)

// Config holds live command configuration.
type Config struct {
	HTTPAddr       string `env:"CLASSPULSE_LIVE_HTTP_ADDR"       envDefault:":3001"`
	GRPCAddr       string `env:"CLASSPULSE_LIVE_GRPC_ADDR"       envDefault:":3002"`
	AllowedOrigins string `env:"CLASSPULSE_LIVE_ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
	JWTSecret      string `env:"CLASSPULSE_LIVE_JWT_SECRET"`
	JWTIssuer      string `env:"CLASSPULSE_LIVE_JWT_ISSUER"`
	OutboxSize     int    `env:"CLASSPULSE_LIVE_OUTBOX_SIZE"     envDefault:"64"`
	Probe          bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "live HTTP/WebSocket listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.AllowedOrigins, "allowed-origins", cfg.AllowedOrigins, "comma-separated browser origins allowed to connect (empty allows any)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HS256 secret for identity tokens (empty disables identity checks)")
	fs.StringVar(&cfg.JWTIssuer, "jwt-issuer", cfg.JWTIssuer, "expected identity token issuer")
	fs.IntVar(&cfg.OutboxSize, "outbox-size", cfg.OutboxSize, "frames buffered per connection before it is dropped")
	fs.BoolVar(&cfg.Probe, "probe", false, "check the gRPC health endpoint and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.OutboxSize <= 0 {
		return Config{}, fmt.Errorf("outbox size must be positive, got %d", cfg.OutboxSize)
	}
	return cfg, nil
}

// Run builds the live broker and serves it until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceLive, entrypoint.RunOptions{
		ShutdownTimeout: timeouts.Shutdown,
	}, func(ctx context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:       cfg.HTTPAddr,
			GRPCAddr:       cfg.GRPCAddr,
			AllowedOrigins: config.SplitList(cfg.AllowedOrigins),
			JWTSecret:      cfg.JWTSecret,
			JWTIssuer:      cfg.JWTIssuer,
			OutboxSize:     cfg.OutboxSize,
		}); err != nil {
			return fmt.Errorf("serve live: %w", err)
		}
		return nil
	})
}

// Probe reports whether the broker's health endpoint answers SERVING.
func Probe(ctx context.Context, cfg Config) error {
	if cfg.GRPCAddr == "" {
		return fmt.Errorf("grpc address is required for probing")
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeouts.Probe)
	defer cancel()

	logf := func(format string, args ...any) {
		log.Printf("probe %s", fmt.Sprintf(format, args...))
	}
	if err := platformgrpc.Probe(probeCtx, probeTarget(cfg.GRPCAddr), server.HealthService, logf); err != nil {
		return fmt.Errorf("probe live health: %w", err)
	}
	return nil
}

// probeTarget turns a listen address such as ":3002" into a dialable one.
func probeTarget(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
