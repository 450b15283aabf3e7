// Package main starts the live activity broker and handles termination.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	livecmd "github.com/classpulse/live/internal/cmd/live"
	"github.com/classpulse/live/internal/platform/config"
)

func main() {
	cfg, err := livecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[LIVE] ")

	if cfg.Probe {
		if err := livecmd.Probe(context.Background(), cfg); err != nil {
			config.Exitf("unhealthy: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := livecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
