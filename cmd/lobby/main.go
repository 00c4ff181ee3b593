// Package main starts the lobby room membership service and handles
// termination.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	lobbycmd "github.com/louisbranch/lobby/internal/cmd/lobby"
	"github.com/louisbranch/lobby/internal/platform/config"
)

func main() {
	cfg, err := lobbycmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[LOBBY] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Probe {
		if err := lobbycmd.Probe(ctx, cfg); err != nil {
			config.Exitf("probe: %v", err)
		}
		return
	}
	if err := lobbycmd.Run(ctx, cfg); err != nil {
		config.Exitf("failed to serve: %v", err)
	}
}
