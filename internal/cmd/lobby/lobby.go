// Package lobby parses lobby command flags and composes the server entrypoint.
package lobby

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/lobby/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/lobby/internal/platform/grpc"
	"github.com/louisbranch/lobby/internal/platform/timeouts"
	server "github.com/louisbranch/lobby/internal/services/lobby/app"
)

// Config holds lobby command configuration.
type Config struct {
	HTTPAddr      string        `env:"LOBBY_HTTP_ADDR"      envDefault:":8080"`
	GRPCAddr      string        `env:"LOBBY_GRPC_ADDR"      envDefault:":8081"`
	DBPath        string        `env:"LOBBY_DB_PATH"`
	IdleTick      time.Duration `env:"LOBBY_IDLE_TICK"      envDefault:"60s"`
	IdleTicks     int           `env:"LOBBY_IDLE_TICKS"     envDefault:"30"`
	AllowedOrigin string        `env:"LOBBY_ALLOWED_ORIGIN" envDefault:"*"`

	// Probe checks a running instance's health endpoint instead of serving.
	Probe bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "lobby HTTP/WebSocket listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite activity log path (empty disables)")
	fs.DurationVar(&cfg.IdleTick, "idle-tick", cfg.IdleTick, "interval between room inactivity checks")
	fs.IntVar(&cfg.IdleTicks, "idle-ticks", cfg.IdleTicks, "idle checks before a room expires")
	fs.StringVar(&cfg.AllowedOrigin, "allowed-origin", cfg.AllowedOrigin, "CORS origin for HTTP views")
	fs.BoolVar(&cfg.Probe, "probe", false, "check the gRPC health endpoint and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.IdleTick <= 0 {
		return Config{}, errors.New("idle tick must be positive")
	}
	if cfg.IdleTicks <= 0 {
		return Config{}, errors.New("idle ticks must be positive")
	}
	return cfg, nil
}

// Run builds the lobby server and serves until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLobby, func(runCtx context.Context) error {
		if err := server.Run(runCtx, server.Config{
			HTTPAddr:      cfg.HTTPAddr,
			GRPCAddr:      cfg.GRPCAddr,
			DBPath:        cfg.DBPath,
			IdleTick:      cfg.IdleTick,
			IdleTicks:     cfg.IdleTicks,
			AllowedOrigin: cfg.AllowedOrigin,
		}); err != nil {
			return fmt.Errorf("serve lobby: %w", err)
		}
		return nil
	})
}

// Probe reports whether the lobby health service at cfg.GRPCAddr is serving.
func Probe(ctx context.Context, cfg Config) error {
	addr := probeAddr(cfg.GRPCAddr)
	if addr == "" {
		return errors.New("grpc address is required for probe")
	}
	logf := func(format string, args ...any) {
		log.Printf("probe %s", fmt.Sprintf(format, args...))
	}
	return platformgrpc.Probe(ctx, addr, server.HealthService, timeouts.GRPCDial, logf)
}

// probeAddr turns a listen address such as ":8081" into a dialable one.
func probeAddr(listenAddr string) string {
	addr := strings.TrimSpace(listenAddr)
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
