package lobby

import (
	"context"
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("lobby", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.GRPCAddr != ":8081" {
		t.Fatalf("expected default grpc addr, got %q", cfg.GRPCAddr)
	}
	if cfg.DBPath != "" {
		t.Fatalf("expected activity log disabled, got %q", cfg.DBPath)
	}
	if cfg.IdleTick != time.Minute {
		t.Fatalf("expected default idle tick, got %v", cfg.IdleTick)
	}
	if cfg.IdleTicks != 30 {
		t.Fatalf("expected default idle ticks, got %d", cfg.IdleTicks)
	}
	if cfg.AllowedOrigin != "*" {
		t.Fatalf("expected default origin, got %q", cfg.AllowedOrigin)
	}
	if cfg.Probe {
		t.Fatal("expected probe disabled")
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("LOBBY_HTTP_ADDR", "env-http")
	t.Setenv("LOBBY_DB_PATH", "env.db")
	t.Setenv("LOBBY_IDLE_TICK", "5s")

	fs := flag.NewFlagSet("lobby", flag.ContinueOnError)
	args := []string{
		"-http-addr", "flag-http",
		"-idle-ticks", "3",
		"-allowed-origin", "http://localhost:4200",
		"-probe",
	}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-http" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.DBPath != "env.db" {
		t.Fatalf("expected env db path, got %q", cfg.DBPath)
	}
	if cfg.IdleTick != 5*time.Second {
		t.Fatalf("expected env idle tick, got %v", cfg.IdleTick)
	}
	if cfg.IdleTicks != 3 {
		t.Fatalf("expected flag idle ticks, got %d", cfg.IdleTicks)
	}
	if cfg.AllowedOrigin != "http://localhost:4200" {
		t.Fatalf("expected flag origin, got %q", cfg.AllowedOrigin)
	}
	if !cfg.Probe {
		t.Fatal("expected probe enabled")
	}
}

func TestParseConfigRejectsNonPositiveIdle(t *testing.T) {
	fs := flag.NewFlagSet("lobby", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-idle-ticks", "0"}); err == nil {
		t.Fatal("expected error for zero idle ticks")
	}

	fs = flag.NewFlagSet("lobby", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-idle-tick", "0s"}); err == nil {
		t.Fatal("expected error for zero idle tick")
	}
}

func TestParseConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("LOBBY_IDLE_TICKS", "many")

	fs := flag.NewFlagSet("lobby", flag.ContinueOnError)
	if _, err := ParseConfig(fs, nil); err == nil {
		t.Fatal("expected env parse error")
	}
}

func TestProbeAddr(t *testing.T) {
	if got := probeAddr(":8081"); got != "localhost:8081" {
		t.Fatalf("probe addr = %q, want localhost:8081", got)
	}
	if got := probeAddr("lobby:9000"); got != "lobby:9000" {
		t.Fatalf("probe addr = %q, want lobby:9000", got)
	}
}

func TestProbeRequiresAddr(t *testing.T) {
	if err := Probe(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty grpc address")
	}
}

func TestRunRejectsMissingHTTPAddr(t *testing.T) {
	t.Setenv("LOBBY_OTEL_ENABLED", "false")
	if err := Run(context.Background(), Config{IdleTick: time.Second, IdleTicks: 1}); err == nil {
		t.Fatal("expected error for empty http address")
	}
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	t.Setenv("LOBBY_OTEL_ENABLED", "false")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{
			HTTPAddr:  "127.0.0.1:0",
			IdleTick:  time.Second,
			IdleTicks: 1,
		})
	}()
	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop when its context ended")
	}
}
