// Package server hosts the lobby HTTP/WebSocket surface and its gRPC health
// endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/lobby/internal/platform/timeouts"
	"github.com/louisbranch/lobby/internal/services/lobby/room"
	lobbysqlite "github.com/louisbranch/lobby/internal/services/lobby/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name reported by the gRPC health server.
const HealthService = "lobby.v1.Lobby"

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	maxMessageTextRunes = 2000

	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

// Config defines the inputs for the lobby process.
type Config struct {
	HTTPAddr string
	// GRPCAddr serves grpc.health.v1 when set.
	GRPCAddr string
	// DBPath enables the SQLite activity log when set.
	DBPath            string
	IdleTick          time.Duration
	IdleTicks         int
	AllowedOrigin     string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the lobby HTTP/WebSocket process and its health endpoint.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	grpcListener    net.Listener
	grpcServer      *gogrpc.Server
	health          *health.Server
	dispatcher      *Dispatcher
	store           *lobbysqlite.Store
}

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Details   map[string]string `json:"details,omitempty"`
}

// eventPayload carries every inbound field; each event reads the ones it
// needs.
type eventPayload struct {
	Room     string `json:"room"`
	Username string `json:"username,omitempty"`
	Emitter  string `json:"emitter,omitempty"`
	Text     string `json:"text,omitempty"`
}

type updateUsersPayload struct {
	Users []room.User `json:"users"`
	Admin *room.User  `json:"admin"`
}

type logEventPayload struct {
	Username string `json:"username"`
	LogKey   string `json:"logKey"`
}

type messagePayload struct {
	User string `json:"user"`
	Text string `json:"text"`
}

type activityView struct {
	Room       string `json:"room"`
	Username   string `json:"username"`
	LogKey     string `json:"logKey"`
	OccurredAt string `json:"occurred_at"`
}

func newFrame(eventType string, payload any) wsFrame {
	return wsFrame{Type: eventType, Payload: mustJSON(payload)}
}

// NewServer builds a configured lobby server.
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

	server := &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
	}

	dispatcherConfig := DispatcherConfig{
		IdleTick:  config.IdleTick,
		IdleTicks: config.IdleTicks,
	}
	if dbPath := strings.TrimSpace(config.DBPath); dbPath != "" {
		store, err := openActivityStore(dbPath)
		if err != nil {
			return nil, err
		}
		server.store = store
		dispatcherConfig.Store = store
	}

	dispatcher, err := NewDispatcher(dispatcherConfig)
	if err != nil {
		server.Close()
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}
	server.dispatcher = dispatcher

	server.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           NewHandler(dispatcher, config.AllowedOrigin),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	if grpcAddr := strings.TrimSpace(config.GRPCAddr); grpcAddr != "" {
		listener, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			server.Close()
			return nil, fmt.Errorf("listen on %s: %w", grpcAddr, err)
		}
		grpcServer := gogrpc.NewServer(gogrpc.StatsHandler(otelgrpc.NewServerHandler()))
		healthServer := health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)

		server.grpcListener = listener
		server.grpcServer = grpcServer
		server.health = healthServer
	}

	return server, nil
}

// Run creates and serves a lobby server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init lobby server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve lobby: %w", err)
	}
	return nil
}

// GRPCAddr returns the health listener address, or "" when disabled.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// ListenAndServe runs the HTTP server, and the gRPC health server when
// configured, until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("lobby server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 2)
	log.Printf("lobby server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()
	if s.grpcServer != nil {
		log.Printf("lobby health listening on %s", s.grpcListener.Addr())
		go func() {
			err := s.grpcServer.Serve(s.grpcListener)
			if err == nil || errors.Is(err, gogrpc.ErrServerStopped) {
				return
			}
			serveErr <- err
		}()
	}

	select {
	case <-ctx.Done():
		if s.health != nil {
			s.health.Shutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if s.grpcServer != nil {
			s.grpcServer.GracefulStop()
		}
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.grpcListener != nil {
		_ = s.grpcListener.Close()
	}
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close activity store: %v", err)
		}
	}
}

func openActivityStore(path string) (*lobbysqlite.Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
	}
	store, err := lobbysqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open activity sqlite store: %w", err)
	}
	return store, nil
}
