// Package grpc holds gRPC client helpers for the lobby health surface.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const maxHealthBackoff = time.Second

// ClientOptions returns the dial options used for in-process health clients.
// The OTel stats handler propagates trace context when a provider is set.
func ClientOptions() []gogrpc.DialOption {
	return []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// Probe connects to addr and waits until service reports SERVING or the
// timeout elapses. An empty service name checks overall server health.
func Probe(ctx context.Context, addr string, service string, timeout time.Duration, logf func(string, ...any)) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return errors.New("health address is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := gogrpc.NewClient(addr, ClientOptions()...)
	if err != nil {
		return fmt.Errorf("create health client for %s: %w", addr, err)
	}
	defer conn.Close()

	return WaitForHealth(ctx, conn, service, logf)
}

// WaitForHealth blocks until the gRPC health check reports SERVING or the context ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	healthClient := grpc_health_v1.NewHealthClient(conn)
	backoff := 100 * time.Millisecond
	lastStatus := grpc_health_v1.HealthCheckResponse_UNKNOWN
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		response, err := healthClient.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil {
			lastStatus = response.GetStatus()
			if lastStatus == grpc_health_v1.HealthCheckResponse_SERVING {
				if logf != nil {
					logf("gRPC health check %q is SERVING", service)
				}
				return nil
			}
		}
		if logf != nil {
			if err != nil {
				logf("waiting for gRPC health: %v", err)
			} else {
				logf("waiting for gRPC health: status %s", lastStatus.String())
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for gRPC health (last status %s): %w", lastStatus.String(), ctx.Err())
		case <-time.After(backoff):
		}

		if backoff < maxHealthBackoff {
			backoff *= 2
			if backoff > maxHealthBackoff {
				backoff = maxHealthBackoff
			}
		}
	}
}
