// Package health exposes the kiosk session over the standard gRPC health
// service so supervisors can tell a live reader from a wedged one.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/rbright/storybook/internal/fsm"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the health service name reporting session state.
const Service = "storybook"

// Server publishes session state through grpc.health.v1.
type Server struct {
	logger *slog.Logger
	grpc   *grpc.Server
	health *grpchealth.Server
}

// NewServer registers the health service. Both the overall and the
// storybook service start NOT_SERVING until the session leaves idle.
func NewServer(logger *slog.Logger) *Server {
	s := &Server{
		logger: logger,
		grpc:   grpc.NewServer(),
		health: grpchealth.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// ObserveState maps a session state onto the serving status.
func (s *Server) ObserveState(state fsm.State) {
	status := ServingStatus(state)
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
}

// ServingStatus reports SERVING for every state of a running session.
func ServingStatus(state fsm.State) healthpb.HealthCheckResponse_ServingStatus {
	switch state {
	case fsm.StateIdle, fsm.StateShuttingDown:
		return healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return healthpb.HealthCheckResponse_SERVING
	}
}

// Serve blocks until ctx is done or the listener fails.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s.logger != nil {
		s.logger.Info("health server listening", "addr", listener.Addr().String(), "service", Service)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpc.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve health: %w", err)
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		<-errCh
		return nil
	}
}

// Probe dials addr and asks the storybook service for its status.
func Probe(ctx context.Context, addr string, timeout time.Duration, opts ...grpc.DialOption) (healthpb.HealthCheckResponse_ServingStatus, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return healthpb.HealthCheckResponse_UNKNOWN, errors.New("health address is empty")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dial health %q: %w", addr, err)
	}
	defer conn.Close()

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn.Connect()
	if err := waitForReady(probeCtx, conn); err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("wait for health readiness: %w", err)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(probeCtx, &healthpb.HealthCheckRequest{Service: Service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus(), nil
}

// waitForReady blocks until the connection is Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}
