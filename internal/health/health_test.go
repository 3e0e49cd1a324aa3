package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rbright/storybook/internal/fsm"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
)

func startServer(t *testing.T) (*Server, []grpc.DialOption) {
	t.Helper()

	listener := bufconn.Listen(1 << 16)
	server := NewServer(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	})
	return server, []grpc.DialOption{dialer}
}

func TestProbeFollowsSessionState(t *testing.T) {
	server, opts := startServer(t)

	got, err := Probe(context.Background(), "passthrough:///bufnet", time.Second, opts...)
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, got)

	server.ObserveState(fsm.StateWelcoming)
	got, err = Probe(context.Background(), "passthrough:///bufnet", time.Second, opts...)
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, got)

	server.ObserveState(fsm.StateShuttingDown)
	got, err = Probe(context.Background(), "passthrough:///bufnet", time.Second, opts...)
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, got)
}

func TestOverallServiceTracksSession(t *testing.T) {
	server, opts := startServer(t)
	server.ObserveState(fsm.StateCapturing)

	opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	conn, err := grpc.NewClient("passthrough:///bufnet", opts...)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.True(t, proto.Equal(&healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, resp))

	_, err = healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "dictation"})
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestServingStatus(t *testing.T) {
	tests := []struct {
		state fsm.State
		want  healthpb.HealthCheckResponse_ServingStatus
	}{
		{fsm.StateIdle, healthpb.HealthCheckResponse_NOT_SERVING},
		{fsm.StateWelcoming, healthpb.HealthCheckResponse_SERVING},
		{fsm.StateCapturing, healthpb.HealthCheckResponse_SERVING},
		{fsm.StateGenerating, healthpb.HealthCheckResponse_SERVING},
		{fsm.StateDisplaying, healthpb.HealthCheckResponse_SERVING},
		{fsm.StateNotifying, healthpb.HealthCheckResponse_SERVING},
		{fsm.StateShuttingDown, healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, ServingStatus(tc.state), tc.state)
	}
}

func TestProbeRequiresAddress(t *testing.T) {
	_, err := Probe(context.Background(), "  ", time.Second)
	require.ErrorContains(t, err, "health address is empty")
}

func TestProbeTimesOutWithoutServer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	_, err = Probe(context.Background(), addr, 150*time.Millisecond)
	require.Error(t, err)
}
