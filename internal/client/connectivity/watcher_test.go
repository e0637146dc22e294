package connectivity

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startHealthServer(t *testing.T) (*health.Server, string) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return hs, lis.Addr().String()
}

func TestWatcher_Check(t *testing.T) {
	hs, addr := startHealthServer(t)
	hs.SetServingStatus("upload", healthpb.HealthCheckResponse_SERVING)

	conn, err := Dial(addr)
	require.NoError(t, err)
	defer conn.Close()

	tracker := verify.NewQualityTracker()
	w := NewWatcher(conn, "upload", tracker, nil)

	rtt, err := w.Check(context.Background())
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
	assert.Equal(t, verify.QualityGood, tracker.Quality())

	hs.SetServingStatus("upload", healthpb.HealthCheckResponse_NOT_SERVING)
	_, err = w.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_SERVING")
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	hs, addr := startHealthServer(t)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	conn, err := Dial(addr)
	require.NoError(t, err)
	defer conn.Close()

	w := NewWatcher(conn, "", verify.NewQualityTracker(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.True(t, w.online)
}
