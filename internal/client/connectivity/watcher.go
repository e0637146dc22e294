// Package connectivity measures round trips to the upload server over the
// gRPC health protocol and feeds them into the connection quality tracker.
package connectivity

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/verify"
	"github.com/dmitrijs2005/gophupload/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	DefaultInterval = 10 * time.Second
	checkTimeout    = 3 * time.Second
)

type Watcher struct {
	client  healthpb.HealthClient
	service string
	tracker *verify.QualityTracker
	logger  logging.Logger

	online bool
}

// Dial opens an insecure client connection to target.
func Dial(target string) (*grpc.ClientConn, error) {
	return grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func NewWatcher(conn grpc.ClientConnInterface, service string, tracker *verify.QualityTracker, logger logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Watcher{
		client:  healthpb.NewHealthClient(conn),
		service: service,
		tracker: tracker,
		logger:  logger,
		online:  true,
	}
}

// Check performs one health check and records its round trip.
func (w *Watcher) Check(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	resp, err := w.client.Check(ctx, &healthpb.HealthCheckRequest{Service: w.service})
	rtt := time.Since(start)
	if err != nil {
		w.tracker.RecordFailure()
		return rtt, err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		w.tracker.RecordFailure()
		return rtt, fmt.Errorf("upload server status %s", resp.GetStatus())
	}
	w.tracker.Record(rtt)
	return rtt, nil
}

// Run checks every interval until ctx is done, logging online/offline
// transitions.
func (w *Watcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rtt, err := w.Check(ctx)
			w.setOnline(ctx, err == nil, rtt, err)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) setOnline(ctx context.Context, online bool, rtt time.Duration, err error) {
	if w.online == online {
		return
	}
	w.online = online
	if online {
		w.logger.Info(ctx, "upload server reachable", "rtt", rtt, "quality", w.tracker.Quality())
	} else {
		w.logger.Warn(ctx, "upload server unreachable", "error", err)
	}
}
