package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"swarmorch/internal/health"
)

// ClusterServiceName is the gRPC health service that carries the cluster
// verdict.
const ClusterServiceName = "swarmorch.cluster"

// HealthService publishes the last aggregated cluster status over the
// standard gRPC health protocol. Healthy and degraded clusters report
// SERVING; an unhealthy one reports NOT_SERVING.
type HealthService struct {
	srv  *grpchealth.Server
	mu   sync.Mutex
	last health.Status
	seen bool
	log  *slog.Logger
}

func NewHealthService() *HealthService {
	srv := grpchealth.NewServer()
	srv.SetServingStatus(ClusterServiceName, healthpb.HealthCheckResponse_UNKNOWN)
	return &HealthService{srv: srv, log: slog.With("component", "grpc-health")}
}

// Observe records a new cluster status. It has the signature the manager
// expects of a health observer.
func (h *HealthService) Observe(s health.Status) {
	h.mu.Lock()
	changed := !h.seen || h.last != s
	h.last, h.seen = s, true
	h.mu.Unlock()

	h.srv.SetServingStatus(ClusterServiceName, servingStatus(s))
	if changed {
		h.log.Info("cluster status changed", "status", s)
	}
}

// Poll refreshes the published status from check every interval until ctx
// is done.
func (h *HealthService) Poll(ctx context.Context, interval time.Duration, check func(context.Context)) {
	check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check(ctx)
		}
	}
}

// Status returns the serving status currently published for the cluster.
func (h *HealthService) Status() healthpb.HealthCheckResponse_ServingStatus {
	resp, err := h.srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ClusterServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
	}
	return resp.GetStatus()
}

// NewGRPCServer returns a gRPC server with the health service registered.
func (h *HealthService) NewGRPCServer() *grpc.Server {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(srv, h.srv)
	return srv
}

// Shutdown reports NOT_SERVING for every service ahead of stopping.
func (h *HealthService) Shutdown() {
	h.srv.Shutdown()
}

func servingStatus(s health.Status) healthpb.HealthCheckResponse_ServingStatus {
	switch s {
	case health.StatusHealthy, health.StatusDegraded:
		return healthpb.HealthCheckResponse_SERVING
	default:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
}
