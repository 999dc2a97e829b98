package server

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"sort"
	"time"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service probed by orchestrators and load balancers.
const ServiceName = "chat-relay"

var _ contract.Worker = (*HealthServer)(nil)

// HealthServer publishes the relay status over the standard gRPC health protocol.
// The status is refreshed from the same checks as GET /health.
type HealthServer struct {
	log      *slog.Logger
	health   *health.Server
	checks   map[string]func(ctx context.Context) error
	interval time.Duration
}

func NewHealthServer(log *slog.Logger, checks map[string]func(ctx context.Context) error, interval time.Duration) *HealthServer {
	h := &HealthServer{log: log, health: health.NewServer(), checks: checks, interval: interval}
	h.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// NewGRPCServer builds the server carrying the health service, with request logging.
func NewGRPCServer(log *slog.Logger, h *HealthServer) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(sdkgrpc.UnaryLoggingInterceptor(log)))
	healthpb.RegisterHealthServer(s, h.health)
	return s
}

// Refresh runs every check once and publishes the resulting status.
func (h *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := healthpb.HealthCheckResponse_SERVING
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.log.Warn("Health check failed", "check", name, "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.health.SetServingStatus(ServiceName, status)
	h.health.SetServingStatus("", status)
	return status
}

// Run refreshes the status on every tick.
// On exit every service reports NOT_SERVING so that probes drain the instance first.
func (h *HealthServer) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	defer h.health.Shutdown()

	h.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}
