package httpapi

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/BrandonDHaskell/gatectl/internal/gate/types"
)

// HealthService publishes per-worker liveness over grpc.health.v1. The
// service name of each worker is its kind ("modem", "chat", ...); the empty
// name reports the process itself.
type HealthService struct {
	hs *health.Server
}

func NewHealthService(kinds []types.WorkerKind) *HealthService {
	hs := health.NewServer()
	for _, k := range kinds {
		hs.SetServingStatus(string(k), healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return &HealthService{hs: hs}
}

// WorkerChanged implements orchestrator.Observer.
func (h *HealthService) WorkerChanged(kind types.WorkerKind, running bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus(string(kind), st)
}

func (h *HealthService) Server() healthpb.HealthServer { return h.hs }

// Shutdown marks every service NOT_SERVING.
func (h *HealthService) Shutdown() { h.hs.Shutdown() }

// GRPCServer hosts the health service.
type GRPCServer struct {
	srv *grpc.Server
}

func NewGRPCServer(h *HealthService) *GRPCServer {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, h.hs)
	return &GRPCServer{srv: srv}
}

func (g *GRPCServer) Serve(lis net.Listener) error { return g.srv.Serve(lis) }

func (g *GRPCServer) Stop() { g.srv.GracefulStop() }
