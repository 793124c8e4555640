package httpapi

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer exposes the service's readiness over the standard gRPC health
// protocol, for load balancers and orchestrators that probe gRPC instead of
// HTTP.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
}

// NewHealthServer builds a gRPC server with only the health service
// registered. The service starts in NOT_SERVING until SetServing is called.
func NewHealthServer() *HealthServer {
	hs := health.NewServer()
	hs.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)

	return &HealthServer{server: srv, health: hs}
}

// SetServing flips the reported status for the service and the aggregate
// empty-name probe.
func (h *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(serviceName, status)
	h.health.SetServingStatus("", status)
}

// ListenAndServe blocks serving health checks on addr.
func (h *HealthServer) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc health listen: %w", err)
	}
	return h.server.Serve(lis)
}

// Stop drains in-flight RPCs and shuts the server down.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
