package health

import (
	"context"

	"ticketing-commerce/pkg/errutil"

	"github.com/gogo/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer exposes the readiness check as grpc.health.v1.
type GRPCServer struct {
	grpc_health_v1.UnimplementedHealthServer
	health HealthService
}

func NewGRPCServer(h HealthService) *GRPCServer {
	return &GRPCServer{health: h}
}

func RegisterGRPC(server *grpc.Server, h HealthService) {
	grpc_health_v1.RegisterHealthServer(server, NewGRPCServer(h))
}

func (s *GRPCServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if s.health == nil {
		return nil, errutil.Unavailable("health service not ready", nil)
	}

	if _, ok := s.health.Check(ctx); !ok {
		return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}, nil
	}

	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
}

func (s *GRPCServer) Watch(req *grpc_health_v1.HealthCheckRequest, srv grpc_health_v1.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "Watch method not implemented")
}
