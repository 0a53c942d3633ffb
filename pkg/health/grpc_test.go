package health

import (
	"context"
	"testing"

	"ticketing-commerce/pkg/errutil"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func TestCheckWithoutHealthService(t *testing.T) {
	srv := NewGRPCServer(nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err := errutil.UnaryServerInterceptor()(context.Background(), &grpc_health_v1.HealthCheckRequest{}, info,
		func(ctx context.Context, req any) (any, error) {
			return srv.Check(ctx, req.(*grpc_health_v1.HealthCheckRequest))
		})

	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.Unavailable, st.Code())
}
