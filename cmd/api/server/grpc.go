package server

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpcadapter "user-manager/internal/adapter/grpc"
	"user-manager/internal/adapter/grpc/middleware"
	"user-manager/pkg/logger"
)

// SetupGRPC creates the gRPC server with the user and health services.
func SetupGRPC(svc *grpcadapter.UserServiceServer, rateLimiter *middleware.RateLimiter, l *zap.Logger) (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logger.RequestIDInterceptor(),
			rateLimiter.UnaryInterceptor(),
		),
	)
	grpcadapter.Register(grpcServer, svc)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcadapter.ServiceName, healthpb.HealthCheckResponse_SERVING)

	l.Info("gRPC server configured", zap.String("service", grpcadapter.ServiceName))

	return grpcServer, healthServer
}
