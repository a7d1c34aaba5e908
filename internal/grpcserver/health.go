package grpcserver

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/lowpoly/internal/logging"
)

// ServiceName is the health-check name of the rendering service.
const ServiceName = "lowpoly.LowPolyImage"

// HealthServer exposes grpc.health.v1 for the HTTP service.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewHealthServer builds a server reporting NOT_SERVING until MarkServing.
func NewHealthServer(logger *zap.Logger) *HealthServer {
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return &HealthServer{server: srv, health: hs, logger: logger.Named("grpc_health")}
}

// MarkServing flips every registered service to SERVING.
func (s *HealthServer) MarkServing() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// Serve blocks serving on lis until Stop is called.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health listening", zap.String("addr", lis.Addr().String()))
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return logging.NewOperationError("grpcserver.serve", "", err)
	}
	return nil
}

// Stop marks the services as not serving and drains the server, giving up
// when ctx expires.
func (s *HealthServer) Stop(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
	}
}
