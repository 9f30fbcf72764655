package api

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the server-wide status.
const ServiceName = "futures_bridge.Gateway"

// HealthServer exposes the standard gRPC health protocol. It reports SERVING
// while the session is connected.
type HealthServer struct {
	session  Session
	interval time.Duration
	grpc     *grpc.Server
	health   *health.Server
}

func NewHealthServer(session Session, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = time.Second
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpc_health_v1.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &HealthServer{session: session, interval: interval, grpc: srv, health: hs}
}

// Serve listens on addr and blocks until ctx is done.
func (h *HealthServer) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen gRPC: %w", err)
	}
	return h.ServeListener(ctx, lis)
}

// ServeListener serves on an existing listener and blocks until ctx is done.
func (h *HealthServer) ServeListener(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", lis.Addr().String()).Info("grpc health server starting")
		errCh <- h.grpc.Serve(lis)
	}()

	h.sync()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
			h.health.Shutdown()
			h.grpc.GracefulStop()
			return nil
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("grpc serve: %w", err)
			}
			return nil
		case <-ticker.C:
			h.sync()
		}
	}
}

func (h *HealthServer) sync() {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if h.session.Connected() {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.setStatus(status)
}

func (h *HealthServer) setStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}
