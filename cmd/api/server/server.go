package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"user-manager/cmd/api/di"
	"user-manager/internal/config"
)

// Server owns the Gin server and, when enabled, the gRPC server.
type Server struct {
	Config *config.Config
	Logger *zap.Logger
	Gin    *http.Server
	GRPC   *grpc.Server   // nil when GRPC_ENABLED is false
	Health *health.Server // nil when GRPC_ENABLED is false
}

// New creates a new server instance
func New(cfg *config.Config, l *zap.Logger, c *di.Container) *Server {
	s := &Server{
		Config: cfg,
		Logger: l,
		Gin:    SetupGinServer(c.GinHandler, c.RateLimiter, cfg.App.TrustedProxies, cfg.Logger.ServiceName, ":"+cfg.App.HTTPPort, l),
	}
	if cfg.App.GRPCEnabled {
		s.GRPC, s.Health = SetupGRPC(c.GRPCService, c.RateLimiter, l)
	}
	return s
}

// Run listens on the configured ports and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig

	httpLis, err := lc.Listen(ctx, "tcp", s.Gin.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Gin.Addr, err)
	}

	var grpcLis net.Listener
	if s.GRPC != nil {
		addr := ":" + s.Config.App.GRPCPort
		grpcLis, err = lc.Listen(ctx, "tcp", addr)
		if err != nil {
			_ = httpLis.Close()
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
	}

	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve serves on the given listeners until ctx is canceled or a server
// fails, then shuts both servers down. grpcLis is ignored without gRPC.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.Logger.Info("Gin REST API running", zap.String("address", httpLis.Addr().String()))
		if err := s.Gin.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gin server: %w", err)
		}
		return nil
	})

	if s.GRPC != nil && grpcLis != nil {
		g.Go(func() error {
			s.Logger.Info("gRPC server running", zap.String("address", grpcLis.Addr().String()))
			if err := s.GRPC.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	} else if grpcLis != nil {
		_ = grpcLis.Close()
	}

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	timeout := time.Duration(s.Config.App.ShutdownTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.Logger.Info("starting graceful shutdown", zap.Duration("timeout", timeout))

	var errs []error

	if s.Health != nil {
		s.Health.Shutdown()
	}

	if err := s.Gin.Shutdown(ctx); err != nil {
		s.Logger.Error("failed to shutdown Gin server", zap.Error(err))
		errs = append(errs, fmt.Errorf("gin shutdown: %w", err))
	}

	if s.GRPC != nil {
		stopped := make(chan struct{})
		go func() {
			s.GRPC.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			s.Logger.Warn("gRPC graceful stop timed out, forcing stop")
			s.GRPC.Stop()
			<-stopped
		}
	}

	return errors.Join(errs...)
}
