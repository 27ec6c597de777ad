package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ReadinessCheck returns nil when the service can take traffic.
type ReadinessCheck func(ctx context.Context) error

// Server exposes the standard gRPC health service, kept in step with a
// readiness check, reflection and, when given an OrderReader, the Orders
// service.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	name   string
	addr   string
	check  ReadinessCheck
	logger *zap.Logger
}

func NewServer(cfg config.ServerConfig, check ReadinessCheck, orders OrderReader, logger *zap.Logger) *Server {
	logger = logger.Named("grpc")
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		recoveryInterceptor(logger),
		loggingInterceptor(logger),
		errorInterceptor(),
	))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	if orders != nil {
		srv.RegisterService(&ordersDesc, orders)
	}
	reflection.Register(srv)

	s := &Server{
		srv:    srv,
		health: hs,
		name:   cfg.Name,
		addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		check:  check,
		logger: logger,
	}
	s.setServing(false)
	return s
}

func (s *Server) Addr() string {
	return s.addr
}

// Start listens on the configured address and blocks serving.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server started", zap.String("address", lis.Addr().String()))
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Refresh runs the readiness check once and publishes the result.
func (s *Server) Refresh(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := s.check(ctx)
	if err != nil {
		s.logger.Warn("Readiness check failed", zap.Error(err))
	}
	s.setServing(err == nil)
	return err == nil
}

// Watch refreshes the health status every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *Server) setServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(s.name, st)
}

// Stop reports NOT_SERVING to watchers and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("gRPC request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)))
		return resp, err
	}
}

// errorInterceptor turns application errors into gRPC status errors.
func errorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		if _, ok := status.FromError(err); ok {
			return resp, err
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return resp, status.Error(apperr.GRPCCode(err), appErr.Message)
		}
		return resp, status.Error(apperr.GRPCCode(err), "internal error")
	}
}

func recoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("gRPC handler panicked",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r))
				err = status.Error(apperr.GRPCCode(apperr.ErrInternal), "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
