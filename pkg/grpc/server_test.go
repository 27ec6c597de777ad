package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/config"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthFollowsReadiness(t *testing.T) {
	var ready error = errors.New("database down")
	s := NewServer(config.ServerConfig{Name: "storefront", Host: "127.0.0.1", Port: 0},
		func(context.Context) error { return ready }, nil, zaptest.NewLogger(t))

	lis := bufconn.Listen(1 << 20)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "storefront"})
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		return resp.Status
	}

	if s.Refresh(context.Background()) {
		t.Error("Refresh reported ready while the check fails")
	}
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %s, want NOT_SERVING", got)
	}

	ready = nil
	if !s.Refresh(context.Background()) {
		t.Error("Refresh reported not ready")
	}
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %s, want SERVING", got)
	}
}

func TestErrorInterceptorMapsKinds(t *testing.T) {
	interceptor := errorInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Method"}

	tests := []struct {
		name string
		err  error
		want codes.Code
		msg  string
	}{
		{"not found", apperr.NotFound("order not found"), codes.NotFound, "order not found"},
		{"stock", apperr.Stock("insufficient stock"), codes.FailedPrecondition, "insufficient stock"},
		{"plain", errors.New("boom"), codes.Internal, "internal error"},
		{"status passes", status.Error(codes.Aborted, "retry"), codes.Aborted, "retry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := interceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
				return nil, tt.err
			})
			st, _ := status.FromError(err)
			if st.Code() != tt.want || st.Message() != tt.msg {
				t.Errorf("status = %s %q, want %s %q", st.Code(), st.Message(), tt.want, tt.msg)
			}
		})
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := recoveryInterceptor(zaptest.NewLogger(t))
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/test/Panic"},
		func(context.Context, interface{}) (interface{}, error) { panic("boom") })
	if status.Code(err) != codes.Internal {
		t.Errorf("code = %s, want Internal", status.Code(err))
	}
}
