package client

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
)

// startHealthServer serves grpc.health.v1 on an in-memory listener and
// records the authorization metadata of the last call.
func startHealthServer(t *testing.T) (*health.Server, grpc.DialOption, *string) {
	t.Helper()
	var gotAuth string
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		gotAuth = ""
		if vals := metadata.ValueFromIncomingContext(ctx, "authorization"); len(vals) > 0 {
			gotAuth = vals[0]
		}
		return next(ctx, req)
	}))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	return hs, dialer, &gotAuth
}

func TestHealthChecker_Status(t *testing.T) {
	hs, dialer, gotAuth := startHealthServer(t)
	hs.SetServingStatus("althist", healthpb.HealthCheckResponse_NOT_SERVING)

	hc, err := NewHealthChecker("passthrough:///bufnet", "secret", dialer)
	if err != nil {
		t.Fatal(err)
	}
	defer hc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := hc.Status(ctx, "")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != "SERVING" {
		t.Errorf("status = %q, want SERVING", status)
	}
	if *gotAuth != "Bearer secret" {
		t.Errorf("authorization = %q", *gotAuth)
	}

	if status, err = hc.Status(ctx, "althist"); err != nil || status != "NOT_SERVING" {
		t.Errorf("Status(althist) = %q, %v", status, err)
	}
	if _, err := hc.Status(ctx, "unknown"); err == nil {
		t.Error("expected NotFound for an unregistered service")
	}
}

func TestHealthChecker_NoToken(t *testing.T) {
	_, dialer, gotAuth := startHealthServer(t)
	hc, err := NewHealthChecker("passthrough:///bufnet", "", dialer)
	if err != nil {
		t.Fatal(err)
	}
	defer hc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := hc.Status(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if *gotAuth != "" {
		t.Errorf("unexpected authorization %q", *gotAuth)
	}
}
