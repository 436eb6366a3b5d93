package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// bearerCreds attaches the admin token to every RPC.
type bearerCreds string

func (t bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(t)}, nil
}

// RequireTransportSecurity is false: althist serves plaintext gRPC behind
// whatever terminates TLS.
func (bearerCreds) RequireTransportSecurity() bool { return false }

// HealthChecker asks a server's grpc.health.v1 service for its status.
type HealthChecker struct {
	conn *grpc.ClientConn
	api  healthpb.HealthClient
}

// NewHealthChecker dials addr in plaintext. A non-empty token is sent as a
// Bearer credential. Extra options follow the defaults.
func NewHealthChecker(addr, token string, extra ...grpc.DialOption) (*HealthChecker, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds(token)))
	}
	conn, err := grpc.NewClient(addr, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &HealthChecker{conn: conn, api: healthpb.NewHealthClient(conn)}, nil
}

// Status returns the serving status of service ("" for the whole server),
// e.g. "SERVING".
func (p *HealthChecker) Status(ctx context.Context, service string) (string, error) {
	resp, err := p.api.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return "", err
	}
	return resp.GetStatus().String(), nil
}

func (p *HealthChecker) Close() error { return p.conn.Close() }
