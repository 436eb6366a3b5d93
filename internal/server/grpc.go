package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/shone114/alternate-history/internal/store"
)

// DefaultHealthInterval is how often the store is pinged for gRPC health.
const DefaultHealthInterval = 15 * time.Second

// NewGRPCServer creates a gRPC server with standard interceptors, registers
// the health service and reflection, and returns the server ready to serve.
func NewGRPCServer(healthSrv *health.Server, authToken string, log *zap.Logger) *grpc.Server {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("grpc")
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(log),
			LoggingInterceptor(log),
			AuthInterceptor(authToken),
		),
	)

	healthpb.RegisterHealthServer(srv, healthSrv)
	reflection.Register(srv)

	return srv
}

// HealthChecker keeps a grpc health.Server in step with store reachability.
type HealthChecker struct {
	store    store.Store
	health   *health.Server
	interval time.Duration
	log      *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthChecker returns a checker that reports the overall service ("")
// as SERVING while st.Ping succeeds.
func NewHealthChecker(st store.Store, interval time.Duration, log *zap.Logger) *HealthChecker {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HealthChecker{
		store:    st,
		health:   health.NewServer(),
		interval: interval,
		log:      log.Named("health"),
	}
}

// Server returns the health service to register on a gRPC server.
func (h *HealthChecker) Server() *health.Server { return h.health }

// Start checks once synchronously and then on every interval.
func (h *HealthChecker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.Check(ctx)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.Check(ctx)
			}
		}
	}()
}

// Stop halts the periodic check and marks every service NOT_SERVING.
func (h *HealthChecker) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
	h.health.Shutdown()
}

// Check pings the store once and updates the serving status.
func (h *HealthChecker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("store ping failed", zap.Error(err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", st)
	return st
}
