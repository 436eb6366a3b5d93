package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AdminKeyHeader carries the admin token for clients that cannot set
// Authorization.
const AdminKeyHeader = "X-Admin-Key"

const (
	adminPrefix       = "/v1/admin/"
	healthCheckMethod = "/grpc.health.v1.Health/Check"
)

var (
	errNoCredentials = errors.New("missing authorization header")
	errBadScheme     = errors.New("invalid authorization scheme")
	errBadToken      = errors.New("invalid token")
)

// checkBearer validates an "Authorization: Bearer <token>" value.
func checkBearer(header, want string) error {
	if header == "" {
		return errNoCredentials
	}
	got, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return errBadScheme
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return errBadToken
	}
	return nil
}

// LoggingInterceptor logs each unary RPC: failures at error level with the
// status code, successes at debug.
func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		fields := []zap.Field{zap.String("method", info.FullMethod), zap.Duration("took", time.Since(start))}
		if err != nil {
			log.Error("rpc failed", append(fields, zap.Stringer("code", status.Code(err)), zap.Error(err))...)
		} else {
			log.Debug("rpc ok", fields...)
		}
		return resp, err
	}
}

// RecoveryInterceptor turns a handler panic into codes.Internal.
func RecoveryInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("rpc handler panicked",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				resp, err = nil, status.Error(codes.Internal, "internal server error")
			}
		}()
		return next(ctx, req)
	}
}

// AuthInterceptor requires a Bearer token in the "authorization" metadata on
// every RPC except health checks. An empty token disables the check.
func AuthInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if token == "" || info.FullMethod == healthCheckMethod {
			return next(ctx, req)
		}
		var header string
		if vals := metadata.ValueFromIncomingContext(ctx, "authorization"); len(vals) > 0 {
			header = vals[0]
		}
		if err := checkBearer(header, token); err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return next(ctx, req)
	}
}

// AuthMiddleware guards /v1/admin/ with the admin token, given as a Bearer
// token or in X-Admin-Key. Reads and CORS preflights pass. An empty token
// disables the check.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || !strings.HasPrefix(r.URL.Path, adminPrefix) {
			next.ServeHTTP(w, r)
			return
		}
		if key := r.Header.Get(AdminKeyHeader); key != "" {
			if subtle.ConstantTimeCompare([]byte(key), []byte(token)) != 1 {
				writeError(w, http.StatusForbidden, "Invalid admin key")
				return
			}
		} else if err := checkBearer(r.Header.Get("Authorization"), token); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
