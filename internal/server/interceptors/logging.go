package interceptors

import (
	"context"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"seshlock/internal/logging"
)

// LoggingUnary returns a unary server interceptor that logs one line per RPC.
// skipMethods is the set of full method names to not log (e.g. health checks).
// Internal and unknown failures log at error level, other failures at warn.
// Calls authenticated further down the chain are tagged with user, session and
// access token IDs.
func LoggingUnary(log logging.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		ctx, call := withCallPrincipal(ctx)
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		args := []any{
			"method", info.FullMethod,
			"code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", ClientIP(ctx),
		}
		if call.p != nil {
			ctx = context.WithValue(ctx, principalKey, call.p)
		}
		if userID, ok := GetUserID(ctx); ok {
			args = append(args, "user_id", userID)
		}
		if sessionID, ok := GetSessionID(ctx); ok {
			args = append(args, "session_id", sessionID)
		}
		if accessTokenID, ok := GetAccessTokenID(ctx); ok {
			args = append(args, "access_token_id", accessTokenID)
		}
		switch code {
		case codes.OK:
			log.Info(ctx, "rpc", args...)
		case codes.Internal, codes.Unknown, codes.DataLoss:
			log.Error(ctx, "rpc", args...)
		default:
			log.Warn(ctx, "rpc", args...)
		}
		return resp, err
	}
}

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-forwarded-for"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				if i := strings.Index(s, ","); i > 0 {
					s = strings.TrimSpace(s[:i])
				}
				return s
			}
		}
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				return s
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}
