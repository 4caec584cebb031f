package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "seshlock/internal/health/handler"
	identityhandler "seshlock/internal/identity/handler"
	"seshlock/internal/logging"
	"seshlock/internal/server/interceptors"
)

const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
	healthWatchMethod = "/grpc.health.v1.Health/Watch"
	healthListMethod  = "/grpc.health.v1.Health/List"
)

// Deps holds the dependencies of the gRPC services.
type Deps struct {
	// Gateway authenticates requests and backs SessionService. Required.
	Gateway identityhandler.Gateway

	// HealthPinger is used by the health service for readiness (e.g. the token repository).
	// If nil, health checks always report SERVING.
	HealthPinger healthhandler.Pinger

	// Logger is used by handlers and the logging interceptor. If nil, nothing is logged.
	Logger logging.Logger
}

// RegisterServices registers all gRPC services with the given server.
//
//   - seshlock.v1.SessionService → internal/identity/handler
//   - grpc.health.v1.Health      → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	identityhandler.RegisterSessionServiceServer(s, identityhandler.NewGRPCServer(deps.Gateway, deps.Logger))
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(deps.HealthPinger, identityhandler.SessionServiceName))
}

// PublicMethods returns the full method names callable without an access token.
func PublicMethods() map[string]bool {
	return map[string]bool{
		identityhandler.LoginMethod:   true,
		identityhandler.RefreshMethod: true,
		identityhandler.LogoutMethod:  true,
		healthCheckMethod:             true,
		healthWatchMethod:             true,
		healthListMethod:              true,
	}
}

// NewGRPCServer returns a grpc.Server instrumented with otelgrpc, with logging and
// auth interceptors installed and all services registered.
func NewGRPCServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	log := deps.Logger
	if log == nil {
		log = logging.Nop()
	}
	quiet := map[string]bool{healthCheckMethod: true}
	opts = append(opts,
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.LoggingUnary(log, quiet),
			interceptors.AuthUnary(deps.Gateway, PublicMethods()),
		),
	)
	s := grpc.NewServer(opts...)
	RegisterServices(s, Deps{Gateway: deps.Gateway, HealthPinger: deps.HealthPinger, Logger: log})
	return s
}
