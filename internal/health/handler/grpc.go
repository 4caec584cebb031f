// Package handler serves the standard grpc.health.v1 service backed by a store ping.
package handler

import (
	"context"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is used for readiness (e.g. the token repository).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server implements grpc.health.v1.Health. Every Check pings the store first and
// records the result for the overall server ("") and each named service.
type Server struct {
	*health.Server
	pinger   Pinger
	services []string
}

// NewServer returns a health server. If pinger is nil every check reports SERVING.
func NewServer(pinger Pinger, services ...string) *Server {
	s := &Server{Server: health.NewServer(), pinger: pinger, services: append([]string{""}, services...)}
	s.setAll(healthpb.HealthCheckResponse_SERVING)
	return s
}

// Check refreshes readiness and answers for req.Service.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	st := healthpb.HealthCheckResponse_SERVING
	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.setAll(st)
	return s.Server.Check(ctx, req)
}

func (s *Server) setAll(st healthpb.HealthCheckResponse_ServingStatus) {
	for _, name := range s.services {
		s.SetServingStatus(name, st)
	}
}
