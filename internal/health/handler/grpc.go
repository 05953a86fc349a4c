// Package handler implements the standard grpc.health.v1 service with readiness checks against
// the database and the policy engine.
package handler

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const checkTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is satisfied by the OPA evaluator.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Check is an extra named readiness probe, e.g. Redis.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Server implements grpc.health.v1.Health. Every check runs on each Check call.
type Server struct {
	healthpb.UnimplementedHealthServer
	checks []Check
}

// NewServer returns a health server. Nil pinger or policy are skipped.
func NewServer(pinger Pinger, policy PolicyChecker, extra ...Check) *Server {
	var checks []Check
	if pinger != nil {
		checks = append(checks, Check{Name: "database", Fn: pinger.PingContext})
	}
	if policy != nil {
		checks = append(checks, Check{Name: "policy", Fn: policy.HealthCheck})
	}
	return &Server{checks: append(checks, extra...)}
}

// Register adds the health service to s.
func Register(s grpc.ServiceRegistrar, srv *Server) {
	healthpb.RegisterHealthServer(s, srv)
}

// Check reports NOT_SERVING when any probe fails. Failures are logged, not returned as errors.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if req.GetService() != "" && req.GetService() != "esign" {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
	for _, c := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Fn(cctx)
		cancel()
		if err != nil {
			log.Printf("health: %s check failed: %v", c.Name, err)
			return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
		}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
