package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	devotphandler "esign-workflow/internal/devotp/handler"
	healthhandler "esign-workflow/internal/health/handler"
	"esign-workflow/internal/server/interceptors"
	signinghandler "esign-workflow/internal/signing/handler"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// Deps holds service dependencies for gRPC handlers.
type Deps struct {
	// Signing is the signing engine. If nil, SigningService RPCs return Unimplemented.
	Signing signinghandler.Engine
	// Tokens validates bearer tokens. Required by NewServer.
	Tokens interceptors.TokenValidator
	// Health is the readiness service. If nil, a server with no checks is registered.
	Health *healthhandler.Server
	// DevOTPHandler is the dev-only DevService (GetOTP). If nil, DevService is not registered.
	// Set only when dev OTP is enabled and not production.
	DevOTPHandler devotphandler.DevServiceServer
}

// PublicMethods are callable without a bearer token.
func PublicMethods(deps Deps) map[string]bool {
	public := map[string]bool{healthCheckMethod: true}
	if deps.DevOTPHandler != nil {
		public["/"+devotphandler.ServiceName+"/GetOTP"] = true
	}
	return public
}

// NewServer returns a gRPC server with access logging, bearer auth and OpenTelemetry
// instrumentation, with all services registered.
func NewServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.AccessLogUnary(map[string]bool{healthCheckMethod: true}),
			interceptors.AuthUnary(deps.Tokens, PublicMethods(deps)),
		),
	}
	s := grpc.NewServer(append(base, opts...)...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - esign.signing.v1.SigningService → internal/signing/handler
//   - grpc.health.v1.Health           → internal/health/handler
//   - esign.dev.v1.DevService         → internal/devotp/handler (dev only)
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	signinghandler.Register(s, signinghandler.NewServer(deps.Signing))
	health := deps.Health
	if health == nil {
		health = healthhandler.NewServer(nil, nil)
	}
	healthhandler.Register(s, health)
	if deps.DevOTPHandler != nil {
		devotphandler.Register(s, deps.DevOTPHandler)
	}
}
