// Package handler implements the dev-only DevService, which reads back OTP codes captured by the
// dev sender so local clients and end-to-end tests can complete OTP stages.
package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"esign-workflow/internal/devotp"
	"esign-workflow/internal/server/rpc"
)

const ServiceName = "esign.dev.v1.DevService"

const devOTPNote = "DEV MODE ONLY"

type GetOTPRequest struct {
	ChallengeID string `json:"challengeId"`
}

type GetOTPResponse struct {
	OTP  string `json:"otp"`
	Note string `json:"note"`
}

// DevServiceServer is the server API for DevService.
type DevServiceServer interface {
	GetOTP(context.Context, *GetOTPRequest) (*GetOTPResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DevServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "GetOTP", DevServiceServer.GetOTP),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "esign/dev/v1/dev.json",
}

// Register adds srv to the gRPC server.
func Register(s grpc.ServiceRegistrar, srv DevServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Server implements DevService. Only registered when dev OTP is enabled and not production.
type Server struct {
	store devotp.Store
}

// NewServer returns a DevService server that reads codes from the given store.
func NewServer(store devotp.Store) *Server {
	return &Server{store: store}
}

// GetOTP returns the plain code for the given challenge. Returns NotFound if missing or expired.
func (s *Server) GetOTP(ctx context.Context, req *GetOTPRequest) (*GetOTPResponse, error) {
	if req.ChallengeID == "" {
		return nil, status.Error(codes.InvalidArgument, "challenge_id is required")
	}
	code, ok := s.store.Get(ctx, req.ChallengeID)
	if !ok {
		return nil, status.Error(codes.NotFound, "OTP not found or expired")
	}
	return &GetOTPResponse{OTP: code, Note: devOTPNote}, nil
}
