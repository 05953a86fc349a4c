package handler

import (
	"context"

	"google.golang.org/grpc"

	"esign-workflow/internal/server/rpc"
)

// Client calls SigningService over a gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) BeginSession(ctx context.Context, req *BeginSessionRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return rpc.Invoke[SessionResponse](ctx, c.cc, ServiceName, "BeginSession", req, opts...)
}

func (c *Client) Advance(ctx context.Context, req *AdvanceRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return rpc.Invoke[SessionResponse](ctx, c.cc, ServiceName, "Advance", req, opts...)
}

func (c *Client) GetSession(ctx context.Context, req *SessionRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return rpc.Invoke[SessionResponse](ctx, c.cc, ServiceName, "GetSession", req, opts...)
}

func (c *Client) ListEvents(ctx context.Context, req *SessionRequest, opts ...grpc.CallOption) (*ListEventsResponse, error) {
	return rpc.Invoke[ListEventsResponse](ctx, c.cc, ServiceName, "ListEvents", req, opts...)
}

func (c *Client) CanResendOTP(ctx context.Context, req *SessionRequest, opts ...grpc.CallOption) (*CanResendOTPResponse, error) {
	return rpc.Invoke[CanResendOTPResponse](ctx, c.cc, ServiceName, "CanResendOTP", req, opts...)
}

func (c *Client) ListIdentityMethods(ctx context.Context, req *SessionRequest, opts ...grpc.CallOption) (*IdentityMethodsResponse, error) {
	return rpc.Invoke[IdentityMethodsResponse](ctx, c.cc, ServiceName, "ListIdentityMethods", req, opts...)
}

func (c *Client) AbandonSession(ctx context.Context, req *CloseSessionRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return rpc.Invoke[SessionResponse](ctx, c.cc, ServiceName, "AbandonSession", req, opts...)
}

func (c *Client) RejectEnvelope(ctx context.Context, req *CloseSessionRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return rpc.Invoke[SessionResponse](ctx, c.cc, ServiceName, "RejectEnvelope", req, opts...)
}
