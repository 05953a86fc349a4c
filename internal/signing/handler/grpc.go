// Package handler exposes the signing engine as the SigningService gRPC API. Messages are JSON
// encoded with the codec in internal/server/codec.
package handler

import (
	"context"
	"errors"
	"log"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	auditdomain "esign-workflow/internal/audit/domain"
	"esign-workflow/internal/identity"
	"esign-workflow/internal/platform/actor"
	"esign-workflow/internal/server/interceptors"
	"esign-workflow/internal/server/rpc"
	"esign-workflow/internal/signing/domain"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "esign.signing.v1.SigningService"

// errorDomain is reported in ErrorInfo details.
const errorDomain = "esign-workflow"

// Engine is the part of the signing engine the API needs.
type Engine interface {
	Begin(ctx context.Context, a actor.Actor, envelopeID, signerID string, method domain.Method) (*domain.Session, error)
	Advance(ctx context.Context, a actor.Actor, sessionID string, in domain.StageInput) (*domain.Session, error)
	Get(ctx context.Context, a actor.Actor, sessionID string) (*domain.Session, error)
	History(ctx context.Context, a actor.Actor, sessionID string) ([]*auditdomain.Event, error)
	CanResendOTP(ctx context.Context, a actor.Actor, sessionID string) (bool, error)
	AllowedIdentityMethods(ctx context.Context, a actor.Actor, sessionID string) ([]identity.Method, error)
	Abandon(ctx context.Context, a actor.Actor, sessionID, reason string) (*domain.Session, error)
	Reject(ctx context.Context, a actor.Actor, sessionID, reason string) (*domain.Session, error)
}

// SigningServiceServer is the server API for SigningService.
type SigningServiceServer interface {
	BeginSession(context.Context, *BeginSessionRequest) (*SessionResponse, error)
	Advance(context.Context, *AdvanceRequest) (*SessionResponse, error)
	GetSession(context.Context, *SessionRequest) (*SessionResponse, error)
	ListEvents(context.Context, *SessionRequest) (*ListEventsResponse, error)
	CanResendOTP(context.Context, *SessionRequest) (*CanResendOTPResponse, error)
	ListIdentityMethods(context.Context, *SessionRequest) (*IdentityMethodsResponse, error)
	AbandonSession(context.Context, *CloseSessionRequest) (*SessionResponse, error)
	RejectEnvelope(context.Context, *CloseSessionRequest) (*SessionResponse, error)
}

// ServiceDesc describes SigningService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SigningServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "BeginSession", SigningServiceServer.BeginSession),
		rpc.Unary(ServiceName, "Advance", SigningServiceServer.Advance),
		rpc.Unary(ServiceName, "GetSession", SigningServiceServer.GetSession),
		rpc.Unary(ServiceName, "ListEvents", SigningServiceServer.ListEvents),
		rpc.Unary(ServiceName, "CanResendOTP", SigningServiceServer.CanResendOTP),
		rpc.Unary(ServiceName, "ListIdentityMethods", SigningServiceServer.ListIdentityMethods),
		rpc.Unary(ServiceName, "AbandonSession", SigningServiceServer.AbandonSession),
		rpc.Unary(ServiceName, "RejectEnvelope", SigningServiceServer.RejectEnvelope),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "esign/signing/v1/signing.json",
}

// Register adds srv to the gRPC server.
func Register(s grpc.ServiceRegistrar, srv SigningServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Server implements SigningServiceServer on top of the engine.
type Server struct {
	engine Engine
}

// NewServer returns a SigningService server. If engine is nil, all RPCs return Unimplemented.
func NewServer(engine Engine) *Server {
	return &Server{engine: engine}
}

func (s *Server) caller(ctx context.Context, method string) (actor.Actor, error) {
	if s.engine == nil {
		return actor.Actor{}, status.Errorf(codes.Unimplemented, "method %s not implemented", method)
	}
	a, ok := interceptors.ActorFrom(ctx)
	if !ok {
		return actor.Actor{}, status.Error(codes.Unauthenticated, "caller not authenticated")
	}
	return a, nil
}

func requireSession(id string) error {
	if id == "" {
		return status.Error(codes.InvalidArgument, "session_id required")
	}
	return nil
}

// BeginSession opens a signing session for a signer on an envelope.
func (s *Server) BeginSession(ctx context.Context, req *BeginSessionRequest) (*SessionResponse, error) {
	a, err := s.caller(ctx, "BeginSession")
	if err != nil {
		return nil, err
	}
	if req.EnvelopeID == "" || req.SignerID == "" {
		return nil, status.Error(codes.InvalidArgument, "envelope_id and signer_id required")
	}
	sess, err := s.engine.Begin(ctx, a, req.EnvelopeID, req.SignerID, domain.Method(req.Method))
	if err != nil {
		return nil, toStatus(err)
	}
	return &SessionResponse{Session: sessionToWire(sess)}, nil
}

// Advance applies one stage input to a session.
func (s *Server) Advance(ctx context.Context, req *AdvanceRequest) (*SessionResponse, error) {
	a, err := s.caller(ctx, "Advance")
	if err != nil {
		return nil, err
	}
	if err := requireSession(req.SessionID); err != nil {
		return nil, err
	}
	in, err := req.Input.toDomain()
	if err != nil {
		return nil, toStatus(domain.NewStageError(domain.KindInvalidInput, "", err.Error(), nil))
	}
	sess, err := s.engine.Advance(ctx, a, req.SessionID, in)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SessionResponse{Session: sessionToWire(sess)}, nil
}

// GetSession returns the current session state.
func (s *Server) GetSession(ctx context.Context, req *SessionRequest) (*SessionResponse, error) {
	a, err := s.caller(ctx, "GetSession")
	if err != nil {
		return nil, err
	}
	if err := requireSession(req.SessionID); err != nil {
		return nil, err
	}
	sess, err := s.engine.Get(ctx, a, req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SessionResponse{Session: sessionToWire(sess)}, nil
}

// ListEvents returns the session's audit trail in sequence order.
func (s *Server) ListEvents(ctx context.Context, req *SessionRequest) (*ListEventsResponse, error) {
	a, err := s.caller(ctx, "ListEvents")
	if err != nil {
		return nil, err
	}
	if err := requireSession(req.SessionID); err != nil {
		return nil, err
	}
	events, err := s.engine.History(ctx, a, req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]Event, 0, len(events))
	for _, e := range events {
		out = append(out, eventToWire(e))
	}
	return &ListEventsResponse{Events: out}, nil
}

func (s *Server) CanResendOTP(ctx context.Context, req *SessionRequest) (*CanResendOTPResponse, error) {
	a, err := s.caller(ctx, "CanResendOTP")
	if err != nil {
		return nil, err
	}
	if err := requireSession(req.SessionID); err != nil {
		return nil, err
	}
	ok, err := s.engine.CanResendOTP(ctx, a, req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CanResendOTPResponse{CanResend: ok}, nil
}

// ListIdentityMethods returns the identity methods the signer may use right now.
func (s *Server) ListIdentityMethods(ctx context.Context, req *SessionRequest) (*IdentityMethodsResponse, error) {
	a, err := s.caller(ctx, "ListIdentityMethods")
	if err != nil {
		return nil, err
	}
	if err := requireSession(req.SessionID); err != nil {
		return nil, err
	}
	methods, err := s.engine.AllowedIdentityMethods(ctx, a, req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		out = append(out, string(m))
	}
	return &IdentityMethodsResponse{Methods: out}, nil
}

func (s *Server) AbandonSession(ctx context.Context, req *CloseSessionRequest) (*SessionResponse, error) {
	a, err := s.caller(ctx, "AbandonSession")
	if err != nil {
		return nil, err
	}
	if err := requireSession(req.SessionID); err != nil {
		return nil, err
	}
	sess, err := s.engine.Abandon(ctx, a, req.SessionID, req.Reason)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SessionResponse{Session: sessionToWire(sess)}, nil
}

// RejectEnvelope closes the session and marks the envelope rejected by the signer.
func (s *Server) RejectEnvelope(ctx context.Context, req *CloseSessionRequest) (*SessionResponse, error) {
	a, err := s.caller(ctx, "RejectEnvelope")
	if err != nil {
		return nil, err
	}
	if err := requireSession(req.SessionID); err != nil {
		return nil, err
	}
	sess, err := s.engine.Reject(ctx, a, req.SessionID, req.Reason)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SessionResponse{Session: sessionToWire(sess)}, nil
}

// codeFor maps an error kind to the gRPC status code clients branch on.
func codeFor(k domain.ErrorKind) codes.Code {
	switch k {
	case domain.KindInvalidInput, domain.KindUnknownConsent:
		return codes.InvalidArgument
	case domain.KindResendCooldown, domain.KindExhausted:
		return codes.ResourceExhausted
	case domain.KindProviderUnavailable, domain.KindDeliveryError, domain.KindFinalizationFailed:
		return codes.Unavailable
	case domain.KindSessionBusy, domain.KindConflict:
		return codes.Aborted
	case domain.KindForbidden:
		return codes.PermissionDenied
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindInternal, domain.KindAuditWriteFailed:
		return codes.Internal
	}
	return codes.FailedPrecondition
}

// toStatus converts an engine error into a status carrying ErrorInfo with the kind as reason and
// the stage and recovery as metadata. Internal details are logged, not returned.
func toStatus(err error) error {
	var se *domain.StageError
	if !errors.As(err, &se) {
		log.Printf("signing: internal error: %v", err)
		return status.Error(codes.Internal, "internal error")
	}
	code := codeFor(se.Kind)
	msg := string(se.Kind)
	if se.Detail != "" {
		msg += ": " + se.Detail
	}
	if code == codes.Internal {
		log.Printf("signing: %v", err)
		msg = string(se.Kind)
	}
	st := status.New(code, msg)
	info := &errdetails.ErrorInfo{
		Reason: string(se.Kind),
		Domain: errorDomain,
		Metadata: map[string]string{
			"stage":    string(se.Stage),
			"recovery": string(se.Recovery),
		},
	}
	if withInfo, derr := st.WithDetails(info); derr == nil {
		st = withInfo
	}
	return st.Err()
}
