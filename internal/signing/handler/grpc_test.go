package handler

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	auditdomain "esign-workflow/internal/audit/domain"
	"esign-workflow/internal/identity"
	"esign-workflow/internal/platform/actor"
	"esign-workflow/internal/security"
	"esign-workflow/internal/server/interceptors"
	"esign-workflow/internal/signing/domain"
)

// fakeEngine records the last call and returns canned results.
type fakeEngine struct {
	session *domain.Session
	events  []*auditdomain.Event
	err     error

	lastActor actor.Actor
	lastInput domain.StageInput
	lastID    string
	reason    string
}

func (f *fakeEngine) Begin(ctx context.Context, a actor.Actor, envelopeID, signerID string, method domain.Method) (*domain.Session, error) {
	f.lastActor = a
	if f.err != nil {
		return nil, f.err
	}
	s := *f.session
	s.EnvelopeID, s.SignerID, s.Method = envelopeID, signerID, method
	return &s, nil
}

func (f *fakeEngine) Advance(ctx context.Context, a actor.Actor, sessionID string, in domain.StageInput) (*domain.Session, error) {
	f.lastActor, f.lastID, f.lastInput = a, sessionID, in
	return f.session, f.err
}

func (f *fakeEngine) Get(ctx context.Context, a actor.Actor, sessionID string) (*domain.Session, error) {
	f.lastActor, f.lastID = a, sessionID
	return f.session, f.err
}

func (f *fakeEngine) History(ctx context.Context, a actor.Actor, sessionID string) ([]*auditdomain.Event, error) {
	f.lastActor, f.lastID = a, sessionID
	return f.events, f.err
}

func (f *fakeEngine) CanResendOTP(ctx context.Context, a actor.Actor, sessionID string) (bool, error) {
	f.lastID = sessionID
	return f.err == nil, f.err
}

func (f *fakeEngine) AllowedIdentityMethods(ctx context.Context, a actor.Actor, sessionID string) ([]identity.Method, error) {
	return []identity.Method{identity.MethodManual, identity.MethodFaceMatch}, f.err
}

func (f *fakeEngine) Abandon(ctx context.Context, a actor.Actor, sessionID, reason string) (*domain.Session, error) {
	f.lastID, f.reason = sessionID, reason
	return f.session, f.err
}

func (f *fakeEngine) Reject(ctx context.Context, a actor.Actor, sessionID, reason string) (*domain.Session, error) {
	f.lastID, f.reason = sessionID, reason
	return f.session, f.err
}

func testSession() *domain.Session {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &domain.Session{
		ID:         "sess-1",
		EnvelopeID: "env-a",
		SignerID:   "cust-1",
		Method:     domain.MethodSelfService,
		Stage:      domain.StageIdentityVerifying,
		Version:    2,
		Evidence: domain.Evidence{
			IdentityMethod:  identity.MethodFaceMatch,
			PendingCaptures: []identity.Capture{{Kind: identity.CaptureFront, ImageRef: "img/front"}},
		},
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

var customer = actor.Actor{ID: "cust-1", Role: actor.RoleCustomer}

// startServer serves SigningService over bufconn behind the auth interceptor and returns a client
// whose calls carry a bearer token for customer.
func startServer(t *testing.T, eng Engine) (*Client, context.Context) {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.UnaryInterceptor(interceptors.AuthUnary(tokens, nil)))
	Register(s, NewServer(eng))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	token, _, err := tokens.Issue(customer)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
	return NewClient(conn), ctx
}

func TestBeginSessionOverWire(t *testing.T) {
	eng := &fakeEngine{session: testSession()}
	client, ctx := startServer(t, eng)

	resp, err := client.BeginSession(ctx, &BeginSessionRequest{EnvelopeID: "env-b", SignerID: "cust-1", Method: "self_service"})
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	if eng.lastActor != customer {
		t.Errorf("actor = %+v, want %+v", eng.lastActor, customer)
	}
	got := resp.Session
	if got.EnvelopeID != "env-b" || got.Method != "self_service" || got.Version != 2 {
		t.Errorf("session = %+v", got)
	}
	if got.NextCapture != string(identity.CaptureBack) {
		t.Errorf("nextCapture = %q, want back", got.NextCapture)
	}
	if len(got.AcceptedInputs) == 0 {
		t.Error("acceptedInputs empty")
	}
}

func TestAdvanceDecodesInput(t *testing.T) {
	eng := &fakeEngine{session: testSession()}
	client, ctx := startServer(t, eng)

	_, err := client.Advance(ctx, &AdvanceRequest{SessionID: "sess-1", Input: Input{
		Kind:  string(domain.InputSubmitIdentityClaim),
		Claim: &Claim{Method: "manual", IDNumber: "9001015009087", DateOfBirth: "1990-01-01"},
	}})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	in, ok := eng.lastInput.(domain.SubmitIdentityClaim)
	if !ok {
		t.Fatalf("input = %T", eng.lastInput)
	}
	if in.Claim.IDNumber != "9001015009087" || in.Claim.DateOfBirth == nil || in.Claim.DateOfBirth.Year() != 1990 {
		t.Errorf("claim = %+v", in.Claim)
	}

	yes := true
	if _, err := client.Advance(ctx, &AdvanceRequest{SessionID: "sess-1", Input: Input{
		Kind: string(domain.InputAcceptConsent), ConsentID: "gdpr", Value: &yes,
	}}); err != nil {
		t.Fatalf("Advance consent: %v", err)
	}
	if c, ok := eng.lastInput.(domain.AcceptConsent); !ok || c.ConsentID != "gdpr" || !c.Value {
		t.Errorf("input = %+v", eng.lastInput)
	}
}

func TestAdvanceRejectsMalformedInput(t *testing.T) {
	testCases := []struct {
		name  string
		input Input
	}{
		{"unknown kind", Input{Kind: "teleport"}},
		{"bad date", Input{Kind: string(domain.InputSubmitIdentityClaim), Claim: &Claim{DateOfBirth: "01/01/1990"}}},
		{"missing claim", Input{Kind: string(domain.InputSubmitIdentityClaim)}},
		{"consent without value", Input{Kind: string(domain.InputAcceptConsent), ConsentID: "gdpr"}},
	}
	eng := &fakeEngine{session: testSession()}
	client, ctx := startServer(t, eng)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Advance(ctx, &AdvanceRequest{SessionID: "sess-1", Input: tc.input})
			if status.Code(err) != codes.InvalidArgument {
				t.Errorf("code = %v, want InvalidArgument (%v)", status.Code(err), err)
			}
		})
	}
}

func TestErrorDetails(t *testing.T) {
	testCases := []struct {
		kind domain.ErrorKind
		code codes.Code
	}{
		{domain.KindResendCooldown, codes.ResourceExhausted},
		{domain.KindExhausted, codes.ResourceExhausted},
		{domain.KindSessionBusy, codes.Aborted},
		{domain.KindForbidden, codes.PermissionDenied},
		{domain.KindNotFound, codes.NotFound},
		{domain.KindFinalizationFailed, codes.Unavailable},
		{domain.KindAuditWriteFailed, codes.Internal},
		{domain.KindIncompleteRequirement, codes.FailedPrecondition},
		{domain.KindLowConfidenceMatch, codes.FailedPrecondition},
	}
	for _, tc := range testCases {
		t.Run(string(tc.kind), func(t *testing.T) {
			eng := &fakeEngine{err: domain.NewStageError(tc.kind, domain.StageOtpVerification, "detail", nil)}
			client, ctx := startServer(t, eng)
			_, err := client.GetSession(ctx, &SessionRequest{SessionID: "sess-1"})
			st, ok := status.FromError(err)
			if !ok || st.Code() != tc.code {
				t.Fatalf("status = %v, want code %v", err, tc.code)
			}
			var info *errdetails.ErrorInfo
			for _, d := range st.Details() {
				if i, ok := d.(*errdetails.ErrorInfo); ok {
					info = i
				}
			}
			if info == nil {
				t.Fatal("ErrorInfo detail missing")
			}
			if info.Reason != string(tc.kind) || info.Metadata["stage"] != string(domain.StageOtpVerification) || info.Metadata["recovery"] == "" {
				t.Errorf("ErrorInfo = %+v", info)
			}
		})
	}
}

func TestListEventsAndClose(t *testing.T) {
	eng := &fakeEngine{
		session: testSession(),
		events: []*auditdomain.Event{
			{Seq: 1, Type: auditdomain.EventSessionStarted, ActorID: "cust-1", ActorRole: "customer", Hash: "h1"},
			{Seq: 2, Type: auditdomain.EventIdentityMethodSelected, ActorID: "cust-1", ActorRole: "customer", Hash: "h2"},
		},
	}
	client, ctx := startServer(t, eng)

	resp, err := client.ListEvents(ctx, &SessionRequest{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(resp.Events) != 2 || resp.Events[1].Seq != 2 || resp.Events[1].Hash != "h2" {
		t.Errorf("events = %+v", resp.Events)
	}

	if _, err := client.RejectEnvelope(ctx, &CloseSessionRequest{SessionID: "sess-1", Reason: "wrong amount"}); err != nil {
		t.Fatalf("RejectEnvelope: %v", err)
	}
	if eng.reason != "wrong amount" {
		t.Errorf("reason = %q", eng.reason)
	}

	methods, err := client.ListIdentityMethods(ctx, &SessionRequest{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("ListIdentityMethods: %v", err)
	}
	if len(methods.Methods) != 2 || methods.Methods[0] != "manual" {
		t.Errorf("methods = %v", methods.Methods)
	}

	can, err := client.CanResendOTP(ctx, &SessionRequest{SessionID: "sess-1"})
	if err != nil || !can.CanResend {
		t.Errorf("CanResendOTP = %+v, %v", can, err)
	}
}

func TestRequiresSessionID(t *testing.T) {
	client, ctx := startServer(t, &fakeEngine{session: testSession()})
	_, err := client.GetSession(ctx, &SessionRequest{})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestUnauthenticatedAndUnimplemented(t *testing.T) {
	srv := NewServer(&fakeEngine{session: testSession()})
	_, err := srv.GetSession(context.Background(), &SessionRequest{SessionID: "sess-1"})
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}

	_, err = NewServer(nil).GetSession(interceptors.WithActor(context.Background(), customer), &SessionRequest{SessionID: "sess-1"})
	if status.Code(err) != codes.Unimplemented {
		t.Errorf("code = %v, want Unimplemented", status.Code(err))
	}
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	err := toStatus(context.DeadlineExceeded)
	st, _ := status.FromError(err)
	if st.Code() != codes.Internal || st.Message() != "internal error" {
		t.Errorf("status = %v", st)
	}
}
