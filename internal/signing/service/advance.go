package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	auditdomain "esign-workflow/internal/audit/domain"
	"esign-workflow/internal/consent"
	envdomain "esign-workflow/internal/envelope/domain"
	"esign-workflow/internal/identity"
	"esign-workflow/internal/otp"
	otpdomain "esign-workflow/internal/otp/domain"
	"esign-workflow/internal/platform/actor"
	"esign-workflow/internal/signing/domain"
)

// Advance applies one stage input to the session. On error the stored session is unchanged.
func (e *Engine) Advance(ctx context.Context, a actor.Actor, sessionID string, in domain.StageInput) (*domain.Session, error) {
	if in == nil {
		return nil, domain.NewStageError(domain.KindInvalidInput, "", "input is required", nil)
	}
	ctx, span := e.metrics.start(ctx, "signing.Advance",
		attribute.String("session.id", sessionID), attribute.String("input", string(in.Kind())))
	defer span.End()
	s, err := e.withSession(ctx, a, sessionID, false, func(ctx context.Context, s *domain.Session, env *envdomain.Envelope) (*transition, error) {
		span.SetAttributes(attribute.String("stage", string(s.Stage)))
		if !domain.Accepts(s.Stage, in.Kind()) {
			return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage,
				fmt.Sprintf("%s is not accepted in %s", in.Kind(), s.Stage), nil)
		}
		return e.handle(ctx, s, env, in)
	})
	e.metrics.result(ctx, span, "advance", in.Kind(), err)
	return s, err
}

func (e *Engine) handle(ctx context.Context, s *domain.Session, env *envdomain.Envelope, in domain.StageInput) (*transition, error) {
	switch in := in.(type) {
	case domain.SelectIdentityMethod:
		return e.selectMethod(ctx, s, env, in.Method)
	case domain.SubmitIdentityClaim:
		return e.submitClaim(ctx, s, env, in.Claim)
	case domain.SubmitCapture:
		return e.submitCapture(ctx, s, env, in.Capture)
	case domain.InvalidateIdentity:
		return e.invalidateIdentity(s, in.Reason)
	case domain.ConfirmContact:
		return e.confirmContact(ctx, s, in.Channel)
	case domain.AcceptConsent:
		return e.acceptConsent(s, in)
	case domain.ConfirmPresence:
		t := e.move(s, auditdomain.EventPresenceConfirmed)
		t.next.Evidence.PresenceConfirmed = true
		return t, nil
	case domain.MarkDocumentReviewed:
		return e.markSlot(s, env, in.SlotID, auditdomain.EventDocumentReviewed)
	case domain.MarkDocumentPrinted:
		return e.markSlot(s, env, in.SlotID, auditdomain.EventDocumentPrinted)
	case domain.CaptureSignature:
		return e.captureSignature(s, in.ArtifactRef)
	case domain.ConfirmCustomerSigned:
		t := e.move(s, auditdomain.EventCustomerSignatureWitnessed)
		t.next.Evidence.CustomerSigned = true
		return t, nil
	case domain.UploadScan:
		return e.uploadScan(s, env, in)
	case domain.SubmitAgentDeclaration:
		return e.declare(ctx, s, env, in.Statement)
	case domain.RequestOTP:
		return e.requestOTP(ctx, s, in.Channel)
	case domain.SubmitOTP:
		return e.submitOTP(ctx, s, in.Code)
	case domain.Continue:
		return e.proceed(ctx, s, env)
	}
	return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, fmt.Sprintf("unknown input %T", in), nil)
}

// stay records ev without changing stage.
func (e *Engine) stay(s *domain.Session, ev auditdomain.EventType) *transition {
	return &transition{next: s.Clone(), event: ev}
}

// move records ev and moves to the next stage on the method's path.
func (e *Engine) move(s *domain.Session, ev auditdomain.EventType) *transition {
	t := e.stay(s, ev)
	if next, ok := domain.NextStage(s.Method, s.Stage); ok {
		t.next.Stage = next
	}
	return t
}

func (e *Engine) selectMethod(ctx context.Context, s *domain.Session, env *envdomain.Envelope, m identity.Method) (*transition, error) {
	if err := e.checkMethod(ctx, s, env, m); err != nil {
		return nil, err
	}
	var t *transition
	if s.Stage == domain.StageIdentitySelection {
		t = e.move(s, auditdomain.EventIdentityMethodSelected)
	} else {
		t = e.stay(s, auditdomain.EventIdentityMethodSelected)
	}
	t.next.Evidence.IdentityMethod = m
	t.next.Evidence.PendingCaptures = nil
	t.meta("identity_method", string(m))
	return t, nil
}

func (e *Engine) submitClaim(ctx context.Context, s *domain.Session, env *envdomain.Envelope, c identity.Claim) (*transition, error) {
	if s.Evidence.Identity != nil {
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "identity already verified; invalidate it first", nil)
	}
	if c.Method == "" {
		c.Method = s.Evidence.IdentityMethod
	}
	if c.Method == "" && s.Stage == domain.StageAgentDeclaration {
		c.Method = identity.MethodManual
	}
	switch {
	case c.Method == "":
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "identity method is required", nil)
	case s.Stage == domain.StageAgentDeclaration && c.Method != identity.MethodManual:
		return nil, domain.NewStageError(domain.KindMethodNotAllowed, s.Stage, "only manual verification is possible here", nil)
	case c.Method == identity.MethodFaceMatch:
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "document scans are submitted as captures", nil)
	}
	if err := e.checkMethod(ctx, s, env, c.Method); err != nil {
		return nil, err
	}
	c.SubjectID = s.SignerID
	return e.verify(ctx, s, c)
}

func (e *Engine) submitCapture(ctx context.Context, s *domain.Session, env *envdomain.Envelope, c identity.Capture) (*transition, error) {
	if s.Evidence.Identity != nil {
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "identity already verified; invalidate it first", nil)
	}
	m := s.Evidence.IdentityMethod
	if m == "" {
		m = identity.MethodFaceMatch
	}
	if m != identity.MethodFaceMatch {
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "captures require the document scan method", nil)
	}
	if err := e.checkMethod(ctx, s, env, m); err != nil {
		return nil, err
	}
	set, err := identity.CaptureSet(s.Evidence.PendingCaptures).Add(c)
	if err != nil {
		return nil, identityError(s.Stage, err)
	}
	if !set.Complete() {
		t := e.stay(s, auditdomain.EventCaptureReceived)
		t.next.Evidence.IdentityMethod = m
		t.next.Evidence.PendingCaptures = set
		t.meta("capture", string(c.Kind))
		return t, nil
	}
	return e.verify(ctx, s, identity.Claim{Method: m, SubjectID: s.SignerID, Captures: set})
}

// verify runs the strategy outside any transaction and records a successful result.
func (e *Engine) verify(ctx context.Context, s *domain.Session, c identity.Claim) (*transition, error) {
	res, err := e.identity.Verify(ctx, c)
	if err != nil {
		e.metrics.identityFailure(ctx, c.Method, err)
		return nil, identityError(s.Stage, err)
	}
	var t *transition
	if s.Stage == domain.StageAgentDeclaration {
		t = e.stay(s, auditdomain.EventIdentityVerified)
	} else {
		t = e.move(s, auditdomain.EventIdentityVerified)
	}
	r := *res
	t.next.Evidence.Identity = &r
	t.next.Evidence.IdentityMethod = c.Method
	t.next.Evidence.PendingCaptures = nil
	t.meta("identity_method", string(c.Method))
	if r.Reference != "" {
		t.meta("reference", r.Reference)
	}
	if r.Confidence > 0 {
		t.meta("confidence", strconv.FormatFloat(r.Confidence, 'f', 4, 64))
	}
	if r.Claims.IDNumber != "" {
		t.meta("id_number", r.Claims.IDNumber)
	}
	return t, nil
}

// invalidateIdentity drops the result and everything that depended on it, returning to the
// identity stage when the session had moved past it.
func (e *Engine) invalidateIdentity(s *domain.Session, reason string) (*transition, error) {
	if s.Evidence.Identity == nil {
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "no identity result to invalidate", nil)
	}
	t := e.stay(s, auditdomain.EventIdentityInvalidated)
	ev := &t.next.Evidence
	ev.Identity = nil
	ev.PendingCaptures = nil
	ev.SignatureRef = ""
	ev.AgentDeclaration = ""
	ev.ClearOTP()
	target := domain.IdentityStage(s.Method)
	if domain.Index(s.Method, s.Stage) > domain.Index(s.Method, target) {
		t.next.Stage = target
		if s.Method == domain.MethodSelfService {
			ev.IdentityMethod = ""
		}
	}
	t.meta("reason", reason)
	return t, nil
}

func (e *Engine) confirmContact(ctx context.Context, s *domain.Session, ch otpdomain.Channel) (*transition, error) {
	if ch == "" {
		ch = otpdomain.ChannelSMS
	}
	if !ch.Valid() {
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "unknown channel "+string(ch), nil)
	}
	dest, err := e.destination(ctx, s.SignerID, ch)
	if err != nil {
		return nil, err
	}
	if dest == "" {
		return nil, domain.NewStageError(domain.KindChannelUnavailable, s.Stage, "no "+string(ch)+" contact on file", otp.ErrChannelUnavailable)
	}
	t := e.stay(s, auditdomain.EventContactConfirmed)
	t.next.Evidence.ContactChannel = ch
	t.next.Evidence.ContactConfirmed = true
	t.meta("channel", string(ch))
	return t, nil
}

func (e *Engine) acceptConsent(s *domain.Session, in domain.AcceptConsent) (*transition, error) {
	reqs, err := e.consents.Accept(s.Evidence.Consents, in.ConsentID, in.Value, e.clock())
	if err != nil {
		if errors.Is(err, consent.ErrUnknownConsent) {
			return nil, domain.NewStageError(domain.KindUnknownConsent, s.Stage, in.ConsentID, err)
		}
		return nil, internal(s.Stage, err)
	}
	t := e.stay(s, auditdomain.EventConsentAccepted)
	t.next.Evidence.Consents = reqs
	t.meta("consent_id", in.ConsentID)
	t.meta("value", strconv.FormatBool(in.Value))
	return t, nil
}

// markSlot records a document as reviewed or, for EventDocumentPrinted, printed.
func (e *Engine) markSlot(s *domain.Session, env *envdomain.Envelope, slotID string, ev auditdomain.EventType) (*transition, error) {
	if !env.HasSlot(slotID) {
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "unknown document slot "+slotID, nil)
	}
	t := e.stay(s, ev)
	marks := &t.next.Evidence.Reviewed
	if ev == auditdomain.EventDocumentPrinted {
		marks = &t.next.Evidence.Printed
	}
	if !domain.Contains(*marks, slotID) {
		*marks = append(*marks, slotID)
	}
	t.meta("slot_id", slotID)
	return t, nil
}

func (e *Engine) captureSignature(s *domain.Session, ref string) (*transition, error) {
	if ref == "" {
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "signature artifact reference is required", nil)
	}
	if s.Evidence.Identity == nil {
		return nil, incomplete(s.Stage, "identity not verified")
	}
	if !e.consents.IsSatisfied(s.Evidence.Consents) {
		return nil, incomplete(s.Stage, "consents missing: "+joinIDs(consent.Missing(s.Evidence.Consents)))
	}
	t := e.move(s, auditdomain.EventSignatureCaptured)
	t.next.Evidence.SignatureRef = ref
	t.meta("artifact_ref", ref)
	return t, nil
}

func (e *Engine) uploadScan(s *domain.Session, env *envdomain.Envelope, in domain.UploadScan) (*transition, error) {
	if !env.HasSlot(in.SlotID) {
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "unknown document slot "+in.SlotID, nil)
	}
	if in.Ref == "" {
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "scan reference is required", nil)
	}
	t := e.stay(s, auditdomain.EventScanUploaded)
	if t.next.Evidence.Scans == nil {
		t.next.Evidence.Scans = make(map[string]string)
	}
	t.next.Evidence.Scans[in.SlotID] = in.Ref
	t.meta("slot_id", in.SlotID)
	t.meta("scan_ref", in.Ref)
	return t, nil
}

func (e *Engine) declare(ctx context.Context, s *domain.Session, env *envdomain.Envelope, statement string) (*transition, error) {
	if statement == "" {
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "declaration statement is required", nil)
	}
	if s.Evidence.Identity == nil {
		return nil, incomplete(s.Stage, "identity not verified")
	}
	if err := e.checkConsents(ctx, s, env); err != nil {
		return nil, err
	}
	if missing := missingScans(s, env); len(missing) > 0 {
		return nil, incomplete(s.Stage, "scans missing: "+joinIDs(missing))
	}
	t := e.move(s, auditdomain.EventAgentDeclared)
	t.next.Evidence.AgentDeclaration = statement
	return t, nil
}

// requestOTP issues a challenge inside the commit transaction so a failed audit write
// leaves no orphan challenge behind.
func (e *Engine) requestOTP(ctx context.Context, s *domain.Session, ch otpdomain.Channel) (*transition, error) {
	if ch == "" {
		ch = s.Evidence.ContactChannel
	}
	if ch == "" {
		ch = otpdomain.ChannelSMS
	}
	if !ch.Valid() {
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "unknown channel "+string(ch), nil)
	}
	recipient := s.SignerID
	if s.Stage == domain.StageAgentOtpVerification {
		recipient = s.AgentID
	}
	dest, err := e.destination(ctx, recipient, ch)
	if err != nil {
		return nil, err
	}
	t := e.stay(s, auditdomain.EventOtpIssued)
	t.meta("channel", string(ch))
	t.meta("recipient_id", recipient)
	t.pre = func(ctx context.Context, t *transition) error {
		c, err := e.otp.Issue(ctx, s.ID, ch, dest)
		if err != nil {
			return otpIssueError(s.Stage, err)
		}
		ev := &t.next.Evidence
		ev.ClearOTP()
		ev.OTPChannel = ch
		ev.OTPChallengeID = c.ID
		issued := c.IssuedAt
		ev.OTPIssuedAt = &issued
		t.meta("challenge_id", c.ID)
		t.meta("expires_at", c.ExpiresAt.UTC().Format(time.RFC3339))
		return nil
	}
	return t, nil
}

// submitOTP checks the code outside the transaction so counted attempts survive a failed
// commit, and consumes the challenge inside it.
func (e *Engine) submitOTP(ctx context.Context, s *domain.Session, code string) (*transition, error) {
	ev := s.Evidence
	if ev.OTPChallengeID == "" {
		return nil, incomplete(s.Stage, "no code has been issued")
	}
	if ev.OTPVerified() {
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "code already verified", nil)
	}
	if code == "" {
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "code is required", nil)
	}
	if err := e.otp.Check(ctx, ev.OTPChallengeID, code); err != nil {
		e.metrics.otpFailure(ctx, err)
		return nil, otpVerifyError(s.Stage, err)
	}
	t := e.stay(s, auditdomain.EventOtpVerified)
	t.pre = func(ctx context.Context, _ *transition) error {
		if err := e.otp.Consume(ctx, ev.OTPChallengeID); err != nil {
			return otpVerifyError(s.Stage, err)
		}
		return nil
	}
	now := e.clock()
	t.next.Evidence.OTPVerifiedChallenge = ev.OTPChallengeID
	t.next.Evidence.OTPVerifiedAt = &now
	t.meta("challenge_id", ev.OTPChallengeID)
	return t, nil
}

// proceed handles Continue: leave the stage once its requirements hold.
func (e *Engine) proceed(ctx context.Context, s *domain.Session, env *envdomain.Envelope) (*transition, error) {
	switch s.Stage {
	case domain.StageContactConfirmation:
		if s.Evidence.Identity == nil {
			return nil, incomplete(s.Stage, "identity not verified")
		}
		if err := e.checkConsents(ctx, s, env); err != nil {
			return nil, err
		}
		if !s.Evidence.ContactConfirmed {
			return nil, incomplete(s.Stage, "contact channel not confirmed")
		}
	case domain.StageReviewDocuments:
		if missing := domain.MissingFrom(env.RequiredSlots(), s.Evidence.Reviewed); len(missing) > 0 {
			return nil, incomplete(s.Stage, "documents not reviewed: "+joinIDs(missing))
		}
	case domain.StageCaptureConsent:
		if err := e.checkConsents(ctx, s, env); err != nil {
			return nil, err
		}
	case domain.StagePrintDocuments:
		if missing := domain.MissingFrom(env.RequiredSlots(), s.Evidence.Printed); len(missing) > 0 {
			return nil, incomplete(s.Stage, "documents not printed: "+joinIDs(missing))
		}
	case domain.StageScanUpload:
		if missing := missingScans(s, env); len(missing) > 0 {
			return nil, incomplete(s.Stage, "scans missing: "+joinIDs(missing))
		}
	case domain.StageOtpVerification, domain.StageAgentOtpVerification:
		return e.finalize(ctx, s, env)
	default:
		return nil, domain.NewStageError(domain.KindInvalidInput, s.Stage, "continue is not accepted here", nil)
	}
	t := e.move(s, auditdomain.EventStageCompleted)
	t.meta("stage", string(s.Stage))
	return t, nil
}
