package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	auditdomain "esign-workflow/internal/audit/domain"
	"esign-workflow/internal/consent"
	envdomain "esign-workflow/internal/envelope/domain"
	"esign-workflow/internal/identity"
	"esign-workflow/internal/otp"
	otpdomain "esign-workflow/internal/otp/domain"
	"esign-workflow/internal/platform/actor"
	"esign-workflow/internal/policy/engine"
	"esign-workflow/internal/signing/domain"
	"esign-workflow/internal/trust"
)

func incomplete(stage domain.Stage, detail string) error {
	return domain.NewStageError(domain.KindIncompleteRequirement, stage, detail, nil)
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ", ")
}

// allowedMethods is the registry's identity methods narrowed by policy and by the strategies
// this deployment has configured.
func (e *Engine) allowedMethods(ctx context.Context, s *domain.Session, env *envdomain.Envelope) ([]identity.Method, error) {
	cfg, err := e.types.Get(ctx, env.TypeCode)
	if err != nil {
		return nil, err
	}
	var kind string
	signer, err := e.parties.GetByID(ctx, s.SignerID)
	if err != nil {
		return nil, err
	}
	if signer != nil {
		kind = string(signer.Kind)
	}
	allowed, err := e.policy.AllowedIdentityMethods(ctx, engine.Input{
		TypeCode:      env.TypeCode,
		SigningMethod: string(s.Method),
		SignerKind:    kind,
		Configured:    cfg.IdentityMethods,
	})
	if err != nil {
		return nil, err
	}
	var out []identity.Method
	for _, m := range allowed {
		if e.identity.Supports(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

// AllowedIdentityMethods lists the identity methods the session's signer may use.
func (e *Engine) AllowedIdentityMethods(ctx context.Context, a actor.Actor, sessionID string) ([]identity.Method, error) {
	s, err := e.Get(ctx, a, sessionID)
	if err != nil {
		return nil, err
	}
	env, err := e.envelopes.GetByID(ctx, s.EnvelopeID)
	if err != nil {
		return nil, internal(s.Stage, err)
	}
	if env == nil {
		return nil, domain.NewStageError(domain.KindNotFound, s.Stage, "envelope "+s.EnvelopeID, nil)
	}
	ms, err := e.allowedMethods(ctx, s, env)
	if err != nil {
		return nil, internal(s.Stage, err)
	}
	return ms, nil
}

func (e *Engine) checkMethod(ctx context.Context, s *domain.Session, env *envdomain.Envelope, m identity.Method) error {
	if !m.Valid() {
		return domain.NewStageError(domain.KindInvalidInput, s.Stage, fmt.Sprintf("unknown identity method %q", m), nil)
	}
	allowed, err := e.allowedMethods(ctx, s, env)
	if err != nil {
		return internal(s.Stage, err)
	}
	for _, a := range allowed {
		if a == m {
			return nil
		}
	}
	return domain.NewStageError(domain.KindMethodNotAllowed, s.Stage, string(m)+" is not allowed for this envelope", nil)
}

// destination returns the party's contact for ch, "" when none is on file.
func (e *Engine) destination(ctx context.Context, partyID string, ch otpdomain.Channel) (string, error) {
	p, err := e.parties.GetByID(ctx, partyID)
	if err != nil {
		return "", internal("", err)
	}
	if p == nil {
		return "", nil
	}
	return p.Destination(ch), nil
}

// checkConsents verifies every consent the envelope type requires, as configured now, was accepted.
func (e *Engine) checkConsents(ctx context.Context, s *domain.Session, env *envdomain.Envelope) error {
	defined, err := e.consents.RequiredFor(ctx, env.TypeCode)
	if err != nil {
		return internal(s.Stage, err)
	}
	missing := consent.Missing(s.Evidence.Consents)
	have := make(map[string]consent.Requirement, len(s.Evidence.Consents))
	for _, r := range s.Evidence.Consents {
		have[r.ConsentID] = r
	}
	for _, d := range defined {
		if !d.Required || domain.Contains(missing, d.ConsentID) {
			continue
		}
		if r, ok := have[d.ConsentID]; !ok || r.Value == nil || !*r.Value {
			missing = append(missing, d.ConsentID)
		}
	}
	if len(missing) > 0 {
		return incomplete(s.Stage, "consents missing: "+joinIDs(missing))
	}
	return nil
}

func missingScans(s *domain.Session, env *envdomain.Envelope) []string {
	var missing []string
	for _, id := range env.RequiredSlots() {
		if s.Evidence.Scans[id] == "" {
			missing = append(missing, id)
		}
	}
	return missing
}

// checkCompletion re-checks everything signing depends on from stored state.
func (e *Engine) checkCompletion(ctx context.Context, s *domain.Session, env *envdomain.Envelope) error {
	ev := s.Evidence
	if ev.Identity == nil || !ev.Identity.Matched {
		return incomplete(s.Stage, "identity not verified")
	}
	if err := e.checkConsents(ctx, s, env); err != nil {
		return err
	}
	switch s.Method {
	case domain.MethodSelfService:
		if !ev.ContactConfirmed {
			return incomplete(s.Stage, "contact channel not confirmed")
		}
	case domain.MethodAgentAssisted:
		if !ev.PresenceConfirmed {
			return incomplete(s.Stage, "presence not confirmed")
		}
		if missing := domain.MissingFrom(env.RequiredSlots(), ev.Reviewed); len(missing) > 0 {
			return incomplete(s.Stage, "documents not reviewed: "+joinIDs(missing))
		}
		if ev.SignatureRef == "" {
			return incomplete(s.Stage, "signature not captured")
		}
	case domain.MethodPhysicalUpload:
		if missing := domain.MissingFrom(env.RequiredSlots(), ev.Printed); len(missing) > 0 {
			return incomplete(s.Stage, "documents not printed: "+joinIDs(missing))
		}
		if !ev.CustomerSigned {
			return incomplete(s.Stage, "customer signature not witnessed")
		}
		if missing := missingScans(s, env); len(missing) > 0 {
			return incomplete(s.Stage, "scans missing: "+joinIDs(missing))
		}
		if ev.AgentDeclaration == "" {
			return incomplete(s.Stage, "agent declaration missing")
		}
	}
	if !ev.OTPVerified() {
		return incomplete(s.Stage, "one-time code not verified")
	}
	c, err := e.otp.Get(ctx, ev.OTPChallengeID)
	if err != nil {
		if errors.Is(err, otp.ErrNotFound) {
			return incomplete(s.Stage, "one-time code not verified")
		}
		return internal(s.Stage, err)
	}
	if c.SessionID != s.ID || c.ConsumedAt == nil {
		return incomplete(s.Stage, "one-time code not verified")
	}
	if env.Status != envdomain.StatusInProgress {
		return domain.NewStageError(domain.KindConflict, s.Stage, "envelope is "+string(env.Status), nil)
	}
	return nil
}

// finalize seals the envelope with the trust service and completes the session. A trust failure
// leaves the session in its OTP stage so Continue can be retried.
func (e *Engine) finalize(ctx context.Context, s *domain.Session, env *envdomain.Envelope) (*transition, error) {
	if err := e.checkCompletion(ctx, s, env); err != nil {
		return nil, err
	}
	events, err := e.audit.EventsFor(ctx, s.ID)
	if err != nil {
		return nil, internal(s.Stage, err)
	}
	var head string
	if n := len(events); n > 0 {
		head = events[n-1].Hash
	}
	docs := make([]string, 0, len(env.Documents))
	for _, d := range env.Documents {
		docs = append(docs, d.DocumentRef)
	}
	req := trust.Request{
		EnvelopeID:    env.ID,
		SessionID:     s.ID,
		SignerID:      s.SignerID,
		Method:        string(s.Method),
		DocumentRefs:  docs,
		ArtifactRef:   s.Evidence.SignatureRef,
		ScanRefs:      s.Evidence.ScanRefs(),
		AuditHeadHash: head,
	}
	fctx, cancel := context.WithTimeout(ctx, e.finalizeTimeout)
	defer cancel()
	seal, err := e.trust.Finalize(fctx, req)
	if err == nil && (seal == nil || seal.SignedDocumentRef == "") {
		err = fmt.Errorf("%w: empty seal", trust.ErrFinalizationFailed)
	}
	if err != nil {
		log.Printf("signing: finalize session %s: %v", s.ID, err)
		return nil, domain.NewStageError(domain.KindFinalizationFailed, s.Stage, "", err)
	}

	now := e.clock()
	t := &transition{next: s.Clone(), event: auditdomain.EventDocumentSigned}
	t.next.Stage = domain.StageSigningCompleted
	t.next.SignedDocumentRef = seal.SignedDocumentRef
	t.next.CompletedAt = &now
	t.envelope = &envelopeChange{from: envdomain.StatusInProgress, to: envdomain.StatusSigned}
	t.meta("seal_id", seal.SealID)
	t.meta("signed_document_ref", seal.SignedDocumentRef)
	t.meta("digest", req.Digest())
	t.meta("audit_head", head)
	t.meta("otp_challenge_id", s.Evidence.OTPChallengeID)
	return t, nil
}

func identityError(stage domain.Stage, err error) error {
	kind := domain.KindInternal
	switch {
	case errors.Is(err, identity.ErrIdentityMismatch):
		kind = domain.KindIdentityMismatch
	case errors.Is(err, identity.ErrLowConfidenceMatch):
		kind = domain.KindLowConfidenceMatch
	case errors.Is(err, identity.ErrProviderUnavailable):
		kind = domain.KindProviderUnavailable
	case errors.Is(err, identity.ErrIncompleteCapture):
		kind = domain.KindIncompleteCapture
	case errors.Is(err, identity.ErrInvalidClaim):
		kind = domain.KindInvalidInput
	case errors.Is(err, identity.ErrUnsupportedMethod):
		kind = domain.KindMethodNotAllowed
	}
	return domain.NewStageError(kind, stage, "", err)
}

func otpIssueError(stage domain.Stage, err error) error {
	kind := domain.KindInternal
	switch {
	case errors.Is(err, otp.ErrResendCooldown):
		kind = domain.KindResendCooldown
	case errors.Is(err, otp.ErrDeliveryFailed):
		kind = domain.KindDeliveryError
	case errors.Is(err, otp.ErrChannelUnavailable):
		kind = domain.KindChannelUnavailable
	}
	return domain.NewStageError(kind, stage, "", err)
}

func otpVerifyError(stage domain.Stage, err error) error {
	kind := domain.KindInternal
	switch {
	case errors.Is(err, otp.ErrExpired), errors.Is(err, otp.ErrInactive), errors.Is(err, otp.ErrNotFound):
		kind = domain.KindExpired
	case errors.Is(err, otp.ErrExhausted):
		kind = domain.KindExhausted
	case errors.Is(err, otp.ErrMismatch):
		kind = domain.KindMismatch
	}
	return domain.NewStageError(kind, stage, "", err)
}
