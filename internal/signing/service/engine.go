// Package service is the signing session state machine. Every successful operation records
// exactly one audit event in the same transaction that changes the session.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"esign-workflow/internal/audit"
	auditdomain "esign-workflow/internal/audit/domain"
	"esign-workflow/internal/consent"
	"esign-workflow/internal/db"
	envdomain "esign-workflow/internal/envelope/domain"
	envrepo "esign-workflow/internal/envelope/repository"
	"esign-workflow/internal/envelopetype"
	"esign-workflow/internal/identity"
	otpdomain "esign-workflow/internal/otp/domain"
	partydomain "esign-workflow/internal/party/domain"
	partyrepo "esign-workflow/internal/party/repository"
	"esign-workflow/internal/platform/actor"
	"esign-workflow/internal/policy/engine"
	"esign-workflow/internal/signing/domain"
	"esign-workflow/internal/signing/lock"
	sessionrepo "esign-workflow/internal/signing/repository"
	"esign-workflow/internal/trust"
)

// DefaultFinalizeTimeout bounds the trust service call.
const DefaultFinalizeTimeout = 30 * time.Second

// OTPService is the subset of the OTP service the engine uses.
type OTPService interface {
	Issue(ctx context.Context, sessionID string, channel otpdomain.Channel, destination string) (*otpdomain.Challenge, error)
	Check(ctx context.Context, challengeID, code string) error
	Consume(ctx context.Context, challengeID string) error
	CanResend(ctx context.Context, challengeID string) (bool, error)
	Get(ctx context.Context, challengeID string) (*otpdomain.Challenge, error)
}

// IdentityVerifier dispatches identity claims to strategies.
type IdentityVerifier interface {
	Supports(m identity.Method) bool
	Verify(ctx context.Context, c identity.Claim) (*identity.Result, error)
}

// Deps are the engine's collaborators. All are required except Locker, Policy and Tx.
type Deps struct {
	Sessions  sessionrepo.Repository
	Envelopes envrepo.Repository
	Parties   partyrepo.Repository
	Types     envelopetype.Registry
	Consents  *consent.Ledger
	Identity  IdentityVerifier
	Policy    engine.Evaluator
	OTP       OTPService
	Audit     *audit.Recorder
	Trust     trust.Finalizer
	Tx        db.TxRunner
	Locker    lock.Locker
}

// Engine runs signing sessions.
type Engine struct {
	sessions  sessionrepo.Repository
	envelopes envrepo.Repository
	parties   partyrepo.Repository
	types     envelopetype.Registry
	consents  *consent.Ledger
	identity  IdentityVerifier
	policy    engine.Evaluator
	otp       OTPService
	audit     *audit.Recorder
	trust     trust.Finalizer
	tx        db.TxRunner
	locker    lock.Locker

	finalizeTimeout time.Duration
	now             func() time.Time
	metrics         *metrics
}

// NewEngine validates deps and returns an Engine.
func NewEngine(d Deps) (*Engine, error) {
	if d.Sessions == nil || d.Envelopes == nil || d.Parties == nil || d.Types == nil || d.Consents == nil ||
		d.Identity == nil || d.OTP == nil || d.Audit == nil || d.Trust == nil {
		return nil, errors.New("signing: missing required dependency")
	}
	if d.Policy == nil {
		d.Policy = engine.StaticEvaluator{}
	}
	if d.Tx == nil {
		d.Tx = db.DirectRunner{}
	}
	if d.Locker == nil {
		d.Locker = lock.NewMemoryLocker()
	}
	return &Engine{
		sessions:        d.Sessions,
		envelopes:       d.Envelopes,
		parties:         d.Parties,
		types:           d.Types,
		consents:        d.Consents,
		identity:        d.Identity,
		policy:          d.Policy,
		otp:             d.OTP,
		audit:           d.Audit,
		trust:           d.Trust,
		tx:              d.Tx,
		locker:          d.Locker,
		finalizeTimeout: DefaultFinalizeTimeout,
		now:             time.Now,
		metrics:         newMetrics(),
	}, nil
}

// WithFinalizeTimeout sets the trust service timeout.
func (e *Engine) WithFinalizeTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.finalizeTimeout = d
	}
	return e
}

// WithClock overrides the clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// envelopeChange is an envelope status move committed with a transition.
type envelopeChange struct {
	from, to envdomain.Status
}

// transition is the outcome of a handled input, committed atomically by commit.
type transition struct {
	next     *domain.Session
	event    auditdomain.EventType
	metadata map[string]string
	envelope *envelopeChange
	// pre runs first inside the transaction; it may fill next and metadata.
	pre func(ctx context.Context, t *transition) error
}

func (t *transition) meta(k, v string) {
	if t.metadata == nil {
		t.metadata = make(map[string]string)
	}
	t.metadata[k] = v
}

// Begin opens a signing session on a pending envelope.
func (e *Engine) Begin(ctx context.Context, a actor.Actor, envelopeID, signerID string, method domain.Method) (*domain.Session, error) {
	ctx, span := e.metrics.start(ctx, "signing.Begin", attribute.String("envelope.id", envelopeID), attribute.String("method", string(method)))
	defer span.End()
	s, err := e.begin(ctx, a, envelopeID, signerID, method)
	e.metrics.result(ctx, span, "begin", "", err)
	return s, err
}

func (e *Engine) begin(ctx context.Context, a actor.Actor, envelopeID, signerID string, method domain.Method) (*domain.Session, error) {
	if err := a.Validate(); err != nil {
		return nil, domain.NewStageError(domain.KindForbidden, "", "", err)
	}
	if !method.Valid() {
		return nil, domain.NewStageError(domain.KindInvalidInput, "", fmt.Sprintf("unknown signing method %q", method), nil)
	}
	switch {
	case method == domain.MethodSelfService && (a.Role != actor.RoleCustomer || a.ID != signerID):
		return nil, domain.NewStageError(domain.KindForbidden, "", "self service must be started by the signer", nil)
	case method.AgentDriven() && a.Role != actor.RoleAgent:
		return nil, domain.NewStageError(domain.KindForbidden, "", "agent methods must be started by an agent", nil)
	}
	if method.AgentDriven() {
		agent, err := e.parties.GetByID(ctx, a.ID)
		if err != nil {
			return nil, internal("", err)
		}
		if agent == nil || agent.Kind != partydomain.KindAgent {
			return nil, domain.NewStageError(domain.KindForbidden, "", "actor is not a registered agent", nil)
		}
	}

	env, err := e.envelopes.GetByID(ctx, envelopeID)
	if err != nil {
		return nil, internal("", err)
	}
	if env == nil {
		return nil, domain.NewStageError(domain.KindNotFound, "", "envelope "+envelopeID, nil)
	}
	now := e.clock()
	if env.Status == envdomain.StatusPendingSignature && env.Expired(now) {
		if err := e.envelopes.UpdateStatus(ctx, env.ID, env.Status, envdomain.StatusExpired, now); err != nil {
			log.Printf("signing: mark envelope %s expired: %v", env.ID, err)
		}
		return nil, domain.NewStageError(domain.KindSessionClosed, "", "envelope expired", nil)
	}
	switch env.Status {
	case envdomain.StatusPendingSignature:
	case envdomain.StatusInProgress:
		return nil, domain.NewStageError(domain.KindConflict, "", "envelope already has an active session", nil)
	default:
		return nil, domain.NewStageError(domain.KindSessionClosed, "", "envelope is "+string(env.Status), nil)
	}
	if env.CustomerID != signerID {
		return nil, domain.NewStageError(domain.KindForbidden, "", "signer does not own the envelope", nil)
	}
	cfg, err := e.types.Get(ctx, env.TypeCode)
	if err != nil {
		return nil, internal("", err)
	}
	if !cfg.AllowsSigningMethod(string(method)) {
		return nil, domain.NewStageError(domain.KindMethodNotAllowed, "", string(method)+" is not offered for "+cfg.Code, nil)
	}
	signer, err := e.parties.GetByID(ctx, signerID)
	if err != nil {
		return nil, internal("", err)
	}
	if signer == nil {
		return nil, domain.NewStageError(domain.KindNotFound, "", "signer "+signerID, nil)
	}
	reqs, err := e.consents.RequiredFor(ctx, env.TypeCode)
	if err != nil {
		return nil, internal("", err)
	}

	s := &domain.Session{
		ID:         uuid.NewString(),
		EnvelopeID: env.ID,
		SignerID:   signerID,
		Method:     method,
		Stage:      domain.FirstStage(method),
		Evidence:   domain.Evidence{Consents: reqs},
		Version:    1,
		ExpiresAt:  env.ExpiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if method.AgentDriven() {
		s.AgentID = a.ID
	}
	var recorded *auditdomain.Event
	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		ev, err := e.audit.Append(ctx, audit.Entry{
			SessionID: s.ID,
			Type:      auditdomain.EventSessionStarted,
			Actor:     a,
			ToStage:   string(s.Stage),
			Metadata: map[string]string{
				"envelope_id": env.ID,
				"signer_id":   signerID,
				"method":      string(method),
				"type_code":   env.TypeCode,
			},
		})
		if err != nil {
			return err
		}
		if err := e.sessions.Create(ctx, s); err != nil {
			return err
		}
		if err := e.envelopes.UpdateStatus(ctx, env.ID, envdomain.StatusPendingSignature, envdomain.StatusInProgress, now); err != nil {
			return err
		}
		recorded = ev
		return nil
	})
	if err != nil {
		return nil, commitError("", err)
	}
	e.audit.Export(ctx, recorded)
	log.Printf("signing: session %s started envelope=%s method=%s", s.ID, env.ID, method)
	return s.Clone(), nil
}

// Get returns the session if a may see it.
func (e *Engine) Get(ctx context.Context, a actor.Actor, sessionID string) (*domain.Session, error) {
	s, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := authorize(a, s, true); err != nil {
		return nil, err
	}
	return s, nil
}

// History returns the session's audit trail in sequence order, after checking its hash chain.
func (e *Engine) History(ctx context.Context, a actor.Actor, sessionID string) ([]*auditdomain.Event, error) {
	s, err := e.Get(ctx, a, sessionID)
	if err != nil {
		return nil, err
	}
	events, err := e.audit.EventsFor(ctx, s.ID)
	if err != nil {
		return nil, internal(s.Stage, err)
	}
	return events, nil
}

// VerifyReplay replays the trail and checks that it ends in the session's stored stage.
func (e *Engine) VerifyReplay(ctx context.Context, a actor.Actor, sessionID string) error {
	s, err := e.Get(ctx, a, sessionID)
	if err != nil {
		return err
	}
	events, err := e.audit.EventsFor(ctx, s.ID)
	if err != nil {
		return internal(s.Stage, err)
	}
	final, err := audit.FinalStage(events)
	if err != nil {
		return internal(s.Stage, err)
	}
	if final != string(s.Stage) {
		return internal(s.Stage, fmt.Errorf("%w: trail ends in %s", audit.ErrReplayMismatch, final))
	}
	return nil
}

// CanResendOTP reports whether a new code may be requested. It takes no lock.
func (e *Engine) CanResendOTP(ctx context.Context, a actor.Actor, sessionID string) (bool, error) {
	s, err := e.Get(ctx, a, sessionID)
	if err != nil {
		return false, err
	}
	if s.Evidence.OTPChallengeID == "" {
		return true, nil
	}
	ok, err := e.otp.CanResend(ctx, s.Evidence.OTPChallengeID)
	if err != nil {
		return false, internal(s.Stage, err)
	}
	return ok, nil
}

// Abandon ends a session without signing. The envelope goes back to pending, or to expired
// when its deadline passed.
func (e *Engine) Abandon(ctx context.Context, a actor.Actor, sessionID, reason string) (*domain.Session, error) {
	ctx, span := e.metrics.start(ctx, "signing.Abandon", attribute.String("session.id", sessionID))
	defer span.End()
	s, err := e.withSession(ctx, a, sessionID, true, func(ctx context.Context, s *domain.Session, env *envdomain.Envelope) (*transition, error) {
		t := &transition{next: s.Clone(), event: auditdomain.EventSessionAbandoned}
		t.next.Stage = domain.StageAbandoned
		t.next.AbandonReason = reason
		t.meta("reason", reason)
		t.envelope = &envelopeChange{from: env.Status, to: envdomain.StatusPendingSignature}
		if env.Expired(e.clock()) {
			t.envelope.to = envdomain.StatusExpired
		}
		return t, nil
	})
	e.metrics.result(ctx, span, "abandon", "", err)
	return s, err
}

// Reject records the signer's refusal. The envelope becomes rejected and the session ends.
func (e *Engine) Reject(ctx context.Context, a actor.Actor, sessionID, reason string) (*domain.Session, error) {
	ctx, span := e.metrics.start(ctx, "signing.Reject", attribute.String("session.id", sessionID))
	defer span.End()
	s, err := e.withSession(ctx, a, sessionID, true, func(ctx context.Context, s *domain.Session, env *envdomain.Envelope) (*transition, error) {
		t := &transition{next: s.Clone(), event: auditdomain.EventEnvelopeRejected}
		t.next.Stage = domain.StageAbandoned
		t.next.AbandonReason = "rejected"
		if reason != "" {
			t.next.AbandonReason = "rejected: " + reason
		}
		t.meta("reason", reason)
		t.envelope = &envelopeChange{from: env.Status, to: envdomain.StatusRejected}
		return t, nil
	})
	e.metrics.result(ctx, span, "reject", "", err)
	return s, err
}

// withSession locks the session, loads it and its envelope, applies lazy expiry and commits
// the transition fn returns.
func (e *Engine) withSession(ctx context.Context, a actor.Actor, sessionID string, signerMayAct bool,
	fn func(ctx context.Context, s *domain.Session, env *envdomain.Envelope) (*transition, error)) (*domain.Session, error) {
	unlock, ok, err := e.locker.TryLock(ctx, sessionID)
	if err != nil {
		return nil, internal("", err)
	}
	if !ok {
		return nil, domain.NewStageError(domain.KindSessionBusy, "", "another operation is in progress", nil)
	}
	defer unlock()

	s, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := authorize(a, s, signerMayAct); err != nil {
		return nil, err
	}
	if s.Stage.Terminal() {
		return nil, domain.NewStageError(domain.KindSessionClosed, s.Stage, "session is "+string(s.Stage), nil)
	}
	env, err := e.envelopes.GetByID(ctx, s.EnvelopeID)
	if err != nil {
		return nil, internal(s.Stage, err)
	}
	if env == nil {
		return nil, internal(s.Stage, fmt.Errorf("envelope %s missing", s.EnvelopeID))
	}
	if env.Expired(e.clock()) {
		if _, err := e.expire(ctx, s, env); err != nil {
			return nil, err
		}
		return nil, domain.NewStageError(domain.KindSessionClosed, s.Stage, "envelope expired", nil)
	}
	t, err := fn(ctx, s, env)
	if err != nil {
		return nil, err
	}
	return e.commit(ctx, a, s, t)
}

// expire abandons s because its envelope's deadline passed.
func (e *Engine) expire(ctx context.Context, s *domain.Session, env *envdomain.Envelope) (*domain.Session, error) {
	t := &transition{next: s.Clone(), event: auditdomain.EventSessionAbandoned}
	t.next.Stage = domain.StageAbandoned
	t.next.AbandonReason = "envelope_expired"
	t.meta("reason", "envelope_expired")
	if env.Status == envdomain.StatusInProgress {
		t.envelope = &envelopeChange{from: env.Status, to: envdomain.StatusExpired}
	}
	log.Printf("signing: session %s abandoned, envelope %s expired", s.ID, env.ID)
	return e.commit(ctx, actor.System, s, t)
}

// commit writes the audit event, the session and the envelope change in one transaction and
// exports the event once committed.
func (e *Engine) commit(ctx context.Context, a actor.Actor, prev *domain.Session, t *transition) (*domain.Session, error) {
	next := t.next
	next.Version = prev.Version + 1
	next.UpdatedAt = e.clock()
	var recorded *auditdomain.Event
	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if t.pre != nil {
			if err := t.pre(ctx, t); err != nil {
				return err
			}
		}
		ev, err := e.audit.Append(ctx, audit.Entry{
			SessionID: prev.ID,
			Type:      t.event,
			Actor:     a,
			FromStage: string(prev.Stage),
			ToStage:   string(next.Stage),
			Metadata:  t.metadata,
		})
		if err != nil {
			return err
		}
		if err := e.sessions.Update(ctx, next, prev.Version); err != nil {
			return err
		}
		if t.envelope != nil {
			if err := e.envelopes.UpdateStatus(ctx, prev.EnvelopeID, t.envelope.from, t.envelope.to, next.UpdatedAt); err != nil {
				return err
			}
		}
		recorded = ev
		return nil
	})
	if err != nil {
		return nil, commitError(prev.Stage, err)
	}
	e.audit.Export(ctx, recorded)
	e.metrics.transition(ctx, t.event, prev.Stage, next.Stage)
	return next.Clone(), nil
}

func (e *Engine) load(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, internal("", err)
	}
	if s == nil {
		return nil, domain.NewStageError(domain.KindNotFound, "", "session "+sessionID, nil)
	}
	return s, nil
}

// authorize checks a may act on s. Self service sessions belong to the signer; agent sessions
// to their agent, with the signer allowed read, abandon and reject when signerMayAct.
func authorize(a actor.Actor, s *domain.Session, signerMayAct bool) error {
	if err := a.Validate(); err != nil {
		return domain.NewStageError(domain.KindForbidden, s.Stage, "", err)
	}
	switch {
	case a.Role == actor.RoleSystem:
		return nil
	case s.Method == domain.MethodSelfService && a.Role == actor.RoleCustomer && a.ID == s.SignerID:
		return nil
	case s.Method.AgentDriven() && a.Role == actor.RoleAgent && a.ID == s.AgentID:
		return nil
	case s.Method.AgentDriven() && signerMayAct && a.Role == actor.RoleCustomer && a.ID == s.SignerID:
		return nil
	}
	return domain.NewStageError(domain.KindForbidden, s.Stage, "actor may not operate this session", nil)
}

func internal(stage domain.Stage, err error) error {
	return domain.NewStageError(domain.KindInternal, stage, "", err)
}

func commitError(stage domain.Stage, err error) error {
	var se *domain.StageError
	switch {
	case errors.As(err, &se):
		return se
	case errors.Is(err, audit.ErrWriteFailed):
		log.Printf("signing: audit write failed at %s: %v", stage, err)
		return domain.NewStageError(domain.KindAuditWriteFailed, stage, "", err)
	case errors.Is(err, sessionrepo.ErrVersionConflict), errors.Is(err, envrepo.ErrStatusConflict),
		errors.Is(err, sessionrepo.ErrActiveSessionExists):
		return domain.NewStageError(domain.KindConflict, stage, "", err)
	}
	return internal(stage, err)
}
