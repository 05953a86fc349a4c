// Package otp issues and verifies one-time codes bound to a signing session. Expiry,
// resend cooldown and attempt limits are computed from stored timestamps; nothing runs on a timer.
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"esign-workflow/internal/otp/domain"
	otprepo "esign-workflow/internal/otp/repository"
)

var (
	// ErrChannelUnavailable means no destination exists for the requested channel.
	ErrChannelUnavailable = errors.New("otp: no contact information for channel")
	// ErrResendCooldown means the open challenge was issued less than the cooldown ago.
	ErrResendCooldown = errors.New("otp: resend cooldown has not elapsed")
	// ErrDeliveryFailed means the delivery channel rejected or failed to send the code.
	ErrDeliveryFailed = errors.New("otp: delivery failed")
	// ErrNotFound means the challenge does not exist.
	ErrNotFound = errors.New("otp: challenge not found")
	// ErrInactive means the challenge was already consumed or superseded by a newer one.
	ErrInactive = errors.New("otp: challenge no longer active")
	// ErrExpired means the challenge's TTL elapsed.
	ErrExpired = errors.New("otp: challenge expired")
	// ErrExhausted means the maximum number of attempts was reached.
	ErrExhausted = errors.New("otp: attempts exhausted")
	// ErrMismatch means the submitted code is wrong; the attempt was counted.
	ErrMismatch = errors.New("otp: code mismatch")
)

// Policy holds the time and attempt limits for challenges.
type Policy struct {
	TTL            time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
}

// DefaultPolicy is 10 minute TTL, 60 second cooldown, 5 attempts.
func DefaultPolicy() Policy {
	return Policy{TTL: 10 * time.Minute, ResendCooldown: 60 * time.Second, MaxAttempts: 5}
}

// Delivery is one code to send. ChallengeID lets dev stores expose the code by challenge.
type Delivery struct {
	ChallengeID string
	SessionID   string
	Channel     domain.Channel
	Destination string
	Code        string
	ExpiresAt   time.Time
}

// Sender delivers a code over its channel.
type Sender interface {
	Send(ctx context.Context, d Delivery) error
}

// Service issues and verifies challenges.
type Service struct {
	repo   otprepo.Repository
	sender Sender
	policy Policy
	now    func() time.Time
}

// NewService returns a Service. Zero policy fields fall back to DefaultPolicy values.
func NewService(repo otprepo.Repository, sender Sender, policy Policy) *Service {
	def := DefaultPolicy()
	if policy.TTL <= 0 {
		policy.TTL = def.TTL
	}
	if policy.ResendCooldown <= 0 {
		policy.ResendCooldown = def.ResendCooldown
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	return &Service{repo: repo, sender: sender, policy: policy, now: time.Now}
}

// WithClock overrides the clock; tests use it to step time.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Policy returns the limits in force.
func (s *Service) Policy() Policy {
	return s.policy
}

// Issue sends a fresh code to destination and stores its challenge, superseding the session's
// previous one. While the previous challenge is still verifiable and inside its cooldown,
// Issue returns ErrResendCooldown. A failed send changes nothing.
func (s *Service) Issue(ctx context.Context, sessionID string, channel domain.Channel, destination string) (*domain.Challenge, error) {
	if !channel.Valid() || destination == "" {
		return nil, ErrChannelUnavailable
	}
	now := s.now().UTC()

	open, err := s.repo.OpenForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if open != nil && open.Active(now) && now.Before(open.ResendAvailableAt) {
		return nil, ErrResendCooldown
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}
	c := &domain.Challenge{
		ID:                uuid.New().String(),
		SessionID:         sessionID,
		Channel:           channel,
		Destination:       destination,
		CodeHash:          HashCode(code),
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.policy.TTL),
		ResendAvailableAt: now.Add(s.policy.ResendCooldown),
	}
	if err := s.sender.Send(ctx, Delivery{
		ChallengeID: c.ID, SessionID: sessionID, Channel: channel,
		Destination: destination, Code: code, ExpiresAt: c.ExpiresAt,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	if err := s.repo.Issue(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Verify checks code against the challenge and consumes it on success.
func (s *Service) Verify(ctx context.Context, challengeID, code string) error {
	if err := s.Check(ctx, challengeID, code); err != nil {
		return err
	}
	return s.Consume(ctx, challengeID)
}

// Check compares code with the challenge without consuming it. A wrong code counts as an
// attempt; reaching the maximum yields ErrExhausted instead of ErrMismatch.
func (s *Service) Check(ctx context.Context, challengeID, code string) error {
	c, err := s.repo.GetByID(ctx, challengeID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrNotFound
	}
	now := s.now().UTC()
	if !c.Open() {
		return ErrInactive
	}
	if c.Expired(now) {
		return ErrExpired
	}
	if c.Attempts >= s.policy.MaxAttempts {
		return ErrExhausted
	}
	if !CodeEqual(code, c.CodeHash) {
		n, err := s.repo.RecordFailedAttempt(ctx, c.ID)
		if err != nil {
			return err
		}
		if n >= s.policy.MaxAttempts {
			return ErrExhausted
		}
		return ErrMismatch
	}
	return nil
}

// Consume marks a checked challenge used. It returns ErrInactive when another caller consumed
// it first or a newer challenge superseded it.
func (s *Service) Consume(ctx context.Context, challengeID string) error {
	ok, err := s.repo.Consume(ctx, challengeID, s.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInactive
	}
	return nil
}

// CanResend reports whether the cooldown since the challenge's issuance has elapsed.
func (s *Service) CanResend(ctx context.Context, challengeID string) (bool, error) {
	c, err := s.repo.GetByID(ctx, challengeID)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, ErrNotFound
	}
	return !s.now().Before(c.ResendAvailableAt), nil
}

// Get returns the challenge, or ErrNotFound.
func (s *Service) Get(ctx context.Context, challengeID string) (*domain.Challenge, error) {
	c, err := s.repo.GetByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}
