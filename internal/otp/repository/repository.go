package repository

import (
	"context"
	"time"

	"esign-workflow/internal/otp/domain"
)

// Repository defines persistence for OTP challenges.
type Repository interface {
	// Issue marks every open challenge of c.SessionID superseded at c.IssuedAt and stores c.
	Issue(ctx context.Context, c *domain.Challenge) error
	// GetByID returns the challenge, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Challenge, error)
	// OpenForSession returns the session's open (not consumed, not superseded) challenge, or nil.
	OpenForSession(ctx context.Context, sessionID string) (*domain.Challenge, error)
	// RecordFailedAttempt increments the attempt counter and returns the new count.
	RecordFailedAttempt(ctx context.Context, id string) (int, error)
	// Consume sets ConsumedAt if the challenge is still open. Returns false when it was already
	// consumed or superseded, so at most one caller ever consumes a challenge.
	Consume(ctx context.Context, id string, at time.Time) (bool, error)
}
