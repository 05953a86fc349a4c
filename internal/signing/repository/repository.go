package repository

import (
	"context"
	"errors"

	"esign-workflow/internal/signing/domain"
)

var (
	// ErrVersionConflict is returned when the stored session changed since it was read.
	ErrVersionConflict = errors.New("signing session version conflict")
	// ErrActiveSessionExists is returned when creating a second active session for an envelope.
	ErrActiveSessionExists = errors.New("envelope already has an active signing session")
)

// Repository defines persistence for signing sessions.
type Repository interface {
	// GetByID returns the session, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// ActiveForEnvelope returns the envelope's non-terminal session, or nil.
	ActiveForEnvelope(ctx context.Context, envelopeID string) (*domain.Session, error)
	// Create inserts a new session.
	Create(ctx context.Context, s *domain.Session) error
	// Update stores s if the stored version equals expected; s.Version must already be bumped.
	Update(ctx context.Context, s *domain.Session, expected int64) error
}
