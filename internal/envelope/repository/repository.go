package repository

import (
	"context"
	"errors"
	"time"

	"esign-workflow/internal/envelope/domain"
)

// ErrStatusConflict is returned when the stored status is not the one the caller transitioned from.
var ErrStatusConflict = errors.New("envelope status changed concurrently")

// Repository defines persistence for envelopes.
type Repository interface {
	// GetByID returns the envelope, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Envelope, error)
	// Create inserts a new envelope.
	Create(ctx context.Context, e *domain.Envelope) error
	// UpdateStatus moves the envelope from one status to another; ErrStatusConflict if it is no longer in from.
	UpdateStatus(ctx context.Context, id string, from, to domain.Status, at time.Time) error
}
