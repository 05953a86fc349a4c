package repository

import (
	"context"

	"esign-workflow/internal/party/domain"
)

// Repository defines persistence for parties on file.
type Repository interface {
	// GetByID returns the party, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Party, error)
	// Upsert creates or replaces the party record.
	Upsert(ctx context.Context, p *domain.Party) error
}
