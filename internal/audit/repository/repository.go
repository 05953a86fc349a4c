package repository

import (
	"context"

	"esign-workflow/internal/audit/domain"
)

// Repository persists session audit trails. Events are never updated or deleted.
type Repository interface {
	// Append seals e onto the session trail (assigning Seq, PrevHash, Hash) and persists it
	// atomically with the session head. Two appends for one session never receive the same Seq.
	Append(ctx context.Context, e *domain.Event) error
	// ListBySession returns the session's events ordered by Seq; empty when none exist.
	ListBySession(ctx context.Context, sessionID string) ([]*domain.Event, error)
}
