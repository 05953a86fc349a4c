package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"esign-workflow/internal/db"
	"esign-workflow/internal/envelope/domain"
)

// MemoryRepository keeps envelopes in process memory.
type MemoryRepository struct {
	mu        sync.RWMutex
	envelopes map[string]*domain.Envelope
}

// NewMemoryRepository returns an empty in-memory envelope store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{envelopes: make(map[string]*domain.Envelope)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Envelope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.envelopes[id].Clone(), nil
}

func (r *MemoryRepository) Create(ctx context.Context, e *domain.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.envelopes[e.ID]; ok {
		return fmt.Errorf("envelope %s already exists", e.ID)
	}
	r.envelopes[e.ID] = e.Clone()
	return nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, from, to domain.Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.envelopes[id]
	if !ok || e.Status != from {
		return ErrStatusConflict
	}
	prevAt := e.UpdatedAt
	e.Status = to
	e.UpdatedAt = at
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		e.Status = from
		e.UpdatedAt = prevAt
	})
	return nil
}
