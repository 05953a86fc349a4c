package repository

import (
	"context"
	"sync"

	"esign-workflow/internal/party/domain"
)

// MemoryRepository keeps parties in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	parties map[string]domain.Party
}

// NewMemoryRepository returns an empty in-memory party store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{parties: make(map[string]domain.Party)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Party, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parties[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, p *domain.Party) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parties[p.ID] = *p
	return nil
}
