package repository

import (
	"context"
	"sync"

	"esign-workflow/internal/db"
	"esign-workflow/internal/signing/domain"
)

// MemoryRepository keeps sessions in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewMemoryRepository returns an empty in-memory session store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*domain.Session)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id].Clone(), nil
}

func (r *MemoryRepository) ActiveForEnvelope(ctx context.Context, envelopeID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.EnvelopeID == envelopeID && !s.Stage.Terminal() {
			return s.Clone(), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sessions {
		if existing.EnvelopeID == s.EnvelopeID && !existing.Stage.Terminal() {
			return ErrActiveSessionExists
		}
	}
	r.sessions[s.ID] = s.Clone()
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.sessions, s.ID)
	})
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, s *domain.Session, expected int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[s.ID]
	if !ok || cur.Version != expected {
		return ErrVersionConflict
	}
	r.sessions[s.ID] = s.Clone()
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.sessions[cur.ID] = cur
	})
	return nil
}
