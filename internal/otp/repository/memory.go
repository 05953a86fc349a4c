package repository

import (
	"context"
	"sync"
	"time"

	"esign-workflow/internal/db"
	"esign-workflow/internal/otp/domain"
)

// MemoryRepository keeps challenges in process memory.
type MemoryRepository struct {
	mu         sync.Mutex
	challenges map[string]*domain.Challenge
}

// NewMemoryRepository returns an empty in-memory challenge store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{challenges: make(map[string]*domain.Challenge)}
}

func (r *MemoryRepository) Issue(ctx context.Context, c *domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var superseded []string
	for _, existing := range r.challenges {
		if existing.SessionID == c.SessionID && existing.Open() {
			at := c.IssuedAt
			existing.SupersededAt = &at
			superseded = append(superseded, existing.ID)
		}
	}
	r.challenges[c.ID] = c.Clone()
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.challenges, c.ID)
		for _, id := range superseded {
			r.challenges[id].SupersededAt = nil
		}
	})
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.challenges[id].Clone(), nil
}

func (r *MemoryRepository) OpenForSession(ctx context.Context, sessionID string) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.challenges {
		if c.SessionID == sessionID && c.Open() {
			return c.Clone(), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) RecordFailedAttempt(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[id]
	if !ok {
		return 0, nil
	}
	c.Attempts++
	return c.Attempts, nil
}

func (r *MemoryRepository) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[id]
	if !ok || !c.Open() {
		return false, nil
	}
	c.ConsumedAt = &at
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		c.ConsumedAt = nil
	})
	return true, nil
}
