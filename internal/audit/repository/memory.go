package repository

import (
	"context"
	"sync"

	"esign-workflow/internal/audit/domain"
	"esign-workflow/internal/db"
)

// MemoryRepository keeps audit trails in process memory.
type MemoryRepository struct {
	mu     sync.Mutex
	trails map[string][]*domain.Event
}

// NewMemoryRepository returns an empty in-memory audit store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{trails: make(map[string][]*domain.Event)}
}

// Append seals e after the current head of its session trail and stores a copy.
func (r *MemoryRepository) Append(ctx context.Context, e *domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	trail := r.trails[e.SessionID]
	var headSeq int64
	headHash := domain.GenesisHash
	if n := len(trail); n > 0 {
		headSeq, headHash = trail[n-1].Seq, trail[n-1].Hash
	}
	e.Seal(headSeq, headHash)
	r.trails[e.SessionID] = append(trail, e.Clone())
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		cur := r.trails[e.SessionID]
		if n := len(cur); n > 0 && cur[n-1].ID == e.ID {
			r.trails[e.SessionID] = cur[:n-1]
		}
	})
	return nil
}

// ListBySession returns copies of the session's events in Seq order.
func (r *MemoryRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	trail := r.trails[sessionID]
	out := make([]*domain.Event, len(trail))
	for i, e := range trail {
		out[i] = e.Clone()
	}
	return out, nil
}
