// Package devotp keeps plain OTP codes in memory for local development, where no SMS or mail
// provider is wired. It is never enabled when APP_ENV=production.
package devotp

import (
	"context"
	"log"
	"sync"
	"time"

	"esign-workflow/internal/otp"
)

// Store holds plain codes by challenge id until they expire.
type Store interface {
	Put(ctx context.Context, challengeID, code string, expiresAt time.Time)
	// Get returns the code if present and not expired.
	Get(ctx context.Context, challengeID string) (code string, ok bool)
}

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Put(ctx context.Context, challengeID, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[challengeID] = entry{code: code, expiresAt: expiresAt}
}

// Get returns the code for challengeID; expired entries are dropped on read.
func (s *MemoryStore) Get(ctx context.Context, challengeID string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[challengeID]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, challengeID)
		s.mu.Unlock()
		return "", false
	}
	return e.code, true
}

// Sender is an otp.Sender that stores codes instead of sending them.
type Sender struct {
	store Store
}

// NewSender returns a Sender writing to store.
func NewSender(store Store) *Sender {
	return &Sender{store: store}
}

// Send stores the code under its challenge id.
func (s *Sender) Send(ctx context.Context, d otp.Delivery) error {
	s.store.Put(ctx, d.ChallengeID, d.Code, d.ExpiresAt)
	log.Printf("devotp: stored code for challenge %s (%s)", d.ChallengeID, d.Channel)
	return nil
}
