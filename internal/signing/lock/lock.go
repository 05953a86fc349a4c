// Package lock serializes work on one signing session. A busy session is reported, not waited for.
package lock

import (
	"context"
	"sync"
)

// Locker acquires per-key exclusive locks without blocking.
type Locker interface {
	// TryLock returns ok=false when key is held elsewhere. unlock must be called when ok.
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

// MemoryLocker locks within one process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker returns a MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}
