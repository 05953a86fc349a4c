// Package publisher ships committed audit events off-box: to Kafka for the archive worker and
// to the OTel log pipeline. Publishing is best-effort; the database trail is authoritative.
package publisher

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"esign-workflow/internal/audit/domain"
)

// publishTimeout is the max time allowed for a single publish.
const publishTimeout = 5 * time.Second

// ShutdownDrainDuration bounds how long Close waits for queued events after GracefulStop.
const ShutdownDrainDuration = 2 * publishTimeout

const (
	shardCount = 4
	queueSize  = 256
)

// Sink publishes a single event. Implementations may block briefly.
type Sink interface {
	Publish(ctx context.Context, e *domain.Event) error
}

// Async queues events on bounded per-shard queues, detached from request cancellation.
// A session always maps to the same shard, so its events reach each sink in Seq order.
// A full queue drops the event with a log line. It implements audit.Exporter.
type Async struct {
	sinks  []Sink
	queues []chan *domain.Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsync returns an exporter over the non-nil sinks and starts its workers.
func NewAsync(sinks ...Sink) *Async {
	a := &Async{}
	for _, s := range sinks {
		if s != nil {
			a.sinks = append(a.sinks, s)
		}
	}
	if len(a.sinks) == 0 {
		return a
	}
	a.queues = make([]chan *domain.Event, shardCount)
	for i := range a.queues {
		q := make(chan *domain.Event, queueSize)
		a.queues[i] = q
		a.wg.Add(1)
		go a.run(q)
	}
	return a
}

// Export queues e for every sink without blocking the caller.
func (a *Async) Export(_ context.Context, e *domain.Event) {
	if a == nil || e == nil || len(a.queues) == 0 {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		log.Printf("audit: publisher closed, dropping session=%s seq=%d", e.SessionID, e.Seq)
		return
	}
	select {
	case a.queues[shardFor(e.SessionID, len(a.queues))] <- e.Clone():
	default:
		log.Printf("audit: publish queue full, dropping session=%s seq=%d", e.SessionID, e.Seq)
	}
}

// Close stops accepting events and waits for queued ones until ctx is done.
func (a *Async) Close(ctx context.Context) error {
	if a == nil || len(a.queues) == 0 {
		return nil
	}
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		for _, q := range a.queues {
			close(q)
		}
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run(q <-chan *domain.Event) {
	defer a.wg.Done()
	for ev := range q {
		a.publish(ev)
	}
}

func (a *Async) publish(ev *domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	for _, s := range a.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			log.Printf("audit: publish session=%s seq=%d failed: %v", ev.SessionID, ev.Seq, err)
		}
	}
}

func shardFor(sessionID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(n))
}
