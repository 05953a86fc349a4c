// Package audit records the append-only, hash-chained trail of every signing session transition.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"esign-workflow/internal/audit/domain"
	auditrepo "esign-workflow/internal/audit/repository"
	"esign-workflow/internal/platform/actor"
)

// ErrWriteFailed wraps any failure to persist an audit event. A transition whose event
// cannot be written must not happen.
var ErrWriteFailed = errors.New("audit write failed")

// Exporter receives committed events for off-box archival. Best-effort.
type Exporter interface {
	Export(ctx context.Context, e *domain.Event)
}

// Entry is what a caller supplies for one event; the recorder fills in id, time and chain fields.
type Entry struct {
	SessionID string
	Type      domain.EventType
	Actor     actor.Actor
	FromStage string
	ToStage   string
	Metadata  map[string]string
}

// Recorder appends events to the audit repository. Unlike best-effort logging, Append
// returns every failure to the caller.
type Recorder struct {
	repo     auditrepo.Repository
	exporter Exporter
	now      func() time.Time
}

// NewRecorder returns a Recorder persisting to repo. exporter may be nil.
func NewRecorder(repo auditrepo.Repository, exporter Exporter) *Recorder {
	return &Recorder{repo: repo, exporter: exporter, now: time.Now}
}

// WithClock overrides the clock used for OccurredAt; tests use it to pin timestamps.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Append records one event and returns it with Seq and Hash assigned.
func (r *Recorder) Append(ctx context.Context, in Entry) (*domain.Event, error) {
	if in.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is empty", ErrWriteFailed)
	}
	if err := in.Actor.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	e := &domain.Event{
		ID:        uuid.New().String(),
		SessionID: in.SessionID,
		Type:      in.Type,
		ActorID:   in.Actor.ID,
		ActorRole: string(in.Actor.Role),
		FromStage: in.FromStage,
		ToStage:   in.ToStage,
		Metadata:  in.Metadata,
		// Postgres keeps microseconds; truncate so the hash survives a round trip.
		OccurredAt: r.now().UTC().Truncate(time.Microsecond),
	}
	if err := r.repo.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return e, nil
}

// Export hands committed events to the exporter. Call only after the surrounding transaction committed.
func (r *Recorder) Export(ctx context.Context, events ...*domain.Event) {
	if r.exporter == nil {
		return
	}
	for _, e := range events {
		if e != nil {
			r.exporter.Export(ctx, e)
		}
	}
}

// EventsFor returns the session's trail in sequence order after checking the hash chain.
func (r *Recorder) EventsFor(ctx context.Context, sessionID string) ([]*domain.Event, error) {
	events, err := r.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := VerifyChain(events); err != nil {
		return nil, err
	}
	return events, nil
}
