package repository

import (
	"context"
	"errors"
	"testing"

	"esign-workflow/internal/signing/domain"
)

func TestMemoryRepository_OneActivePerEnvelope(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	s1 := &domain.Session{ID: "s1", EnvelopeID: "env", Stage: domain.StageIdentitySelection, Version: 1}
	if err := r.Create(ctx, s1); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Create(ctx, &domain.Session{ID: "s2", EnvelopeID: "env", Stage: domain.StageIdentitySelection}); !errors.Is(err, ErrActiveSessionExists) {
		t.Fatalf("second active: err = %v", err)
	}

	active, err := r.ActiveForEnvelope(ctx, "env")
	if err != nil || active == nil || active.ID != "s1" {
		t.Fatalf("ActiveForEnvelope = %v, %v", active, err)
	}

	done := s1.Clone()
	done.Stage = domain.StageAbandoned
	done.Version = 2
	if err := r.Update(ctx, done, 1); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if active, _ := r.ActiveForEnvelope(ctx, "env"); active != nil {
		t.Errorf("abandoned session still active")
	}
	if err := r.Create(ctx, &domain.Session{ID: "s2", EnvelopeID: "env", Stage: domain.StageIdentitySelection}); err != nil {
		t.Errorf("new session after abandon: %v", err)
	}
}

func TestMemoryRepository_VersionConflict(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	s := &domain.Session{ID: "s1", EnvelopeID: "env", Stage: domain.StageConfirmPresence, Version: 1}
	_ = r.Create(ctx, s)

	a := s.Clone()
	a.Version = 2
	if err := r.Update(ctx, a, 1); err != nil {
		t.Fatal(err)
	}
	b := s.Clone()
	b.Version = 2
	if err := r.Update(ctx, b, 1); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("stale update: err = %v", err)
	}
	if got, _ := r.GetByID(ctx, "missing"); got != nil {
		t.Error("missing session returned")
	}
}
