package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"esign-workflow/internal/db"
	"esign-workflow/internal/otp/domain"
)

func challenge(id string, issued time.Time) *domain.Challenge {
	return &domain.Challenge{
		ID: id, SessionID: "sess-1", Channel: domain.ChannelSMS, Destination: "+1555",
		CodeHash: "hash", IssuedAt: issued, ExpiresAt: issued.Add(10 * time.Minute),
		ResendAvailableAt: issued.Add(time.Minute),
	}
}

func TestMemoryRepository_RollbackRestoresOpenChallenge(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	t0 := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	if err := repo.Issue(ctx, challenge("ch-1", t0)); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	abort := errors.New("abort")
	err := db.DirectRunner{}.RunInTx(ctx, func(ctx context.Context) error {
		if err := repo.Issue(ctx, challenge("ch-2", t0.Add(2*time.Minute))); err != nil {
			return err
		}
		if ok, err := repo.Consume(ctx, "ch-2", t0.Add(3*time.Minute)); err != nil || !ok {
			t.Fatalf("Consume = %v, %v", ok, err)
		}
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("RunInTx err = %v", err)
	}

	open, _ := repo.OpenForSession(ctx, "sess-1")
	if open == nil || open.ID != "ch-1" {
		t.Fatalf("OpenForSession = %+v, want ch-1", open)
	}
	if c, _ := repo.GetByID(ctx, "ch-2"); c != nil {
		t.Errorf("rolled back challenge still stored: %+v", c)
	}
}

func TestMemoryRepository_ConsumeRollback(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	t0 := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	if err := repo.Issue(ctx, challenge("ch-1", t0)); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_ = db.DirectRunner{}.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := repo.Consume(ctx, "ch-1", t0.Add(time.Minute)); err != nil {
			return err
		}
		return errors.New("abort")
	})
	c, _ := repo.GetByID(ctx, "ch-1")
	if c.ConsumedAt != nil {
		t.Error("consume survived rollback")
	}
	if ok, _ := repo.Consume(ctx, "ch-1", t0.Add(time.Minute)); !ok {
		t.Error("challenge not consumable after rollback")
	}
}
