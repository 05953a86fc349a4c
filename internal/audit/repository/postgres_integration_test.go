//go:build integration

package repository_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"esign-workflow/internal/audit"
	"esign-workflow/internal/audit/domain"
	"esign-workflow/internal/audit/repository"
	"esign-workflow/internal/db"
	"esign-workflow/internal/platform/testutil/containers"
)

func newEvent(sessionID string, _ int) *domain.Event {
	return &domain.Event{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Type:       domain.EventConsentAccepted,
		ActorID:    "cust-1",
		ActorRole:  "customer",
		FromStage:  "capture_consent",
		ToStage:    "capture_consent",
		Metadata:   map[string]string{"consent_id": "gdpr"},
		OccurredAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestPostgresRepository_AppendAndList(t *testing.T) {
	sqlDB := containers.NewPostgres(t)
	repo := repository.NewPostgresRepository(sqlDB)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := repo.Append(ctx, newEvent("sess-1", i)); err != nil {
				t.Errorf("Append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	events, err := repo.ListBySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(events) != 20 {
		t.Fatalf("len(events) = %d, want 20", len(events))
	}
	if err := audit.VerifyChain(events); err != nil {
		t.Errorf("VerifyChain after round trip: %v", err)
	}
}

func TestPostgresRepository_RollbackLeavesNoEvent(t *testing.T) {
	sqlDB := containers.NewPostgres(t)
	repo := repository.NewPostgresRepository(sqlDB)
	ctx := context.Background()

	_ = db.NewSQLTxRunner(sqlDB).RunInTx(ctx, func(ctx context.Context) error {
		if err := repo.Append(ctx, newEvent("sess-2", 0)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		return sql.ErrTxDone
	})

	events, err := repo.ListBySession(ctx, "sess-2")
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("rolled back append left %d events", len(events))
	}
}

func TestPostgresRepository_EventsAreImmutable(t *testing.T) {
	sqlDB := containers.NewPostgres(t)
	repo := repository.NewPostgresRepository(sqlDB)
	ctx := context.Background()

	if err := repo.Append(ctx, newEvent("sess-3", 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := sqlDB.ExecContext(ctx, `UPDATE audit_events SET to_stage = 'signing_completed' WHERE session_id = 'sess-3'`); err == nil {
		t.Error("UPDATE on audit_events should be rejected")
	}
	if _, err := sqlDB.ExecContext(ctx, `DELETE FROM audit_events WHERE session_id = 'sess-3'`); err == nil {
		t.Error("DELETE on audit_events should be rejected")
	}
}
