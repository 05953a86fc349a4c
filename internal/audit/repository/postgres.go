package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"esign-workflow/internal/audit/domain"
	"esign-workflow/internal/db"
)

// PostgresRepository stores audit trails in audit_events, with audit_heads holding the
// last seq and hash per session. The head row is locked FOR UPDATE so appends serialize.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository that uses the given db for persistence.
// When the context carries a transaction (db.WithTx) appends join it.
func NewPostgresRepository(sqlDB *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: sqlDB}
}

// Append seals e after the locked session head and inserts it. Runs in the caller's
// transaction if there is one, otherwise in its own.
func (r *PostgresRepository) Append(ctx context.Context, e *domain.Event) error {
	if _, ok := db.TxFrom(ctx); ok {
		return r.append(ctx, e)
	}
	return db.NewSQLTxRunner(r.db).RunInTx(ctx, func(ctx context.Context) error {
		return r.append(ctx, e)
	})
}

func (r *PostgresRepository) append(ctx context.Context, e *domain.Event) error {
	ex := db.ExecutorFrom(ctx, r.db)

	// Make sure a head row exists so FOR UPDATE has something to lock.
	if _, err := ex.ExecContext(ctx,
		`INSERT INTO audit_heads (session_id, last_seq, last_hash) VALUES ($1, 0, $2)
		 ON CONFLICT (session_id) DO NOTHING`, e.SessionID, domain.GenesisHash); err != nil {
		return fmt.Errorf("audit head: %w", err)
	}
	var headSeq int64
	var headHash string
	if err := ex.QueryRowContext(ctx,
		`SELECT last_seq, last_hash FROM audit_heads WHERE session_id = $1 FOR UPDATE`,
		e.SessionID).Scan(&headSeq, &headHash); err != nil {
		return fmt.Errorf("audit head: %w", err)
	}

	e.Seal(headSeq, headHash)
	md, err := json.Marshal(metadataOrEmpty(e.Metadata))
	if err != nil {
		return err
	}
	if _, err := ex.ExecContext(ctx,
		`INSERT INTO audit_events (session_id, seq, id, event_type, actor_id, actor_role,
		  from_stage, to_stage, metadata, occurred_at, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.SessionID, e.Seq, e.ID, string(e.Type), e.ActorID, e.ActorRole,
		e.FromStage, e.ToStage, md, e.OccurredAt, e.PrevHash, e.Hash); err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}
	if _, err := ex.ExecContext(ctx,
		`UPDATE audit_heads SET last_seq = $2, last_hash = $3 WHERE session_id = $1`,
		e.SessionID, e.Seq, e.Hash); err != nil {
		return fmt.Errorf("audit head update: %w", err)
	}
	return nil
}

// ListBySession returns the session's events ordered by seq.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.Event, error) {
	rows, err := db.ExecutorFrom(ctx, r.db).QueryContext(ctx,
		`SELECT session_id, seq, id, event_type, actor_id, actor_role, from_stage, to_stage,
		        metadata, occurred_at, prev_hash, hash
		 FROM audit_events WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		var (
			e   domain.Event
			typ string
			md  []byte
		)
		if err := rows.Scan(&e.SessionID, &e.Seq, &e.ID, &typ, &e.ActorID, &e.ActorRole,
			&e.FromStage, &e.ToStage, &md, &e.OccurredAt, &e.PrevHash, &e.Hash); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(typ)
		if len(md) > 0 {
			if err := json.Unmarshal(md, &e.Metadata); err != nil {
				return nil, fmt.Errorf("audit metadata seq=%d: %w", e.Seq, err)
			}
		}
		e.OccurredAt = e.OccurredAt.UTC()
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
