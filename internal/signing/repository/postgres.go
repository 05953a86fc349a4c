package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"esign-workflow/internal/db"
	"esign-workflow/internal/signing/domain"
)

// PostgresRepository stores sessions in signing_sessions with the evidence as JSONB.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(sqlDB *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: sqlDB}
}

const sessionColumns = `id, envelope_id, signer_id, agent_id, method, stage, evidence, version,
	abandon_reason, signed_document_ref, expires_at, created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s             domain.Session
		method, stage string
		evidence      []byte
		completed     sql.NullTime
	)
	err := row.Scan(&s.ID, &s.EnvelopeID, &s.SignerID, &s.AgentID, &method, &stage, &evidence, &s.Version,
		&s.AbandonReason, &s.SignedDocumentRef, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt, &completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.Method = domain.Method(method)
	s.Stage = domain.Stage(stage)
	if err := json.Unmarshal(evidence, &s.Evidence); err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		s.CompletedAt = &t
	}
	return &s, nil
}

// GetByID returns the session for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return scanSession(db.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM signing_sessions WHERE id = $1`, id))
}

// ActiveForEnvelope returns the envelope's non-terminal session, or nil.
func (r *PostgresRepository) ActiveForEnvelope(ctx context.Context, envelopeID string) (*domain.Session, error) {
	return scanSession(db.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM signing_sessions
		 WHERE envelope_id = $1 AND stage NOT IN ('signing_completed', 'abandoned')`, envelopeID))
}

// Create inserts s. A second active session for the envelope violates the partial unique index.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	evidence, err := json.Marshal(s.Evidence)
	if err != nil {
		return err
	}
	_, err = db.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`INSERT INTO signing_sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.EnvelopeID, s.SignerID, s.AgentID, string(s.Method), string(s.Stage), evidence, s.Version,
		s.AbandonReason, s.SignedDocumentRef, s.ExpiresAt, s.CreatedAt, s.UpdatedAt, s.CompletedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrActiveSessionExists
	}
	return err
}

// Update writes s when the stored version equals expected.
func (r *PostgresRepository) Update(ctx context.Context, s *domain.Session, expected int64) error {
	evidence, err := json.Marshal(s.Evidence)
	if err != nil {
		return err
	}
	res, err := db.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`UPDATE signing_sessions
		 SET agent_id = $3, stage = $4, evidence = $5, version = $6, abandon_reason = $7,
		     signed_document_ref = $8, updated_at = $9, completed_at = $10
		 WHERE id = $1 AND version = $2`,
		s.ID, expected, s.AgentID, string(s.Stage), evidence, s.Version, s.AbandonReason,
		s.SignedDocumentRef, s.UpdatedAt, s.CompletedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}
