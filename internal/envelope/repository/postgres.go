package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"esign-workflow/internal/db"
	"esign-workflow/internal/envelope/domain"
)

// PostgresRepository stores envelopes in the envelopes table. Document slots are a JSONB column.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an envelope repository that uses the given db for persistence.
func NewPostgresRepository(sqlDB *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: sqlDB}
}

// GetByID returns the envelope for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Envelope, error) {
	var (
		e      domain.Envelope
		status string
		docs   []byte
	)
	err := db.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, type_code, customer_id, status, documents, expires_at, created_at, updated_at
		 FROM envelopes WHERE id = $1`, id).
		Scan(&e.ID, &e.TypeCode, &e.CustomerID, &status, &docs, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.Status = domain.Status(status)
	if err := json.Unmarshal(docs, &e.Documents); err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts e.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Envelope) error {
	docs, err := json.Marshal(e.Documents)
	if err != nil {
		return err
	}
	if e.Documents == nil {
		docs = []byte("[]")
	}
	_, err = db.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`INSERT INTO envelopes (id, type_code, customer_id, status, documents, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.TypeCode, e.CustomerID, string(e.Status), docs, e.ExpiresAt, e.CreatedAt, e.UpdatedAt)
	return err
}

// UpdateStatus compares and sets the status column.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from, to domain.Status, at time.Time) error {
	res, err := db.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`UPDATE envelopes SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStatusConflict
	}
	return nil
}
