package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"esign-workflow/internal/db"
	"esign-workflow/internal/otp/domain"
)

// PostgresRepository stores challenges in otp_challenges. Writes join the transaction in ctx, if any.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a challenge repository that uses the given db for persistence.
func NewPostgresRepository(sqlDB *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: sqlDB}
}

const challengeColumns = `id, session_id, channel, destination, code_hash, issued_at, expires_at,
	resend_available_at, attempts, consumed_at, superseded_at`

// Issue supersedes the session's open challenge and inserts c in one transaction.
func (r *PostgresRepository) Issue(ctx context.Context, c *domain.Challenge) error {
	run := func(ctx context.Context) error {
		ex := db.ExecutorFrom(ctx, r.db)
		if _, err := ex.ExecContext(ctx,
			`UPDATE otp_challenges SET superseded_at = $2
			 WHERE session_id = $1 AND consumed_at IS NULL AND superseded_at IS NULL`,
			c.SessionID, c.IssuedAt); err != nil {
			return err
		}
		_, err := ex.ExecContext(ctx,
			`INSERT INTO otp_challenges (`+challengeColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, NULL)`,
			c.ID, c.SessionID, string(c.Channel), c.Destination, c.CodeHash,
			c.IssuedAt, c.ExpiresAt, c.ResendAvailableAt, c.Attempts)
		return err
	}
	if _, ok := db.TxFrom(ctx); ok {
		return run(ctx)
	}
	return db.NewSQLTxRunner(r.db).RunInTx(ctx, run)
}

// GetByID returns the challenge for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Challenge, error) {
	row := db.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM otp_challenges WHERE id = $1`, id)
	return scanChallenge(row)
}

// OpenForSession returns the session's open challenge, or nil.
func (r *PostgresRepository) OpenForSession(ctx context.Context, sessionID string) (*domain.Challenge, error) {
	row := db.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM otp_challenges
		 WHERE session_id = $1 AND consumed_at IS NULL AND superseded_at IS NULL`, sessionID)
	return scanChallenge(row)
}

// RecordFailedAttempt increments attempts atomically and returns the new value.
func (r *PostgresRepository) RecordFailedAttempt(ctx context.Context, id string) (int, error) {
	var n int
	err := db.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`UPDATE otp_challenges SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// Consume marks the challenge consumed if it is still open.
func (r *PostgresRepository) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := db.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`UPDATE otp_challenges SET consumed_at = $2
		 WHERE id = $1 AND consumed_at IS NULL AND superseded_at IS NULL`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanChallenge(row *sql.Row) (*domain.Challenge, error) {
	var (
		c                    domain.Challenge
		channel              string
		consumed, superseded sql.NullTime
	)
	err := row.Scan(&c.ID, &c.SessionID, &channel, &c.Destination, &c.CodeHash, &c.IssuedAt,
		&c.ExpiresAt, &c.ResendAvailableAt, &c.Attempts, &consumed, &superseded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Channel = domain.Channel(channel)
	if consumed.Valid {
		t := consumed.Time
		c.ConsumedAt = &t
	}
	if superseded.Valid {
		t := superseded.Time
		c.SupersededAt = &t
	}
	return &c, nil
}
