package repository

import (
	"context"
	"database/sql"
	"errors"

	"esign-workflow/internal/db"
	"esign-workflow/internal/party/domain"
)

// PostgresRepository stores parties in the parties table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a party repository that uses the given db for persistence.
func NewPostgresRepository(sqlDB *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: sqlDB}
}

// GetByID returns the party for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Party, error) {
	var (
		p        domain.Party
		kind     string
		dob, reg sql.NullTime
	)
	err := db.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, kind, display_name, phone, email, date_of_birth, id_number_hash,
		        registration_number, registration_date, created_at
		 FROM parties WHERE id = $1`, id).
		Scan(&p.ID, &kind, &p.DisplayName, &p.Phone, &p.Email, &dob, &p.IDNumberHash,
			&p.RegistrationNumber, &reg, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Kind = domain.Kind(kind)
	if dob.Valid {
		t := dob.Time
		p.DateOfBirth = &t
	}
	if reg.Valid {
		t := reg.Time
		p.RegistrationDate = &t
	}
	return &p, nil
}

// Upsert inserts the party or replaces its mutable fields.
func (r *PostgresRepository) Upsert(ctx context.Context, p *domain.Party) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := db.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`INSERT INTO parties (id, kind, display_name, phone, email, date_of_birth, id_number_hash,
		                      registration_number, registration_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   kind = EXCLUDED.kind, display_name = EXCLUDED.display_name, phone = EXCLUDED.phone,
		   email = EXCLUDED.email, date_of_birth = EXCLUDED.date_of_birth,
		   id_number_hash = EXCLUDED.id_number_hash, registration_number = EXCLUDED.registration_number,
		   registration_date = EXCLUDED.registration_date`,
		p.ID, string(p.Kind), p.DisplayName, p.Phone, p.Email, p.DateOfBirth, p.IDNumberHash,
		p.RegistrationNumber, p.RegistrationDate)
	return err
}
