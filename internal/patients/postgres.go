package patients

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores patients in the relational database.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository initializes a repo backed by pgx.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("patients: db required")
	}
	return &PostgresRepository{db: db}
}

// FindByPhone looks up a patient by normalized phone.
func (r *PostgresRepository) FindByPhone(ctx context.Context, clinicID, phone string) (*Patient, error) {
	normalized, err := validateKey(clinicID, phone)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT id, clinic_id, phone, name, created_at
		FROM patients
		WHERE clinic_id = $1 AND phone = $2
	`
	var p Patient
	if err := r.db.QueryRow(ctx, query, clinicID, normalized).Scan(
		&p.ID, &p.ClinicID, &p.Phone, &p.Name, &p.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("patient %s in clinic %s", normalized, clinicID)
		}
		return nil, fmt.Errorf("patients: select failed: %w", err)
	}
	return &p, nil
}

// GetOrCreate upserts on (clinic_id, phone) so concurrent first bookings from
// the same number converge on one row.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, clinicID, phone string) (*Patient, error) {
	normalized, err := validateKey(clinicID, phone)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO patients (id, clinic_id, phone)
		VALUES ($1, $2, $3)
		ON CONFLICT (clinic_id, phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id, clinic_id, phone, name, created_at
	`
	var p Patient
	if err := r.db.QueryRow(ctx, query, uuid.New().String(), clinicID, normalized).Scan(
		&p.ID, &p.ClinicID, &p.Phone, &p.Name, &p.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("patients: upsert failed: %w", err)
	}
	return &p, nil
}
