package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	"github.com/wolfman30/clinic-scheduler/internal/discount"
	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
)

// pgExclusionViolation is raised by the appointments_no_overlap constraint.
const pgExclusionViolation = "23P01"

// DB abstracts the pgx pool for testing.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in Postgres. Writes for a clinic
// date are serialized with a transaction-scoped advisory lock, and the
// exclusion constraint backs the overlap check up.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository initializes a repo backed by pgx.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("appointments: db required")
	}
	return &PostgresRepository{db: db}
}

const appointmentColumns = `id, clinic_id, patient_id, phone, service_id, area_ids, appt_date,
	start_minute, end_minute, status, version, discount_percent, discount_reason,
	original_price_cents, discounted_price_cents, reminder_state, ledger_state,
	last_side_effect_error, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a                    Appointment
		date                 time.Time
		start, end           int
		status, reason       string
		reminderSt, ledgerSt string
	)
	if err := row.Scan(
		&a.ID, &a.ClinicID, &a.PatientID, &a.Phone, &a.ServiceID, &a.AreaIDs, &date,
		&start, &end, &status, &a.Version, &a.DiscountPercent, &reason,
		&a.OriginalPriceCents, &a.DiscountedPriceCents, &reminderSt, &ledgerSt,
		&a.LastSideEffectError, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Date = clinic.FormatDate(date)
	a.Start = clinic.TimeOfDay(start)
	a.End = clinic.TimeOfDay(end)
	a.Status = Status(status)
	a.DiscountReason = discount.Reason(reason)
	a.ReminderState = SideEffectState(reminderSt)
	a.LedgerState = SideEffectState(ledgerSt)
	return &a, nil
}

func lockDate(ctx context.Context, tx pgx.Tx, clinicID, date string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, clinicID+"|"+date); err != nil {
		return fmt.Errorf("appointments: lock date: %w", err)
	}
	return nil
}

func overlapping(ctx context.Context, tx pgx.Tx, clinicID string, date time.Time, start, end clinic.TimeOfDay, excludeID string) (string, error) {
	query := `
		SELECT id FROM appointments
		WHERE clinic_id = $1 AND appt_date = $2 AND status = 'CONFIRMED'
		  AND start_minute < $4 AND end_minute > $3
		  AND ($5 = '' OR id::text <> $5)
		LIMIT 1
	`
	var id string
	err := tx.QueryRow(ctx, query, clinicID, date, int(start), int(end), excludeID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("appointments: overlap check: %w", err)
	}
	return id, nil
}

func mapWriteError(err error, format string, args ...any) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
		return apperrors.Conflict(format, args...)
	}
	return err
}

// Insert implements Repository.
func (r *PostgresRepository) Insert(ctx context.Context, a *Appointment) error {
	date, err := clinic.ParseDate(a.Date)
	if err != nil {
		return err
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockDate(ctx, tx, a.ClinicID, a.Date); err != nil {
		return err
	}
	clash, err := overlapping(ctx, tx, a.ClinicID, date, a.Start, a.End, "")
	if err != nil {
		return err
	}
	if clash != "" {
		return apperrors.Conflict("%s %s-%s overlaps appointment %s", a.Date, a.Start, a.End, clash)
	}

	query := `
		INSERT INTO appointments (id, clinic_id, patient_id, phone, service_id, area_ids, appt_date,
			start_minute, end_minute, status, version, discount_percent, discount_reason,
			original_price_cents, discounted_price_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`
	if err := tx.QueryRow(ctx, query,
		a.ID, a.ClinicID, a.PatientID, a.Phone, a.ServiceID, a.AreaIDs, date,
		int(a.Start), int(a.End), string(a.Status), a.Version, a.DiscountPercent, string(a.DiscountReason),
		a.OriginalPriceCents, a.DiscountedPriceCents,
	).Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		if mapped := mapWriteError(err, "%s %s-%s is already booked", a.Date, a.Start, a.End); mapped != err {
			return mapped
		}
		return fmt.Errorf("appointments: insert failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointments: commit: %w", err)
	}
	return nil
}

// Move implements Repository.
func (r *PostgresRepository) Move(ctx context.Context, id string, expectedVersion int, date string, start, end clinic.TimeOfDay) (*Appointment, error) {
	day, err := clinic.ParseDate(date)
	if err != nil {
		return nil, err
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion || current.Status != StatusConfirmed {
		return nil, apperrors.Conflict("appointment %s changed since version %d", id, expectedVersion)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockDate(ctx, tx, current.ClinicID, date); err != nil {
		return nil, err
	}
	clash, err := overlapping(ctx, tx, current.ClinicID, day, start, end, id)
	if err != nil {
		return nil, err
	}
	if clash != "" {
		return nil, apperrors.Conflict("%s %s-%s overlaps appointment %s", date, start, end, clash)
	}

	query := `
		UPDATE appointments
		SET appt_date = $3, start_minute = $4, end_minute = $5, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2 AND status = 'CONFIRMED'
		RETURNING ` + appointmentColumns
	moved, err := scanAppointment(tx.QueryRow(ctx, query, id, expectedVersion, day, int(start), int(end)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.Conflict("appointment %s changed since version %d", id, expectedVersion)
	}
	if err != nil {
		if mapped := mapWriteError(err, "%s %s-%s is already booked", date, start, end); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("appointments: move failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("appointments: commit: %w", err)
	}
	return moved, nil
}

// Cancel implements Repository.
func (r *PostgresRepository) Cancel(ctx context.Context, id string, expectedVersion int) (*Appointment, error) {
	query := `
		UPDATE appointments
		SET status = 'CANCELLED', version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2 AND status = 'CONFIRMED'
		RETURNING ` + appointmentColumns
	cancelled, err := scanAppointment(r.db.QueryRow(ctx, query, id, expectedVersion))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.Conflict("appointment %s changed since version %d", id, expectedVersion)
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: cancel failed: %w", err)
	}
	return cancelled, nil
}

// Get implements Repository.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	a, err := scanAppointment(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("appointment %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return a, nil
}

// ListConfirmedOn implements Repository.
func (r *PostgresRepository) ListConfirmedOn(ctx context.Context, clinicID, date string) ([]Appointment, error) {
	day, err := clinic.ParseDate(date)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE clinic_id = $1 AND appt_date = $2 AND status = 'CONFIRMED'
		ORDER BY start_minute`
	rows, err := r.db.Query(ctx, query, clinicID, day)
	if err != nil {
		return nil, fmt.Errorf("appointments: list confirmed: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// FindNextConfirmed implements Repository.
func (r *PostgresRepository) FindNextConfirmed(ctx context.Context, clinicID, patientID, fromDate string, fromTime clinic.TimeOfDay) (*Appointment, error) {
	day, err := clinic.ParseDate(fromDate)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE clinic_id = $1 AND patient_id = $2 AND status = 'CONFIRMED'
		  AND (appt_date > $3 OR (appt_date = $3 AND start_minute >= $4))
		ORDER BY appt_date, start_minute
		LIMIT 1`
	a, err := scanAppointment(r.db.QueryRow(ctx, query, clinicID, patientID, day, int(fromTime)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("no upcoming appointment for patient %s", patientID)
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: find next: %w", err)
	}
	return a, nil
}

// CountConfirmed implements Repository.
func (r *PostgresRepository) CountConfirmed(ctx context.Context, clinicID, patientID string) (int, error) {
	query := `SELECT count(*) FROM appointments WHERE clinic_id = $1 AND patient_id = $2 AND status = 'CONFIRMED'`
	var n int
	if err := r.db.QueryRow(ctx, query, clinicID, patientID).Scan(&n); err != nil {
		return 0, fmt.Errorf("appointments: count confirmed: %w", err)
	}
	return n, nil
}

// RecordSideEffect implements Repository. Tracking fields do not bump the version.
func (r *PostgresRepository) RecordSideEffect(ctx context.Context, id string, u SideEffectUpdate) error {
	column := "reminder_state"
	if u.Kind == SideEffectLedger {
		column = "ledger_state"
	}
	query := `
		UPDATE appointments
		SET ` + column + ` = $2,
		    last_side_effect_error = CASE WHEN $3 = '' THEN last_side_effect_error ELSE $3 END
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, string(u.State), u.Error); err != nil {
		return fmt.Errorf("appointments: record side effect: %w", err)
	}
	return nil
}
