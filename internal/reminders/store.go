package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists reminders.
type Repository interface {
	// Create inserts the reminder unless a row for the same appointment at
	// this version or newer already exists. Returns false when skipped.
	Create(ctx context.Context, r *Reminder) (bool, error)
	// CancelUpTo cancels pending reminders with version <= upTo and leaves a
	// tombstone at upTo.
	CancelUpTo(ctx context.Context, clinicID, appointmentID string, upTo int) (int64, error)
	ListDue(ctx context.Context, asOf time.Time) ([]Reminder, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context, clinicID string) (*Stats, error)
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides reminder persistence in appointment_reminders.
type Store struct {
	db DB
}

// NewStore creates a new reminder store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Create implements Repository.
func (s *Store) Create(ctx context.Context, r *Reminder) (bool, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = StatusPending
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO appointment_reminders (id, clinic_id, appointment_id, version, phone, service_name, appt_date, appt_start, remind_at, status, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		WHERE NOT EXISTS (
			SELECT 1 FROM appointment_reminders WHERE appointment_id = $3 AND version >= $4
		)`,
		r.ID, r.ClinicID, r.AppointmentID, r.Version, r.Phone, r.ServiceName,
		r.Date, r.Start, r.RemindAt, string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("reminders: create reminder: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CancelUpTo implements Repository.
func (s *Store) CancelUpTo(ctx context.Context, clinicID, appointmentID string, upTo int) (int64, error) {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE appointment_reminders SET status = 'cancelled', updated_at = $1
		WHERE appointment_id = $2 AND version <= $3 AND status = 'pending'`, now, appointmentID, upTo)
	if err != nil {
		return 0, fmt.Errorf("reminders: cancel: %w", err)
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO appointment_reminders (id, clinic_id, appointment_id, version, phone, service_name, appt_date, appt_start, remind_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '', '', '', '', $5, 'cancelled', $5, $5)
		ON CONFLICT (appointment_id, version) DO NOTHING`,
		uuid.New(), clinicID, appointmentID, upTo, now,
	); err != nil {
		return 0, fmt.Errorf("reminders: cancel tombstone: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListDue returns all pending reminders whose remind_at is on or before the given time.
func (s *Store) ListDue(ctx context.Context, asOf time.Time) ([]Reminder, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, clinic_id, appointment_id, version, phone, service_name, appt_date, appt_start, remind_at, status, sent_at, created_at, updated_at
		FROM appointment_reminders
		WHERE status = 'pending' AND remind_at <= $1
		ORDER BY remind_at ASC`, asOf)
	if err != nil {
		return nil, fmt.Errorf("reminders: list due: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// MarkSent transitions a reminder from pending → sent.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE appointment_reminders SET status = 'sent', sent_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'pending'`, now, id)
	if err != nil {
		return fmt.Errorf("reminders: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminders: mark sent: no pending reminder with id %s", id)
	}
	return nil
}

// Stats returns aggregated reminder counts.
func (s *Store) Stats(ctx context.Context, clinicID string) (*Stats, error) {
	row := s.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'sent') AS sent,
			COUNT(*) FILTER (WHERE status = 'cancelled' AND phone <> '') AS cancelled
		FROM appointment_reminders
		WHERE clinic_id = $1`, clinicID)

	var stats Stats
	if err := row.Scan(&stats.PendingCount, &stats.SentCount, &stats.CancelledCount); err != nil {
		return nil, fmt.Errorf("reminders: stats: %w", err)
	}
	return &stats, nil
}

func scanReminders(rows pgx.Rows) ([]Reminder, error) {
	var result []Reminder
	for rows.Next() {
		var r Reminder
		var status string
		err := rows.Scan(
			&r.ID, &r.ClinicID, &r.AppointmentID, &r.Version, &r.Phone,
			&r.ServiceName, &r.Date, &r.Start, &r.RemindAt,
			&status, &r.SentAt, &r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("reminders: scan reminder: %w", err)
		}
		r.Status = Status(status)
		result = append(result, r)
	}
	return result, rows.Err()
}
