package appointments

import (
	"context"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
)

// Repository is the datastore boundary. Insert and the version-guarded
// mutations are the only correctness boundary for double-booking; callers
// hold no locks.
type Repository interface {
	// Insert writes a CONFIRMED row unless it overlaps another CONFIRMED row
	// on the same clinic and date, in which case it returns a CONFLICT error.
	Insert(ctx context.Context, appt *Appointment) error
	// Move changes date and interval if the stored version equals expectedVersion
	// and the new interval is free, incrementing the version.
	Move(ctx context.Context, id string, expectedVersion int, date string, start, end clinic.TimeOfDay) (*Appointment, error)
	// Cancel flips a CONFIRMED row to CANCELLED if the version matches.
	Cancel(ctx context.Context, id string, expectedVersion int) (*Appointment, error)
	Get(ctx context.Context, id string) (*Appointment, error)
	ListConfirmedOn(ctx context.Context, clinicID, date string) ([]Appointment, error)
	// FindNextConfirmed returns the soonest CONFIRMED appointment starting at
	// or after (fromDate, fromTime).
	FindNextConfirmed(ctx context.Context, clinicID, patientID, fromDate string, fromTime clinic.TimeOfDay) (*Appointment, error)
	CountConfirmed(ctx context.Context, clinicID, patientID string) (int, error)
	RecordSideEffect(ctx context.Context, id string, update SideEffectUpdate) error
}
