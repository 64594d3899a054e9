package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
)

// MemoryRepository is a Repository guarded by a single mutex, giving the
// same check-and-write atomicity the Postgres repository gets from its
// advisory lock.
type MemoryRepository struct {
	mu    sync.Mutex
	byID  map[string]*Appointment
	order []string
	now   func() time.Time
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID: make(map[string]*Appointment),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func clone(a *Appointment) *Appointment {
	cp := *a
	cp.AreaIDs = append([]string(nil), a.AreaIDs...)
	return &cp
}

func (r *MemoryRepository) clashLocked(clinicID, date string, start, end clinic.TimeOfDay, excludeID string) *Appointment {
	for _, id := range r.order {
		a := r.byID[id]
		if a.ID == excludeID || a.Status != StatusConfirmed || a.ClinicID != clinicID || a.Date != date {
			continue
		}
		if start < a.End && a.Start < end {
			return a
		}
	}
	return nil
}

// Insert implements Repository.
func (r *MemoryRepository) Insert(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[a.ID]; exists {
		return apperrors.Conflict("appointment %s already exists", a.ID)
	}
	if clash := r.clashLocked(a.ClinicID, a.Date, a.Start, a.End, ""); clash != nil {
		return apperrors.Conflict("%s %s-%s overlaps appointment %s", a.Date, a.Start, a.End, clash.ID)
	}
	now := r.now()
	a.CreatedAt, a.UpdatedAt = now, now
	r.byID[a.ID] = clone(a)
	r.order = append(r.order, a.ID)
	return nil
}

// Move implements Repository.
func (r *MemoryRepository) Move(_ context.Context, id string, expectedVersion int, date string, start, end clinic.TimeOfDay) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NotFound("appointment %s", id)
	}
	if a.Version != expectedVersion || a.Status != StatusConfirmed {
		return nil, apperrors.Conflict("appointment %s changed since version %d", id, expectedVersion)
	}
	if clash := r.clashLocked(a.ClinicID, date, start, end, id); clash != nil {
		return nil, apperrors.Conflict("%s %s-%s overlaps appointment %s", date, start, end, clash.ID)
	}
	a.Date, a.Start, a.End = date, start, end
	a.Version++
	a.UpdatedAt = r.now()
	return clone(a), nil
}

// Cancel implements Repository.
func (r *MemoryRepository) Cancel(_ context.Context, id string, expectedVersion int) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NotFound("appointment %s", id)
	}
	if a.Version != expectedVersion || a.Status != StatusConfirmed {
		return nil, apperrors.Conflict("appointment %s changed since version %d", id, expectedVersion)
	}
	a.Status = StatusCancelled
	a.Version++
	a.UpdatedAt = r.now()
	return clone(a), nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(_ context.Context, id string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NotFound("appointment %s", id)
	}
	return clone(a), nil
}

// ListConfirmedOn implements Repository.
func (r *MemoryRepository) ListConfirmedOn(_ context.Context, clinicID, date string) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, id := range r.order {
		a := r.byID[id]
		if a.ClinicID == clinicID && a.Date == date && a.Status == StatusConfirmed {
			out = append(out, *clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// FindNextConfirmed implements Repository.
func (r *MemoryRepository) FindNextConfirmed(_ context.Context, clinicID, patientID, fromDate string, fromTime clinic.TimeOfDay) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *Appointment
	for _, id := range r.order {
		a := r.byID[id]
		if a.ClinicID != clinicID || a.PatientID != patientID || a.Status != StatusConfirmed {
			continue
		}
		if a.Date < fromDate || (a.Date == fromDate && a.Start < fromTime) {
			continue
		}
		if best == nil || a.Date < best.Date || (a.Date == best.Date && a.Start < best.Start) {
			best = a
		}
	}
	if best == nil {
		return nil, apperrors.NotFound("no upcoming appointment for patient %s", patientID)
	}
	return clone(best), nil
}

// CountConfirmed implements Repository.
func (r *MemoryRepository) CountConfirmed(_ context.Context, clinicID, patientID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.byID {
		if a.ClinicID == clinicID && a.PatientID == patientID && a.Status == StatusConfirmed {
			n++
		}
	}
	return n, nil
}

// RecordSideEffect implements Repository.
func (r *MemoryRepository) RecordSideEffect(_ context.Context, id string, u SideEffectUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return apperrors.NotFound("appointment %s", id)
	}
	switch u.Kind {
	case SideEffectLedger:
		a.LedgerState = u.State
	default:
		a.ReminderState = u.State
	}
	if u.Error != "" {
		a.LastSideEffectError = u.Error
	}
	return nil
}
