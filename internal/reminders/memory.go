package reminders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps reminders in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	rows []*Reminder
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Create(_ context.Context, r *Reminder) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.AppointmentID == r.AppointmentID && existing.Version >= r.Version {
			return false, nil
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	cp := *r
	m.rows = append(m.rows, &cp)
	return true, nil
}

func (m *MemoryStore) CancelUpTo(_ context.Context, clinicID, appointmentID string, upTo int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var n int64
	tombstone := true
	for _, r := range m.rows {
		if r.AppointmentID != appointmentID {
			continue
		}
		if r.Version == upTo {
			tombstone = false
		}
		if r.Version <= upTo && r.Status == StatusPending {
			r.Status = StatusCancelled
			r.UpdatedAt = now
			n++
		}
	}
	if tombstone {
		m.rows = append(m.rows, &Reminder{
			ID: uuid.New(), ClinicID: clinicID, AppointmentID: appointmentID, Version: upTo,
			Status: StatusCancelled, RemindAt: now, CreatedAt: now, UpdatedAt: now,
		})
	}
	return n, nil
}

func (m *MemoryStore) ListDue(_ context.Context, asOf time.Time) ([]Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reminder
	for _, r := range m.rows {
		if r.Status == StatusPending && !r.RemindAt.After(asOf) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemindAt.Before(out[j].RemindAt) })
	return out, nil
}

func (m *MemoryStore) MarkSent(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id && r.Status == StatusPending {
			now := time.Now().UTC()
			r.Status = StatusSent
			r.SentAt = &now
			r.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("reminders: mark sent: no pending reminder with id %s", id)
}

func (m *MemoryStore) Stats(_ context.Context, clinicID string) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	for _, r := range m.rows {
		if r.ClinicID != clinicID {
			continue
		}
		switch r.Status {
		case StatusPending:
			s.PendingCount++
		case StatusSent:
			s.SentCount++
		case StatusCancelled:
			if r.Phone != "" {
				s.CancelledCount++
			}
		}
	}
	return &s, nil
}
