// Package appointments owns booking mutations: conflict detection,
// optimistic concurrency and the intents emitted after each commit.
package appointments

import (
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	"github.com/wolfman30/clinic-scheduler/internal/discount"
	"github.com/wolfman30/clinic-scheduler/internal/events"
)

// Status of an appointment. Rows are never deleted; cancellation flips status.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// SideEffectState tracks a best-effort intent emission.
type SideEffectState string

const (
	SideEffectNone    SideEffectState = ""
	SideEffectEmitted SideEffectState = "emitted"
	SideEffectParked  SideEffectState = "parked"
	SideEffectFailed  SideEffectState = "failed"
)

// SideEffectKind names the collaborator an intent targets.
type SideEffectKind string

const (
	SideEffectReminder SideEffectKind = "reminder"
	SideEffectLedger   SideEffectKind = "ledger"
)

// Appointment is a booked interval on one clinic date.
type Appointment struct {
	ID                   string           `json:"id"`
	ClinicID             string           `json:"clinic_id"`
	PatientID            string           `json:"patient_id"`
	Phone                string           `json:"phone"`
	ServiceID            string           `json:"service_id"`
	AreaIDs              []string         `json:"area_ids,omitempty"`
	Date                 string           `json:"date"`
	Start                clinic.TimeOfDay `json:"start"`
	End                  clinic.TimeOfDay `json:"end"`
	Status               Status           `json:"status"`
	Version              int              `json:"version"`
	DiscountPercent      int              `json:"discount_percent"`
	DiscountReason       discount.Reason  `json:"discount_reason,omitempty"`
	OriginalPriceCents   int64            `json:"original_price_cents"`
	DiscountedPriceCents int64            `json:"discounted_price_cents"`
	ReminderState        SideEffectState  `json:"reminder_state,omitempty"`
	LedgerState          SideEffectState  `json:"ledger_state,omitempty"`
	LastSideEffectError  string           `json:"last_side_effect_error,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// Duration is the booked length.
func (a *Appointment) Duration() time.Duration {
	return time.Duration(a.End-a.Start) * time.Minute
}

// StartsAt returns the wall-clock start in loc.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	d, err := clinic.ParseDate(a.Date)
	if err != nil {
		return time.Time{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), int(a.Start)/60, int(a.Start)%60, 0, 0, loc)
}

// Snapshot converts the appointment into the intent payload shape.
func (a *Appointment) Snapshot(cfg *clinic.Config) events.AppointmentSnapshot {
	snap := events.AppointmentSnapshot{
		AppointmentID:        a.ID,
		ClinicID:             a.ClinicID,
		PatientID:            a.PatientID,
		Phone:                a.Phone,
		ServiceID:            a.ServiceID,
		AreaIDs:              append([]string(nil), a.AreaIDs...),
		Date:                 a.Date,
		Start:                a.Start.String(),
		End:                  a.End.String(),
		Status:               string(a.Status),
		Version:              a.Version,
		DiscountPercent:      a.DiscountPercent,
		DiscountReason:       string(a.DiscountReason),
		OriginalPriceCents:   a.OriginalPriceCents,
		DiscountedPriceCents: a.DiscountedPriceCents,
		UpdatedAt:            a.UpdatedAt,
	}
	if cfg != nil {
		snap.Timezone = cfg.Timezone
		if svc, ok := cfg.Service(a.ServiceID); ok {
			snap.ServiceName = svc.Name
		}
	}
	return snap
}

// SideEffectUpdate is written to the auxiliary tracking fields.
type SideEffectUpdate struct {
	Kind  SideEffectKind
	State SideEffectState
	Error string
}
