package events

import "time"

// Intent event types. Consumers switch on these strings.
const (
	TypeReminderSchedule = "reminder.schedule.v1"
	TypeReminderCancel   = "reminder.cancel.v1"
	TypeLedgerSync       = "ledger.sync.v1"
)

// AppointmentSnapshot is the appointment state carried by intents, so
// consumers never read the appointment store.
type AppointmentSnapshot struct {
	AppointmentID        string    `json:"appointment_id"`
	ClinicID             string    `json:"clinic_id"`
	Timezone             string    `json:"timezone,omitempty"`
	PatientID            string    `json:"patient_id"`
	Phone                string    `json:"phone"`
	ServiceID            string    `json:"service_id"`
	ServiceName          string    `json:"service_name,omitempty"`
	AreaIDs              []string  `json:"area_ids,omitempty"`
	Date                 string    `json:"date"`
	Start                string    `json:"start"`
	End                  string    `json:"end"`
	Status               string    `json:"status"`
	Version              int       `json:"version"`
	DiscountPercent      int       `json:"discount_percent"`
	DiscountReason       string    `json:"discount_reason,omitempty"`
	OriginalPriceCents   int64     `json:"original_price_cents"`
	DiscountedPriceCents int64     `json:"discounted_price_cents"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ReminderScheduleRequestedV1 asks for a reminder ahead of the appointment.
type ReminderScheduleRequestedV1 struct {
	Appointment AppointmentSnapshot `json:"appointment"`
}

func (ReminderScheduleRequestedV1) EventType() string { return TypeReminderSchedule }

// ReminderCancelRequestedV1 withdraws reminders for an appointment version
// and every earlier one.
type ReminderCancelRequestedV1 struct {
	AppointmentID string `json:"appointment_id"`
	ClinicID      string `json:"clinic_id"`
	UpToVersion   int    `json:"up_to_version"`
}

func (ReminderCancelRequestedV1) EventType() string { return TypeReminderCancel }

// LedgerSyncRequestedV1 mirrors the appointment's latest state externally.
type LedgerSyncRequestedV1 struct {
	Appointment AppointmentSnapshot `json:"appointment"`
}

func (LedgerSyncRequestedV1) EventType() string { return TypeLedgerSync }
