// Package reminders turns appointment intents into scheduled WhatsApp
// reminders and delivers them when due.
package reminders

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of a reminder.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusCancelled Status = "cancelled"
)

// Reminder is one outreach for one appointment version. A cancelled row
// with no phone is a tombstone that blocks late-arriving schedule intents
// for that version and older ones.
type Reminder struct {
	ID            uuid.UUID  `json:"id"`
	ClinicID      string     `json:"clinic_id"`
	AppointmentID string     `json:"appointment_id"`
	Version       int        `json:"version"`
	Phone         string     `json:"phone"`
	ServiceName   string     `json:"service_name"`
	Date          string     `json:"date"`
	Start         string     `json:"start"`
	RemindAt      time.Time  `json:"remind_at"`
	Status        Status     `json:"status"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Stats holds aggregated reminder counts for a clinic.
type Stats struct {
	PendingCount   int64 `json:"pending_count"`
	SentCount      int64 `json:"sent_count"`
	CancelledCount int64 `json:"cancelled_count"`
}
