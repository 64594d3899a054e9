package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Intent is a side-effect request emitted after an appointment commit.
type Intent interface {
	EventType() string
}

// Envelope is the wire form of an intent on the queue and in the outbox.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	AppointmentID string          `json:"appointment_id"`
	ClinicID      string          `json:"clinic_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Payload       json.RawMessage `json:"payload"`
}

type EnvelopeOption func(*Envelope)

// WithEventID pins the event id; tests and outbox replays use it.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

var now = time.Now

func NewEnvelope(appointmentID, clinicID string, intent Intent, opts ...EnvelopeOption) (Envelope, error) {
	appointmentID = strings.TrimSpace(appointmentID)
	if appointmentID == "" {
		return Envelope{}, errors.New("events: appointment id is required")
	}
	if intent == nil {
		return Envelope{}, errors.New("events: intent is required")
	}
	eventType := strings.TrimSpace(intent.EventType())
	if eventType == "" {
		return Envelope{}, errors.New("events: intent has no event type")
	}
	payload, err := json.Marshal(intent)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s: %w", eventType, err)
	}
	env := Envelope{
		EventID:       uuid.New(),
		EventType:     eventType,
		AppointmentID: appointmentID,
		ClinicID:      strings.TrimSpace(clinicID),
		CreatedAt:     now().UTC(),
		Payload:       payload,
	}
	for _, opt := range opts {
		opt(&env)
	}
	return env, nil
}

func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("events: decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// ParseEnvelope decodes a queue body. Bodies without an event id or type
// are rejected so they cannot slip past idempotency checks.
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("events: parse envelope: %w", err)
	}
	if env.EventID == uuid.Nil || strings.TrimSpace(env.EventType) == "" {
		return Envelope{}, errors.New("events: envelope missing id or type")
	}
	return env, nil
}
