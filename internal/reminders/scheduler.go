package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// DefaultLeadTime is how long before the appointment the reminder goes out.
const DefaultLeadTime = 24 * time.Hour

// Scheduler consumes reminder intents.
type Scheduler struct {
	store    Repository
	leadTime time.Duration
	now      func() time.Time
	logger   *logging.Logger
}

// NewScheduler creates a reminder scheduler.
func NewScheduler(store Repository, leadTime time.Duration, logger *logging.Logger) *Scheduler {
	if store == nil {
		panic("reminders: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if leadTime <= 0 {
		leadTime = DefaultLeadTime
	}
	return &Scheduler{store: store, leadTime: leadTime, now: time.Now, logger: logger}
}

// RemindAt computes when the reminder for a snapshot is due.
func (s *Scheduler) RemindAt(snap events.AppointmentSnapshot) (time.Time, error) {
	day, err := clinic.ParseDate(snap.Date)
	if err != nil {
		return time.Time{}, err
	}
	start, err := clinic.ParseTimeOfDay(snap.Start)
	if err != nil {
		return time.Time{}, err
	}
	cfg := clinic.Config{Timezone: snap.Timezone}
	loc := cfg.Location()
	startsAt := time.Date(day.Year(), day.Month(), day.Day(), int(start)/60, int(start)%60, 0, 0, loc)
	return startsAt.Add(-s.leadTime).UTC(), nil
}

// HandleSchedule creates the reminder for a schedule intent. Past
// appointments are ignored; appointments inside the lead window are
// reminded immediately.
func (s *Scheduler) HandleSchedule(ctx context.Context, env events.Envelope) error {
	var evt events.ReminderScheduleRequestedV1
	if err := env.Decode(&evt); err != nil {
		return err
	}
	snap := evt.Appointment
	remindAt, err := s.RemindAt(snap)
	if err != nil {
		return fmt.Errorf("reminders: schedule: %w", err)
	}
	now := s.now().UTC()
	if !remindAt.Add(s.leadTime).After(now) {
		s.logger.Info("reminders: appointment already started, skipping", "appointment_id", snap.AppointmentID)
		return nil
	}
	if remindAt.Before(now) {
		remindAt = now
	}

	r := &Reminder{
		ClinicID:      snap.ClinicID,
		AppointmentID: snap.AppointmentID,
		Version:       snap.Version,
		Phone:         snap.Phone,
		ServiceName:   snap.ServiceName,
		Date:          snap.Date,
		Start:         snap.Start,
		RemindAt:      remindAt,
	}
	created, err := s.store.Create(ctx, r)
	if err != nil {
		return fmt.Errorf("reminders: schedule: %w", err)
	}
	if !created {
		s.logger.Info("reminders: stale schedule intent ignored",
			"appointment_id", snap.AppointmentID, "version", snap.Version)
		return nil
	}

	s.logger.Info("reminders: reminder scheduled",
		"id", r.ID,
		"clinic_id", r.ClinicID,
		"appointment_id", r.AppointmentID,
		"remind_at", remindAt.Format(time.RFC3339),
	)
	return nil
}

// HandleCancel withdraws pending reminders for an appointment.
func (s *Scheduler) HandleCancel(ctx context.Context, env events.Envelope) error {
	var evt events.ReminderCancelRequestedV1
	if err := env.Decode(&evt); err != nil {
		return err
	}
	n, err := s.store.CancelUpTo(ctx, evt.ClinicID, evt.AppointmentID, evt.UpToVersion)
	if err != nil {
		return err
	}
	s.logger.Info("reminders: reminders cancelled",
		"appointment_id", evt.AppointmentID, "up_to_version", evt.UpToVersion, "count", n)
	return nil
}

// Register wires the scheduler into an intent dispatcher.
func (s *Scheduler) Register(d *events.Dispatcher) {
	d.Register(events.TypeReminderSchedule, events.HandlerFunc(s.HandleSchedule))
	d.Register(events.TypeReminderCancel, events.HandlerFunc(s.HandleCancel))
}
