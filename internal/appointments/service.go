package appointments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduler/internal/availability"
	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	"github.com/wolfman30/clinic-scheduler/internal/discount"
	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/patients"
	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var appointmentsTracer = otel.Tracer("clinic.internal.appointments")

// ConfigSource loads a clinic catalog.
type ConfigSource interface {
	Get(ctx context.Context, clinicID string) (*clinic.Config, error)
}

// Parker keeps intents that could not be emitted for later redelivery.
type Parker interface {
	Park(ctx context.Context, env events.Envelope, cause error) error
}

// Service creates, reschedules and cancels appointments.
type Service struct {
	repo     Repository
	patients patients.Repository
	clinics  ConfigSource
	emitter  events.Emitter
	outbox   Parker
	metrics  *metrics.SchedulerMetrics
	logger   *logging.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithOutbox parks intents whose emission failed.
func WithOutbox(p Parker) Option {
	return func(s *Service) { s.outbox = p }
}

// WithMetrics records operation outcomes.
func WithMetrics(m *metrics.SchedulerMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the clock used to decide what "upcoming" means.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the appointment service.
func NewService(repo Repository, patientRepo patients.Repository, clinics ConfigSource, emitter events.Emitter, logger *logging.Logger, opts ...Option) *Service {
	if repo == nil {
		panic("appointments: repository cannot be nil")
	}
	if patientRepo == nil {
		panic("appointments: patient repository cannot be nil")
	}
	if clinics == nil {
		panic("appointments: clinic source cannot be nil")
	}
	if emitter == nil {
		panic("appointments: emitter cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:     repo,
		patients: patientRepo,
		clinics:  clinics,
		emitter:  emitter,
		logger:   logger,
		tracer:   appointmentsTracer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest describes a booking.
type CreateRequest struct {
	ClinicID  string
	Phone     string
	Selection clinic.Selection
	Date      string
	Time      string
	// Discount is the result shown to the patient. When nil it is computed
	// from the patient's history.
	Discount *discount.Result
}

func (s *Service) observe(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case apperrors.IsConflict(err):
		outcome = "conflict"
	case apperrors.IsNotFound(err):
		outcome = "not_found"
	case apperrors.IsValidation(err):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	s.metrics.ObserveAppointmentOp(op, outcome)
}

func interval(date, at string, d time.Duration) (clinic.TimeOfDay, clinic.TimeOfDay, error) {
	if _, err := clinic.ParseDate(date); err != nil {
		return 0, 0, err
	}
	start, err := clinic.ParseTimeOfDay(at)
	if err != nil {
		return 0, 0, err
	}
	end := start.Add(d)
	if end > 24*60 {
		return 0, 0, apperrors.Validation("appointment at %s %s would end after midnight", date, at)
	}
	return start, end, nil
}

// Create books a new CONFIRMED appointment. The datastore write is the
// authoritative overlap check; an overlap yields a CONFLICT error.
func (s *Service) Create(ctx context.Context, req CreateRequest) (appt *Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.create",
		trace.WithAttributes(attribute.String("clinic.id", req.ClinicID), attribute.String("appointment.date", req.Date)))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.observe("create", err)
	}()

	if strings.TrimSpace(req.ClinicID) == "" {
		return nil, apperrors.Validation("clinic id required")
	}
	cfg, err := s.clinics.Get(ctx, req.ClinicID)
	if err != nil {
		return nil, err
	}
	quote, err := cfg.Quote(req.Selection)
	if err != nil {
		return nil, err
	}
	start, end, err := interval(req.Date, req.Time, quote.Duration)
	if err != nil {
		return nil, err
	}
	patient, err := s.patients.GetOrCreate(ctx, req.ClinicID, req.Phone)
	if err != nil {
		return nil, err
	}

	var disc discount.Result
	if req.Discount != nil {
		disc = *req.Discount
	} else {
		prior, err := s.repo.CountConfirmed(ctx, req.ClinicID, patient.ID)
		if err != nil {
			return nil, err
		}
		disc = discount.Calculate(cfg.Discount, prior, req.Selection.AreaCount(), quote.PriceCents)
	}

	appt = &Appointment{
		ID:                   uuid.NewString(),
		ClinicID:             req.ClinicID,
		PatientID:            patient.ID,
		Phone:                patient.Phone,
		ServiceID:            req.Selection.ServiceID,
		AreaIDs:              append([]string(nil), req.Selection.AreaIDs...),
		Date:                 req.Date,
		Start:                start,
		End:                  end,
		Status:               StatusConfirmed,
		Version:              1,
		DiscountPercent:      disc.Percent,
		DiscountReason:       disc.Reason,
		OriginalPriceCents:   disc.OriginalPriceCents,
		DiscountedPriceCents: disc.DiscountedPriceCents,
	}
	if err := s.repo.Insert(ctx, appt); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("appointment.id", appt.ID))
	s.logger.Info("appointment created",
		"appointment_id", appt.ID,
		"clinic_id", appt.ClinicID,
		"date", appt.Date,
		"start", appt.Start.String(),
		"discount_pct", appt.DiscountPercent,
	)

	s.emitAfterCommit(ctx, appt,
		pendingIntent{SideEffectReminder, events.ReminderScheduleRequestedV1{Appointment: appt.Snapshot(cfg)}},
		pendingIntent{SideEffectLedger, events.LedgerSyncRequestedV1{Appointment: appt.Snapshot(cfg)}},
	)
	return appt, nil
}

// Reschedule moves an appointment if it is still at expectedVersion and
// the new interval is free. The appointment's own interval never blocks it.
func (s *Service) Reschedule(ctx context.Context, appointmentID string, expectedVersion int, newDate, newTime string) (appt *Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.reschedule",
		trace.WithAttributes(attribute.String("appointment.id", appointmentID), attribute.Int("appointment.expected_version", expectedVersion)))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.observe("reschedule", err)
	}()

	current, err := s.repo.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	start, end, err := interval(newDate, newTime, current.Duration())
	if err != nil {
		return nil, err
	}
	appt, err = s.repo.Move(ctx, appointmentID, expectedVersion, newDate, start, end)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment rescheduled",
		"appointment_id", appt.ID,
		"clinic_id", appt.ClinicID,
		"from", current.Date+" "+current.Start.String(),
		"to", appt.Date+" "+appt.Start.String(),
		"version", appt.Version,
	)

	cfg := s.configFor(ctx, appt.ClinicID)
	s.emitAfterCommit(ctx, appt,
		pendingIntent{SideEffectReminder, events.ReminderCancelRequestedV1{AppointmentID: appt.ID, ClinicID: appt.ClinicID, UpToVersion: appt.Version - 1}},
		pendingIntent{SideEffectReminder, events.ReminderScheduleRequestedV1{Appointment: appt.Snapshot(cfg)}},
		pendingIntent{SideEffectLedger, events.LedgerSyncRequestedV1{Appointment: appt.Snapshot(cfg)}},
	)
	return appt, nil
}

// Cancel soft-cancels an appointment if it is still at expectedVersion.
func (s *Service) Cancel(ctx context.Context, appointmentID string, expectedVersion int) (appt *Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.cancel",
		trace.WithAttributes(attribute.String("appointment.id", appointmentID), attribute.Int("appointment.expected_version", expectedVersion)))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		s.observe("cancel", err)
	}()

	appt, err = s.repo.Cancel(ctx, appointmentID, expectedVersion)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment cancelled", "appointment_id", appt.ID, "clinic_id", appt.ClinicID, "version", appt.Version)

	cfg := s.configFor(ctx, appt.ClinicID)
	s.emitAfterCommit(ctx, appt,
		pendingIntent{SideEffectReminder, events.ReminderCancelRequestedV1{AppointmentID: appt.ID, ClinicID: appt.ClinicID, UpToVersion: appt.Version}},
		pendingIntent{SideEffectLedger, events.LedgerSyncRequestedV1{Appointment: appt.Snapshot(cfg)}},
	)
	return appt, nil
}

// Get fetches an appointment by id.
func (s *Service) Get(ctx context.Context, appointmentID string) (*Appointment, error) {
	return s.repo.Get(ctx, appointmentID)
}

// FindActiveByPhone returns the patient's soonest upcoming CONFIRMED
// appointment, or a NOT_FOUND error when there is none.
func (s *Service) FindActiveByPhone(ctx context.Context, clinicID, phone string) (*Appointment, error) {
	patient, err := s.patients.FindByPhone(ctx, clinicID, phone)
	if err != nil {
		return nil, err
	}
	cfg, err := s.clinics.Get(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	now := s.now().In(cfg.Location())
	fromTime := clinic.TimeOfDay(now.Hour()*60 + now.Minute())
	return s.repo.FindNextConfirmed(ctx, clinicID, patient.ID, clinic.FormatDate(now), fromTime)
}

// PriorConfirmed counts the patient's CONFIRMED appointments. Unknown
// patients have none.
func (s *Service) PriorConfirmed(ctx context.Context, clinicID, phone string) (int, error) {
	patient, err := s.patients.FindByPhone(ctx, clinicID, phone)
	if apperrors.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return s.repo.CountConfirmed(ctx, clinicID, patient.ID)
}

// BookedIntervals feeds the availability engine.
func (s *Service) BookedIntervals(ctx context.Context, clinicID, date string) ([]availability.Booked, error) {
	rows, err := s.repo.ListConfirmedOn(ctx, clinicID, date)
	if err != nil {
		return nil, err
	}
	out := make([]availability.Booked, 0, len(rows))
	for _, a := range rows {
		out = append(out, availability.Booked{AppointmentID: a.ID, Start: a.Start, End: a.End})
	}
	return out, nil
}

func (s *Service) configFor(ctx context.Context, clinicID string) *clinic.Config {
	cfg, err := s.clinics.Get(ctx, clinicID)
	if err != nil {
		s.logger.Warn("appointments: clinic config unavailable for intent snapshot", "clinic_id", clinicID, "error", err)
		return nil
	}
	return cfg
}

type pendingIntent struct {
	kind  SideEffectKind
	event events.Intent
}

// emitAfterCommit never returns an error: the appointment is already
// committed and only the tracking fields reflect what happened here.
func (s *Service) emitAfterCommit(ctx context.Context, appt *Appointment, intents ...pendingIntent) {
	states := make(map[SideEffectKind]SideEffectState)
	lastErr := make(map[SideEffectKind]string)
	var kinds []SideEffectKind

	for _, in := range intents {
		if _, seen := states[in.kind]; !seen {
			kinds = append(kinds, in.kind)
			states[in.kind] = SideEffectEmitted
		}
		state, errMsg := s.emitOne(ctx, appt, in)
		if worse(state, states[in.kind]) {
			states[in.kind] = state
		}
		if errMsg != "" {
			lastErr[in.kind] = errMsg
		}
	}

	for _, kind := range kinds {
		update := SideEffectUpdate{Kind: kind, State: states[kind], Error: lastErr[kind]}
		if err := s.repo.RecordSideEffect(ctx, appt.ID, update); err != nil {
			s.logger.Error("appointments: record side effect failed",
				"appointment_id", appt.ID, "kind", kind, "state", update.State, "error", err)
			continue
		}
		switch kind {
		case SideEffectLedger:
			appt.LedgerState = update.State
		default:
			appt.ReminderState = update.State
		}
		if update.Error != "" {
			appt.LastSideEffectError = update.Error
		}
	}
}

func worse(candidate, current SideEffectState) bool {
	rank := map[SideEffectState]int{SideEffectEmitted: 0, SideEffectParked: 1, SideEffectFailed: 2}
	return rank[candidate] > rank[current]
}

func (s *Service) emitOne(ctx context.Context, appt *Appointment, in pendingIntent) (state SideEffectState, errMsg string) {
	defer func() {
		if r := recover(); r != nil {
			state, errMsg = SideEffectFailed, fmt.Sprintf("panic emitting %s: %v", in.event.EventType(), r)
			s.logger.Error("appointments: intent emission panicked", "appointment_id", appt.ID, "type", in.event.EventType(), "panic", r)
			s.metrics.ObserveSideEffectFailure(string(in.kind))
		}
	}()

	env, err := events.NewEnvelope(appt.ID, appt.ClinicID, in.event)
	if err != nil {
		s.logger.Error("appointments: build intent failed", "appointment_id", appt.ID, "type", in.event.EventType(), "error", err)
		s.metrics.ObserveSideEffectFailure(string(in.kind))
		return SideEffectFailed, err.Error()
	}
	emitErr := s.emitter.Emit(ctx, env)
	if emitErr == nil {
		return SideEffectEmitted, ""
	}

	s.metrics.ObserveSideEffectFailure(string(in.kind))
	s.logger.Error("appointments: intent emission failed",
		"appointment_id", appt.ID,
		"clinic_id", appt.ClinicID,
		"version", appt.Version,
		"type", env.EventType,
		"event_id", env.EventID.String(),
		"error", emitErr,
	)
	if s.outbox != nil {
		err := s.outbox.Park(ctx, env, emitErr)
		if err == nil {
			return SideEffectParked, emitErr.Error()
		}
		s.logger.Error("appointments: park intent failed", "appointment_id", appt.ID, "event_id", env.EventID.String(), "error", err)
	}
	return SideEffectFailed, emitErr.Error()
}
