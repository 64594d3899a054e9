// Package availability computes bookable slots from a clinic's weekly rules,
// its date exceptions and the appointments already confirmed.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// ConfigSource loads a clinic catalog.
type ConfigSource interface {
	Get(ctx context.Context, clinicID string) (*clinic.Config, error)
}

// Booked is a confirmed appointment interval on a single date.
type Booked struct {
	AppointmentID string
	Start         clinic.TimeOfDay
	End           clinic.TimeOfDay
}

// BookingSource lists the confirmed intervals for a clinic and ISO date.
// Cancelled appointments must never be returned.
type BookingSource interface {
	BookedIntervals(ctx context.Context, clinicID, date string) ([]Booked, error)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd clinic.TimeOfDay) bool {
	return aStart < bEnd && bStart < aEnd
}

// Window is the open period of a clinic on a date.
type Window struct {
	Start clinic.TimeOfDay
	End   clinic.TimeOfDay
}

// WindowFor resolves the business window for an ISO date. The weekday lookup
// uses 0=Sunday for both the rule and the date. BLOCKED exceptions close the
// day; SPECIAL_HOURS replace the rule's hours for that date only.
func WindowFor(cfg *clinic.Config, date time.Time) (Window, bool) {
	rule, ok := cfg.ActiveRule(date.Weekday())
	if !ok {
		return Window{}, false
	}
	w := Window{Start: rule.Start, End: rule.End}

	if exc, ok := cfg.ExceptionOn(clinic.FormatDate(date)); ok {
		switch exc.Kind {
		case clinic.ExceptionBlocked:
			return Window{}, false
		case clinic.ExceptionSpecialHours:
			w = Window{Start: exc.Start, End: exc.End}
		}
	}
	return w, w.End > w.Start
}

// Candidates generates slot starts from the window start, stepping by
// duration+buffer, keeping only slots whose end fits the window.
func Candidates(w Window, duration, buffer time.Duration) []clinic.TimeOfDay {
	if duration <= 0 {
		return nil
	}
	step := duration + buffer
	var out []clinic.TimeOfDay
	for start := w.Start; start.Add(duration) <= w.End; start = start.Add(step) {
		out = append(out, start)
	}
	return out
}

// Free drops candidates that intersect any booked interval.
func Free(candidates []clinic.TimeOfDay, duration time.Duration, booked []Booked, excludeID string) []clinic.TimeOfDay {
	out := make([]clinic.TimeOfDay, 0, len(candidates))
	for _, start := range candidates {
		end := start.Add(duration)
		taken := false
		for _, b := range booked {
			if excludeID != "" && b.AppointmentID == excludeID {
				continue
			}
			if Overlaps(start, end, b.Start, b.End) {
				taken = true
				break
			}
		}
		if !taken {
			out = append(out, start)
		}
	}
	return out
}

// Option tunes a single availability query.
type Option func(*query)

type query struct {
	excludeAppointmentID string
}

// ExcludingAppointment ignores one appointment's interval, so an appointment
// being rescheduled does not block its own neighbourhood.
func ExcludingAppointment(id string) Option {
	return func(q *query) { q.excludeAppointmentID = id }
}

// Engine answers slot and day queries. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	clinics  ConfigSource
	bookings BookingSource
	now      func() time.Time
	logger   *logging.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock overrides the clock used to decide what "tomorrow" is.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an availability engine.
func NewEngine(clinics ConfigSource, bookings BookingSource, logger *logging.Logger, opts ...EngineOption) *Engine {
	if clinics == nil {
		panic("availability: config source cannot be nil")
	}
	if bookings == nil {
		panic("availability: booking source cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{clinics: clinics, bookings: bookings, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Slots returns the bookable start times for the selection on an ISO date,
// in chronological order.
func (e *Engine) Slots(ctx context.Context, clinicID, date string, sel clinic.Selection, opts ...Option) ([]clinic.TimeOfDay, error) {
	cfg, err := e.clinics.Get(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	day, err := clinic.ParseDate(date)
	if err != nil {
		return nil, err
	}
	quote, err := cfg.Quote(sel)
	if err != nil {
		return nil, err
	}
	var q query
	for _, opt := range opts {
		opt(&q)
	}
	return e.slotsFor(ctx, cfg, day, quote.Duration, q)
}

func (e *Engine) slotsFor(ctx context.Context, cfg *clinic.Config, day time.Time, duration time.Duration, q query) ([]clinic.TimeOfDay, error) {
	window, open := WindowFor(cfg, day)
	if !open {
		return nil, nil
	}
	candidates := Candidates(window, duration, cfg.Buffer())
	if len(candidates) == 0 {
		return nil, nil
	}

	booked, err := e.bookings.BookedIntervals(ctx, cfg.ClinicID, clinic.FormatDate(day))
	if err != nil {
		return nil, fmt.Errorf("availability: list booked intervals: %w", err)
	}
	return Free(candidates, duration, booked, q.excludeAppointmentID), nil
}

// Days returns up to daysAhead calendar dates, starting tomorrow in the
// clinic's timezone, that have at least one free slot. Dates are ISO encoded.
func (e *Engine) Days(ctx context.Context, clinicID string, sel clinic.Selection, daysAhead int, opts ...Option) ([]string, error) {
	cfg, err := e.clinics.Get(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	quote, err := cfg.Quote(sel)
	if err != nil {
		return nil, err
	}
	var q query
	for _, opt := range opts {
		opt(&q)
	}

	local := e.now().In(cfg.Location())
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	var days []string
	for i := 1; i <= daysAhead; i++ {
		day := today.AddDate(0, 0, i)
		slots, err := e.slotsFor(ctx, cfg, day, quote.Duration, q)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			days = append(days, clinic.FormatDate(day))
		}
	}
	e.logger.Debug("availability: days computed", "clinic_id", clinicID, "days", len(days), "days_ahead", daysAhead)
	return days, nil
}
