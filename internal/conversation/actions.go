package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/availability"
	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	"github.com/wolfman30/clinic-scheduler/internal/discount"
	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
)

// entryAction runs when a state is entered. A non-empty result redirects
// to another state.
type entryAction func(ctx context.Context, t *turn) (State, error)

func (e *Engine) entryAction(s State) entryAction {
	switch s {
	case StateMainMenu:
		return e.enterMainMenu
	case StateScheduleMenu:
		return e.enterScheduleMenu
	case StateInputAreas:
		return e.enterInputAreas
	case StateAvailableDays:
		return e.enterAvailableDays
	case StateSelectTime:
		return e.enterSelectTime
	case StateConfirmBooking:
		return e.enterConfirmBooking
	case StateBooked:
		return e.enterBooked
	case StateRescheduleLookup:
		return e.enterRescheduleLookup
	case StateShowCurrentAppointment:
		return e.enterShowCurrentAppointment
	case StateSelectNewDate:
		return e.enterSelectNewDate
	case StateSelectNewTime:
		return e.enterSelectNewTime
	case StateConfirmReschedule:
		return e.enterConfirmReschedule
	case StateRescheduled:
		return e.enterRescheduled
	case StateCancelled:
		return e.enterCancelled
	case StateFAQAnswer:
		return e.enterFAQAnswer
	}
	return nil
}

func (e *Engine) enterMainMenu(_ context.Context, t *turn) (State, error) {
	t.sess.resetBooking()
	t.sess.SelectedFAQKey = ""
	return "", nil
}

func (e *Engine) enterScheduleMenu(_ context.Context, t *turn) (State, error) {
	if len(t.cfg.Services) == 0 {
		return "", withNotice("notice_no_services", apperrors.NotFound("clinic %q has no services", t.cfg.ClinicID))
	}
	t.sess.resetBooking()
	return "", nil
}

func (e *Engine) enterInputAreas(_ context.Context, t *turn) (State, error) {
	svc, ok := t.cfg.Service(t.sess.Selection().ServiceID)
	if !ok {
		return "", apperrors.NotFound("service %q", t.sess.Selection().ServiceID)
	}
	if !svc.HasAreas() {
		t.sess.SelectedAreaIDs = nil
		t.sess.OfferedAreas = nil
		return StateAvailableDays, nil
	}
	offered := make([]string, 0, len(svc.Areas))
	for _, a := range svc.Areas {
		offered = append(offered, a.ID)
	}
	t.sess.OfferedAreas = offered
	return "", nil
}

// capture handles free text in states that accept it.
func (e *Engine) capture(_ context.Context, t *turn, text string) error {
	if t.sess.State != StateInputAreas {
		return nil
	}
	svc, ok := t.cfg.Service(t.sess.Selection().ServiceID)
	if !ok {
		return apperrors.NotFound("service %q", t.sess.Selection().ServiceID)
	}
	ids, err := ParseAreas(text, svc, t.sess.OfferedAreas)
	if err != nil {
		return withNotice("notice_invalid_areas", err)
	}
	t.sess.SelectedAreaIDs = ids
	return nil
}

var areaSeparators = regexp.MustCompile(`(?i)\s*(?:,|;|\s+and\s+|\s+e\s+)\s*`)

// ParseAreas reads a free-text area list: positions in the offered list or
// names, separated by commas, semicolons or "and". A segment made only of
// numbers may also be space separated.
func ParseAreas(text string, svc *clinic.Service, offered []string) ([]string, error) {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, segment := range areaSeparators.Split(strings.TrimSpace(text), -1) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		if positions, ok := allNumbers(segment); ok {
			for _, n := range positions {
				if n < 1 || n > len(offered) {
					return nil, apperrors.Validation("area %d is not in the list", n)
				}
				add(offered[n-1])
			}
			continue
		}
		id, ok := matchArea(segment, svc)
		if !ok {
			return nil, apperrors.Validation("unknown area %q", segment)
		}
		add(id)
	}
	if len(ids) == 0 {
		return nil, apperrors.Validation("no areas given")
	}
	return ids, nil
}

func allNumbers(segment string) ([]int, bool) {
	var out []int
	for _, field := range strings.Fields(segment) {
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, false
		}
		out = append(out, n)
	}
	return out, len(out) > 0
}

// matchArea accepts an exact id or a unique case-insensitive name substring.
func matchArea(segment string, svc *clinic.Service) (string, bool) {
	lowered := strings.ToLower(segment)
	match := ""
	for _, a := range svc.Areas {
		if strings.ToLower(a.ID) == lowered || strings.ToLower(a.Name) == lowered {
			return a.ID, true
		}
		if strings.Contains(strings.ToLower(a.Name), lowered) {
			if match != "" {
				return "", false
			}
			match = a.ID
		}
	}
	return match, match != ""
}

func (e *Engine) enterAvailableDays(ctx context.Context, t *turn) (State, error) {
	days, err := e.availability.Days(ctx, t.cfg.ClinicID, t.sess.Selection(), e.daysAheadFor(t.cfg))
	if err != nil {
		return "", err
	}
	if len(days) == 0 {
		return "", withNotice("notice_no_days", apperrors.Conflict("no available days"))
	}
	t.sess.OfferedDays = days
	t.sess.OfferedTimes = nil
	return "", nil
}

func (e *Engine) freeSlots(ctx context.Context, t *turn, date string, opts ...availability.Option) ([]string, error) {
	slots, err := e.availability.Slots(ctx, t.cfg.ClinicID, date, t.sess.Selection(), opts...)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	return out, nil
}

func (e *Engine) enterSelectTime(ctx context.Context, t *turn) (State, error) {
	slots, err := e.freeSlots(ctx, t, t.sess.SelectedDate)
	if err != nil {
		return "", err
	}
	if len(slots) == 0 {
		return "", withNotice("notice_no_times", apperrors.Conflict("no free slots on %s", t.sess.SelectedDate))
	}
	if err := e.quoteDiscount(ctx, t); err != nil {
		return "", err
	}
	t.sess.OfferedTimes = slots
	return "", nil
}

// quoteDiscount prices the selection and caches the discount in the session.
func (e *Engine) quoteDiscount(ctx context.Context, t *turn) error {
	sel := t.sess.Selection()
	quote, err := t.cfg.Quote(sel)
	if err != nil {
		return err
	}
	if t.sess.IsFirstSession == nil {
		prior, err := e.appointments.PriorConfirmed(ctx, t.cfg.ClinicID, t.sess.Phone)
		if err != nil {
			return err
		}
		first := prior == 0
		t.sess.IsFirstSession = &first
	}
	prior := 1
	if *t.sess.IsFirstSession {
		prior = 0
	}
	t.sess.setDiscount(discount.Calculate(t.cfg.Discount, prior, sel.AreaCount(), quote.PriceCents))
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// enterConfirmBooking re-checks the slot so a stale or hand-typed
// identifier cannot reach the booking step.
func (e *Engine) enterConfirmBooking(ctx context.Context, t *turn) (State, error) {
	slots, err := e.freeSlots(ctx, t, t.sess.SelectedDate)
	if err != nil {
		return "", err
	}
	if !contains(slots, t.sess.SelectedTime) {
		t.sess.OfferedTimes = slots
		return "", apperrors.Conflict("slot %s %s is not free", t.sess.SelectedDate, t.sess.SelectedTime)
	}
	if err := e.quoteDiscount(ctx, t); err != nil {
		return "", err
	}
	return "", nil
}

func (e *Engine) enterBooked(ctx context.Context, t *turn) (State, error) {
	disc := t.sess.Discount()
	appt, err := e.appointments.Create(ctx, appointments.CreateRequest{
		ClinicID:  t.cfg.ClinicID,
		Phone:     t.sess.Phone,
		Selection: t.sess.Selection(),
		Date:      t.sess.SelectedDate,
		Time:      t.sess.SelectedTime,
		Discount:  &disc,
	})
	if err != nil {
		return "", err
	}
	t.sess.cacheAppointment(appt)
	first := false
	t.sess.IsFirstSession = &first
	return "", nil
}

func (s *Session) cacheAppointment(appt *appointments.Appointment) {
	s.AppointmentID = appt.ID
	s.AppointmentVersion = appt.Version
	s.AppointmentDate = appt.Date
	s.AppointmentTime = appt.Start.String()
	s.SelectedServiceIDs = []string{appt.ServiceID}
	s.SelectedAreaIDs = append([]string(nil), appt.AreaIDs...)
}

func (s *Session) clearAppointment() {
	s.AppointmentID = ""
	s.AppointmentVersion = 0
	s.AppointmentDate = ""
	s.AppointmentTime = ""
}

// lookup loads the patient's next appointment into the session. found is
// false when there is none.
func (e *Engine) lookup(ctx context.Context, t *turn) (found bool, err error) {
	if t.lookedUp {
		return t.sess.AppointmentID != "", nil
	}
	appt, err := e.appointments.FindActiveByPhone(ctx, t.cfg.ClinicID, t.sess.Phone)
	if apperrors.IsNotFound(err) {
		t.lookedUp = true
		t.sess.clearAppointment()
		return false, nil
	}
	if err != nil {
		return false, err
	}
	t.lookedUp = true
	t.sess.cacheAppointment(appt)
	return true, nil
}

func (e *Engine) enterRescheduleLookup(ctx context.Context, t *turn) (State, error) {
	t.sess.resetBooking()
	found, err := e.lookup(ctx, t)
	if err != nil {
		return "", err
	}
	if found {
		return StateShowCurrentAppointment, nil
	}
	return "", nil
}

func (e *Engine) enterShowCurrentAppointment(ctx context.Context, t *turn) (State, error) {
	found, err := e.lookup(ctx, t)
	if err != nil {
		return "", err
	}
	if !found {
		return StateRescheduleLookup, nil
	}
	t.sess.SelectedNewDate, t.sess.SelectedNewTime = "", ""
	return "", nil
}

func (e *Engine) enterSelectNewDate(ctx context.Context, t *turn) (State, error) {
	days, err := e.availability.Days(ctx, t.cfg.ClinicID, t.sess.Selection(), e.daysAheadFor(t.cfg),
		availability.ExcludingAppointment(t.sess.AppointmentID))
	if err != nil {
		return "", err
	}
	if len(days) == 0 {
		return "", withNotice("notice_no_days", apperrors.Conflict("no available days"))
	}
	t.sess.OfferedDays = days
	t.sess.OfferedTimes = nil
	return "", nil
}

func (e *Engine) enterSelectNewTime(ctx context.Context, t *turn) (State, error) {
	slots, err := e.freeSlots(ctx, t, t.sess.SelectedNewDate, availability.ExcludingAppointment(t.sess.AppointmentID))
	if err != nil {
		return "", err
	}
	if len(slots) == 0 {
		return "", withNotice("notice_no_times", apperrors.Conflict("no free slots on %s", t.sess.SelectedNewDate))
	}
	t.sess.OfferedTimes = slots
	return "", nil
}

// enterConfirmReschedule checks the appointment is unchanged and the new
// slot still free before asking for confirmation.
func (e *Engine) enterConfirmReschedule(ctx context.Context, t *turn) (State, error) {
	appt, err := e.appointments.Get(ctx, t.sess.AppointmentID)
	if err != nil {
		return "", err
	}
	if appt.Version != t.sess.AppointmentVersion || appt.Status != appointments.StatusConfirmed {
		t.sess.cacheAppointment(appt)
		return "", withNotice("notice_appointment_changed",
			apperrors.Conflict("appointment %s moved to version %d", appt.ID, appt.Version))
	}
	slots, err := e.freeSlots(ctx, t, t.sess.SelectedNewDate, availability.ExcludingAppointment(appt.ID))
	if err != nil {
		return "", err
	}
	if !contains(slots, t.sess.SelectedNewTime) {
		t.sess.OfferedTimes = slots
		return "", apperrors.Conflict("slot %s %s is not free", t.sess.SelectedNewDate, t.sess.SelectedNewTime)
	}
	return "", nil
}

// refresh re-reads the appointment after a lost race so a retry uses the
// current version.
func (e *Engine) refresh(ctx context.Context, t *turn) {
	appt, err := e.appointments.Get(ctx, t.sess.AppointmentID)
	if err != nil {
		t.logger.Warn("conversation: refresh appointment failed", "appointment_id", t.sess.AppointmentID, "error", err)
		return
	}
	t.sess.cacheAppointment(appt)
}

func (e *Engine) enterRescheduled(ctx context.Context, t *turn) (State, error) {
	appt, err := e.appointments.Reschedule(ctx, t.sess.AppointmentID, t.sess.AppointmentVersion,
		t.sess.SelectedNewDate, t.sess.SelectedNewTime)
	if err != nil {
		if apperrors.IsConflict(err) {
			e.refresh(ctx, t)
		}
		return "", err
	}
	t.sess.cacheAppointment(appt)
	return "", nil
}

func (e *Engine) enterCancelled(ctx context.Context, t *turn) (State, error) {
	appt, err := e.appointments.Cancel(ctx, t.sess.AppointmentID, t.sess.AppointmentVersion)
	if err != nil {
		if apperrors.IsConflict(err) {
			e.refresh(ctx, t)
			return "", withNotice("notice_appointment_changed", err)
		}
		return "", err
	}
	t.sess.cacheAppointment(appt)
	t.sess.IsFirstSession = nil
	return "", nil
}

func (e *Engine) enterFAQAnswer(_ context.Context, t *turn) (State, error) {
	if _, ok := t.cfg.FAQEntry(t.sess.SelectedFAQKey); !ok {
		return "", withNotice("notice_faq_not_found", apperrors.NotFound("faq %q", t.sess.SelectedFAQKey))
	}
	return "", nil
}

// options lists what a state offers, dynamic entries first.
func (e *Engine) options(t *turn, s State) []Option {
	def := states[s]
	var out []Option
	switch def.source {
	case optionsServices:
		for _, svc := range t.cfg.Services {
			out = append(out, Option{ID: PrefixService + svc.ID, Label: svc.Name})
		}
	case optionsDays, optionsNewDays:
		prefix := PrefixDay
		if def.source == optionsNewDays {
			prefix = PrefixNewDay
		}
		for _, d := range t.sess.OfferedDays {
			out = append(out, Option{ID: prefix + d, Label: dayLabel(d)})
		}
	case optionsTimes, optionsNewTimes:
		prefix := PrefixTime
		if def.source == optionsNewTimes {
			prefix = PrefixNewTime
		}
		for _, tm := range t.sess.OfferedTimes {
			out = append(out, Option{ID: prefix + tm, Label: tm})
		}
	case optionsFAQ:
		for _, f := range t.cfg.FAQ {
			out = append(out, Option{ID: PrefixFAQ + f.Key, Label: f.Question})
		}
	}
	return append(out, def.Options...)
}

// dayLabel renders an ISO date for display, e.g. "Mon 19/10/2026".
func dayLabel(iso string) string {
	d, err := clinic.ParseDate(iso)
	if err != nil {
		return clinic.DisplayDate(iso)
	}
	return fmt.Sprintf("%s %s", d.Weekday().String()[:3], clinic.DisplayDate(iso))
}
