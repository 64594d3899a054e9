package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
)

type fakeBookings struct {
	byDate map[string][]Booked
	err    error
	calls  []string
}

func (f *fakeBookings) BookedIntervals(_ context.Context, _ string, date string) ([]Booked, error) {
	f.calls = append(f.calls, date)
	if f.err != nil {
		return nil, f.err
	}
	return f.byDate[date], nil
}

func weekdayCatalog() *clinic.Config {
	cfg := &clinic.Config{
		ClinicID:      "clinic-1",
		BufferMinutes: 10,
		Services: []clinic.Service{
			{ID: "consult", Name: "Consultation", DurationMinutes: 45, PriceCents: 15000},
		},
	}
	for wd := 1; wd <= 5; wd++ {
		cfg.Rules = append(cfg.Rules, clinic.AvailabilityRule{
			Weekday: wd, Start: clinic.MustTime("09:00"), End: clinic.MustTime("18:00"), Active: true,
		})
	}
	return cfg
}

func times(slots []clinic.TimeOfDay) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	return out
}

func newEngine(cfg *clinic.Config, bookings *fakeBookings, now time.Time) *Engine {
	return NewEngine(clinic.StaticSource{cfg.ClinicID: cfg}, bookings, nil, WithClock(func() time.Time { return now }))
}

var consult = clinic.Selection{ServiceID: "consult"}

func TestSlotsStepByDurationPlusBuffer(t *testing.T) {
	engine := newEngine(weekdayCatalog(), &fakeBookings{}, time.Now())

	// 2026-10-19 is a Monday.
	slots, err := engine.Slots(context.Background(), "clinic-1", "2026-10-19", consult)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"09:00", "09:55", "10:50", "11:45", "12:40",
		"13:35", "14:30", "15:25", "16:20", "17:15",
	}, times(slots))
}

func TestSlotsSundayUsesWeekdayZero(t *testing.T) {
	cfg := weekdayCatalog()
	cfg.Rules = append(cfg.Rules, clinic.AvailabilityRule{
		Weekday: 0, Start: clinic.MustTime("10:00"), End: clinic.MustTime("11:00"), Active: true,
	})
	engine := newEngine(cfg, &fakeBookings{}, time.Now())

	// 2026-10-18 is a Sunday.
	slots, err := engine.Slots(context.Background(), "clinic-1", "2026-10-18", consult)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00"}, times(slots))
}

func TestSlotsNoRuleIsEmpty(t *testing.T) {
	bookings := &fakeBookings{}
	engine := newEngine(weekdayCatalog(), bookings, time.Now())

	// Saturday has no rule.
	slots, err := engine.Slots(context.Background(), "clinic-1", "2026-10-24", consult)
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.Empty(t, bookings.calls, "closed days should not hit the datastore")
}

func TestSlotsExceptions(t *testing.T) {
	cfg := weekdayCatalog()
	cfg.Exceptions = []clinic.AvailabilityException{
		{Date: "2026-10-19", Kind: clinic.ExceptionBlocked},
		{Date: "2026-10-20", Kind: clinic.ExceptionSpecialHours, Start: clinic.MustTime("14:00"), End: clinic.MustTime("16:00")},
	}
	engine := newEngine(cfg, &fakeBookings{}, time.Now())
	ctx := context.Background()

	blocked, err := engine.Slots(ctx, "clinic-1", "2026-10-19", consult)
	require.NoError(t, err)
	assert.Empty(t, blocked)

	special, err := engine.Slots(ctx, "clinic-1", "2026-10-20", consult)
	require.NoError(t, err)
	assert.Equal(t, []string{"14:00", "14:55"}, times(special))

	normal, err := engine.Slots(ctx, "clinic-1", "2026-10-21", consult)
	require.NoError(t, err)
	assert.Len(t, normal, 10)
}

func TestSlotsSkipOverlappingBookings(t *testing.T) {
	bookings := &fakeBookings{byDate: map[string][]Booked{
		"2026-10-19": {
			{AppointmentID: "a1", Start: clinic.MustTime("09:30"), End: clinic.MustTime("10:15")},
			// Touching the end of the 10:50 slot is not an overlap.
			{AppointmentID: "a2", Start: clinic.MustTime("11:35"), End: clinic.MustTime("11:45")},
		},
	}}
	engine := newEngine(weekdayCatalog(), bookings, time.Now())

	slots, err := engine.Slots(context.Background(), "clinic-1", "2026-10-19", consult)
	require.NoError(t, err)
	got := times(slots)
	assert.NotContains(t, got, "09:00")
	assert.NotContains(t, got, "09:55")
	assert.Contains(t, got, "10:50")
	assert.Contains(t, got, "11:45")

	withExclusion, err := engine.Slots(context.Background(), "clinic-1", "2026-10-19", consult, ExcludingAppointment("a1"))
	require.NoError(t, err)
	assert.Contains(t, times(withExclusion), "09:00")
}

func TestSlotsAreaDurationsSum(t *testing.T) {
	cfg := weekdayCatalog()
	cfg.DefaultServiceDurationMinutes = 30
	cfg.BufferMinutes = 0
	cfg.Rules = []clinic.AvailabilityRule{{Weekday: 1, Start: clinic.MustTime("09:00"), End: clinic.MustTime("11:00"), Active: true}}
	cfg.Services = append(cfg.Services, clinic.Service{ID: "laser", Name: "Laser", Areas: []clinic.Area{
		{ID: "legs", Name: "Legs", DurationMinutes: 60},
		{ID: "armpits", Name: "Armpits"},
	}})
	engine := newEngine(cfg, &fakeBookings{}, time.Now())

	slots, err := engine.Slots(context.Background(), "clinic-1", "2026-10-19", clinic.Selection{ServiceID: "laser", AreaIDs: []string{"legs", "armpits"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00"}, times(slots))
}

func TestSlotsErrors(t *testing.T) {
	engine := newEngine(weekdayCatalog(), &fakeBookings{}, time.Now())
	ctx := context.Background()

	_, err := engine.Slots(ctx, "clinic-1", "19/10/2026", consult)
	assert.True(t, apperrors.IsValidation(err))

	_, err = engine.Slots(ctx, "other", "2026-10-19", consult)
	assert.True(t, apperrors.IsNotFound(err))

	failing := newEngine(weekdayCatalog(), &fakeBookings{err: errors.New("db down")}, time.Now())
	_, err = failing.Slots(ctx, "clinic-1", "2026-10-19", consult)
	assert.ErrorContains(t, err, "db down")
}

func TestDaysStartTomorrowAndSkipClosedDays(t *testing.T) {
	cfg := weekdayCatalog()
	cfg.Exceptions = []clinic.AvailabilityException{{Date: "2026-10-20", Kind: clinic.ExceptionBlocked}}
	// Saturday 2026-10-17, late evening.
	now := time.Date(2026, 10, 17, 22, 0, 0, 0, time.UTC)
	engine := newEngine(cfg, &fakeBookings{}, now)

	days, err := engine.Days(context.Background(), "clinic-1", consult, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-19", "2026-10-21", "2026-10-22"}, days)
}

func TestDaysUseClinicTimezone(t *testing.T) {
	cfg := weekdayCatalog()
	cfg.Timezone = "America/Sao_Paulo"
	// 01:00 UTC on Tuesday is still Monday evening in São Paulo.
	now := time.Date(2026, 10, 20, 1, 0, 0, 0, time.UTC)
	engine := newEngine(cfg, &fakeBookings{}, now)

	days, err := engine.Days(context.Background(), "clinic-1", consult, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-20"}, days)
}

func TestDaysDropFullyBookedDates(t *testing.T) {
	cfg := weekdayCatalog()
	bookings := &fakeBookings{byDate: map[string][]Booked{
		"2026-10-19": {{AppointmentID: "all-day", Start: clinic.MustTime("09:00"), End: clinic.MustTime("18:00")}},
	}}
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	engine := newEngine(cfg, bookings, now)

	days, err := engine.Days(context.Background(), "clinic-1", consult, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-20"}, days)
}

func TestOverlapsHalfOpen(t *testing.T) {
	nine, ten, eleven := clinic.MustTime("09:00"), clinic.MustTime("10:00"), clinic.MustTime("11:00")
	assert.False(t, Overlaps(nine, ten, ten, eleven))
	assert.True(t, Overlaps(nine, eleven, ten, eleven))
	assert.True(t, Overlaps(ten, eleven, nine, clinic.MustTime("10:01")))
}
