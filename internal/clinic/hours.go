package clinic

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
)

// DateLayout is the ISO layout used for storage and option identifiers.
const DateLayout = time.DateOnly

// DisplayDateLayout is the locale layout shown to patients.
const DisplayDateLayout = "02/01/2006"

// TimeOfDay is a wall-clock time expressed in minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" (24-hour).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, apperrors.Validation("invalid time of day %q", s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// MustTime parses "HH:MM" and panics on malformed input. Intended for fixtures.
func MustTime(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String formats the time as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Add returns t shifted by d, truncated to whole minutes.
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	return t + TimeOfDay(d/time.Minute)
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// AvailabilityRule holds business hours for one weekday (0=Sunday … 6=Saturday).
type AvailabilityRule struct {
	Weekday int       `json:"weekday"`
	Start   TimeOfDay `json:"start"`
	End     TimeOfDay `json:"end"`
	Active  bool      `json:"active"`
}

// Validate rejects weekday indexes outside 0..6 (an ISO 7 for Sunday is a bug, not an alias).
func (r AvailabilityRule) Validate() error {
	if r.Weekday < 0 || r.Weekday > 6 {
		return apperrors.Validation("weekday %d outside 0 (Sunday) .. 6 (Saturday)", r.Weekday)
	}
	if r.End <= r.Start {
		return apperrors.Validation("rule for weekday %d ends before it starts", r.Weekday)
	}
	return nil
}

// ExceptionKind distinguishes full-day blocks from special hours.
type ExceptionKind string

const (
	ExceptionBlocked      ExceptionKind = "BLOCKED"
	ExceptionSpecialHours ExceptionKind = "SPECIAL_HOURS"
)

// AvailabilityException overrides the weekly rule for a single calendar date.
type AvailabilityException struct {
	Date  string        `json:"date"`
	Kind  ExceptionKind `json:"kind"`
	Start TimeOfDay     `json:"start,omitempty"`
	End   TimeOfDay     `json:"end,omitempty"`
}

// Validate checks the exception's date and window.
func (e AvailabilityException) Validate() error {
	if _, err := ParseDate(e.Date); err != nil {
		return err
	}
	switch e.Kind {
	case ExceptionBlocked:
		return nil
	case ExceptionSpecialHours:
		if e.End <= e.Start {
			return apperrors.Validation("special hours on %s end before they start", e.Date)
		}
		return nil
	default:
		return apperrors.Validation("unknown exception kind %q", e.Kind)
	}
}

// ActiveRule returns the active rule for the weekday, if any.
func (c *Config) ActiveRule(weekday time.Weekday) (AvailabilityRule, bool) {
	if c == nil {
		return AvailabilityRule{}, false
	}
	for _, rule := range c.Rules {
		if rule.Active && rule.Weekday == int(weekday) {
			return rule, true
		}
	}
	return AvailabilityRule{}, false
}

// ExceptionOn returns the exception registered for the ISO date, if any.
func (c *Config) ExceptionOn(date string) (AvailabilityException, bool) {
	if c == nil {
		return AvailabilityException{}, false
	}
	for _, exc := range c.Exceptions {
		if exc.Date == date {
			return exc, true
		}
	}
	return AvailabilityException{}, false
}

// ParseDate parses an ISO YYYY-MM-DD date into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, apperrors.Validation("invalid date %q", s)
	}
	return d, nil
}

// FormatDate renders a date in ISO form.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DisplayDate converts an ISO date to DD/MM/YYYY for patient-facing text.
// Unparseable input is returned unchanged.
func DisplayDate(iso string) string {
	d, err := ParseDate(iso)
	if err != nil {
		return iso
	}
	return d.Format(DisplayDateLayout)
}
