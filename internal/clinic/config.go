// Package clinic holds the per-clinic catalog the scheduling core reads:
// services, availability rules, date exceptions, discount rule, FAQ and templates.
package clinic

import (
	"strings"
	"time"

	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
)

// Area is a treatment sub-selection within a service.
// Zero DurationMinutes means the clinic default applies.
type Area struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	PriceCents      int64  `json:"price_cents,omitempty"`
}

// Service is a bookable offering. Services with areas are priced and timed per area.
type Service struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	PriceCents      int64  `json:"price_cents"`
	Areas           []Area `json:"areas,omitempty"`
}

// HasAreas reports whether the service is booked per treatment area.
func (s *Service) HasAreas() bool {
	return s != nil && len(s.Areas) > 0
}

// Area looks up an area by id.
func (s *Service) Area(id string) (*Area, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Areas {
		if s.Areas[i].ID == id {
			return &s.Areas[i], true
		}
	}
	return nil, false
}

// FAQEntry is a canned question/answer pair offered in the FAQ menu.
type FAQEntry struct {
	Key      string `json:"key"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// DiscountTier is an inclusive area-count band. Max of zero means unbounded.
type DiscountTier struct {
	MinAreas int `json:"min_areas"`
	MaxAreas int `json:"max_areas,omitempty"`
	Percent  int `json:"percent"`
}

// Contains reports whether count falls within the tier bounds.
func (t DiscountTier) Contains(count int) bool {
	if count < t.MinAreas {
		return false
	}
	return t.MaxAreas == 0 || count <= t.MaxAreas
}

// DiscountRule configures the clinic's first-session and progressive discounts.
type DiscountRule struct {
	FirstSessionPercent int            `json:"first_session_percent"`
	Tiers               []DiscountTier `json:"tiers,omitempty"`
}

// Config holds clinic-specific configuration.
type Config struct {
	ClinicID string `json:"clinic_id"`
	Name     string `json:"name"`
	// Timezone decides what "tomorrow" means when listing available days.
	Timezone                      string                  `json:"timezone"`
	BufferMinutes                 int                     `json:"buffer_minutes"`
	DefaultServiceDurationMinutes int                     `json:"default_service_duration_minutes"`
	BookingDaysAhead              int                     `json:"booking_days_ahead,omitempty"`
	Services                      []Service               `json:"services"`
	Rules                         []AvailabilityRule      `json:"rules"`
	Exceptions                    []AvailabilityException `json:"exceptions,omitempty"`
	// Discount is optional; nil means no discount ever applies.
	Discount *DiscountRule `json:"discount,omitempty"`
	FAQ      []FAQEntry    `json:"faq,omitempty"`
	// Templates overrides the built-in message templates by key.
	Templates map[string]string `json:"templates,omitempty"`
}

// Location returns the clinic's timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || strings.TrimSpace(c.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Service looks up a service by id.
func (c *Config) Service(id string) (*Service, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Services {
		if c.Services[i].ID == id {
			return &c.Services[i], true
		}
	}
	return nil, false
}

// FAQEntry looks up an FAQ entry by key.
func (c *Config) FAQEntry(key string) (*FAQEntry, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.FAQ {
		if c.FAQ[i].Key == key {
			return &c.FAQ[i], true
		}
	}
	return nil, false
}

// DefaultDuration returns the clinic's default service duration.
func (c *Config) DefaultDuration() time.Duration {
	if c == nil || c.DefaultServiceDurationMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.DefaultServiceDurationMinutes) * time.Minute
}

// Buffer returns the gap enforced between consecutive slots.
func (c *Config) Buffer() time.Duration {
	if c == nil || c.BufferMinutes < 0 {
		return 0
	}
	return time.Duration(c.BufferMinutes) * time.Minute
}

// Validate checks the catalog for inconsistencies the scheduler cannot work with.
func (c *Config) Validate() error {
	if c == nil {
		return apperrors.Validation("clinic config required")
	}
	if strings.TrimSpace(c.ClinicID) == "" {
		return apperrors.Validation("clinic_id required")
	}
	if c.BufferMinutes < 0 {
		return apperrors.Validation("buffer_minutes must not be negative")
	}
	seen := make(map[int]bool, len(c.Rules))
	for _, rule := range c.Rules {
		if err := rule.Validate(); err != nil {
			return err
		}
		if rule.Active && seen[rule.Weekday] {
			return apperrors.Validation("duplicate active rule for weekday %d", rule.Weekday)
		}
		if rule.Active {
			seen[rule.Weekday] = true
		}
	}
	for _, exc := range c.Exceptions {
		if err := exc.Validate(); err != nil {
			return err
		}
	}
	for _, svc := range c.Services {
		if strings.TrimSpace(svc.ID) == "" {
			return apperrors.Validation("service id required")
		}
	}
	if c.Discount != nil {
		for _, tier := range c.Discount.Tiers {
			if tier.MaxAreas != 0 && tier.MaxAreas < tier.MinAreas {
				return apperrors.Validation("discount tier max %d below min %d", tier.MaxAreas, tier.MinAreas)
			}
		}
	}
	return nil
}
