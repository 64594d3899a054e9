package conversation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	"github.com/wolfman30/clinic-scheduler/internal/discount"
)

// DefaultSessionTTL is the idle window after which a conversation restarts.
const DefaultSessionTTL = 30 * time.Minute

// Persisted field names.
const (
	FieldSelectedDate         = "selected_date"
	FieldSelectedTime         = "selected_time"
	FieldSelectedNewDate      = "selected_new_date"
	FieldSelectedNewTime      = "selected_new_time"
	FieldSelectedFAQKey       = "selected_faq_key"
	FieldSelectedServiceIDs   = "selected_service_ids"
	FieldSelectedAreaIDs      = "selected_area_ids"
	FieldDiscountPct          = "discount_pct"
	FieldDiscountReason       = "discount_reason"
	FieldOriginalPriceCents   = "original_price_cents"
	FieldDiscountedPriceCents = "discounted_price_cents"
	FieldIsFirstSession       = "is_first_session"
	FieldOfferedAreas         = "offered_areas"
	FieldOfferedDays          = "offered_days"
	FieldOfferedTimes         = "offered_times"
	FieldAppointmentID        = "appointment_id"
	FieldAppointmentVersion   = "appointment_version"
	FieldAppointmentDate      = "appointment_date"
	FieldAppointmentTime      = "appointment_time"
)

// Session is the per (clinic, phone) conversation state.
type Session struct {
	ClinicID string
	Phone    string
	State    State

	SelectedDate       string
	SelectedTime       string
	SelectedNewDate    string
	SelectedNewTime    string
	SelectedFAQKey     string
	SelectedServiceIDs []string
	SelectedAreaIDs    []string

	DiscountPct          int
	DiscountReason       string
	OriginalPriceCents   int64
	DiscountedPriceCents int64
	// IsFirstSession caches the discount eligibility lookup; nil means unknown.
	IsFirstSession *bool

	OfferedAreas []string
	OfferedDays  []string
	OfferedTimes []string

	AppointmentID      string
	AppointmentVersion int
	AppointmentDate    string
	AppointmentTime    string

	LastActivity time.Time
	ExpiresAt    time.Time
}

// NewSession starts a conversation at WELCOME.
func NewSession(clinicID, phone string, now time.Time, ttl time.Duration) *Session {
	now = now.UTC()
	return &Session{
		ClinicID:     clinicID,
		Phone:        phone,
		State:        StateWelcome,
		LastActivity: now,
		ExpiresAt:    now.Add(ttl),
	}
}

// Expired reports whether the idle window has elapsed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Touch refreshes the activity timestamp and expiry.
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.LastActivity = now.UTC()
	s.ExpiresAt = s.LastActivity.Add(ttl)
}

// Selection is the service and areas currently being booked or moved.
func (s *Session) Selection() clinic.Selection {
	sel := clinic.Selection{AreaIDs: append([]string(nil), s.SelectedAreaIDs...)}
	if len(s.SelectedServiceIDs) > 0 {
		sel.ServiceID = s.SelectedServiceIDs[0]
	}
	return sel
}

// Discount returns the cached discount result.
func (s *Session) Discount() discount.Result {
	return discount.Result{
		Percent:              s.DiscountPct,
		Reason:               discount.Reason(s.DiscountReason),
		OriginalPriceCents:   s.OriginalPriceCents,
		DiscountedPriceCents: s.DiscountedPriceCents,
	}
}

func (s *Session) setDiscount(r discount.Result) {
	s.DiscountPct = r.Percent
	s.DiscountReason = string(r.Reason)
	s.OriginalPriceCents = r.OriginalPriceCents
	s.DiscountedPriceCents = r.DiscountedPriceCents
}

// resetBooking clears everything collected by a previous flow.
func (s *Session) resetBooking() {
	s.SelectedDate, s.SelectedTime = "", ""
	s.SelectedNewDate, s.SelectedNewTime = "", ""
	s.SelectedServiceIDs, s.SelectedAreaIDs = nil, nil
	s.setDiscount(discount.Result{})
	s.IsFirstSession = nil
	s.OfferedAreas, s.OfferedDays, s.OfferedTimes = nil, nil, nil
}

// Record is the persisted shape of a session.
type Record struct {
	ClinicID     string            `json:"clinic_id" dynamodbav:"clinicId"`
	Phone        string            `json:"phone" dynamodbav:"phone"`
	State        string            `json:"state" dynamodbav:"state"`
	Fields       map[string]string `json:"fields,omitempty" dynamodbav:"fields,omitempty"`
	LastActivity string            `json:"last_activity" dynamodbav:"lastActivity"`
	ExpiresAt    string            `json:"expires_at" dynamodbav:"expiresAtIso"`
}

// Fields flattens the collected values. Empty values are omitted.
func (s *Session) Fields() map[string]string {
	f := make(map[string]string)
	put := func(k, v string) {
		if v != "" {
			f[k] = v
		}
	}
	putList := func(k string, v []string) {
		if v == nil {
			return
		}
		b, _ := json.Marshal(v)
		f[k] = string(b)
	}
	put(FieldSelectedDate, s.SelectedDate)
	put(FieldSelectedTime, s.SelectedTime)
	put(FieldSelectedNewDate, s.SelectedNewDate)
	put(FieldSelectedNewTime, s.SelectedNewTime)
	put(FieldSelectedFAQKey, s.SelectedFAQKey)
	putList(FieldSelectedServiceIDs, s.SelectedServiceIDs)
	putList(FieldSelectedAreaIDs, s.SelectedAreaIDs)
	if s.DiscountPct != 0 {
		f[FieldDiscountPct] = strconv.Itoa(s.DiscountPct)
	}
	put(FieldDiscountReason, s.DiscountReason)
	if s.OriginalPriceCents != 0 {
		f[FieldOriginalPriceCents] = strconv.FormatInt(s.OriginalPriceCents, 10)
	}
	if s.DiscountedPriceCents != 0 {
		f[FieldDiscountedPriceCents] = strconv.FormatInt(s.DiscountedPriceCents, 10)
	}
	if s.IsFirstSession != nil {
		f[FieldIsFirstSession] = strconv.FormatBool(*s.IsFirstSession)
	}
	putList(FieldOfferedAreas, s.OfferedAreas)
	putList(FieldOfferedDays, s.OfferedDays)
	putList(FieldOfferedTimes, s.OfferedTimes)
	put(FieldAppointmentID, s.AppointmentID)
	if s.AppointmentVersion != 0 {
		f[FieldAppointmentVersion] = strconv.Itoa(s.AppointmentVersion)
	}
	put(FieldAppointmentDate, s.AppointmentDate)
	put(FieldAppointmentTime, s.AppointmentTime)
	return f
}

// Record converts the session into its persisted shape.
func (s *Session) Record() Record {
	return Record{
		ClinicID:     s.ClinicID,
		Phone:        s.Phone,
		State:        string(s.State),
		Fields:       s.Fields(),
		LastActivity: formatTimestamp(s.LastActivity),
		ExpiresAt:    formatTimestamp(s.ExpiresAt),
	}
}

// SessionFromRecord rebuilds a session from its persisted shape.
func SessionFromRecord(r Record) (*Session, error) {
	s := &Session{ClinicID: r.ClinicID, Phone: r.Phone, State: State(r.State)}
	if _, ok := states[s.State]; !ok {
		return nil, fmt.Errorf("conversation: unknown state %q", r.State)
	}
	var err error
	if s.LastActivity, err = parseTimestamp(r.LastActivity); err != nil {
		return nil, fmt.Errorf("conversation: decode last activity: %w", err)
	}
	if s.ExpiresAt, err = parseTimestamp(r.ExpiresAt); err != nil {
		return nil, fmt.Errorf("conversation: decode expiry: %w", err)
	}

	f := r.Fields
	s.SelectedDate = f[FieldSelectedDate]
	s.SelectedTime = f[FieldSelectedTime]
	s.SelectedNewDate = f[FieldSelectedNewDate]
	s.SelectedNewTime = f[FieldSelectedNewTime]
	s.SelectedFAQKey = f[FieldSelectedFAQKey]
	s.DiscountReason = f[FieldDiscountReason]
	s.AppointmentID = f[FieldAppointmentID]
	s.AppointmentDate = f[FieldAppointmentDate]
	s.AppointmentTime = f[FieldAppointmentTime]

	lists := []struct {
		key string
		dst *[]string
	}{
		{FieldSelectedServiceIDs, &s.SelectedServiceIDs},
		{FieldSelectedAreaIDs, &s.SelectedAreaIDs},
		{FieldOfferedAreas, &s.OfferedAreas},
		{FieldOfferedDays, &s.OfferedDays},
		{FieldOfferedTimes, &s.OfferedTimes},
	}
	for _, l := range lists {
		raw, ok := f[l.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(raw), l.dst); err != nil {
			return nil, fmt.Errorf("conversation: decode %s: %w", l.key, err)
		}
	}

	if v, ok := f[FieldDiscountPct]; ok {
		if s.DiscountPct, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("conversation: decode %s: %w", FieldDiscountPct, err)
		}
	}
	if v, ok := f[FieldAppointmentVersion]; ok {
		if s.AppointmentVersion, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("conversation: decode %s: %w", FieldAppointmentVersion, err)
		}
	}
	if v, ok := f[FieldOriginalPriceCents]; ok {
		if s.OriginalPriceCents, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("conversation: decode %s: %w", FieldOriginalPriceCents, err)
		}
	}
	if v, ok := f[FieldDiscountedPriceCents]; ok {
		if s.DiscountedPriceCents, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("conversation: decode %s: %w", FieldDiscountedPriceCents, err)
		}
	}
	if v, ok := f[FieldIsFirstSession]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("conversation: decode %s: %w", FieldIsFirstSession, err)
		}
		s.IsFirstSession = &b
	}
	return s, nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
