package clinic

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"09:00", 540, false},
		{"18:00", 1080, false},
		{" 09:55 ", 595, false},
		{"9am", 0, true},
		{"25:00", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %d want %d", got, tt.want)
			}
			if got.String() != tt.in && " "+got.String()+" " != tt.in {
				t.Fatalf("round trip mismatch: %q vs %q", got.String(), tt.in)
			}
		})
	}
}

func TestTimeOfDayJSON(t *testing.T) {
	rule := AvailabilityRule{Weekday: 0, Start: MustTime("08:30"), End: MustTime("12:00"), Active: true}
	data, err := json.Marshal(rule)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"weekday":0,"start":"08:30","end":"12:00","active":true}` {
		t.Fatalf("unexpected JSON: %s", data)
	}
	var decoded AvailabilityRule
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != rule {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, rule)
	}
}

func TestActiveRuleUsesZeroForSunday(t *testing.T) {
	cfg := &Config{Rules: []AvailabilityRule{
		{Weekday: 0, Start: MustTime("10:00"), End: MustTime("14:00"), Active: true},
		{Weekday: 1, Start: MustTime("09:00"), End: MustTime("18:00"), Active: true},
		{Weekday: 2, Start: MustTime("09:00"), End: MustTime("18:00"), Active: false},
	}}

	sunday := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	if sunday.Weekday() != time.Sunday {
		t.Fatalf("fixture is not a Sunday")
	}
	rule, ok := cfg.ActiveRule(sunday.Weekday())
	if !ok || rule.Start != MustTime("10:00") {
		t.Fatalf("expected Sunday rule at index 0, got %+v ok=%v", rule, ok)
	}
	if _, ok := cfg.ActiveRule(time.Tuesday); ok {
		t.Fatal("inactive rule must not be returned")
	}
}

func TestRuleValidateRejectsISOSunday(t *testing.T) {
	rule := AvailabilityRule{Weekday: 7, Start: MustTime("09:00"), End: MustTime("10:00"), Active: true}
	if err := rule.Validate(); err == nil {
		t.Fatal("expected weekday 7 to be rejected")
	}
}

func TestDisplayDate(t *testing.T) {
	if got := DisplayDate("2026-03-07"); got != "07/03/2026" {
		t.Fatalf("got %q", got)
	}
	if got := DisplayDate("not-a-date"); got != "not-a-date" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestExceptionValidate(t *testing.T) {
	ok := AvailabilityException{Date: "2026-12-25", Kind: ExceptionBlocked}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := AvailabilityException{Date: "2026-12-24", Kind: ExceptionSpecialHours, Start: MustTime("12:00"), End: MustTime("10:00")}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected inverted special hours to fail")
	}
}
