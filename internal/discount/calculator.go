// Package discount derives the price adjustment applied to a booking.
package discount

import (
	"sort"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
)

// Reason explains which branch of the rule produced the percentage.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonFirstSession Reason = "first_session"
	ReasonAreaTier     Reason = "area_tier"
)

// Result is persisted with the appointment.
type Result struct {
	Percent              int    `json:"percent"`
	Reason               Reason `json:"reason,omitempty"`
	OriginalPriceCents   int64  `json:"original_price_cents"`
	DiscountedPriceCents int64  `json:"discounted_price_cents"`
}

// Calculate applies the clinic rule. priorConfirmed is the number of
// CONFIRMED appointments the patient already has at the clinic; areaCount is
// the number of areas in this booking only.
func Calculate(rule *clinic.DiscountRule, priorConfirmed, areaCount int, originalCents int64) Result {
	res := Result{OriginalPriceCents: originalCents}
	switch {
	case rule == nil:
	case priorConfirmed == 0:
		res.Percent = rule.FirstSessionPercent
		res.Reason = ReasonFirstSession
	default:
		if tier, ok := tierFor(rule.Tiers, areaCount); ok {
			res.Percent = tier.Percent
			res.Reason = ReasonAreaTier
		}
	}
	if res.Percent <= 0 {
		res.Percent = 0
		res.Reason = ReasonNone
	}
	if res.Percent > 100 {
		res.Percent = 100
	}
	res.DiscountedPriceCents = Apply(originalCents, res.Percent)
	return res
}

// Apply returns cents*(100-pct)/100 with integer truncation.
func Apply(cents int64, pct int) int64 {
	return cents * int64(100-pct) / 100
}

func tierFor(tiers []clinic.DiscountTier, count int) (clinic.DiscountTier, bool) {
	sorted := append([]clinic.DiscountTier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinAreas < sorted[j].MinAreas })
	for _, t := range sorted {
		if t.Contains(count) {
			return t, true
		}
	}
	return clinic.DiscountTier{}, false
}
