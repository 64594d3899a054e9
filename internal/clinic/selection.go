package clinic

import (
	"time"

	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
)

// Selection is what a patient chose to book: one service and, for
// area-based services, the treatment areas within it.
type Selection struct {
	ServiceID string   `json:"service_id"`
	AreaIDs   []string `json:"area_ids,omitempty"`
}

// AreaCount is the number of treatment areas in this one booking.
func (s Selection) AreaCount() int {
	return len(s.AreaIDs)
}

// Quote is a resolved selection: names, total duration and undiscounted price.
type Quote struct {
	Service    *Service
	Areas      []Area
	Duration   time.Duration
	PriceCents int64
}

// Quote resolves the selection against the catalog. Areas without their own
// duration contribute the clinic default; areas without their own price fall
// back to the service price.
func (c *Config) Quote(sel Selection) (*Quote, error) {
	svc, ok := c.Service(sel.ServiceID)
	if !ok {
		return nil, apperrors.NotFound("service %q", sel.ServiceID)
	}
	q := &Quote{Service: svc}
	if !svc.HasAreas() {
		if len(sel.AreaIDs) > 0 {
			return nil, apperrors.Validation("service %q has no treatment areas", svc.ID)
		}
		q.Duration = time.Duration(svc.DurationMinutes) * time.Minute
		if q.Duration <= 0 {
			q.Duration = c.DefaultDuration()
		}
		q.PriceCents = svc.PriceCents
		return q, nil
	}

	if len(sel.AreaIDs) == 0 {
		return nil, apperrors.Validation("service %q requires at least one area", svc.ID)
	}
	for _, id := range sel.AreaIDs {
		area, ok := svc.Area(id)
		if !ok {
			return nil, apperrors.NotFound("area %q in service %q", id, svc.ID)
		}
		q.Areas = append(q.Areas, *area)
		dur := time.Duration(area.DurationMinutes) * time.Minute
		if dur <= 0 {
			dur = c.DefaultDuration()
		}
		q.Duration += dur
		price := area.PriceCents
		if price == 0 {
			price = svc.PriceCents
		}
		q.PriceCents += price
	}
	return q, nil
}

// AreaNames lists the names of the quoted areas in selection order.
func (q *Quote) AreaNames() []string {
	names := make([]string, 0, len(q.Areas))
	for _, a := range q.Areas {
		names = append(names, a.Name)
	}
	return names
}
