package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Sender abstracts outbound text delivery.
type Sender interface {
	SendText(ctx context.Context, clinicID, to, body string) error
}

// ClinicSource retrieves clinic catalogs for message personalization.
type ClinicSource interface {
	Get(ctx context.Context, clinicID string) (*clinic.Config, error)
}

// Worker sends due reminders.
type Worker struct {
	store   Repository
	sender  Sender
	clinics ClinicSource
	metrics *metrics.SchedulerMetrics
	now     func() time.Time
	logger  *logging.Logger
}

// NewWorker creates a reminder worker.
func NewWorker(store Repository, sender Sender, clinics ClinicSource, m *metrics.SchedulerMetrics, logger *logging.Logger) *Worker {
	if store == nil {
		panic("reminders: store cannot be nil")
	}
	if sender == nil {
		panic("reminders: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{store: store, sender: sender, clinics: clinics, metrics: m, now: time.Now, logger: logger}
}

// SendDue delivers every pending reminder that is due. Returns the number sent.
func (w *Worker) SendDue(ctx context.Context) (int, error) {
	reminders, err := w.store.ListDue(ctx, w.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reminders worker: list due: %w", err)
	}
	if len(reminders) == 0 {
		return 0, nil
	}

	w.logger.Info("reminders worker: processing due reminders", "count", len(reminders))

	sent := 0
	for i := range reminders {
		r := &reminders[i]
		if err := w.sendOne(ctx, r); err != nil {
			w.metrics.ObserveReminder("error")
			w.logger.Error("reminders worker: failed to send reminder", "id", r.ID, "error", err)
			continue
		}
		w.metrics.ObserveReminder("sent")
		sent++
	}
	return sent, nil
}

func (w *Worker) sendOne(ctx context.Context, r *Reminder) error {
	var cfg *clinic.Config
	if w.clinics != nil {
		var err error
		cfg, err = w.clinics.Get(ctx, r.ClinicID)
		if err != nil {
			return fmt.Errorf("get clinic: %w", err)
		}
	}
	body, err := RenderMessage(r, cfg)
	if err != nil {
		return err
	}

	if err := w.sender.SendText(ctx, r.ClinicID, r.Phone, body); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := w.store.MarkSent(ctx, r.ID); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}

	w.logger.Info("reminders worker: reminder sent", "id", r.ID, "appointment_id", r.AppointmentID)
	return nil
}
