package reminders

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
)

type sentText struct {
	to   string
	body string
}

type fakeSender struct {
	sent []sentText
	fail map[string]bool
}

func (f *fakeSender) SendText(_ context.Context, _, to, body string) error {
	if f.fail[to] {
		return errors.New("provider unavailable")
	}
	f.sent = append(f.sent, sentText{to: to, body: body})
	return nil
}

func TestMessageTemplate(t *testing.T) {
	r := &Reminder{ServiceName: "Laser", Date: "2026-10-21", Start: "09:00"}

	msg := MessageTemplate(r, "Clinica Sol")
	assert.Contains(t, msg, "Laser")
	assert.Contains(t, msg, "Clinica Sol")
	assert.Contains(t, msg, "21/10/2026")
	assert.Contains(t, msg, "09:00")
	assert.NotContains(t, msg, "2026-10-21")

	assert.Contains(t, MessageTemplate(&Reminder{Date: "2026-10-21"}, ""), "appointment")
}

func TestRenderMessageClinicOverride(t *testing.T) {
	r := &Reminder{ServiceName: "Laser", Date: "2026-10-21", Start: "09:00"}
	cfg := &clinic.Config{Name: "Clinica Sol", Templates: map[string]string{
		TemplateKey: "{{.Clinic}}: {{.Service}} {{.Date}} {{.Time}}",
	}}

	msg, err := RenderMessage(r, cfg)
	require.NoError(t, err)
	assert.Equal(t, "Clinica Sol: Laser 21/10/2026 09:00", msg)

	cfg.Templates[TemplateKey] = "{{.Broken"
	_, err = RenderMessage(r, cfg)
	assert.Error(t, err)
}

func TestWorkerSendDue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, phone := range []string{"5511000000001", "5511000000002"} {
		_, err := store.Create(ctx, &Reminder{
			ClinicID: "clinic-1", AppointmentID: "appt-" + phone, Version: 1, Phone: phone,
			ServiceName: "Laser", Date: "2026-10-19", Start: "10:00", RemindAt: testNow.Add(-time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := store.Create(ctx, &Reminder{
		ClinicID: "clinic-1", AppointmentID: "appt-later", Version: 1, Phone: "5511000000003",
		Date: "2026-10-25", Start: "10:00", RemindAt: testNow.Add(48 * time.Hour),
	})
	require.NoError(t, err)

	sender := &fakeSender{fail: map[string]bool{"5511000000002": true}}
	clinics := clinic.StaticSource{"clinic-1": {ClinicID: "clinic-1", Name: "Clinica Sol"}}
	reg := prometheus.NewRegistry()
	w := NewWorker(store, sender, clinics, metrics.NewSchedulerMetrics(reg), nil)
	w.now = func() time.Time { return testNow }

	n, err := w.SendDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "5511000000001", sender.sent[0].to)
	assert.True(t, strings.Contains(sender.sent[0].body, "Clinica Sol"))

	stats, err := store.Stats(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SentCount)
	assert.Equal(t, int64(2), stats.PendingCount, "failed send stays pending for the next run")

	// A second run only retries the failed one.
	sender.fail = nil
	n, err = w.SendDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "5511000000002", sender.sent[1].to)
}
