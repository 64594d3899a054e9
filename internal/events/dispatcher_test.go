package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
)

func TestDispatcherRoutesAndDeduplicates(t *testing.T) {
	processed := NewMemoryProcessedStore()
	d := NewDispatcher(processed, metrics.NewSchedulerMetrics(prometheus.NewRegistry()), nil)

	var syncs []string
	d.Register(TypeLedgerSync, HandlerFunc(func(_ context.Context, env Envelope) error {
		var evt LedgerSyncRequestedV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		syncs = append(syncs, evt.Appointment.AppointmentID)
		return nil
	}))

	env, err := NewEnvelope("appt-1", "", LedgerSyncRequestedV1{Appointment: AppointmentSnapshot{AppointmentID: "appt-1"}})
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(context.Background(), env))
	require.NoError(t, d.Dispatch(context.Background(), env))
	assert.Equal(t, []string{"appt-1"}, syncs, "redelivered intent must be skipped")
}

func TestDispatcherFailureLeavesIntentRetryable(t *testing.T) {
	processed := NewMemoryProcessedStore()
	d := NewDispatcher(processed, nil, nil)

	calls := 0
	d.Register(TypeReminderSchedule, HandlerFunc(func(context.Context, Envelope) error {
		calls++
		if calls == 1 {
			return errors.New("reminder store down")
		}
		return nil
	}))

	env, err := NewEnvelope("appt-1", "", ReminderScheduleRequestedV1{})
	require.NoError(t, err)

	assert.Error(t, d.Dispatch(context.Background(), env))
	seen, _ := processed.AlreadyProcessed(context.Background(), ProviderIntents, env.EventID.String())
	assert.False(t, seen)

	require.NoError(t, d.Dispatch(context.Background(), env))
	assert.Equal(t, 2, calls)
}

func TestDispatcherDispatchBody(t *testing.T) {
	d := NewDispatcher(NewMemoryProcessedStore(), nil, nil)
	handled := false
	d.Register(TypeReminderCancel, HandlerFunc(func(context.Context, Envelope) error {
		handled = true
		return nil
	}))

	env, err := NewEnvelope("appt-1", "", ReminderCancelRequestedV1{AppointmentID: "appt-1", UpToVersion: 3})
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)

	require.NoError(t, d.DispatchBody(context.Background(), body))
	assert.True(t, handled)
	assert.Error(t, d.DispatchBody(context.Background(), []byte("garbage")))
}
