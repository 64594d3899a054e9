package events

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Handler consumes one intent. Handlers must tolerate redelivery.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env Envelope) error { return f(ctx, env) }

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// Dispatcher routes intents to their handlers, skipping ids already handled.
// Delivery is at-least-once so an id is only marked after every handler
// for its type succeeded.
type Dispatcher struct {
	handlers  map[string][]Handler
	processed processedTracker
	metrics   *metrics.SchedulerMetrics
	logger    *logging.Logger
}

func NewDispatcher(processed processedTracker, m *metrics.SchedulerMetrics, logger *logging.Logger) *Dispatcher {
	if processed == nil {
		panic("events: processed store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		handlers:  make(map[string][]Handler),
		processed: processed,
		metrics:   m,
		logger:    logger,
	}
}

// Register adds a handler for an event type. Not safe to call concurrently
// with Dispatch.
func (d *Dispatcher) Register(eventType string, h Handler) {
	if h == nil {
		return
	}
	d.handlers[eventType] = append(d.handlers[eventType], h)
}

// Dispatch runs every handler registered for the envelope's type.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) error {
	eventID := env.EventID.String()
	seen, err := d.processed.AlreadyProcessed(ctx, ProviderIntents, eventID)
	if err != nil {
		d.metrics.ObserveIntent(env.EventType, "error")
		return err
	}
	if seen {
		d.logger.Debug("intent already processed", "event_id", eventID, "type", env.EventType)
		d.metrics.ObserveIntent(env.EventType, "duplicate")
		return nil
	}

	handlers := d.handlers[env.EventType]
	if len(handlers) == 0 {
		d.logger.Warn("no handler for intent", "event_id", eventID, "type", env.EventType)
		d.metrics.ObserveIntent(env.EventType, "unhandled")
	}
	for _, h := range handlers {
		if err := h.Handle(ctx, env); err != nil {
			d.metrics.ObserveIntent(env.EventType, "error")
			return fmt.Errorf("events: handle %s %s: %w", env.EventType, eventID, err)
		}
	}

	if _, err := d.processed.MarkProcessed(ctx, ProviderIntents, eventID); err != nil {
		d.logger.Error("failed to mark intent processed", "error", err, "event_id", eventID)
	}
	if len(handlers) > 0 {
		d.metrics.ObserveIntent(env.EventType, "ok")
	}
	return nil
}

// DispatchBody parses a transport body and dispatches it.
func (d *Dispatcher) DispatchBody(ctx context.Context, body []byte) error {
	env, err := ParseEnvelope(body)
	if err != nil {
		return err
	}
	return d.Dispatch(ctx, env)
}

// Emit lets the dispatcher act as an in-process Emitter for local runs.
func (d *Dispatcher) Emit(ctx context.Context, env Envelope) error {
	return d.Dispatch(ctx, env)
}
