package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/availability"
	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/patients"
	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// DefaultDaysAhead bounds the day list when the clinic does not set one.
const DefaultDaysAhead = 14

const maxRedirects = 4

// ConfigSource retrieves clinic catalogs.
type ConfigSource interface {
	Get(ctx context.Context, clinicID string) (*clinic.Config, error)
}

// Availability computes bookable days and slots.
type Availability interface {
	Slots(ctx context.Context, clinicID, date string, sel clinic.Selection, opts ...availability.Option) ([]clinic.TimeOfDay, error)
	Days(ctx context.Context, clinicID string, sel clinic.Selection, daysAhead int, opts ...availability.Option) ([]string, error)
}

// Appointments commits booking decisions.
type Appointments interface {
	Create(ctx context.Context, req appointments.CreateRequest) (*appointments.Appointment, error)
	Reschedule(ctx context.Context, appointmentID string, expectedVersion int, newDate, newTime string) (*appointments.Appointment, error)
	Cancel(ctx context.Context, appointmentID string, expectedVersion int) (*appointments.Appointment, error)
	Get(ctx context.Context, appointmentID string) (*appointments.Appointment, error)
	FindActiveByPhone(ctx context.Context, clinicID, phone string) (*appointments.Appointment, error)
	PriorConfirmed(ctx context.Context, clinicID, phone string) (int, error)
}

// Engine drives one conversation turn at a time. It keeps no per-conversation
// state in memory; everything lives in the session store.
type Engine struct {
	clinics      ConfigSource
	sessions     SessionStore
	availability Availability
	appointments Appointments
	ttl          time.Duration
	daysAhead    int
	now          func() time.Time
	metrics      *metrics.SchedulerMetrics
	tracer       trace.Tracer
	logger       *logging.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithSessionTTL overrides the idle window.
func WithSessionTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithDaysAhead overrides how many days are offered when the clinic does not configure it.
func WithDaysAhead(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.daysAhead = n
		}
	}
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetrics records turn counters.
func WithMetrics(m *metrics.SchedulerMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine wires the conversation engine.
func NewEngine(clinics ConfigSource, sessions SessionStore, avail Availability, appts Appointments, logger *logging.Logger, opts ...EngineOption) *Engine {
	if clinics == nil {
		panic("conversation: config source cannot be nil")
	}
	if sessions == nil {
		panic("conversation: session store cannot be nil")
	}
	if avail == nil {
		panic("conversation: availability cannot be nil")
	}
	if appts == nil {
		panic("conversation: appointments cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		clinics:      clinics,
		sessions:     sessions,
		availability: avail,
		appointments: appts,
		ttl:          DefaultSessionTTL,
		daysAhead:    DefaultDaysAhead,
		now:          time.Now,
		tracer:       otel.Tracer("clinic.internal.conversation"),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// turn carries the state of one ProcessMessage call.
type turn struct {
	cfg     *clinic.Config
	sess    *Session
	notices []string
	// lookedUp is set once the active appointment was fetched this turn.
	lookedUp bool
	logger   *logging.Logger
}

// ProcessMessage handles one inbound message and returns the replies.
func (e *Engine) ProcessMessage(ctx context.Context, clinicID string, msg InboundMessage) (out []OutgoingMessage, err error) {
	ctx, span := e.tracer.Start(ctx, "conversation.turn", trace.WithAttributes(attribute.String("clinic.id", clinicID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	phone := patients.NormalizePhone(msg.From)
	if strings.TrimSpace(clinicID) == "" || phone == "" {
		return nil, apperrors.Validation("clinic id and sender phone are required")
	}
	cfg, err := e.clinics.Get(ctx, clinicID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	sess, err := e.sessions.Load(ctx, clinicID, phone)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Expired(now) {
		sess = NewSession(clinicID, phone, now, e.ttl)
	}

	t := &turn{cfg: cfg, sess: sess, logger: e.logger.WithConversation(clinicID, phone)}
	current := sess.State
	def := states[current]

	intent := Resolve(msg, e.options(t, current))
	if intent.Resolved() {
		applyPrefix(sess, intent.ID)
	}

	final := current
	next, stay := e.transition(ctx, t, def, intent)
	if !stay {
		final = e.enter(ctx, t, current, next)
	}
	sess.State = final
	sess.Touch(now, e.ttl)

	if !(states[final].Quiet && final == current && len(t.notices) == 0) {
		out = e.render(t, final)
	}
	for i := range out {
		out[i].To = phone
	}

	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	e.metrics.ObserveTurn(string(final))
	span.SetAttributes(attribute.String("conversation.from", string(current)), attribute.String("conversation.to", string(final)))
	t.logger.Info("conversation turn",
		"message_id", msg.MessageID,
		"reply_to", msg.ReplyTo,
		"intent", intent.ID,
		"from_state", string(current),
		"state", string(final),
	)
	return out, nil
}

// transition decides the next state. stay is true when the turn should
// re-render the current state without running an entry action.
func (e *Engine) transition(ctx context.Context, t *turn, def StateDef, intent Intent) (next State, stay bool) {
	switch intent.ID {
	case OptionBack:
		if def.Previous == "" {
			return "", true
		}
		return def.Previous, false
	case OptionHome:
		return StateMainMenu, false
	case OptionHuman:
		return StateHumanHandoff, false
	}
	if intent.Resolved() {
		if st, ok := def.next(intent.ID); ok {
			return st, false
		}
		return def.Fallback, false
	}
	if def.FreeText != "" && intent.Text != "" {
		if err := e.capture(ctx, t, intent.Text); err != nil {
			e.fail(t, err)
			return "", true
		}
		return def.FreeText, false
	}
	return def.Fallback, false
}

// enter runs entry actions, following redirects. On failure the session
// stays in from.
func (e *Engine) enter(ctx context.Context, t *turn, from, to State) State {
	target := to
	for i := 0; i < maxRedirects; i++ {
		action := e.entryAction(target)
		if action == nil {
			return target
		}
		redirect, err := action(ctx, t)
		if err != nil {
			e.fail(t, err)
			return from
		}
		if redirect == "" || redirect == target {
			return target
		}
		target = redirect
	}
	return target
}

// noticeError selects the user-facing notice for a failure.
type noticeError struct {
	key string
	err error
}

func (n *noticeError) Error() string { return n.key + ": " + n.err.Error() }
func (n *noticeError) Unwrap() error { return n.err }

func withNotice(key string, err error) error {
	return &noticeError{key: key, err: err}
}

func (e *Engine) fail(t *turn, err error) {
	var n *noticeError
	switch {
	case errors.As(err, &n):
		t.notices = append(t.notices, n.key)
	case apperrors.IsConflict(err):
		t.notices = append(t.notices, "notice_conflict")
	default:
		t.notices = append(t.notices, "notice_error")
	}
	if apperrors.IsConflict(err) || apperrors.IsNotFound(err) || apperrors.IsValidation(err) {
		t.logger.Info("conversation: entry action rejected", "state", string(t.sess.State), "error", err)
		return
	}
	t.logger.Error("conversation: entry action failed", "state", string(t.sess.State), "error", err)
}

// daysAheadFor prefers the clinic's booking horizon.
func (e *Engine) daysAheadFor(cfg *clinic.Config) int {
	if cfg.BookingDaysAhead > 0 {
		return cfg.BookingDaysAhead
	}
	return e.daysAhead
}
