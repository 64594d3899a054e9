package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/availability"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/conversation"
	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/internal/ledger"
	"github.com/wolfman30/clinic-scheduler/internal/messaging"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/patients"
	"github.com/wolfman30/clinic-scheduler/internal/reminders"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Deps are the process-level inputs to Build.
type Deps struct {
	Config   *appconfig.Config
	Logger   *logging.Logger
	Registry prometheus.Registerer
	// AWS is required for the SQS intent queue and the DynamoDB session
	// backend; nil keeps intents in-process.
	AWS *aws.Config
}

// App is the wired scheduler shared by the HTTP server and the lambdas.
type App struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *metrics.SchedulerMetrics
	Clinics ConfigSource

	Appointments *appointments.Service
	Availability *availability.Engine
	Conversation *conversation.Engine

	Sender  Sender
	Webhook *messaging.Handler

	Dispatcher *events.Dispatcher
	Outbox     *events.Deliverer
	Reminders  *reminders.Worker
}

// Sender delivers both conversation replies and reminder texts.
type Sender interface {
	messaging.Sender
	reminders.Sender
}

// Build wires every component from config. Without DATABASE_URL the
// in-memory repositories are used; without INTENTS_QUEUE_URL intents are
// dispatched in-process right after commit.
func Build(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	app := &App{Metrics: metrics.NewSchedulerMetrics(deps.Registry)}

	pool, err := BuildPostgresPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Pool = pool
	app.Redis = BuildRedisClient(ctx, cfg, logger, true)

	clinics, err := BuildClinicSource(cfg, app.Redis)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Clinics = clinics

	sessions, err := BuildSessionStore(cfg, app.Redis, deps.AWS)
	if err != nil {
		app.Close()
		return nil, err
	}

	var (
		apptRepo     appointments.Repository
		patientRepo  patients.Repository
		reminderRepo reminders.Repository
		dispatcher   *events.Dispatcher
	)
	if pool != nil {
		apptRepo = appointments.NewPostgresRepository(pool)
		patientRepo = patients.NewPostgresRepository(pool)
		reminderRepo = reminders.NewStore(pool)
		dispatcher = events.NewDispatcher(events.NewProcessedStore(pool), app.Metrics, logger)
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory repositories")
		apptRepo = appointments.NewMemoryRepository()
		patientRepo = patients.NewMemoryRepository()
		reminderRepo = reminders.NewMemoryStore()
		dispatcher = events.NewDispatcher(events.NewMemoryProcessedStore(), app.Metrics, logger)
	}
	app.Dispatcher = dispatcher

	reminders.NewScheduler(reminderRepo, cfg.ReminderLeadTime, logger).Register(dispatcher)
	if id := strings.TrimSpace(cfg.SheetsSpreadsheetID); id != "" {
		var opts []option.ClientOption
		if file := strings.TrimSpace(cfg.SheetsCredentialsFile); file != "" {
			opts = append(opts, option.WithCredentialsFile(file))
		}
		syncer, err := ledger.NewSheetsSyncer(ctx, id, logger, opts...)
		if err != nil {
			app.Close()
			return nil, err
		}
		syncer.WithRange(cfg.SheetsRange).Register(dispatcher)
	}

	var emitter events.Emitter = dispatcher
	if url := strings.TrimSpace(cfg.IntentsQueueURL); url != "" {
		if deps.AWS == nil {
			app.Close()
			return nil, errors.New("bootstrap: intents queue needs aws config")
		}
		emitter = events.NewSQSEmitter(sqs.NewFromConfig(*deps.AWS), url)
	}

	serviceOpts := []appointments.Option{appointments.WithMetrics(app.Metrics)}
	if pool != nil {
		outbox := events.NewOutboxStore(pool)
		serviceOpts = append(serviceOpts, appointments.WithOutbox(outbox))
		app.Outbox = events.NewDeliverer(outbox, emitter, logger)
	}
	app.Appointments = appointments.NewService(apptRepo, patientRepo, clinics, emitter, logger, serviceOpts...)
	app.Availability = availability.NewEngine(clinics, app.Appointments, logger)
	app.Conversation = conversation.NewEngine(clinics, sessions, app.Availability, app.Appointments, logger,
		conversation.WithSessionTTL(cfg.SessionTTL),
		conversation.WithDaysAhead(cfg.BookingDaysAhead),
		conversation.WithMetrics(app.Metrics),
	)

	sender, err := BuildSender(cfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Sender = sender

	var dedupe messaging.Deduper
	if app.Redis != nil {
		dedupe = messaging.NewRedisDeduper(app.Redis, cfg.InboundDedupe)
	}
	app.Webhook = messaging.NewHandler(messaging.HandlerConfig{
		VerifyToken: cfg.WhatsAppVerifyToken,
		AppSecret:   cfg.WhatsAppAppSecret,
	}, app.Conversation, sender, dedupe, app.Metrics, logger)
	app.Reminders = reminders.NewWorker(reminderRepo, sender, clinics, app.Metrics, logger)

	return app, nil
}

// BuildSender returns the WhatsApp sender, or a logging sender when no
// credentials are configured.
func BuildSender(cfg *appconfig.Config, logger *logging.Logger) (Sender, error) {
	if strings.TrimSpace(cfg.WhatsAppAccessToken) == "" {
		logger.Warn("WhatsApp credentials not set; replies are logged only")
		return &LogSender{logger: logger}, nil
	}
	sender, err := messaging.NewWhatsAppSender(messaging.Config{
		BaseURL:       cfg.WhatsAppAPIBaseURL,
		Token:         cfg.WhatsAppAccessToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return sender, nil
}

// Close releases connections.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// LogSender writes outgoing messages to the log instead of a transport.
type LogSender struct {
	logger *logging.Logger
}

// Send implements messaging.Sender.
func (s *LogSender) Send(_ context.Context, clinicID string, msg conversation.OutgoingMessage) error {
	s.logger.Info("outgoing message", "clinic_id", clinicID, "to", msg.To, "text", msg.Text, "options", len(msg.Options))
	return nil
}

// SendText implements reminders.Sender.
func (s *LogSender) SendText(ctx context.Context, clinicID, to, body string) error {
	return s.Send(ctx, clinicID, conversation.OutgoingMessage{To: to, Text: body})
}
