package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/clinic-scheduler/cmd/mainconfig"
	"github.com/wolfman30/clinic-scheduler/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

type reminderSender interface {
	SendDue(ctx context.Context) (int, error)
}

type outboxDrainer interface {
	Drain(ctx context.Context) int
}

// result is returned to the scheduler invocation for visibility.
type result struct {
	RemindersSent    int `json:"reminders_sent"`
	IntentsDelivered int `json:"intents_delivered"`
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	awsCfg, err := mainconfig.LoadOptionalAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	app, err := bootstrap.Build(ctx, bootstrap.Deps{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		AWS:      awsCfg,
	})
	if err != nil {
		logger.Error("failed to build scheduler", "error", err)
		os.Exit(1)
	}

	var outbox outboxDrainer
	if app.Outbox != nil {
		outbox = app.Outbox
	}
	lambda.Start(func(ctx context.Context) (result, error) {
		return run(ctx, app.Reminders, outbox, logger)
	})
}

// run sends due reminders, then retries intents parked in the outbox.
func run(ctx context.Context, reminders reminderSender, outbox outboxDrainer, logger *logging.Logger) (result, error) {
	var res result
	sent, err := reminders.SendDue(ctx)
	res.RemindersSent = sent
	if err != nil {
		logger.Error("reminder run failed", "error", err, "sent", sent)
		return res, err
	}
	if outbox != nil {
		res.IntentsDelivered = outbox.Drain(ctx)
	}
	logger.Info("reminder run complete", "sent", res.RemindersSent, "intents_delivered", res.IntentsDelivered)
	return res, nil
}
