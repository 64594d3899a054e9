package main

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/clinic-scheduler/cmd/mainconfig"
	"github.com/wolfman30/clinic-scheduler/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const webhookPrefix = "/webhooks/whatsapp/"

// webhook is the part of messaging.Handler the lambda drives.
type webhook interface {
	Challenge(mode, token, challenge string) (string, bool)
	HandleEvent(ctx context.Context, clinicID string, body []byte, signature string) (int, error)
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

	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, app.Webhook, evt)
	})
}

func handle(ctx context.Context, hook webhook, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" || path == "/_health" {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK, Body: "ok"}, nil
	}

	clinicID := strings.TrimSpace(evt.PathParameters["clinicID"])
	if clinicID == "" && strings.HasPrefix(path, webhookPrefix) {
		clinicID = strings.Trim(strings.TrimPrefix(path, webhookPrefix), "/")
	}
	if clinicID == "" || strings.Contains(clinicID, "/") {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNotFound}, nil
	}

	switch method {
	case http.MethodGet:
		q := evt.QueryStringParameters
		challenge, ok := hook.Challenge(q["hub.mode"], q["hub.verify_token"], q["hub.challenge"])
		if !ok {
			return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusForbidden, Body: "Forbidden"}, nil
		}
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusOK,
			Body:       challenge,
			Headers:    map[string]string{"content-type": "text/plain"},
		}, nil
	case http.MethodPost:
	default:
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusMethodNotAllowed}, nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid body"}, nil
	}

	status, err := hook.HandleEvent(ctx, clinicID, body, headerValue(evt.Headers, "x-hub-signature-256"))
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: status, Body: http.StatusText(status)}, nil
	}
	return events.APIGatewayV2HTTPResponse{StatusCode: status}, nil
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(evt.Body)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
