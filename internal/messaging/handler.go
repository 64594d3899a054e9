package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduler/internal/conversation"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var webhookTracer = otel.Tracer("clinic.internal.messaging.webhook")

const maxWebhookBody = 1 << 20

// Processor runs one conversation turn.
type Processor interface {
	ProcessMessage(ctx context.Context, clinicID string, msg conversation.InboundMessage) ([]conversation.OutgoingMessage, error)
}

// Sender delivers replies to the chat transport.
type Sender interface {
	Send(ctx context.Context, clinicID string, msg conversation.OutgoingMessage) error
}

// HandlerConfig carries the webhook secrets.
type HandlerConfig struct {
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 validation when set.
	AppSecret string
}

// Handler serves the WhatsApp webhook.
type Handler struct {
	cfg       HandlerConfig
	processor Processor
	sender    Sender
	dedupe    Deduper
	metrics   *metrics.SchedulerMetrics
	logger    *logging.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(cfg HandlerConfig, processor Processor, sender Sender, dedupe Deduper, m *metrics.SchedulerMetrics, logger *logging.Logger) *Handler {
	if processor == nil {
		panic("messaging: processor cannot be nil")
	}
	if sender == nil {
		panic("messaging: sender cannot be nil")
	}
	if dedupe == nil {
		dedupe = NewMemoryDeduper()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		cfg:       cfg,
		processor: processor,
		sender:    sender,
		dedupe:    dedupe,
		metrics:   m,
		logger:    logger,
	}
}

// Challenge answers the subscription handshake. It returns the challenge
// to echo and whether the handshake is accepted.
func (h *Handler) Challenge(mode, token, challenge string) (string, bool) {
	if mode == "subscribe" && h.cfg.VerifyToken != "" && token == h.cfg.VerifyToken {
		return challenge, true
	}
	return "", false
}

// Verify handles GET /webhooks/whatsapp/{clinicID}.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := h.Challenge(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if !ok {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// Receive handles POST /webhooks/whatsapp/{clinicID}.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	clinicID := strings.TrimSpace(chi.URLParam(r, "clinicID"))
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	status, err := h.HandleEvent(r.Context(), clinicID, body, r.Header.Get("X-Hub-Signature-256"))
	if err != nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.WriteHeader(status)
}

var (
	errBadSignature = errors.New("messaging: invalid webhook signature")
	errNoClinic     = errors.New("messaging: clinic id is required")
)

// HandleEvent processes one webhook body and returns the status the
// provider should see. A failed turn returns 500 after releasing its
// dedupe claim so the provider redelivers it; turns that already
// completed stay claimed and are skipped on redelivery. Turns rejected
// as not found or invalid are logged and acknowledged.
func (h *Handler) HandleEvent(ctx context.Context, clinicID string, body []byte, signature string) (status int, err error) {
	ctx, span := webhookTracer.Start(ctx, "messaging.whatsapp.webhook")
	defer span.End()
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		h.metrics.ObserveWebhookLatency(strconv.Itoa(status), time.Since(start).Seconds())
	}()
	span.SetAttributes(attribute.String("clinic.id", clinicID))

	if clinicID == "" {
		return http.StatusBadRequest, errNoClinic
	}
	if h.cfg.AppSecret != "" && !VerifySignature(h.cfg.AppSecret, body, signature) {
		h.logger.Warn("invalid whatsapp signature", "clinic_id", clinicID)
		return http.StatusUnauthorized, errBadSignature
	}
	messages, err := ParseWebhook(body)
	if err != nil {
		h.logger.Error("failed to parse whatsapp webhook", "error", err, "clinic_id", clinicID)
		return http.StatusBadRequest, err
	}

	var failed error
	for _, msg := range messages {
		if err := h.handleMessage(ctx, clinicID, msg); err != nil {
			failed = err
		}
	}
	if failed != nil {
		return http.StatusInternalServerError, failed
	}
	return http.StatusOK, nil
}

func (h *Handler) handleMessage(ctx context.Context, clinicID string, msg conversation.InboundMessage) error {
	logger := h.logger.WithConversation(clinicID, msg.From)
	if msg.MessageID != "" {
		first, err := h.dedupe.Claim(ctx, msg.MessageID)
		if err != nil {
			// Fall through; the turn runs without a claim.
			logger.Warn("dedupe claim failed", "error", err, "message_id", msg.MessageID)
		} else if !first {
			logger.Info("duplicate inbound ignored", "message_id", msg.MessageID)
			return nil
		}
	}

	replies, err := h.processor.ProcessMessage(ctx, clinicID, msg)
	if apperrors.IsNotFound(err) || apperrors.IsValidation(err) {
		// Redelivery cannot succeed; the message stays claimed and is acked.
		logger.Warn("conversation turn rejected", "error", err, "message_id", msg.MessageID)
		return nil
	}
	if err != nil {
		logger.Error("conversation turn failed", "error", err, "message_id", msg.MessageID)
		if msg.MessageID != "" {
			if relErr := h.dedupe.Release(ctx, msg.MessageID); relErr != nil {
				logger.Warn("dedupe release failed", "error", relErr, "message_id", msg.MessageID)
			}
		}
		return fmt.Errorf("messaging: process %s: %w", msg.MessageID, err)
	}

	for _, reply := range replies {
		if err := h.sender.Send(ctx, clinicID, reply); err != nil {
			h.metrics.ObserveSideEffectFailure("reply")
			logger.Error("failed to send reply", "error", err, "message_id", msg.MessageID)
		}
	}
	return nil
}
