package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduler/internal/conversation"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const (
	defaultBaseURL     = "https://graph.facebook.com/v18.0"
	defaultHTTPTimeout = 10 * time.Second

	// Cloud API limits for interactive messages.
	maxButtons      = 3
	maxListRows     = 10
	maxButtonTitle  = 20
	maxRowTitle     = 24
	maxInteractBody = 1024
	listButtonLabel = "Options"
)

var whatsappTracer = otel.Tracer("clinic.internal.messaging.whatsapp")

// Config controls how the WhatsApp sender behaves.
type Config struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        *logging.Logger
}

// APIError is a non-2xx answer from the Cloud API.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp: API error status=%d code=%d: %s", e.Status, e.Code, e.Message)
}

// Rejected reports whether the provider refused the payload itself, as
// opposed to an auth, throttling or server failure.
func (e *APIError) Rejected() bool {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return false
	}
	return e.Status >= 400 && e.Status < 500
}

// WhatsAppSender delivers conversation replies over the WhatsApp Cloud API.
type WhatsAppSender struct {
	baseURL       string
	token         string
	phoneNumberID string
	httpClient    *http.Client
	logger        *logging.Logger
}

// NewWhatsAppSender creates a configured sender with sane defaults.
func NewWhatsAppSender(cfg Config) (*WhatsAppSender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("whatsapp: access token is required")
	}
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("whatsapp: phone number id is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppSender{
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         strings.TrimSpace(cfg.Token),
		phoneNumberID: strings.TrimSpace(cfg.PhoneNumberID),
		httpClient:    httpClient,
		logger:        logger,
	}, nil
}

// Send delivers one outgoing message. Up to three options become reply
// buttons, up to ten a list, anything more numbered text. When the provider
// rejects an interactive payload the message is resent as numbered text so
// the user can still answer by number.
func (s *WhatsAppSender) Send(ctx context.Context, clinicID string, msg conversation.OutgoingMessage) error {
	ctx, span := whatsappTracer.Start(ctx, "messaging.whatsapp.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.id", clinicID),
		attribute.Int("clinic.whatsapp.options", len(msg.Options)),
	)

	req := BuildRequest(msg)
	err := s.post(ctx, req)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if req.Interactive != nil && errors.As(err, &apiErr) && apiErr.Rejected() {
		s.logger.Warn("interactive message rejected, falling back to text",
			"clinic_id", clinicID, "status", apiErr.Status, "code", apiErr.Code)
		err = s.post(ctx, textRequest(msg.To, NumberedText(msg.Text, msg.Options)))
		if err == nil {
			return nil
		}
	}
	span.RecordError(err)
	return err
}

// SendText delivers a plain text message.
func (s *WhatsAppSender) SendText(ctx context.Context, clinicID, to, body string) error {
	return s.Send(ctx, clinicID, conversation.OutgoingMessage{To: to, Text: body})
}

// BuildRequest picks the richest presentation the option count allows.
func BuildRequest(msg conversation.OutgoingMessage) SendRequest {
	opts := msg.Options
	switch {
	case len(opts) == 0:
		return textRequest(msg.To, msg.Text)
	case len(msg.Text) > maxInteractBody:
		return textRequest(msg.To, NumberedText(msg.Text, opts))
	case len(opts) <= maxButtons:
		buttons := make([]ReplyButton, 0, len(opts))
		for _, o := range opts {
			buttons = append(buttons, ReplyButton{
				Type:  "reply",
				Reply: ReplyWire{ID: o.ID, Title: truncate(o.Label, maxButtonTitle)},
			})
		}
		return interactiveRequest(msg.To, Interactive{
			Type:   "button",
			Body:   InteractiveText{Text: msg.Text},
			Action: InteractiveAction{Buttons: buttons},
		})
	case len(opts) <= maxListRows:
		rows := make([]ReplyWire, 0, len(opts))
		for _, o := range opts {
			row := ReplyWire{ID: o.ID, Title: truncate(o.Label, maxRowTitle)}
			if row.Title != o.Label {
				row.Description = o.Label
			}
			rows = append(rows, row)
		}
		return interactiveRequest(msg.To, Interactive{
			Type:   "list",
			Body:   InteractiveText{Text: msg.Text},
			Action: InteractiveAction{Button: listButtonLabel, Sections: []ListSection{{Rows: rows}}},
		})
	default:
		return textRequest(msg.To, NumberedText(msg.Text, opts))
	}
}

// NumberedText appends the options as a 1-based list matching the
// numbering the conversation engine accepts back.
func NumberedText(text string, opts []conversation.Option) string {
	if len(opts) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n")
	for i, o := range opts {
		fmt.Fprintf(&b, "\n%d. %s", i+1, o.Label)
	}
	return b.String()
}

func textRequest(to, body string) SendRequest {
	return SendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &TextBody{Body: body},
	}
}

func interactiveRequest(to string, in Interactive) SendRequest {
	return SendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive:      &in,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func (s *WhatsAppSender) post(ctx context.Context, req SendRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("whatsapp: read response: %w", err)
	}

	var sendResp SendResponse
	_ = json.Unmarshal(respBody, &sendResp)
	if resp.StatusCode >= 300 || sendResp.Error != nil {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		if sendResp.Error != nil {
			apiErr.Code = sendResp.Error.Code
			apiErr.Message = sendResp.Error.Message
		}
		return apiErr
	}
	return nil
}
