package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/conversation"
)

// ParseWebhook extracts inbound messages from a Cloud API webhook body.
// Delivery statuses and unsupported message types are skipped.
func ParseWebhook(body []byte) ([]conversation.InboundMessage, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("whatsapp: decode webhook: %w", err)
	}
	return ParseWebhookEvent(event), nil
}

// ParseWebhookEvent flattens a decoded webhook into inbound messages.
func ParseWebhookEvent(event WebhookEvent) []conversation.InboundMessage {
	var messages []conversation.InboundMessage
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			if change.Field != "" && change.Field != "messages" {
				continue
			}
			for _, m := range change.Value.Messages {
				parsed := conversation.InboundMessage{
					MessageID:  m.ID,
					From:       m.From,
					ReceivedAt: parseUnix(m.Timestamp),
				}
				if m.Context != nil {
					parsed.ReplyTo = m.Context.ID
				}

				switch {
				case m.Type == "text" && m.Text != nil:
					parsed.Text = m.Text.Body
				case m.Interactive != nil && m.Interactive.ButtonReply != nil:
					parsed.OptionID = m.Interactive.ButtonReply.ID
					parsed.Text = m.Interactive.ButtonReply.Title
				case m.Interactive != nil && m.Interactive.ListReply != nil:
					parsed.OptionID = m.Interactive.ListReply.ID
					parsed.Text = m.Interactive.ListReply.Title
				case m.Button != nil:
					parsed.OptionID = m.Button.Payload
					parsed.Text = m.Button.Text
				default:
					continue
				}
				messages = append(messages, parsed)
			}
		}
	}
	return messages
}

func parseUnix(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	// Signature format: "sha256=<hex>"
	const prefix = "sha256="
	if len(signature) <= len(prefix) || signature[:len(prefix)] != prefix {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHex))
}
