package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"
)

const textWebhook = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA_1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550001111", "phone_number_id": "1055"},
        "contacts": [{"wa_id": "5511999990000", "profile": {"name": "Ana"}}],
        "messages": [
          {"from": "5511999990000", "id": "wamid.A", "timestamp": "1792324800", "type": "text", "text": {"body": "hi"}},
          {"from": "5511999990000", "id": "wamid.B", "timestamp": "1792324801", "type": "interactive",
           "context": {"from": "15550001111", "id": "wamid.OUT"},
           "interactive": {"type": "button_reply", "button_reply": {"id": "confirm", "title": "Confirm"}}},
          {"from": "5511999990000", "id": "wamid.C", "timestamp": "1792324802", "type": "interactive",
           "interactive": {"type": "list_reply", "list_reply": {"id": "day_2026-10-19", "title": "Mon 19/10/2026"}}},
          {"from": "5511999990000", "id": "wamid.D", "timestamp": "1792324803", "type": "image"}
        ]
      }
    }]
  }]
}`

func TestParseWebhook(t *testing.T) {
	msgs, err := ParseWebhook([]byte(textWebhook))
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}

	if msgs[0].Text != "hi" || msgs[0].OptionID != "" {
		t.Errorf("text message parsed as %+v", msgs[0])
	}
	if msgs[0].From != "5511999990000" || msgs[0].MessageID != "wamid.A" {
		t.Errorf("unexpected sender/id: %+v", msgs[0])
	}
	if !msgs[0].ReceivedAt.Equal(time.Unix(1792324800, 0)) {
		t.Errorf("received at = %v", msgs[0].ReceivedAt)
	}

	if msgs[1].OptionID != "confirm" || msgs[1].Text != "Confirm" {
		t.Errorf("button reply parsed as %+v", msgs[1])
	}
	if msgs[1].ReplyTo != "wamid.OUT" {
		t.Errorf("reply to = %q, want wamid.OUT", msgs[1].ReplyTo)
	}
	if msgs[2].OptionID != "day_2026-10-19" {
		t.Errorf("list reply parsed as %+v", msgs[2])
	}
}

func TestParseWebhookStatusesOnly(t *testing.T) {
	body := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"statuses":[{"id":"wamid.X","status":"delivered"}]}}]}]}`
	msgs, err := ParseWebhook([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}

func TestParseWebhookInvalidJSON(t *testing.T) {
	if _, err := ParseWebhook([]byte("{")); err == nil {
		t.Fatal("expected error for invalid body")
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "test_app_secret"
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	validSig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, body, validSig, true},
		{"wrong signature", secret, body, "sha256=0000000000000000000000000000000000000000000000000000000000000000", false},
		{"empty signature", secret, body, "", false},
		{"empty secret", "", body, validSig, false},
		{"missing prefix", secret, body, "abcdef", false},
		{"tampered body", secret, []byte(`tampered`), validSig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifySignature(tt.secret, tt.body, tt.signature)
			if got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}
