package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/conversation"
)

type graphStub struct {
	mu       sync.Mutex
	requests []SendRequest
	paths    []string
	// reject answers interactive payloads with this status.
	reject   int
}

func (g *graphStub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test_token" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		g.mu.Lock()
		g.requests = append(g.requests, req)
		g.paths = append(g.paths, r.URL.Path)
		g.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if g.reject != 0 && req.Type == "interactive" {
			w.WriteHeader(g.reject)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid parameter","type":"OAuthException","code":100}}`))
			return
		}
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.1"}]}`))
	})
}

func newTestSender(t *testing.T, stub *graphStub) *WhatsAppSender {
	t.Helper()
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)
	sender, err := NewWhatsAppSender(Config{BaseURL: srv.URL + "/", Token: "test_token", PhoneNumberID: "1055"})
	require.NoError(t, err)
	return sender
}

func opts(n int) []conversation.Option {
	out := make([]conversation.Option, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, conversation.Option{ID: "time_0" + string(rune('0'+i)) + ":00", Label: "Option " + string(rune('A'+i))})
	}
	return out
}

func TestNewWhatsAppSenderRequiresCredentials(t *testing.T) {
	_, err := NewWhatsAppSender(Config{PhoneNumberID: "1"})
	assert.Error(t, err)
	_, err = NewWhatsAppSender(Config{Token: "t"})
	assert.Error(t, err)
}

func TestBuildRequestShapes(t *testing.T) {
	tests := []struct {
		name    string
		options int
		wantTyp string
		wantInt string
	}{
		{"plain text", 0, "text", ""},
		{"buttons", 3, "interactive", "button"},
		{"list", 10, "interactive", "list"},
		{"numbered text", 11, "text", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := BuildRequest(conversation.OutgoingMessage{To: "5511999990000", Text: "Pick one", Options: opts(tt.options)})
			assert.Equal(t, tt.wantTyp, req.Type)
			assert.Equal(t, "whatsapp", req.MessagingProduct)
			if tt.wantInt == "" {
				require.NotNil(t, req.Text)
				assert.Nil(t, req.Interactive)
				return
			}
			require.NotNil(t, req.Interactive)
			assert.Equal(t, tt.wantInt, req.Interactive.Type)
		})
	}
}

func TestBuildRequestTruncatesTitles(t *testing.T) {
	long := "Laser hair removal full legs and bikini"
	req := BuildRequest(conversation.OutgoingMessage{
		To:      "1",
		Text:    "Services",
		Options: []conversation.Option{{ID: "service_laser", Label: long}},
	})
	require.NotNil(t, req.Interactive)
	title := req.Interactive.Action.Buttons[0].Reply.Title
	assert.LessOrEqual(t, len([]rune(title)), maxButtonTitle)
	assert.Equal(t, "service_laser", req.Interactive.Action.Buttons[0].Reply.ID)

	list := BuildRequest(conversation.OutgoingMessage{
		To:      "1",
		Text:    "Services",
		Options: append(opts(4), conversation.Option{ID: "service_laser", Label: long}),
	})
	rows := list.Interactive.Action.Sections[0].Rows
	assert.LessOrEqual(t, len([]rune(rows[4].Title)), maxRowTitle)
	assert.Equal(t, long, rows[4].Description)
	assert.Empty(t, rows[0].Description)
}

func TestNumberedText(t *testing.T) {
	got := NumberedText("Choose a day", []conversation.Option{
		{ID: "day_2026-10-19", Label: "Mon 19/10/2026"},
		{ID: "back", Label: "Back"},
	})
	assert.Equal(t, "Choose a day\n\n1. Mon 19/10/2026\n2. Back", got)
	assert.Equal(t, "hello", NumberedText("hello", nil))
}

func TestSendPostsToPhoneNumber(t *testing.T) {
	stub := &graphStub{}
	sender := newTestSender(t, stub)

	err := sender.Send(context.Background(), "clinic-1", conversation.OutgoingMessage{
		To:      "5511999990000",
		Text:    "Confirm?",
		Options: opts(2),
	})
	require.NoError(t, err)
	require.Len(t, stub.requests, 1)
	assert.Equal(t, "/1055/messages", stub.paths[0])
	assert.Equal(t, "interactive", stub.requests[0].Type)
	assert.Len(t, stub.requests[0].Interactive.Action.Buttons, 2)
}

func TestSendFallsBackToNumberedText(t *testing.T) {
	stub := &graphStub{reject: http.StatusBadRequest}
	sender := newTestSender(t, stub)

	err := sender.Send(context.Background(), "clinic-1", conversation.OutgoingMessage{
		To:      "5511999990000",
		Text:    "Confirm?",
		Options: opts(2),
	})
	require.NoError(t, err)
	require.Len(t, stub.requests, 2)
	assert.Equal(t, "text", stub.requests[1].Type)
	assert.True(t, strings.HasSuffix(stub.requests[1].Text.Body, "1. Option A\n2. Option B"))
}

func TestSendDoesNotFallBackOnAuthFailure(t *testing.T) {
	stub := &graphStub{reject: http.StatusUnauthorized}
	sender := newTestSender(t, stub)

	err := sender.Send(context.Background(), "clinic-1", conversation.OutgoingMessage{To: "1", Text: "x", Options: opts(2)})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, 100, apiErr.Code)
	assert.Len(t, stub.requests, 1)
}

func TestSendText(t *testing.T) {
	stub := &graphStub{}
	sender := newTestSender(t, stub)

	require.NoError(t, sender.SendText(context.Background(), "clinic-1", "5511999990000", "Reminder"))
	require.Len(t, stub.requests, 1)
	assert.Equal(t, "Reminder", stub.requests[0].Text.Body)
	assert.Equal(t, "5511999990000", stub.requests[0].To)
}
