package messaging

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/conversation"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
)

type fakeProcessor struct {
	mu      sync.Mutex
	calls   []conversation.InboundMessage
	clinics []string
	fail    map[string]error
}

func (f *fakeProcessor) ProcessMessage(_ context.Context, clinicID string, msg conversation.InboundMessage) ([]conversation.OutgoingMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)
	f.clinics = append(f.clinics, clinicID)
	if err := f.fail[msg.MessageID]; err != nil {
		return nil, err
	}
	return []conversation.OutgoingMessage{{To: msg.From, Text: "echo " + msg.Text}}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []conversation.OutgoingMessage
	err  error
}

func (f *fakeSender) Send(_ context.Context, _ string, msg conversation.OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/webhooks/whatsapp/{clinicID}", h.Verify)
	r.Post("/webhooks/whatsapp/{clinicID}", h.Receive)
	return r
}

func post(t *testing.T, router http.Handler, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp/clinic-1", strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlerVerify(t *testing.T) {
	h := NewHandler(HandlerConfig{VerifyToken: "my_verify_token"}, &fakeProcessor{}, &fakeSender{}, nil, nil, nil)
	router := newRouter(h)

	t.Run("valid challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhooks/whatsapp/clinic-1?hub.mode=subscribe&hub.verify_token=my_verify_token&hub.challenge=CHALLENGE_123", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "CHALLENGE_123", w.Body.String())
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhooks/whatsapp/clinic-1?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=X", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("empty configured token", func(t *testing.T) {
		open := NewHandler(HandlerConfig{}, &fakeProcessor{}, &fakeSender{}, nil, nil, nil)
		_, ok := open.Challenge("subscribe", "", "X")
		assert.False(t, ok)
	})
}

func TestHandlerReceiveProcessesAndReplies(t *testing.T) {
	proc := &fakeProcessor{}
	sender := &fakeSender{}
	reg := prometheus.NewRegistry()
	h := NewHandler(HandlerConfig{}, proc, sender, NewMemoryDeduper(), metrics.NewSchedulerMetrics(reg), nil)

	w := post(t, newRouter(h), textWebhook, nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, proc.calls, 3)
	assert.Equal(t, []string{"clinic-1", "clinic-1", "clinic-1"}, proc.clinics)
	assert.Equal(t, "confirm", proc.calls[1].OptionID)
	require.Len(t, sender.sent, 3)
	assert.Equal(t, "echo hi", sender.sent[0].Text)

	families, err := reg.Gather()
	require.NoError(t, err)
	var observed uint64
	for _, mf := range families {
		if mf.GetName() == "clinic_messaging_webhook_latency_seconds" {
			for _, m := range mf.GetMetric() {
				observed += m.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.Equal(t, uint64(1), observed)
}

func TestHandlerReceiveIgnoresRedelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	proc := &fakeProcessor{}
	h := NewHandler(HandlerConfig{}, proc, &fakeSender{}, NewRedisDeduper(client, 0), nil, nil)
	router := newRouter(h)

	require.Equal(t, http.StatusOK, post(t, router, textWebhook, nil).Code)
	require.Equal(t, http.StatusOK, post(t, router, textWebhook, nil).Code)
	assert.Len(t, proc.calls, 3)
	assert.True(t, mr.Exists("whatsapp:inbound:wamid.A"))
}

func TestHandlerReceiveFailedTurnIsRetried(t *testing.T) {
	proc := &fakeProcessor{fail: map[string]error{"wamid.B": errors.New("session store down")}}
	h := NewHandler(HandlerConfig{}, proc, &fakeSender{}, NewMemoryDeduper(), nil, nil)
	router := newRouter(h)

	w := post(t, router, textWebhook, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Len(t, proc.calls, 3)

	proc.fail = nil
	w = post(t, router, textWebhook, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, proc.calls, 4)
	assert.Equal(t, "wamid.B", proc.calls[3].MessageID)
}

func TestHandlerReceiveRejectedTurnIsAcknowledged(t *testing.T) {
	proc := &fakeProcessor{fail: map[string]error{
		"wamid.A": fmt.Errorf("conversation: %w", apperrors.NotFound("clinic %q", "clinic-1")),
		"wamid.B": apperrors.Validation("clinic id and sender phone are required"),
	}}
	dedupe := NewMemoryDeduper()
	h := NewHandler(HandlerConfig{}, proc, &fakeSender{}, dedupe, nil, nil)
	router := newRouter(h)

	w := post(t, router, textWebhook, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, proc.calls, 3)

	// Rejected messages keep their claim, so a redelivery does not rerun them.
	w = post(t, router, textWebhook, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, proc.calls, 3)
}

func TestHandlerReceiveSendFailureStillAcknowledged(t *testing.T) {
	sender := &fakeSender{err: errors.New("provider down")}
	h := NewHandler(HandlerConfig{}, &fakeProcessor{}, sender, nil, nil, nil)
	w := post(t, newRouter(h), textWebhook, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, sender.sent, 3)
}

func TestHandlerReceiveSignature(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewHandler(HandlerConfig{AppSecret: "s3cret"}, proc, &fakeSender{}, nil, nil, nil)
	router := newRouter(h)

	w := post(t, router, textWebhook, map[string]string{"X-Hub-Signature-256": "sha256=00"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, proc.calls)

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write([]byte(textWebhook))
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	w = post(t, router, textWebhook, map[string]string{"X-Hub-Signature-256": sig})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, proc.calls, 3)
}

func TestHandlerReceiveBadBody(t *testing.T) {
	h := NewHandler(HandlerConfig{}, &fakeProcessor{}, &fakeSender{}, nil, nil, nil)
	w := post(t, newRouter(h), "not json", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRedisDeduperRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	d := NewRedisDeduper(client, 0)
	ctx := context.Background()

	first, err := d.Claim(ctx, "wamid.Z")
	require.NoError(t, err)
	assert.True(t, first)
	again, err := d.Claim(ctx, "wamid.Z")
	require.NoError(t, err)
	assert.False(t, again)
	assert.Equal(t, DefaultDedupeTTL, mr.TTL("whatsapp:inbound:wamid.Z"))

	require.NoError(t, d.Release(ctx, "wamid.Z"))
	first, err = d.Claim(ctx, "wamid.Z")
	require.NoError(t, err)
	assert.True(t, first)
}
