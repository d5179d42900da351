package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnoise/factgate/internal/gateway/billing"
)

type fakeProcessor struct {
	err    error
	events []*billing.Event
}

func (f *fakeProcessor) Apply(_ context.Context, ev *billing.Event) error {
	f.events = append(f.events, ev)
	return f.err
}

func TestHandleWebhook(t *testing.T) {
	secret := "whsec_test"
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	payload := `{"type":"checkout.session.completed","data":{"object":{"client_reference_id":"u3","subscription":"sub_1","customer":"cus_1"}}}`

	newHandler := func(p EventProcessor) *WebhookHandler {
		h := NewWebhookHandler(p, secret)
		h.now = func() time.Time { return now }
		return h
	}

	signedRequest := func(body string) *http.Request {
		r := httptest.NewRequest("POST", "/v1/webhooks/billing", strings.NewReader(body))
		r.Header.Set(billing.SignatureHeader, billing.Sign([]byte(body), secret, now))
		return r
	}

	t.Run("verified event is applied and acknowledged", func(t *testing.T) {
		proc := &fakeProcessor{}
		rec := httptest.NewRecorder()
		newHandler(proc).HandleWebhook(rec, signedRequest(payload))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())
		require.Len(t, proc.events, 1)
		assert.Equal(t, billing.EventCheckoutCompleted, proc.events[0].Type)
	})

	t.Run("missing signature never reaches the processor", func(t *testing.T) {
		proc := &fakeProcessor{}
		rec := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/v1/webhooks/billing", strings.NewReader(payload))
		newHandler(proc).HandleWebhook(rec, r)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_signature", decodeError(t, rec).Code)
		assert.Empty(t, proc.events)
	})

	t.Run("signature over a different body is rejected", func(t *testing.T) {
		proc := &fakeProcessor{}
		rec := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/v1/webhooks/billing", strings.NewReader(payload))
		r.Header.Set(billing.SignatureHeader, billing.Sign([]byte(`{"type":"evil"}`), secret, now))
		newHandler(proc).HandleWebhook(rec, r)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, proc.events)
	})

	t.Run("stale signature is rejected", func(t *testing.T) {
		proc := &fakeProcessor{}
		rec := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/v1/webhooks/billing", strings.NewReader(payload))
		r.Header.Set(billing.SignatureHeader, billing.Sign([]byte(payload), secret, now.Add(-10*time.Minute)))
		newHandler(proc).HandleWebhook(rec, r)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("verified but malformed event is rejected", func(t *testing.T) {
		proc := &fakeProcessor{}
		rec := httptest.NewRecorder()
		newHandler(proc).HandleWebhook(rec, signedRequest(`{"data":{}}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
		assert.Empty(t, proc.events)
	})

	t.Run("processor failure is a 500 so the sender retries", func(t *testing.T) {
		proc := &fakeProcessor{err: errors.New("redis down")}
		rec := httptest.NewRecorder()
		newHandler(proc).HandleWebhook(rec, signedRequest(payload))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
