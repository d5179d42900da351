package handlers

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/signalnoise/factgate/internal/gateway/billing"
)

// webhookMaxBody caps event payloads well above any real event size.
const webhookMaxBody = 1 << 20

type WebhookHandler struct {
	processor EventProcessor
	secret    string
	now       func() time.Time
}

func NewWebhookHandler(processor EventProcessor, secret string) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		secret:    secret,
		now:       time.Now,
	}
}

// HandleWebhook handles POST /v1/webhooks/billing
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, webhookMaxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorBody{
			Message: "Could not read payload",
			Code:    "invalid_request",
		})
		return
	}

	// Authentication first: an unverified event never mutates state.
	if err := billing.VerifySignature(payload, r.Header.Get(billing.SignatureHeader), h.secret, h.now()); err != nil {
		log.Printf("webhook: signature verification failed: %v", err)
		writeError(w, http.StatusBadRequest, ErrorBody{
			Message: "Invalid signature",
			Code:    "invalid_signature",
		})
		return
	}

	ev, err := billing.ParseEvent(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorBody{
			Message: "Malformed event",
			Code:    "invalid_request",
		})
		return
	}

	if err := h.processor.Apply(r.Context(), ev); err != nil {
		log.Printf("webhook: handler error: %v", err)
		writeError(w, http.StatusInternalServerError, ErrorBody{Message: "Webhook handler failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
