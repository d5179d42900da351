package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/signalnoise/factgate/internal/gateway/identity"
	"github.com/signalnoise/factgate/internal/gateway/ledger"
	"github.com/signalnoise/factgate/internal/shared/models"
)

// MessagesHandler proxies raw Messages API payloads for clients that run
// the agentic loop themselves. Each proxied call is one model turn: it is
// quota-gated before the upstream call and committed as a single turn
// after upstream success.
type MessagesHandler struct {
	ledger         QuotaLedger
	upstream       Upstream
	audit          AuditLogger
	upgradeURL     string
	maxBodyBytes   int64
	costPerTurnUSD float64
}

func NewMessagesHandler(ledger QuotaLedger, upstream Upstream, audit AuditLogger, upgradeURL string, maxBodyBytes int64, costPerTurnUSD float64) *MessagesHandler {
	return &MessagesHandler{
		ledger:         ledger,
		upstream:       upstream,
		audit:          audit,
		upgradeURL:     upgradeURL,
		maxBodyBytes:   maxBodyBytes,
		costPerTurnUSD: costPerTurnUSD,
	}
}

// HandleMessages handles POST /v1/messages
func (h *MessagesHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	id, err := identity.Resolve(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorBody{
			Message: "Missing fingerprint ID",
			Code:    "missing_fingerprint",
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorBody{
			Message: "Request too large. Please use shorter text or smaller images.",
			Code:    "request_too_large",
		})
		return
	}

	var probe struct {
		Model    string            `json:"model"`
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || probe.Model == "" || probe.Messages == nil {
		writeError(w, http.StatusBadRequest, ErrorBody{
			Message: "Invalid request format",
			Code:    "invalid_request",
		})
		return
	}

	decision, err := h.ledger.CheckAndReserve(ctx, id)
	if err != nil {
		log.Printf("messages: quota check failed: %v", err)
		writeError(w, http.StatusInternalServerError, ErrorBody{Message: "Internal server error"})
		return
	}
	if !decision.Allowed {
		writeDenial(w, decision, h.upgradeURL)
		return
	}

	status, body, err := h.upstream.RawMessages(ctx, payload)
	if err != nil {
		log.Printf("messages: upstream call failed: %v", err)
		writeError(w, http.StatusBadGateway, ErrorBody{
			Message: "Upstream provider unavailable",
			Code:    "upstream_error",
		})
		h.logProxy(id, probe.Model, decision, startTime, http.StatusBadGateway, err)
		return
	}

	// Upstream responses, success or failure, pass through verbatim. Only
	// a 200 counts against usage and spend.
	if status == http.StatusOK {
		if err := h.ledger.Commit(ctx, id, decision, 1); err != nil {
			log.Printf("messages: ledger commit failed: %v", err)
		}
	}

	h.logProxy(id, probe.Model, decision, startTime, status, nil)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func (h *MessagesHandler) logProxy(id identity.Identity, model string, decision ledger.Decision, startTime time.Time, status int, err error) {
	entry := &models.AnalysisLog{
		Subject:      id.Subject,
		Network:      id.Network,
		Endpoint:     "/v1/messages",
		Model:        model,
		Turns:        1,
		CostUSD:      h.costPerTurnUSD,
		LatencyMs:    int(time.Since(startTime).Milliseconds()),
		BonusUsed:    decision.BonusUsed,
		Entitled:     decision.Entitled,
		StatusCode:   status,
		ErrorMessage: errString(err),
	}

	go func() {
		if logErr := h.audit.LogAnalysis(context.Background(), entry); logErr != nil {
			log.Printf("messages: audit log failed: %v", logErr)
		}
	}()
}
