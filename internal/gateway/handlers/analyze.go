package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/signalnoise/factgate/internal/gateway/analysis"
	"github.com/signalnoise/factgate/internal/gateway/identity"
	"github.com/signalnoise/factgate/internal/gateway/ledger"
	"github.com/signalnoise/factgate/internal/gateway/providers"
	"github.com/signalnoise/factgate/internal/shared/models"
)

// AnalyzeRequest is the inbound body for POST /v1/analyze.
type AnalyzeRequest struct {
	Claim string `json:"claim"`
	Quick bool   `json:"quick,omitempty"`
	Image *struct {
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	} `json:"image,omitempty"`
}

type AnalyzeHandler struct {
	ledger         QuotaLedger
	analyzer       Analyzer
	audit          AuditLogger
	upgradeURL     string
	maxBodyBytes   int64
	costPerTurnUSD float64
}

func NewAnalyzeHandler(ledger QuotaLedger, analyzer Analyzer, audit AuditLogger, upgradeURL string, maxBodyBytes int64, costPerTurnUSD float64) *AnalyzeHandler {
	return &AnalyzeHandler{
		ledger:         ledger,
		analyzer:       analyzer,
		audit:          audit,
		upgradeURL:     upgradeURL,
		maxBodyBytes:   maxBodyBytes,
		costPerTurnUSD: costPerTurnUSD,
	}
}

// HandleAnalyze handles POST /v1/analyze
func (h *AnalyzeHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
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
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorBody{
			Message: "Invalid request format. Please use shorter text or smaller images.",
			Code:    "invalid_request",
		})
		return
	}
	if req.Claim == "" && req.Image == nil {
		writeError(w, http.StatusBadRequest, ErrorBody{
			Message: "Nothing to analyze: provide a claim or an image",
			Code:    "invalid_request",
		})
		return
	}

	decision, err := h.ledger.CheckAndReserve(ctx, id)
	if err != nil {
		log.Printf("analyze: quota check failed: %v", err)
		writeError(w, http.StatusInternalServerError, ErrorBody{Message: "Internal server error"})
		return
	}
	if !decision.Allowed {
		writeDenial(w, decision, h.upgradeURL)
		return
	}

	analysisReq := analysis.Request{Claim: req.Claim, Quick: req.Quick}
	if req.Image != nil {
		analysisReq.Image = &providers.ImageSource{
			Type:      "base64",
			MediaType: req.Image.MediaType,
			Data:      req.Image.Data,
		}
	}

	result, turns, err := h.analyzer.Analyze(ctx, analysisReq)
	if err != nil {
		status := h.writeAnalysisError(w, err)
		h.logAnalysis(id, result, turns, decision, startTime, status, err)
		return
	}

	// Usage and cost are recorded only after upstream success; a denial or
	// failed call never mutates the ledger.
	if err := h.ledger.Commit(ctx, id, decision, turns); err != nil {
		log.Printf("analyze: ledger commit failed: %v", err)
	}

	w.Header().Set("X-Analysis-Tier", string(result.TierMetadata.Tier))
	w.Header().Set("X-Analysis-Turns", fmt.Sprintf("%d", turns))
	w.Header().Set("X-Cost-USD", fmt.Sprintf("%.6f", float64(turns)*h.costPerTurnUSD))
	if decision.BonusUsed {
		w.Header().Set("X-Bonus-Used", "true")
	}

	h.logAnalysis(id, result, turns, decision, startTime, http.StatusOK, nil)
	writeJSON(w, http.StatusOK, result)
}

// writeAnalysisError maps pipeline failures to the wire, returning the
// status used.
func (h *AnalyzeHandler) writeAnalysisError(w http.ResponseWriter, err error) int {
	switch {
	case errors.Is(err, analysis.ErrCancelled):
		writeError(w, statusClientClosedRequest, ErrorBody{
			Message: "Request cancelled",
			Code:    "cancelled",
		})
		return statusClientClosedRequest

	case errors.Is(err, analysis.ErrTurnTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrorBody{
			Message: "Analysis timed out. Please try again.",
			Code:    "analysis_timeout",
		})
		return http.StatusGatewayTimeout

	case errors.Is(err, analysis.ErrMalformedVerdict):
		writeError(w, http.StatusBadGateway, ErrorBody{
			Message: "Analysis did not produce a valid verdict. Please try again.",
			Code:    "analysis_parse_error",
		})
		return http.StatusBadGateway

	default:
		var apiErr *providers.APIError
		if errors.As(err, &apiErr) {
			// Upstream failures pass through with the provider's status.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(apiErr.StatusCode)
			w.Write(apiErr.Body)
			return apiErr.StatusCode
		}
		log.Printf("analyze: pipeline error: %v", err)
		writeError(w, http.StatusInternalServerError, ErrorBody{Message: "Internal server error"})
		return http.StatusInternalServerError
	}
}

// logAnalysis records the request asynchronously so the audit write never
// blocks the response.
func (h *AnalyzeHandler) logAnalysis(id identity.Identity, result *analysis.Result, turns int, decision ledger.Decision, startTime time.Time, status int, err error) {
	entry := &models.AnalysisLog{
		Subject:    id.Subject,
		Network:    id.Network,
		Endpoint:   "/v1/analyze",
		Turns:      turns,
		CostUSD:    float64(turns) * h.costPerTurnUSD,
		LatencyMs:  int(time.Since(startTime).Milliseconds()),
		BonusUsed:  decision.BonusUsed,
		Entitled:   decision.Entitled,
		StatusCode: status,
	}
	if result != nil {
		entry.Model = result.TierMetadata.Model
		entry.Tier = string(result.TierMetadata.Tier)
		entry.Escalated = result.TierMetadata.Escalated
		if reason := result.TierMetadata.EscalateReason; reason != "" {
			entry.EscalateReason = &reason
		}
	}
	entry.ErrorMessage = errString(err)

	go func() {
		if logErr := h.audit.LogAnalysis(context.Background(), entry); logErr != nil {
			log.Printf("analyze: audit log failed: %v", logErr)
		}
	}()
}
