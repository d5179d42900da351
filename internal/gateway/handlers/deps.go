package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/signalnoise/factgate/internal/gateway/analysis"
	"github.com/signalnoise/factgate/internal/gateway/billing"
	"github.com/signalnoise/factgate/internal/gateway/identity"
	"github.com/signalnoise/factgate/internal/gateway/ledger"
	"github.com/signalnoise/factgate/internal/shared/models"
)

// QuotaLedger gates requests and records completed spend.
type QuotaLedger interface {
	CheckAndReserve(ctx context.Context, id identity.Identity) (ledger.Decision, error)
	Commit(ctx context.Context, id identity.Identity, decision ledger.Decision, turns int) error
}

// Analyzer runs the full triage-and-analysis pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, int, error)
}

// Redeemer grants promo bonus credits.
type Redeemer interface {
	Redeem(ctx context.Context, subject, code string) (int64, error)
}

// EventProcessor applies verified billing events.
type EventProcessor interface {
	Apply(ctx context.Context, ev *billing.Event) error
}

// Upstream forwards a raw Messages API payload.
type Upstream interface {
	RawMessages(ctx context.Context, payload []byte) (int, []byte, error)
}

// AuditLogger persists one analysis record.
type AuditLogger interface {
	LogAnalysis(ctx context.Context, entry *models.AnalysisLog) error
}

// writeDenial maps a deny decision to its wire response: 429 for identity
// quotas with the upgrade path, 503 for the budget circuit breaker.
func writeDenial(w http.ResponseWriter, decision ledger.Decision, upgradeURL string) {
	if decision.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
	}

	switch decision.Reason {
	case ledger.ReasonBudgetExceeded:
		writeError(w, http.StatusServiceUnavailable, ErrorBody{
			Message: "Service temporarily unavailable. Please try again tomorrow.",
			Code:    "budget_exceeded",
		})
	case ledger.ReasonNetworkLimit:
		writeError(w, http.StatusTooManyRequests, ErrorBody{
			Message:    "Daily limit reached from this network. Upgrade to Pro for unlimited access!",
			Code:       "rate_limit_exceeded",
			UpgradeURL: upgradeURL,
		})
	default:
		writeError(w, http.StatusTooManyRequests, ErrorBody{
			Message:    "Free tier limit reached. Upgrade to Pro for unlimited access!",
			Code:       "rate_limit_exceeded",
			UpgradeURL: upgradeURL,
		})
	}
}

func errString(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}
