package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnoise/factgate/internal/gateway/analysis"
	"github.com/signalnoise/factgate/internal/gateway/identity"
	"github.com/signalnoise/factgate/internal/gateway/ledger"
	"github.com/signalnoise/factgate/internal/gateway/providers"
	"github.com/signalnoise/factgate/internal/shared/models"
)

type fakeLedger struct {
	decision  ledger.Decision
	checkErr  error
	commits   []int
	commitErr error
}

func (f *fakeLedger) CheckAndReserve(_ context.Context, _ identity.Identity) (ledger.Decision, error) {
	return f.decision, f.checkErr
}

func (f *fakeLedger) Commit(_ context.Context, _ identity.Identity, _ ledger.Decision, turns int) error {
	f.commits = append(f.commits, turns)
	return f.commitErr
}

type fakeAnalyzer struct {
	result *analysis.Result
	turns  int
	err    error
	got    analysis.Request
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req analysis.Request) (*analysis.Result, int, error) {
	f.got = req
	return f.result, f.turns, f.err
}

// fakeAudit collects entries on a channel because the handler writes them
// from a goroutine.
type fakeAudit struct {
	entries chan *models.AnalysisLog
}

func newFakeAudit() *fakeAudit {
	return &fakeAudit{entries: make(chan *models.AnalysisLog, 4)}
}

func (f *fakeAudit) LogAnalysis(_ context.Context, entry *models.AnalysisLog) error {
	f.entries <- entry
	return nil
}

func (f *fakeAudit) wait(t *testing.T) *models.AnalysisLog {
	t.Helper()
	select {
	case entry := <-f.entries:
		return entry
	case <-time.After(time.Second):
		t.Fatal("no audit entry written")
		return nil
	}
}

func analyzeResult() *analysis.Result {
	return &analysis.Result{
		Verdict: analysis.Verdict{
			Verdict:    "FALSE",
			Confidence: 90,
			Summary:    "No evidence supports it.",
			BottomLine: "False.",
		},
		TierMetadata: analysis.TierMetadata{
			Tier:  analysis.TierCheap,
			Model: "cheap-model",
			Turns: 3,
		},
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func analyzeRequest(body string) *http.Request {
	r := httptest.NewRequest("POST", "/v1/analyze", strings.NewReader(body))
	r.Header.Set("X-Fingerprint-ID", "fp_abc")
	return r
}

func TestHandleAnalyze(t *testing.T) {
	allowed := ledger.Decision{Allowed: true}

	t.Run("missing fingerprint is rejected", func(t *testing.T) {
		h := NewAnalyzeHandler(&fakeLedger{}, &fakeAnalyzer{}, newFakeAudit(), "/upgrade", 51200, 0.015)
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, httptest.NewRequest("POST", "/v1/analyze", strings.NewReader(`{"claim":"x"}`)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "missing_fingerprint", decodeError(t, rec).Code)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		h := NewAnalyzeHandler(&fakeLedger{}, &fakeAnalyzer{}, newFakeAudit(), "/upgrade", 51200, 0.015)
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, analyzeRequest(`{not json`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
	})

	t.Run("oversize body is rejected", func(t *testing.T) {
		h := NewAnalyzeHandler(&fakeLedger{}, &fakeAnalyzer{}, newFakeAudit(), "/upgrade", 16, 0.015)
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, analyzeRequest(`{"claim":"`+strings.Repeat("a", 100)+`"}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty claim without an image is rejected", func(t *testing.T) {
		h := NewAnalyzeHandler(&fakeLedger{}, &fakeAnalyzer{}, newFakeAudit(), "/upgrade", 51200, 0.015)
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, analyzeRequest(`{"claim":""}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
	})

	t.Run("subject limit denial is a 429 with the upgrade path", func(t *testing.T) {
		led := &fakeLedger{decision: ledger.Decision{
			Reason:     ledger.ReasonSubjectLimit,
			RetryAfter: 2 * time.Hour,
		}}
		h := NewAnalyzeHandler(led, &fakeAnalyzer{}, newFakeAudit(), "/upgrade", 51200, 0.015)
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, analyzeRequest(`{"claim":"x"}`))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "7200", rec.Header().Get("Retry-After"))
		body := decodeError(t, rec)
		assert.Equal(t, "rate_limit_exceeded", body.Code)
		assert.Equal(t, "/upgrade", body.UpgradeURL)
		assert.Empty(t, led.commits)
	})

	t.Run("network limit denial is a 429", func(t *testing.T) {
		led := &fakeLedger{decision: ledger.Decision{Reason: ledger.ReasonNetworkLimit}}
		h := NewAnalyzeHandler(led, &fakeAnalyzer{}, newFakeAudit(), "/upgrade", 51200, 0.015)
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, analyzeRequest(`{"claim":"x"}`))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "rate_limit_exceeded", decodeError(t, rec).Code)
	})

	t.Run("budget breaker denial is a 503 without an upgrade path", func(t *testing.T) {
		led := &fakeLedger{decision: ledger.Decision{Reason: ledger.ReasonBudgetExceeded}}
		h := NewAnalyzeHandler(led, &fakeAnalyzer{}, newFakeAudit(), "/upgrade", 51200, 0.015)
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, analyzeRequest(`{"claim":"x"}`))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, "budget_exceeded", body.Code)
		assert.Empty(t, body.UpgradeURL)
	})

	t.Run("success returns the verdict and commits the turns", func(t *testing.T) {
		led := &fakeLedger{decision: allowed}
		an := &fakeAnalyzer{result: analyzeResult(), turns: 3}
		audit := newFakeAudit()
		h := NewAnalyzeHandler(led, an, audit, "/upgrade", 51200, 0.015)
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, analyzeRequest(`{"claim":"the moon is cheese"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "cheap", rec.Header().Get("X-Analysis-Tier"))
		assert.Equal(t, "3", rec.Header().Get("X-Analysis-Turns"))
		assert.Equal(t, "0.045000", rec.Header().Get("X-Cost-USD"))
		assert.Empty(t, rec.Header().Get("X-Bonus-Used"))
		assert.Equal(t, []int{3}, led.commits)
		assert.Equal(t, "the moon is cheese", an.got.Claim)

		var result analysis.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, "FALSE", result.Verdict.Verdict)

		entry := audit.wait(t)
		assert.Equal(t, "fp_abc", entry.Subject)
		assert.Equal(t, "/v1/analyze", entry.Endpoint)
		assert.Equal(t, http.StatusOK, entry.StatusCode)
		assert.InDelta(t, 0.045, entry.CostUSD, 1e-9)
	})

	t.Run("bonus consumption is surfaced in a header", func(t *testing.T) {
		led := &fakeLedger{decision: ledger.Decision{Allowed: true, BonusUsed: true}}
		h := NewAnalyzeHandler(led, &fakeAnalyzer{result: analyzeResult(), turns: 1}, newFakeAudit(), "/upgrade", 51200, 0.015)
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, analyzeRequest(`{"claim":"x"}`))

		assert.Equal(t, "true", rec.Header().Get("X-Bonus-Used"))
	})

	t.Run("image requests reach the analyzer with the source attached", func(t *testing.T) {
		an := &fakeAnalyzer{result: analyzeResult(), turns: 1}
		h := NewAnalyzeHandler(&fakeLedger{decision: allowed}, an, newFakeAudit(), "/upgrade", 51200, 0.015)
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, analyzeRequest(`{"image":{"media_type":"image/png","data":"aGk="}}`))

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, an.got.Image)
		assert.Equal(t, "base64", an.got.Image.Type)
		assert.Equal(t, "image/png", an.got.Image.MediaType)
	})

	t.Run("turn timeout is a 504 and nothing is committed", func(t *testing.T) {
		led := &fakeLedger{decision: allowed}
		h := NewAnalyzeHandler(led, &fakeAnalyzer{err: analysis.ErrTurnTimeout, turns: 5}, newFakeAudit(), "/upgrade", 51200, 0.015)
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, analyzeRequest(`{"claim":"x"}`))

		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		assert.Equal(t, "analysis_timeout", decodeError(t, rec).Code)
		assert.Empty(t, led.commits)
	})

	t.Run("cancellation is a 499", func(t *testing.T) {
		h := NewAnalyzeHandler(&fakeLedger{decision: allowed}, &fakeAnalyzer{err: analysis.ErrCancelled}, newFakeAudit(), "/upgrade", 51200, 0.015)
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, analyzeRequest(`{"claim":"x"}`))

		assert.Equal(t, statusClientClosedRequest, rec.Code)
		assert.Equal(t, "cancelled", decodeError(t, rec).Code)
	})

	t.Run("malformed verdict is a 502", func(t *testing.T) {
		h := NewAnalyzeHandler(&fakeLedger{decision: allowed}, &fakeAnalyzer{err: analysis.ErrMalformedVerdict}, newFakeAudit(), "/upgrade", 51200, 0.015)
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, analyzeRequest(`{"claim":"x"}`))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "analysis_parse_error", decodeError(t, rec).Code)
	})

	t.Run("upstream API errors pass through with the provider's status", func(t *testing.T) {
		upstream := &providers.APIError{
			StatusCode: 529,
			Body:       []byte(`{"type":"error","error":{"type":"overloaded_error"}}`),
		}
		led := &fakeLedger{decision: allowed}
		h := NewAnalyzeHandler(led, &fakeAnalyzer{err: upstream}, newFakeAudit(), "/upgrade", 51200, 0.015)
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, analyzeRequest(`{"claim":"x"}`))

		assert.Equal(t, 529, rec.Code)
		assert.JSONEq(t, string(upstream.Body), rec.Body.String())
		assert.Empty(t, led.commits)
	})

	t.Run("failures are still audit logged", func(t *testing.T) {
		audit := newFakeAudit()
		h := NewAnalyzeHandler(&fakeLedger{decision: allowed}, &fakeAnalyzer{err: analysis.ErrTurnTimeout, turns: 5}, audit, "/upgrade", 51200, 0.015)
		rec := httptest.NewRecorder()
		h.HandleAnalyze(rec, analyzeRequest(`{"claim":"x"}`))

		entry := audit.wait(t)
		assert.Equal(t, http.StatusGatewayTimeout, entry.StatusCode)
		assert.Equal(t, 5, entry.Turns)
		require.NotNil(t, entry.ErrorMessage)
		assert.Contains(t, *entry.ErrorMessage, "timed out")
	})
}
