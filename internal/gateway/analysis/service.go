package analysis

import (
	"context"
	"fmt"

	"github.com/signalnoise/factgate/internal/gateway/providers"
)

// analysisSearchBudget is the per-request cap on web searches during full
// analysis.
const analysisSearchBudget = 5

// Request is one claim to analyze.
type Request struct {
	Claim string
	Quick bool
	Image *providers.ImageSource
}

// TierMetadata tells consumers which tier produced the verdict and why.
type TierMetadata struct {
	Tier           Tier     `json:"tier"`
	Model          string   `json:"model"`
	Escalated      bool     `json:"escalated"`
	EscalateReason string   `json:"escalateReason,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	Turns          int      `json:"turns"`
}

// Result is the final structured output of one analysis.
type Result struct {
	Verdict
	TierMetadata TierMetadata `json:"tierMetadata"`
}

// Service orchestrates triage, tier selection and full analysis.
type Service struct {
	runner     *Runner
	controller *Controller
}

func NewService(runner *Runner, controller *Controller) *Service {
	return &Service{runner: runner, controller: controller}
}

func initialMessage(req Request) providers.Message {
	if req.Image != nil {
		blocks := []providers.ContentBlock{{Type: "image", Source: req.Image}}
		text := "Analyze the claim in this image."
		if req.Claim != "" {
			text = "Analyze the claim in this image. Context from the user: " + req.Claim
		}
		blocks = append(blocks, providers.ContentBlock{Type: "text", Text: text})
		return providers.BlocksMessage("user", blocks)
	}
	return providers.TextMessage("user", "Fact-check this claim: "+req.Claim)
}

func triageMessage(req Request) providers.Message {
	if req.Image != nil {
		blocks := []providers.ContentBlock{{Type: "image", Source: req.Image}}
		text := "Quick triage scan — the user uploaded an image. Determine if this needs escalation."
		if req.Claim != "" {
			text = "Quick triage scan — the user uploaded an image with context: " + req.Claim + ". Determine if this needs escalation."
		}
		blocks = append(blocks, providers.ContentBlock{Type: "text", Text: text})
		return providers.BlocksMessage("user", blocks)
	}
	return providers.TextMessage("user", "Quick triage scan of this claim: "+req.Claim)
}

// Analyze runs the full pipeline for one request and reports the total
// number of model turns consumed, which feeds cost accounting.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, int, error) {
	if req.Quick {
		return s.quickCheck(ctx, req)
	}

	tier, triage, err := s.controller.Decide(ctx, triageMessage(req))
	if err != nil {
		return nil, 0, err
	}
	turns := triage.Turns

	result, err := s.runner.Run(ctx, analysisPrompt, initialMessage(req), s.controller.Model(tier), analysisSearchBudget)
	turns += result.Turns
	if err != nil {
		return nil, turns, err
	}

	verdict, err := ParseVerdict(result.Text)
	if err != nil {
		return nil, turns, fmt.Errorf("final analysis: %w", err)
	}

	return &Result{
		Verdict: *verdict,
		TierMetadata: TierMetadata{
			Tier:           tier,
			Model:          s.controller.Model(tier),
			Escalated:      triage.Escalated,
			EscalateReason: triage.EscalateReason,
			Categories:     triage.Categories,
			Turns:          turns,
		},
	}, turns, nil
}

// quickCheck skips triage and runs a single cheap-tier pass with the
// reduced schema.
func (s *Service) quickCheck(ctx context.Context, req Request) (*Result, int, error) {
	result, err := s.runner.Run(ctx, quickCheckPrompt, initialMessage(req), s.controller.Model(TierCheap), triageSearchBudget)
	if err != nil {
		return nil, result.Turns, err
	}

	verdict, err := ParseVerdict(result.Text)
	if err != nil {
		return nil, result.Turns, fmt.Errorf("quick check: %w", err)
	}

	return &Result{
		Verdict: *verdict,
		TierMetadata: TierMetadata{
			Tier:  TierCheap,
			Model: s.controller.Model(TierCheap),
			Turns: result.Turns,
		},
	}, result.Turns, nil
}
