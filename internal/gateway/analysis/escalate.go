package analysis

import (
	"context"
	"log"

	"github.com/signalnoise/factgate/internal/gateway/providers"
)

// Tier is a model quality/cost level for full analysis.
type Tier string

const (
	TierCheap     Tier = "cheap"
	TierExpensive Tier = "expensive"
)

// triageSearchBudget bounds triage to a couple of quick searches.
const triageSearchBudget = 2

// TriageMetadata records why a tier was chosen, for downstream audit.
type TriageMetadata struct {
	Escalated      bool
	EscalateReason string
	Confidence     int
	Categories     []string
	Turns          int
}

// Controller runs the cheap triage pass and decides the analysis tier.
type Controller struct {
	runner              *Runner
	cheapModel          string
	expensiveModel      string
	confidenceThreshold int
}

func NewController(runner *Runner, cheapModel, expensiveModel string, confidenceThreshold int) *Controller {
	return &Controller{
		runner:              runner,
		cheapModel:          cheapModel,
		expensiveModel:      expensiveModel,
		confidenceThreshold: confidenceThreshold,
	}
}

// Model returns the model identifier for a tier.
func (c *Controller) Model(tier Tier) string {
	if tier == TierExpensive {
		return c.expensiveModel
	}
	return c.cheapModel
}

// Decide triages the claim on the cheap model and picks the tier for full
// analysis. Escalation is deliberately biased toward the expensive tier:
// a triage verdict that cannot be parsed never selects the cheap tier, and
// low confidence escalates even without an explicit escalate flag.
func (c *Controller) Decide(ctx context.Context, initial providers.Message) (Tier, TriageMetadata, error) {
	result, err := c.runner.Run(ctx, triagePrompt, initial, c.cheapModel, triageSearchBudget)
	if err != nil {
		return "", TriageMetadata{}, err
	}

	triage, err := ParseTriage(result.Text)
	if err != nil {
		log.Printf("analysis: triage parse failed, escalating: %v", err)
		return TierExpensive, TriageMetadata{
			Escalated:      true,
			EscalateReason: "Could not parse triage verdict — defaulting to expensive tier",
			Turns:          result.Turns,
		}, nil
	}

	meta := TriageMetadata{
		EscalateReason: triage.EscalateReason,
		Confidence:     triage.InitialConfidence,
		Categories:     triage.ClaimCategories,
		Turns:          result.Turns,
	}
	if triage.Escalate || triage.InitialConfidence < c.confidenceThreshold {
		meta.Escalated = true
		if meta.EscalateReason == "" {
			meta.EscalateReason = "Escalation threshold met"
		}
		return TierExpensive, meta, nil
	}
	return TierCheap, meta, nil
}
