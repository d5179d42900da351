package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedVerdict marks model output that failed strict verdict
// validation. Triage callers fail safe toward escalation; final-analysis
// callers surface it as retryable.
var ErrMalformedVerdict = errors.New("malformed verdict JSON")

// TriageVerdict is the parsed triage assessment.
type TriageVerdict struct {
	Escalate          bool     `json:"escalate"`
	EscalateReason    string   `json:"escalateReason"`
	InitialConfidence int      `json:"initialConfidence"`
	ClaimCategories   []string `json:"claimCategories"`
	QuickSummary      string   `json:"quickSummary"`
}

// Claim is one fact-checked assertion inside a verdict.
type Claim struct {
	Claim       string `json:"claim"`
	Status      string `json:"status"`
	Explanation string `json:"explanation"`
}

// Citation is one source reference from the model's searches.
type Citation struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	CitedText string `json:"cited_text,omitempty"`
	PageAge   string `json:"page_age,omitempty"`
}

// Verdict is the final structured analysis.
type Verdict struct {
	Verdict        string     `json:"verdict"`
	Confidence     int        `json:"confidence"`
	Summary        string     `json:"summary"`
	Claims         []Claim    `json:"claims,omitempty"`
	Context        string     `json:"context,omitempty"`
	RedFlags       []string   `json:"redFlags,omitempty"`
	Citations      []Citation `json:"citations,omitempty"`
	FactCheckMatch string     `json:"factCheckMatch,omitempty"`
	BottomLine     string     `json:"bottomLine"`
}

var validVerdicts = map[string]bool{
	"FACT":         true,
	"MOSTLY FACT":  true,
	"MISLEADING":   true,
	"MOSTLY FALSE": true,
	"FALSE":        true,
	"UNVERIFIABLE": true,
}

var (
	fenceOpen     = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	fenceClose    = regexp.MustCompile("\\s*```\\s*$")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// extractJSON strips markdown fences and surrounding prose, keeping the
// outermost object, and drops trailing commas.
func extractJSON(text string) (string, error) {
	clean := strings.TrimSpace(text)
	clean = fenceOpen.ReplaceAllString(clean, "")
	clean = fenceClose.ReplaceAllString(clean, "")

	first := strings.Index(clean, "{")
	last := strings.LastIndex(clean, "}")
	if first == -1 || last == -1 || last < first {
		return "", fmt.Errorf("%w: no JSON object found", ErrMalformedVerdict)
	}
	clean = clean[first : last+1]
	return trailingComma.ReplaceAllString(clean, "$1"), nil
}

// ParseTriage decodes a triage verdict, requiring escalate and
// initialConfidence to be present and the confidence to be in range.
func ParseTriage(text string) (*TriageVerdict, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var probe struct {
		Escalate          *bool `json:"escalate"`
		InitialConfidence *int  `json:"initialConfidence"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if probe.Escalate == nil {
		return nil, fmt.Errorf("%w: missing escalate", ErrMalformedVerdict)
	}
	if probe.InitialConfidence == nil {
		return nil, fmt.Errorf("%w: missing initialConfidence", ErrMalformedVerdict)
	}
	if *probe.InitialConfidence < 0 || *probe.InitialConfidence > 100 {
		return nil, fmt.Errorf("%w: initialConfidence out of range", ErrMalformedVerdict)
	}

	var verdict TriageVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	return &verdict, nil
}

// ParseVerdict decodes a final analysis verdict, requiring the verdict
// enum, an in-range confidence, and the summary and bottom-line strings.
func ParseVerdict(text string) (*Verdict, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if !validVerdicts[verdict.Verdict] {
		return nil, fmt.Errorf("%w: unknown verdict %q", ErrMalformedVerdict, verdict.Verdict)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 100 {
		return nil, fmt.Errorf("%w: confidence out of range", ErrMalformedVerdict)
	}
	if verdict.Summary == "" {
		return nil, fmt.Errorf("%w: missing summary", ErrMalformedVerdict)
	}
	if verdict.BottomLine == "" {
		return nil, fmt.Errorf("%w: missing bottomLine", ErrMalformedVerdict)
	}
	return &verdict, nil
}
