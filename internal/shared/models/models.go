package models

import "time"

// AnalysisLog represents one audited analysis request
type AnalysisLog struct {
	ID             string
	Subject        string
	Network        string
	Endpoint       string
	Model          string
	Tier           string
	Escalated      bool
	EscalateReason *string
	Turns          int
	CostUSD        float64
	LatencyMs      int
	BonusUsed      bool
	Entitled       bool
	StatusCode     int
	ErrorMessage   *string
	CreatedAt      time.Time
}
