package domain

import "time"

type Severity string

const (
	SeverityCritical    Severity = "critical"
	SeverityWarning     Severity = "warning"
	SeverityOpportunity Severity = "opportunity"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type KeyFinding struct {
	Title       string   `json:"title"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Impact      string   `json:"impact"`
	Evidence    string   `json:"evidence"`
}

type Recommendation struct {
	Priority        Priority `json:"priority"`
	Category        string   `json:"category"`
	Action          string   `json:"action"`
	Rationale       string   `json:"rationale"`
	ExpectedOutcome string   `json:"expectedOutcome"`
}

type Opportunity struct {
	Area        string `json:"area"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// InsightReport is the narrative output for a run. A run has at most one
// current report; generating again replaces it.
type InsightReport struct {
	RunID            string           `json:"run_id"`
	ExecutiveSummary string           `json:"executiveSummary"`
	KeyFindings      []KeyFinding     `json:"keyFindings"`
	Recommendations  []Recommendation `json:"recommendations"`
	Opportunities    []Opportunity    `json:"opportunities"`
	CostEstimate     string           `json:"cost_estimate,omitempty"`
	GeneratedAt      time.Time        `json:"generated_at"`
}
