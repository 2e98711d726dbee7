package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"brandpulse/internal/domain"
	"brandpulse/internal/pipeline"
)

// InsightGenerator turns an aggregate summary plus sample records into a
// strategy report.
type InsightGenerator struct {
	opts  Options
	rates pipeline.CostRates
	now   func() time.Time
}

func NewInsightGenerator(opts Options, rates pipeline.CostRates) *InsightGenerator {
	if rates == (pipeline.CostRates{}) {
		rates = pipeline.DefaultCostRates
	}
	return &InsightGenerator{opts: opts, rates: rates, now: time.Now}
}

type insightResponse struct {
	ExecutiveSummary string                  `json:"executiveSummary"`
	KeyFindings      []domain.KeyFinding     `json:"keyFindings"`
	Recommendations  []domain.Recommendation `json:"recommendations"`
	Opportunities    []domain.Opportunity    `json:"opportunities"`
}

// Generate returns the report with CostEstimate computed from the tokens the
// API actually billed. RunID is left for the caller to set.
func (g *InsightGenerator) Generate(ctx context.Context, req pipeline.InsightRequest, creds pipeline.Credentials) (domain.InsightReport, Usage, error) {
	if creds.Empty() {
		return domain.InsightReport{}, Usage{}, pipeline.ErrMissingCredentials
	}
	log := g.opts.logger()
	log.Info("llm insights request", "subject", req.Subject, "records", req.TotalRecords, "samples", len(req.Samples))

	text, usage, err := callAnthropic(ctx, g.opts, creds.APIKey, insightSystemPrompt, buildInsightPrompt(req))
	if err != nil {
		return domain.InsightReport{}, usage, err
	}

	resp, err := parseJSON[insightResponse](text)
	if err != nil {
		return domain.InsightReport{}, usage, err
	}
	if err := validateInsights(resp); err != nil {
		return domain.InsightReport{}, usage, err
	}

	report := domain.InsightReport{
		ExecutiveSummary: strings.TrimSpace(resp.ExecutiveSummary),
		KeyFindings:      resp.KeyFindings,
		Recommendations:  resp.Recommendations,
		Opportunities:    resp.Opportunities,
		CostEstimate:     pipeline.FormatCost(g.rates.Cost(usage.InputTokens, usage.OutputTokens)),
		GeneratedAt:      g.now().UTC(),
	}
	log.Info("llm insights done",
		"subject", req.Subject,
		"findings", len(report.KeyFindings),
		"recommendations", len(report.Recommendations),
		"opportunities", len(report.Opportunities),
		"cost", report.CostEstimate,
	)
	return report, usage, nil
}

const insightSystemPrompt = "You are a senior brand strategy consultant analyzing social media sentiment. Respond with ONLY the requested JSON, no other text."

func buildInsightPrompt(req pipeline.InsightRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Brand: %s\n\n", req.Subject)
	b.WriteString("ANALYSIS SUMMARY:\n")
	fmt.Fprintf(&b, "- Time Period: %s\n", req.TimeRange)
	fmt.Fprintf(&b, "- Total Posts Analyzed: %d\n", req.TotalRecords)
	fmt.Fprintf(&b, "- Classified: %d\n", req.ClassifiedRecords)
	fmt.Fprintf(&b, "- Sentiment: %d%% positive, %d%% neutral, %d%% negative\n",
		req.Percentages.Positive, req.Percentages.Neutral, req.Percentages.Negative)
	top := make([]string, 0, len(req.TopCategories))
	for _, c := range req.TopCategories {
		top = append(top, fmt.Sprintf("%s (%d posts)", c.Category, c.Count))
	}
	fmt.Fprintf(&b, "- Top Categories: %s\n\n", strings.Join(top, ", "))

	b.WriteString("SAMPLE HIGH-ENGAGEMENT POSTS:\n")
	for i, s := range req.Samples {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Post %d (%d engagement, %s):\nCategories: %s\nText: %s\n",
			i+1, s.Engagement, s.Sentiment, strings.Join(s.Categories, ", "), s.Text)
	}

	b.WriteString(`
TASK: Provide strategic recommendations in this exact JSON format:
{
  "executiveSummary": "2-3 sentence overview of brand health",
  "keyFindings": [{"title": "", "severity": "critical|warning|opportunity", "description": "", "impact": "", "evidence": ""}],
  "recommendations": [{"priority": "high|medium|low", "category": "", "action": "", "rationale": "", "expectedOutcome": ""}],
  "opportunities": [{"area": "", "description": "", "suggestion": ""}]
}

Focus on actionable, measurable recommendations prioritized by business impact, using specific data from the analysis.
Generate 3-5 key findings, 4-6 recommendations, and 2-4 opportunities.`)
	return b.String()
}

func validateInsights(resp insightResponse) error {
	if strings.TrimSpace(resp.ExecutiveSummary) == "" {
		return &MalformedResponseError{Reason: "missing executiveSummary"}
	}
	for i := range resp.KeyFindings {
		f := &resp.KeyFindings[i]
		f.Severity = domain.Severity(strings.ToLower(strings.TrimSpace(string(f.Severity))))
		switch f.Severity {
		case domain.SeverityCritical, domain.SeverityWarning, domain.SeverityOpportunity:
		default:
			return &MalformedResponseError{Reason: fmt.Sprintf("key finding %d: unknown severity %q", i, f.Severity)}
		}
	}
	for i := range resp.Recommendations {
		r := &resp.Recommendations[i]
		r.Priority = domain.Priority(strings.ToLower(strings.TrimSpace(string(r.Priority))))
		switch r.Priority {
		case domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow:
		default:
			return &MalformedResponseError{Reason: fmt.Sprintf("recommendation %d: unknown priority %q", i, r.Priority)}
		}
	}
	return nil
}
