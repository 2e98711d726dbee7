package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"brandpulse/internal/domain"
)

// UpsertInsightReport stores the report for its run, replacing any earlier
// report.
func (s *Store) UpsertInsightReport(ctx context.Context, report domain.InsightReport) error {
	if report.RunID == "" {
		return errors.New("insight report without run id")
	}
	findings, err := json.Marshal(nonNil(report.KeyFindings))
	if err != nil {
		return err
	}
	recommendations, err := json.Marshal(nonNil(report.Recommendations))
	if err != nil {
		return err
	}
	opportunities, err := json.Marshal(nonNil(report.Opportunities))
	if err != nil {
		return err
	}
	generatedAt := report.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO insights (run_id, executive_summary, key_findings, recommendations, opportunities, cost_estimate, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			executive_summary = excluded.executive_summary,
			key_findings = excluded.key_findings,
			recommendations = excluded.recommendations,
			opportunities = excluded.opportunities,
			cost_estimate = excluded.cost_estimate,
			generated_at = excluded.generated_at`,
		report.RunID, report.ExecutiveSummary, string(findings), string(recommendations),
		string(opportunities), report.CostEstimate, generatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert insights for run %s: %w", report.RunID, err)
	}
	return nil
}

func (s *Store) InsightReportByRunID(ctx context.Context, runID string) (domain.InsightReport, error) {
	var (
		report                                   domain.InsightReport
		findings, recommendations, opportunities string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, executive_summary, key_findings, recommendations, opportunities, cost_estimate, generated_at
		 FROM insights WHERE run_id = ?`, runID,
	).Scan(&report.RunID, &report.ExecutiveSummary, &findings, &recommendations, &opportunities, &report.CostEstimate, &report.GeneratedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InsightReport{}, fmt.Errorf("insights for run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return domain.InsightReport{}, err
	}
	if err := json.Unmarshal([]byte(findings), &report.KeyFindings); err != nil {
		return domain.InsightReport{}, fmt.Errorf("decode key findings: %w", err)
	}
	if err := json.Unmarshal([]byte(recommendations), &report.Recommendations); err != nil {
		return domain.InsightReport{}, fmt.Errorf("decode recommendations: %w", err)
	}
	if err := json.Unmarshal([]byte(opportunities), &report.Opportunities); err != nil {
		return domain.InsightReport{}, fmt.Errorf("decode opportunities: %w", err)
	}
	return report, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
