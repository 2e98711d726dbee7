package analysis

import (
	"fmt"
	"strings"
)

// FormatAnalyzeSummary returns a human-readable summary of an AnalyzeResult.
func FormatAnalyzeSummary(r AnalyzeResult) string {
	if r.Fetched == 0 && r.Candidates == 0 {
		return fmt.Sprintf("No posts found for %s in the last %s.", r.Run.Brand, r.Run.RangeLabel)
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("%d classified", r.Classified))
	if r.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d already classified", r.Skipped))
	}
	if r.FailedBatches > 0 {
		parts = append(parts, fmt.Sprintf("%d failed batches", r.FailedBatches))
	}
	if r.Requeued > 0 {
		parts = append(parts, fmt.Sprintf("%d requeued", r.Requeued))
	} else if r.Unclassified > 0 {
		parts = append(parts, fmt.Sprintf("%d unclassified", r.Unclassified))
	}
	return fmt.Sprintf("Analyzed %s (%s): fetched %d posts, %s. Est. cost %s. Run %s",
		r.Run.Brand, r.Run.RangeLabel, r.Fetched, strings.Join(parts, ", "), r.Cost(), r.Run.ID)
}

// FormatReportSummary renders the headline numbers of a run report.
func FormatReportSummary(rep RunReport) string {
	agg := rep.Aggregate
	pct := agg.Percentages()
	var b strings.Builder
	fmt.Fprintf(&b, "%s, last %s (%s): %d posts, %d classified\n",
		rep.Run.Brand, rep.Run.RangeLabel, rep.Run.Status, agg.TotalRecords, agg.ClassifiedRecords)
	fmt.Fprintf(&b, "Sentiment: %d%% positive, %d%% neutral, %d%% negative\n", pct.Positive, pct.Neutral, pct.Negative)
	top := agg.TopCategories(3)
	if len(top) == 0 {
		b.WriteString("Top categories: none")
		return b.String()
	}
	names := make([]string, len(top))
	for i, c := range top {
		names[i] = fmt.Sprintf("%s (%d posts)", c.Category, c.Count)
	}
	b.WriteString("Top categories: " + strings.Join(names, ", "))
	return b.String()
}
