package pipeline

import (
	"sort"

	"brandpulse/internal/domain"
)

const (
	DefaultInsightSampleSize = 10
	insightTopCategories     = 3
	insightSampleMaxChars    = 300
)

type InsightSample struct {
	Text       string           `json:"text"`
	Categories []string         `json:"categories"`
	Sentiment  domain.Sentiment `json:"sentiment"`
	Engagement int              `json:"engagement"`
}

// InsightRequest is the bounded payload handed to the recommendation
// generator.
type InsightRequest struct {
	Subject           string               `json:"subject"`
	TimeRange         string               `json:"time_range"`
	TotalRecords      int                  `json:"total_records"`
	ClassifiedRecords int                  `json:"classified_records"`
	Sentiment         SentimentCounts      `json:"sentiment_counts"`
	Percentages       SentimentPercentages `json:"sentiment_percentages"`
	Categories        map[string]int       `json:"category_counts"`
	TopCategories     []CategoryCount      `json:"top_categories"`
	Samples           []InsightSample      `json:"samples"`
}

// BuildInsightRequest picks the sampleSize most engaged classified records.
// Ordering uses a stable sort on engagement descending, so records with
// equal engagement keep their relative order from ranked.
func BuildInsightRequest(subject, timeRange string, report AggregateReport, ranked []Pair, sampleSize int) InsightRequest {
	if sampleSize <= 0 {
		sampleSize = DefaultInsightSampleSize
	}

	classified := make([]Pair, 0, len(ranked))
	for _, p := range ranked {
		if p.Classification != nil {
			classified = append(classified, p)
		}
	}
	sort.SliceStable(classified, func(i, j int) bool {
		return classified[i].Record.Engagement > classified[j].Record.Engagement
	})
	if len(classified) > sampleSize {
		classified = classified[:sampleSize]
	}

	samples := make([]InsightSample, 0, len(classified))
	for _, p := range classified {
		samples = append(samples, InsightSample{
			Text:       TruncateText(p.Record.Text, insightSampleMaxChars),
			Categories: append([]string(nil), p.Classification.Categories...),
			Sentiment:  p.Classification.Sentiment,
			Engagement: p.Record.Engagement,
		})
	}

	categories := make(map[string]int, len(report.Categories))
	for k, v := range report.Categories {
		categories[k] = v
	}

	return InsightRequest{
		Subject:           subject,
		TimeRange:         timeRange,
		TotalRecords:      report.TotalRecords,
		ClassifiedRecords: report.ClassifiedRecords,
		Sentiment:         report.Sentiment,
		Percentages:       report.Percentages(),
		Categories:        categories,
		TopCategories:     report.TopCategories(insightTopCategories),
		Samples:           samples,
	}
}

// TruncateText cuts s to at most n characters without splitting a rune.
func TruncateText(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
