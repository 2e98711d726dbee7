package pipeline

import (
	"math"
	"sort"

	"brandpulse/internal/domain"
)

type Pair = domain.RecordWithClassification

type SentimentCounts struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

func (c *SentimentCounts) add(s domain.Sentiment) {
	switch s {
	case domain.SentimentPositive:
		c.Positive++
	case domain.SentimentNeutral:
		c.Neutral++
	case domain.SentimentNegative:
		c.Negative++
	}
}

func (c SentimentCounts) Total() int {
	return c.Positive + c.Neutral + c.Negative
}

// SentimentPercentages are whole percentages of the total record count,
// so unclassified records show up as the remainder below 100.
type SentimentPercentages struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type TimelinePoint struct {
	Date  string  `json:"date"` // YYYY-MM-DD, UTC
	Count int     `json:"count"`
	Score float64 `json:"score"` // (positive - negative) / count
}

type AggregateReport struct {
	Sentiment           SentimentCounts            `json:"sentiment_counts"`
	Categories          map[string]int             `json:"category_counts"`
	CategoryBySentiment map[string]SentimentCounts `json:"category_by_sentiment"`
	Timeline            []TimelinePoint            `json:"timeline"`
	TotalRecords        int                        `json:"total_records"`
	ClassifiedRecords   int                        `json:"classified_records"`
}

// Aggregate folds record/classification pairs into counts. A pair without a
// classification (or with a sentiment outside the closed set) contributes to
// TotalRecords only. A record tagged with several categories counts once in
// each of them.
func Aggregate(pairs []Pair) AggregateReport {
	report := AggregateReport{
		Categories:          make(map[string]int),
		CategoryBySentiment: make(map[string]SentimentCounts),
		TotalRecords:        len(pairs),
	}

	type day struct {
		counts SentimentCounts
	}
	days := make(map[string]*day)

	for _, p := range pairs {
		c := p.Classification
		if c == nil || !c.Sentiment.Valid() {
			continue
		}
		report.ClassifiedRecords++
		report.Sentiment.add(c.Sentiment)

		seen := make(map[string]bool, len(c.Categories))
		for _, category := range c.Categories {
			if seen[category] {
				continue
			}
			seen[category] = true
			report.Categories[category]++
			bySentiment := report.CategoryBySentiment[category]
			bySentiment.add(c.Sentiment)
			report.CategoryBySentiment[category] = bySentiment
		}

		if !p.Record.Timestamp.IsZero() {
			key := p.Record.Timestamp.UTC().Format("2006-01-02")
			d, ok := days[key]
			if !ok {
				d = &day{}
				days[key] = d
			}
			d.counts.add(c.Sentiment)
		}
	}

	for date, d := range days {
		n := d.counts.Total()
		report.Timeline = append(report.Timeline, TimelinePoint{
			Date:  date,
			Count: n,
			Score: float64(d.counts.Positive-d.counts.Negative) / float64(n),
		})
	}
	sort.Slice(report.Timeline, func(i, j int) bool {
		return report.Timeline[i].Date < report.Timeline[j].Date
	})
	return report
}

func (r AggregateReport) Percentages() SentimentPercentages {
	return SentimentPercentages{
		Positive: percentOf(r.Sentiment.Positive, r.TotalRecords),
		Neutral:  percentOf(r.Sentiment.Neutral, r.TotalRecords),
		Negative: percentOf(r.Sentiment.Negative, r.TotalRecords),
	}
}

// Coverage is the whole percentage of records that have a classification.
func (r AggregateReport) Coverage() int {
	return percentOf(r.ClassifiedRecords, r.TotalRecords)
}

// TopCategories returns up to n categories by count, ties broken by name.
// n <= 0 returns all of them.
func (r AggregateReport) TopCategories(n int) []CategoryCount {
	out := make([]CategoryCount, 0, len(r.Categories))
	for category, count := range r.Categories {
		out = append(out, CategoryCount{Category: category, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func percentOf(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
