package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"brandpulse/internal/domain"
	"brandpulse/internal/pipeline"
)

const classifyTextMaxChars = 500

type rawClassification struct {
	PostIndex  *int     `json:"post_index"`
	Categories []string `json:"categories"`
	Sentiment  string   `json:"sentiment"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

type classifyResponse struct {
	Classifications *[]rawClassification `json:"classifications"`
}

// Classifier classifies one batch per Messages call. It is safe for
// concurrent use; Usage reports the tokens spent across all calls.
type Classifier struct {
	opts Options
	now  func() time.Time

	mu    sync.Mutex
	usage Usage
}

func NewClassifier(opts Options) *Classifier {
	return &Classifier{opts: opts, now: time.Now}
}

func (c *Classifier) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

func (c *Classifier) Classify(ctx context.Context, batch pipeline.Batch, subject string, creds pipeline.Credentials) ([]domain.Classification, error) {
	out, _, err := c.ClassifyWithUsage(ctx, batch, subject, creds)
	return out, err
}

// ClassifyWithUsage is Classify plus the token usage reported by the API.
// Any entry that cannot be reconciled or validated fails the whole batch.
func (c *Classifier) ClassifyWithUsage(ctx context.Context, batch pipeline.Batch, subject string, creds pipeline.Credentials) ([]domain.Classification, Usage, error) {
	if creds.Empty() {
		return nil, Usage{}, pipeline.ErrMissingCredentials
	}
	if batch.Len() == 0 {
		return nil, Usage{}, nil
	}

	systemPrompt, userPrompt := buildClassifyPrompts(batch, subject)
	log := c.opts.logger()
	log.Debug("llm classify request", "model", c.opts.model(), "batch", batch.Number, "items", batch.Len())

	text, usage, err := callAnthropic(ctx, c.opts, creds.APIKey, systemPrompt, userPrompt)
	c.mu.Lock()
	c.usage.Add(usage)
	c.mu.Unlock()
	if err != nil {
		return nil, usage, err
	}

	out, err := reconcileClassifications(text, batch, c.opts.model(), c.now())
	if err != nil {
		return nil, usage, err
	}
	log.Info("llm classify batch done", "batch", batch.Number, "items", batch.Len(), "classified", len(out), "tokens_in", usage.InputTokens, "tokens_out", usage.OutputTokens)
	return out, usage, nil
}

func buildClassifyPrompts(batch pipeline.Batch, subject string) (string, string) {
	var sys strings.Builder
	fmt.Fprintf(&sys, "You are a brand analyst classifying social media posts about %q.\n\n", subject)
	sys.WriteString("Categories (a post may belong to several):\n")
	for _, c := range domain.Categories {
		fmt.Fprintf(&sys, "- %s: %s\n", c.Name, c.Description)
	}
	sys.WriteString("\nFor every post return:\n")
	sys.WriteString("- post_index: the number shown after \"Record\"\n")
	sys.WriteString("- categories: one or more category names from the list above, spelled exactly\n")
	sys.WriteString("- sentiment: positive, neutral or negative toward the brand\n")
	sys.WriteString("- confidence: a number between 0 and 1\n")
	sys.WriteString("- reasoning: one sentence\n\n")
	sys.WriteString(`Respond with ONLY this JSON, no other text: {"classifications":[{"post_index":0,"categories":["Product"],"sentiment":"positive","confidence":0.9,"reasoning":"..."}]}`)

	var user strings.Builder
	fmt.Fprintf(&user, "Classify these %d posts:\n\n", batch.Len())
	for i, item := range batch.Items {
		if i > 0 {
			user.WriteString("\n\n")
		}
		fmt.Fprintf(&user, "Record %d: %s", item.Index, pipeline.TruncateText(item.Record.Text, classifyTextMaxChars))
	}
	return sys.String(), user.String()
}

func reconcileClassifications(text string, batch pipeline.Batch, model string, now time.Time) ([]domain.Classification, error) {
	resp, err := parseJSON[classifyResponse](text)
	if err != nil {
		return nil, err
	}
	if resp.Classifications == nil {
		return nil, &MalformedResponseError{Reason: "missing classifications field", Body: text}
	}

	byIndex := batch.IndexMap()
	seen := make(map[int]bool, len(*resp.Classifications))
	out := make([]domain.Classification, 0, len(*resp.Classifications))
	for _, raw := range *resp.Classifications {
		if raw.PostIndex == nil {
			return nil, &MalformedResponseError{Reason: "entry without post_index"}
		}
		idx := *raw.PostIndex
		record, ok := byIndex[idx]
		if !ok {
			return nil, &ReconciliationError{Index: idx, Batch: batch.Number}
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true

		categories, err := canonicalCategories(raw.Categories)
		if err != nil {
			return nil, &MalformedResponseError{Reason: fmt.Sprintf("post_index %d: %v", idx, err)}
		}
		sentiment, ok := domain.ParseSentiment(raw.Sentiment)
		if !ok {
			return nil, &MalformedResponseError{Reason: fmt.Sprintf("post_index %d: unknown sentiment %q", idx, raw.Sentiment)}
		}

		out = append(out, domain.Classification{
			RecordID:     record.ID,
			Categories:   categories,
			Sentiment:    sentiment,
			Confidence:   clampConfidence(raw.Confidence),
			Reasoning:    strings.TrimSpace(raw.Reasoning),
			Model:        model,
			ClassifiedAt: now.UTC(),
		})
	}
	return out, nil
}

func canonicalCategories(labels []string) ([]string, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("no categories")
	}
	out := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, label := range labels {
		name, ok := domain.CanonicalCategory(label)
		if !ok {
			return nil, fmt.Errorf("unknown category %q", label)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
