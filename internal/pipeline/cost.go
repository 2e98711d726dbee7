package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	promptOverheadTokens          = 500
	outputTokensPerClassification = 100
	charsPerToken                 = 4
)

// CostRates are USD prices per million tokens.
type CostRates struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// DefaultCostRates match the published Claude 3.5 Haiku pricing.
var DefaultCostRates = CostRates{InputPerMTok: 0.80, OutputPerMTok: 4.00}

func (r CostRates) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1_000_000*r.InputPerMTok + float64(outputTokens)/1_000_000*r.OutputPerMTok
}

// EstimateBatchTokens approximates usage for one successful batch: four
// characters per token over the joined record text plus a fixed prompt
// overhead, and a fixed output allowance per classification. This is not
// billing-accurate.
func EstimateBatchTokens(batch Batch, classifications int) (input, output int64) {
	texts := make([]string, len(batch.Items))
	for i, item := range batch.Items {
		texts[i] = item.Record.Text
	}
	chars := utf8.RuneCountInString(strings.Join(texts, " "))
	input = int64((chars+charsPerToken-1)/charsPerToken) + promptOverheadTokens
	output = int64(classifications) * outputTokensPerClassification
	return input, output
}

// FormatCost renders a USD amount with four decimal places, e.g. "$0.0123".
func FormatCost(usd float64) string {
	return fmt.Sprintf("$%.4f", usd)
}
