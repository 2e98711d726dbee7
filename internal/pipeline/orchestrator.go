package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"brandpulse/internal/domain"
	"brandpulse/internal/logger"
	"brandpulse/internal/metrics"
	"brandpulse/internal/pacing"
)

const (
	DefaultBatchSize     = 20
	DefaultBatchInterval = time.Second
)

// Classifier performs one classification call for a batch.
type Classifier interface {
	Classify(ctx context.Context, batch Batch, subject string, creds Credentials) ([]domain.Classification, error)
}

// BatchSink receives the classifications of each successful batch before the
// next batch starts. A sink error stops the run.
type BatchSink func(ctx context.Context, batch Batch, classifications []domain.Classification) error

type BatchFailure struct {
	Batch     int
	RecordIDs []string
	Kind      string
	Err       error
}

type RunResult struct {
	Classifications []domain.Classification
	ProcessedCount  int
	Batches         int
	InputTokens     int64
	OutputTokens    int64
	CostEstimate    float64
	Failures        []BatchFailure
}

func (r RunResult) FormattedCost() string {
	return FormatCost(r.CostEstimate)
}

// Unclassified lists record ids from failed batches.
func (r RunResult) Unclassified() []string {
	var ids []string
	for _, f := range r.Failures {
		ids = append(ids, f.RecordIDs...)
	}
	return ids
}

type Orchestrator struct {
	Classifier Classifier
	BatchSize  int
	Interval   time.Duration
	Rates      CostRates
	Logger     *logger.Logger
	OnBatch    BatchSink

	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(classifier Classifier, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		Classifier: classifier,
		BatchSize:  DefaultBatchSize,
		Interval:   DefaultBatchInterval,
		Rates:      DefaultCostRates,
		Logger:     log,
	}
}

// Run classifies records batch by batch, strictly sequentially, pausing
// Interval between batches. A failed batch is recorded and skipped; it is
// not retried within the run. Run returns an error only for precondition
// failures, a sink error, or context cancellation, and in the latter two
// cases the result still holds everything completed so far.
func (o *Orchestrator) Run(ctx context.Context, records []domain.Record, subject string, creds Credentials) (RunResult, error) {
	var result RunResult
	if len(records) == 0 {
		return result, ErrNoRecords
	}
	if creds.Empty() {
		return result, ErrMissingCredentials
	}

	log := o.Logger
	if log == nil {
		log = logger.Nop()
	}
	sleep := o.sleep
	if sleep == nil {
		sleep = pacing.Sleep
	}

	size := o.BatchSize
	if size < 1 {
		size = DefaultBatchSize
	}
	batches, err := Split(records, size)
	if err != nil {
		return result, err
	}
	result.Batches = len(batches)

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		log.Info("llm classify batch", "subject", subject, "batch", i+1, "batches", len(batches), "items", batch.Len())
		classifications, err := o.Classifier.Classify(ctx, batch, subject, creds)
		if err != nil {
			kind := errorKind(err)
			log.Warn("llm classify batch failed", "batch", i+1, "kind", kind, "error", err)
			metrics.ObserveBatch(kind, 0)
			result.Failures = append(result.Failures, BatchFailure{
				Batch:     i,
				RecordIDs: batch.RecordIDs(),
				Kind:      kind,
				Err:       err,
			})
		} else {
			metrics.ObserveBatch(metrics.OutcomeSuccess, len(classifications))
			in, out := EstimateBatchTokens(batch, len(classifications))
			result.InputTokens += in
			result.OutputTokens += out
			result.Classifications = append(result.Classifications, classifications...)
			result.ProcessedCount += len(classifications)
			if o.OnBatch != nil {
				if err := o.OnBatch(ctx, batch, classifications); err != nil {
					result.CostEstimate = o.rates().Cost(result.InputTokens, result.OutputTokens)
					return result, fmt.Errorf("persist batch %d: %w", i+1, err)
				}
			}
		}

		if i < len(batches)-1 {
			if err := sleep(ctx, o.Interval); err != nil {
				result.CostEstimate = o.rates().Cost(result.InputTokens, result.OutputTokens)
				return result, err
			}
		}
	}

	result.CostEstimate = o.rates().Cost(result.InputTokens, result.OutputTokens)
	metrics.ObserveCost("classify", result.CostEstimate)
	log.Info("llm classify complete",
		"subject", subject,
		"classified", result.ProcessedCount,
		"records", len(records),
		"failed_batches", len(result.Failures),
		"tokens_in", result.InputTokens,
		"tokens_out", result.OutputTokens,
		"cost", result.FormattedCost(),
	)
	return result, nil
}

func (o *Orchestrator) rates() CostRates {
	if o.Rates == (CostRates{}) {
		return DefaultCostRates
	}
	return o.Rates
}

// errorKind labels a batch failure. Classifier errors may expose a Kind.
func errorKind(err error) string {
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return metrics.OutcomeError
}
