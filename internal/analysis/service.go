// Package analysis runs brand analyses end to end: search, store, classify
// what is new, aggregate, and generate insight reports.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"brandpulse/internal/config"
	"brandpulse/internal/domain"
	"brandpulse/internal/integrations/llm"
	"brandpulse/internal/integrations/reddit"
	"brandpulse/internal/logger"
	"brandpulse/internal/metrics"
	"brandpulse/internal/pipeline"
	"brandpulse/internal/storage/sqlite"
)

var (
	ErrInvalidBrand      = errors.New("brand is required")
	ErrInvalidRange      = errors.New("range must be 7, 30 or 90 days")
	ErrNothingClassified = errors.New("run has no classified records")
	ErrNotFound          = sqlite.ErrNotFound
)

type Store interface {
	UpsertRecords(ctx context.Context, records []domain.Record) ([]domain.Record, error)
	RecordsByIDs(ctx context.Context, ids []string) ([]domain.Record, error)
	ClassificationsByRecordIDs(ctx context.Context, ids []string) (map[string]domain.Classification, error)
	ClassifiedIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	UpsertClassifications(ctx context.Context, classifications []domain.Classification) error
	UpsertInsightReport(ctx context.Context, report domain.InsightReport) error
	InsightReportByRunID(ctx context.Context, runID string) (domain.InsightReport, error)
	CreateRun(ctx context.Context, run domain.Run) (domain.Run, error)
	UpdateRunStatus(ctx context.Context, id string, status domain.RunStatus, errMsg string) error
	SetRunTotal(ctx context.Context, id string, total int) error
	GetRun(ctx context.Context, id string) (domain.Run, error)
	ListRuns(ctx context.Context, brand string, limit int) ([]domain.Run, error)
	LinkRunRecords(ctx context.Context, runID string, recordIDs []string) error
	RunRecordIDs(ctx context.Context, runID string) ([]string, error)
	EnqueueReclassify(ctx context.Context, brand string, recordIDs []string) error
	QueuedReclassify(ctx context.Context, brand string) ([]string, error)
	DequeueReclassify(ctx context.Context, brand string, recordIDs []string) error
}

type Searcher interface {
	Search(ctx context.Context, q reddit.Query) ([]domain.Record, error)
}

type InsightGenerator interface {
	Generate(ctx context.Context, req pipeline.InsightRequest, creds pipeline.Credentials) (domain.InsightReport, llm.Usage, error)
}

// CredentialSource hands out the classification key for one operation.
// Callers must not retain the result beyond that operation.
type CredentialSource func(ctx context.Context) (pipeline.Credentials, error)

// StaticCredentials serves a configured secret.
func StaticCredentials(key config.Secret) CredentialSource {
	return func(context.Context) (pipeline.Credentials, error) {
		return pipeline.Credentials{APIKey: key.Reveal()}, nil
	}
}

type Options struct {
	BatchSize         int
	BatchInterval     time.Duration
	Rates             pipeline.CostRates
	FailedBatchPolicy string
	InsightSampleSize int
}

// OptionsFromConfig maps the pipeline settings out of the loaded config.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		BatchSize:         cfg.LLMBatchSize,
		BatchInterval:     cfg.BatchInterval(),
		Rates:             pipeline.CostRates{InputPerMTok: cfg.LLMInputRatePerMTok, OutputPerMTok: cfg.LLMOutputRatePerMTok},
		FailedBatchPolicy: cfg.FailedBatchPolicy,
		InsightSampleSize: cfg.InsightSampleSize,
	}
}

type Service struct {
	store       Store
	search      Searcher
	classifier  pipeline.Classifier
	insights    InsightGenerator
	credentials CredentialSource
	opts        Options
	log         *logger.Logger
	now         func() time.Time
}

func NewService(store Store, search Searcher, classifier pipeline.Classifier, insights InsightGenerator, creds CredentialSource, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if opts.FailedBatchPolicy == "" {
		opts.FailedBatchPolicy = config.FailedBatchSkip
	}
	return &Service{
		store:       store,
		search:      search,
		classifier:  classifier,
		insights:    insights,
		credentials: creds,
		opts:        opts,
		log:         log,
		now:         time.Now,
	}
}

// AnalyzeResult summarizes one run of Analyze or Reclassify.
type AnalyzeResult struct {
	Run           domain.Run
	Fetched       int
	Skipped       int
	Candidates    int
	Classified    int
	FailedBatches int
	Unclassified  int
	Requeued      int
	CostUSD       float64
}

func (r AnalyzeResult) Cost() string {
	return pipeline.FormatCost(r.CostUSD)
}

func (s *Service) acquireCredentials(ctx context.Context) (pipeline.Credentials, error) {
	if s.credentials == nil {
		return pipeline.Credentials{}, pipeline.ErrMissingCredentials
	}
	creds, err := s.credentials(ctx)
	if err != nil {
		return pipeline.Credentials{}, err
	}
	if creds.Empty() {
		return pipeline.Credentials{}, pipeline.ErrMissingCredentials
	}
	return creds, nil
}

// Analyze searches brand over the last days, stores what it finds, and
// classifies only records with no stored classification. Records queued by
// an earlier failed batch for the same brand are classified too.
func (s *Service) Analyze(ctx context.Context, brand string, days int) (AnalyzeResult, error) {
	brand = strings.TrimSpace(brand)
	if brand == "" {
		return AnalyzeResult{}, ErrInvalidBrand
	}
	if !domain.ValidRangeDays(days) {
		return AnalyzeResult{}, ErrInvalidRange
	}
	creds, err := s.acquireCredentials(ctx)
	if err != nil {
		return AnalyzeResult{}, err
	}

	started := s.now()
	start, end := domain.RunWindow(started.UTC(), days)
	run, err := s.store.CreateRun(ctx, domain.Run{
		Brand:      brand,
		RangeLabel: domain.RangeLabel(days),
		Start:      start,
		End:        end,
	})
	if err != nil {
		return AnalyzeResult{}, err
	}
	result := AnalyzeResult{Run: run}
	log := s.log.With("run_id", run.ID, "brand", brand)
	log.Info("analysis start", "range", run.RangeLabel)

	if err := s.setStatus(ctx, &result.Run, domain.RunProcessing, ""); err != nil {
		return result, err
	}

	found, err := s.search.Search(ctx, reddit.Query{Term: brand, Start: start, End: end})
	if err != nil {
		return s.fail(ctx, result, started, fmt.Errorf("search: %w", err))
	}
	result.Fetched = len(found)

	stored, err := s.store.UpsertRecords(ctx, found)
	if err != nil {
		return s.fail(ctx, result, started, fmt.Errorf("store records: %w", err))
	}
	ids := recordIDs(stored)
	if err := s.store.LinkRunRecords(ctx, run.ID, ids); err != nil {
		return s.fail(ctx, result, started, fmt.Errorf("link records: %w", err))
	}
	if err := s.store.SetRunTotal(ctx, run.ID, len(ids)); err != nil {
		return s.fail(ctx, result, started, fmt.Errorf("set total: %w", err))
	}
	result.Run.TotalRecords = len(ids)

	candidates, err := s.withRequeued(ctx, brand, stored)
	if err != nil {
		return s.fail(ctx, result, started, fmt.Errorf("reclassify queue: %w", err))
	}
	classified, err := s.store.ClassifiedIDs(ctx, recordIDs(candidates))
	if err != nil {
		return s.fail(ctx, result, started, fmt.Errorf("load classified ids: %w", err))
	}
	parts := pipeline.Partition(candidates, classified)
	if err := s.store.DequeueReclassify(ctx, brand, recordIDs(parts.Skipped)); err != nil {
		return s.fail(ctx, result, started, fmt.Errorf("reclassify queue: %w", err))
	}
	result.Skipped = len(parts.Skipped)
	result.Candidates = len(parts.ToClassify)
	log.Info("analysis dedup", "fetched", result.Fetched, "to_classify", len(parts.ToClassify), "skipped", len(parts.Skipped))

	if len(parts.ToClassify) > 0 {
		if err := s.classify(ctx, brand, parts.ToClassify, creds, &result); err != nil {
			return s.fail(ctx, result, started, err)
		}
	}

	if err := s.setStatus(ctx, &result.Run, domain.RunCompleted, ""); err != nil {
		return result, err
	}
	metrics.ObserveRun(s.now().Sub(started), string(domain.RunCompleted))
	log.Info("analysis done",
		"fetched", result.Fetched,
		"classified", result.Classified,
		"skipped", result.Skipped,
		"failed_batches", result.FailedBatches,
		"cost", result.Cost(),
	)
	return result, nil
}

// Reclassify classifies every record of a run again, replacing stored
// classifications. It is the explicit regeneration path; Analyze never
// reclassifies.
func (s *Service) Reclassify(ctx context.Context, runID string) (AnalyzeResult, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return AnalyzeResult{}, err
	}
	creds, err := s.acquireCredentials(ctx)
	if err != nil {
		return AnalyzeResult{}, err
	}
	started := s.now()
	result := AnalyzeResult{Run: run}
	if err := s.setStatus(ctx, &result.Run, domain.RunProcessing, ""); err != nil {
		return result, err
	}

	ids, err := s.store.RunRecordIDs(ctx, runID)
	if err != nil {
		return s.fail(ctx, result, started, err)
	}
	records, err := s.store.RecordsByIDs(ctx, ids)
	if err != nil {
		return s.fail(ctx, result, started, err)
	}
	result.Fetched = len(records)
	result.Candidates = len(records)
	if len(records) > 0 {
		if err := s.classify(ctx, run.Brand, records, creds, &result); err != nil {
			return s.fail(ctx, result, started, err)
		}
	}

	if err := s.setStatus(ctx, &result.Run, domain.RunCompleted, ""); err != nil {
		return result, err
	}
	metrics.ObserveRun(s.now().Sub(started), string(domain.RunCompleted))
	s.log.Info("analysis reclassify done", "run_id", runID, "classified", result.Classified, "cost", result.Cost())
	return result, nil
}

func (s *Service) classify(ctx context.Context, brand string, records []domain.Record, creds pipeline.Credentials, result *AnalyzeResult) error {
	o := pipeline.NewOrchestrator(s.classifier, s.log.With("run_id", result.Run.ID))
	if s.opts.BatchSize > 0 {
		o.BatchSize = s.opts.BatchSize
	}
	o.Interval = s.opts.BatchInterval
	if s.opts.Rates != (pipeline.CostRates{}) {
		o.Rates = s.opts.Rates
	}
	persisted := make(map[string]bool, len(records))
	o.OnBatch = func(ctx context.Context, _ pipeline.Batch, classifications []domain.Classification) error {
		if err := s.store.UpsertClassifications(ctx, classifications); err != nil {
			return err
		}
		for _, c := range classifications {
			persisted[c.RecordID] = true
		}
		return nil
	}

	run, runErr := o.Run(ctx, records, brand, creds)
	if runErr == nil {
		// Cancellation during the last batch surfaces as a batch failure only.
		runErr = ctx.Err()
	}
	result.Classified += run.ProcessedCount
	result.FailedBatches += len(run.Failures)
	result.CostUSD += run.CostEstimate
	unclassified := unclassifiedIDs(records, persisted)
	result.Unclassified = len(unclassified)

	if err := s.settleQueue(ctx, brand, records, persisted, unclassified, result); err != nil {
		if runErr == nil {
			return err
		}
		s.log.Error("analysis reclassify queue update", "run_id", result.Run.ID, "error", err)
	}
	if runErr != nil {
		return fmt.Errorf("classify: %w", runErr)
	}
	return nil
}

// settleQueue removes stored records from brand's reclassify queue and,
// under the requeue policy, queues the ones still unclassified. It runs on
// failed and cancelled runs too, with a fresh context when ctx is done, so
// queued records are never dropped.
func (s *Service) settleQueue(ctx context.Context, brand string, records []domain.Record, persisted map[string]bool, unclassified []string, result *AnalyzeResult) error {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	done := make([]string, 0, len(persisted))
	for _, r := range records {
		if persisted[r.ID] {
			done = append(done, r.ID)
		}
	}
	if err := s.store.DequeueReclassify(ctx, brand, done); err != nil {
		return fmt.Errorf("dequeue classified records: %w", err)
	}

	if s.opts.FailedBatchPolicy != config.FailedBatchRequeue || len(unclassified) == 0 {
		return nil
	}
	if err := s.store.EnqueueReclassify(ctx, brand, unclassified); err != nil {
		return fmt.Errorf("requeue failed batches: %w", err)
	}
	result.Requeued = len(unclassified)
	s.log.Info("analysis requeued records", "run_id", result.Run.ID, "records", len(unclassified))
	return nil
}

// unclassifiedIDs lists records with no stored classification: failed or
// unreached batches plus any the model left out of a successful response.
func unclassifiedIDs(records []domain.Record, persisted map[string]bool) []string {
	var ids []string
	for _, r := range records {
		if !persisted[r.ID] {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

func (s *Service) withRequeued(ctx context.Context, brand string, records []domain.Record) ([]domain.Record, error) {
	queued, err := s.store.QueuedReclassify(ctx, brand)
	if err != nil || len(queued) == 0 {
		return records, err
	}
	inRun := make(map[string]bool, len(records))
	for _, r := range records {
		inRun[r.ID] = true
	}
	var extra []string
	for _, id := range queued {
		if !inRun[id] {
			extra = append(extra, id)
		}
	}
	if len(extra) == 0 {
		return records, nil
	}
	more, err := s.store.RecordsByIDs(ctx, extra)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Record, 0, len(records)+len(more))
	out = append(out, records...)
	return append(out, more...), nil
}

func (s *Service) setStatus(ctx context.Context, run *domain.Run, status domain.RunStatus, errMsg string) error {
	if err := s.store.UpdateRunStatus(ctx, run.ID, status, errMsg); err != nil {
		return fmt.Errorf("update run %s to %s: %w", run.ID, status, err)
	}
	run.Status = status
	run.Error = errMsg
	return nil
}

// fail marks the run failed. The status write uses a fresh context so a
// cancelled run is still recorded.
func (s *Service) fail(ctx context.Context, result AnalyzeResult, started time.Time, cause error) (AnalyzeResult, error) {
	writeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := s.setStatus(writeCtx, &result.Run, domain.RunFailed, cause.Error()); err != nil {
		s.log.Error("analysis mark failed", "run_id", result.Run.ID, "error", err)
	}
	metrics.ObserveRun(s.now().Sub(started), string(domain.RunFailed))
	s.log.Warn("analysis failed", "run_id", result.Run.ID, "error", cause)
	return result, cause
}

func recordIDs(records []domain.Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
