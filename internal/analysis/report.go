package analysis

import (
	"context"

	"brandpulse/internal/domain"
	"brandpulse/internal/metrics"
	"brandpulse/internal/pipeline"

	"golang.org/x/sync/errgroup"
)

// RunReport is the aggregate view of one run. Pairs follow the run's record
// order, which is the search ranking.
type RunReport struct {
	Run       domain.Run
	Aggregate pipeline.AggregateReport
	Pairs     []pipeline.Pair
}

// Report loads a run's records and classifications and aggregates them.
// Nothing here is persisted.
func (s *Service) Report(ctx context.Context, runID string) (RunReport, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return RunReport{}, err
	}
	ids, err := s.store.RunRecordIDs(ctx, runID)
	if err != nil {
		return RunReport{}, err
	}

	var (
		records         []domain.Record
		classifications map[string]domain.Classification
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.store.RecordsByIDs(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		classifications, err = s.store.ClassificationsByRecordIDs(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return RunReport{}, err
	}

	pairs := make([]pipeline.Pair, len(records))
	for i, r := range records {
		pairs[i] = pipeline.Pair{Record: r}
		if c, ok := classifications[r.ID]; ok {
			pairs[i].Classification = &c
		}
	}
	return RunReport{Run: run, Aggregate: pipeline.Aggregate(pairs), Pairs: pairs}, nil
}

// GenerateInsights builds the insight request for a run, asks the generator
// for a report and stores it, replacing any earlier report for the run.
func (s *Service) GenerateInsights(ctx context.Context, runID string) (domain.InsightReport, error) {
	creds, err := s.acquireCredentials(ctx)
	if err != nil {
		return domain.InsightReport{}, err
	}
	rep, err := s.Report(ctx, runID)
	if err != nil {
		return domain.InsightReport{}, err
	}
	if rep.Aggregate.ClassifiedRecords == 0 {
		return domain.InsightReport{}, ErrNothingClassified
	}

	req := pipeline.BuildInsightRequest(rep.Run.Brand, rep.Run.RangeLabel, rep.Aggregate, rep.Pairs, s.opts.InsightSampleSize)
	report, usage, err := s.insights.Generate(ctx, req, creds)
	if err != nil {
		return domain.InsightReport{}, err
	}
	report.RunID = runID
	if err := s.store.UpsertInsightReport(ctx, report); err != nil {
		return domain.InsightReport{}, err
	}

	rates := s.opts.Rates
	if rates == (pipeline.CostRates{}) {
		rates = pipeline.DefaultCostRates
	}
	metrics.ObserveCost("insights", rates.Cost(usage.InputTokens, usage.OutputTokens))
	s.log.Info("analysis insights stored", "run_id", runID, "tokens_in", usage.InputTokens, "tokens_out", usage.OutputTokens, "cost", report.CostEstimate)
	return report, nil
}

func (s *Service) Insights(ctx context.Context, runID string) (domain.InsightReport, error) {
	return s.store.InsightReportByRunID(ctx, runID)
}

func (s *Service) Run(ctx context.Context, runID string) (domain.Run, error) {
	return s.store.GetRun(ctx, runID)
}

func (s *Service) Runs(ctx context.Context, brand string, limit int) ([]domain.Run, error) {
	return s.store.ListRuns(ctx, brand, limit)
}
