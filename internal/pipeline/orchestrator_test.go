package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"brandpulse/internal/domain"
)

type fakeClassifier struct {
	calls   int
	batches []Batch
	failOn  map[int]error
	onCall  func(call int)
}

func (f *fakeClassifier) Classify(ctx context.Context, batch Batch, subject string, creds Credentials) ([]domain.Classification, error) {
	f.calls++
	f.batches = append(f.batches, batch)
	if f.onCall != nil {
		f.onCall(f.calls)
	}
	if err := f.failOn[batch.Number]; err != nil {
		return nil, err
	}
	out := make([]domain.Classification, 0, batch.Len())
	for _, item := range batch.Items {
		out = append(out, domain.Classification{
			RecordID:   item.Record.ID,
			Categories: []string{"Product"},
			Sentiment:  domain.SentimentPositive,
			Confidence: 0.8,
		})
	}
	return out, nil
}

type kindError struct{ kind string }

func (e kindError) Error() string { return e.kind }
func (e kindError) Kind() string  { return e.kind }

type sleepRecorder struct {
	calls     int
	durations []time.Duration
	err       error
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.calls++
	s.durations = append(s.durations, d)
	return s.err
}

func newTestOrchestrator(c Classifier, s *sleepRecorder) *Orchestrator {
	o := NewOrchestrator(c, nil)
	o.sleep = s.sleep
	return o
}

var testCreds = Credentials{APIKey: "sk-test"}

func TestRunPartialFailureKeepsSuccessfulBatch(t *testing.T) {
	classifier := &fakeClassifier{failOn: map[int]error{1: errors.New("connection reset")}}
	sleeper := &sleepRecorder{}
	o := newTestOrchestrator(classifier, sleeper)

	result, err := o.Run(context.Background(), makeRecords(40), "acme", testCreds)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Classifications) != 20 {
		t.Fatalf("expected 20 classifications, got %d", len(result.Classifications))
	}
	if result.ProcessedCount != 20 {
		t.Fatalf("expected processed count 20, got %d", result.ProcessedCount)
	}
	if len(result.Failures) != 1 || result.Failures[0].Batch != 1 {
		t.Fatalf("expected one failure for batch 1, got %+v", result.Failures)
	}
	if result.Failures[0].Kind != "error" {
		t.Fatalf("expected kind error, got %q", result.Failures[0].Kind)
	}
	unclassified := result.Unclassified()
	if len(unclassified) != 20 || unclassified[0] != "rec-020" {
		t.Fatalf("unexpected unclassified ids: %v", unclassified)
	}
}

func TestRunFailureKindFromClassifierError(t *testing.T) {
	classifier := &fakeClassifier{failOn: map[int]error{0: kindError{kind: "reconciliation_error"}}}
	o := newTestOrchestrator(classifier, &sleepRecorder{})

	result, err := o.Run(context.Background(), makeRecords(3), "acme", testCreds)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Classifications) != 0 {
		t.Fatalf("expected no classifications, got %d", len(result.Classifications))
	}
	if result.Failures[0].Kind != "reconciliation_error" {
		t.Fatalf("expected reconciliation_error, got %q", result.Failures[0].Kind)
	}
	if result.CostEstimate != 0 {
		t.Fatalf("failed batches must not add cost, got %f", result.CostEstimate)
	}
}

func TestRunPacesBetweenBatchesOnly(t *testing.T) {
	tests := []struct {
		records    int
		wantCalls  int
		wantSleeps int
	}{
		{1, 1, 0},
		{20, 1, 0},
		{21, 2, 1},
		{45, 3, 2},
	}
	for _, tt := range tests {
		classifier := &fakeClassifier{}
		sleeper := &sleepRecorder{}
		o := newTestOrchestrator(classifier, sleeper)
		o.Interval = 1500 * time.Millisecond

		if _, err := o.Run(context.Background(), makeRecords(tt.records), "acme", testCreds); err != nil {
			t.Fatalf("records=%d: unexpected error %v", tt.records, err)
		}
		if classifier.calls != tt.wantCalls {
			t.Fatalf("records=%d: expected %d calls, got %d", tt.records, tt.wantCalls, classifier.calls)
		}
		if sleeper.calls != tt.wantSleeps {
			t.Fatalf("records=%d: expected %d sleeps, got %d", tt.records, tt.wantSleeps, sleeper.calls)
		}
		for _, d := range sleeper.durations {
			if d != 1500*time.Millisecond {
				t.Fatalf("expected 1.5s pacing, got %s", d)
			}
		}
	}
}

func TestRunPacesAfterFailedBatch(t *testing.T) {
	classifier := &fakeClassifier{failOn: map[int]error{0: errors.New("boom")}}
	sleeper := &sleepRecorder{}
	o := newTestOrchestrator(classifier, sleeper)

	if _, err := o.Run(context.Background(), makeRecords(30), "acme", testCreds); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sleeper.calls != 1 {
		t.Fatalf("expected 1 pause after the failed batch, got %d", sleeper.calls)
	}
}

func TestRunPreconditions(t *testing.T) {
	classifier := &fakeClassifier{}
	o := newTestOrchestrator(classifier, &sleepRecorder{})

	if _, err := o.Run(context.Background(), nil, "acme", testCreds); !errors.Is(err, ErrNoRecords) {
		t.Fatalf("expected ErrNoRecords, got %v", err)
	}
	if _, err := o.Run(context.Background(), makeRecords(2), "acme", Credentials{}); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if classifier.calls != 0 {
		t.Fatalf("expected no classifier calls, got %d", classifier.calls)
	}
}

func TestRunSinkErrorReturnsPartialResult(t *testing.T) {
	classifier := &fakeClassifier{}
	o := newTestOrchestrator(classifier, &sleepRecorder{})
	sinkErr := errors.New("disk full")
	var persisted int
	o.OnBatch = func(ctx context.Context, batch Batch, cls []domain.Classification) error {
		if batch.Number == 1 {
			return sinkErr
		}
		persisted += len(cls)
		return nil
	}

	result, err := o.Run(context.Background(), makeRecords(60), "acme", testCreds)
	if !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if classifier.calls != 2 {
		t.Fatalf("expected run to stop after batch 2, got %d calls", classifier.calls)
	}
	if persisted != 20 {
		t.Fatalf("expected 20 persisted, got %d", persisted)
	}
	if result.ProcessedCount != 40 {
		t.Fatalf("expected result to include both completed batches, got %d", result.ProcessedCount)
	}
}

func TestRunCancellationBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	classifier := &fakeClassifier{onCall: func(call int) {
		if call == 1 {
			cancel()
		}
	}}
	o := newTestOrchestrator(classifier, &sleepRecorder{})

	result, err := o.Run(ctx, makeRecords(50), "acme", testCreds)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if classifier.calls != 1 {
		t.Fatalf("expected a single call before cancellation, got %d", classifier.calls)
	}
	if result.ProcessedCount != 20 {
		t.Fatalf("expected the first batch kept, got %d", result.ProcessedCount)
	}
}

func TestRunCancellationDuringPacing(t *testing.T) {
	classifier := &fakeClassifier{}
	sleeper := &sleepRecorder{err: context.Canceled}
	o := newTestOrchestrator(classifier, sleeper)

	result, err := o.Run(context.Background(), makeRecords(25), "acme", testCreds)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if classifier.calls != 1 || result.ProcessedCount != 20 {
		t.Fatalf("expected one completed batch, got calls=%d processed=%d", classifier.calls, result.ProcessedCount)
	}
	if result.CostEstimate <= 0 {
		t.Fatal("expected cost for the completed batch")
	}
}

func TestRunCostEstimate(t *testing.T) {
	records := makeRecords(2)
	records[0].Text = strings.Repeat("a", 10)
	records[1].Text = strings.Repeat("b", 5)
	o := newTestOrchestrator(&fakeClassifier{}, &sleepRecorder{})

	result, err := o.Run(context.Background(), records, "acme", testCreds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 16 chars -> 4 tokens + 500 overhead; 2 classifications -> 200 output tokens.
	if result.InputTokens != 504 || result.OutputTokens != 200 {
		t.Fatalf("expected 504/200 tokens, got %d/%d", result.InputTokens, result.OutputTokens)
	}
	if got := result.FormattedCost(); got != "$0.0012" {
		t.Fatalf("expected $0.0012, got %s", got)
	}
}
