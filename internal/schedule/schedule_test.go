package schedule

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"brandpulse/internal/analysis"
	"brandpulse/internal/domain"
	"brandpulse/internal/logger"
)

type fakeAnalyzer struct {
	calls []string
	fail  map[string]error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, brand string, days int) (analysis.AnalyzeResult, error) {
	f.calls = append(f.calls, brand)
	if err := f.fail[brand]; err != nil {
		return analysis.AnalyzeResult{}, err
	}
	return analysis.AnalyzeResult{
		Run:        domain.Run{ID: "run-" + brand, Brand: brand, RangeLabel: domain.RangeLabel(days)},
		Fetched:    3,
		Candidates: 3,
		Classified: 3,
	}, nil
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"0 9 * * *", false},
		{"0 9 * * 1-5", false},
		{" 30 6 * * 5 ", false},
		{"0 9 * *", true},
		{"not a schedule", true},
	}
	for _, tt := range tests {
		_, err := ParseSchedule(tt.spec)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseSchedule(%q) err=%v, wantErr=%v", tt.spec, err, tt.wantErr)
		}
	}

	sched, _ := ParseSchedule("0 9 * * *")
	from := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	if next := sched.Next(from); !next.Equal(time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next run %s", next)
	}
}

func TestSweepContinuesAfterFailure(t *testing.T) {
	a := &fakeAnalyzer{fail: map[string]error{"globex": errors.New("rate limited")}}
	result := Sweep(context.Background(), a, []string{"acme", " ", "globex", "initech"}, 7, logger.Nop())

	if strings.Join(a.calls, ",") != "acme,globex,initech" {
		t.Fatalf("unexpected calls: %v", a.calls)
	}
	if len(result.Brands) != 3 || result.Failed() != 1 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}
}

func TestFormatSweepSummary(t *testing.T) {
	a := &fakeAnalyzer{fail: map[string]error{"globex": errors.New("rate limited")}}
	summary := FormatSweepSummary(Sweep(context.Background(), a, []string{"acme", "globex"}, 7, logger.Nop()))

	for _, want := range []string{"2 brands, 1 failed", "- globex: error: rate limited", "Analyzed acme (7 days)"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("expected %q in summary:\n%s", want, summary)
		}
	}
	if got := FormatSweepSummary(SweepResult{}); got != "Scheduled analysis: no brands analyzed." {
		t.Fatalf("unexpected empty summary %q", got)
	}
}

func TestStartDisabledAndInvalid(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := &fakeAnalyzer{}

	if err := Start(ctx, Config{}, a, nil, nil); err != nil {
		t.Fatalf("empty schedule should disable without error, got %v", err)
	}
	if err := Start(ctx, Config{Schedule: "0 9 * * *"}, a, nil, nil); err != nil {
		t.Fatalf("empty watch list should disable without error, got %v", err)
	}
	if err := Start(ctx, Config{Schedule: "bogus", Brands: []string{"acme"}}, a, nil, nil); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if err := Start(ctx, Config{Schedule: "0 9 * * *", Brands: []string{"acme"}, Days: 7}, a, nil, nil); err != nil {
		t.Fatalf("valid schedule failed: %v", err)
	}
}
