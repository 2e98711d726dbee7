package slackbot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"brandpulse/internal/analysis"
	"brandpulse/internal/domain"
	"brandpulse/internal/pipeline"

	"github.com/slack-go/slack"
)

type fakeService struct {
	analyzeBrand string
	analyzeDays  int
	err          error
}

func (f *fakeService) Analyze(ctx context.Context, brand string, days int) (analysis.AnalyzeResult, error) {
	f.analyzeBrand, f.analyzeDays = brand, days
	if f.err != nil {
		return analysis.AnalyzeResult{}, f.err
	}
	return analysis.AnalyzeResult{
		Run:        domain.Run{ID: "run-1", Brand: brand, RangeLabel: domain.RangeLabel(days)},
		Fetched:    5,
		Candidates: 5,
		Classified: 5,
		CostUSD:    0.002,
	}, nil
}

func (f *fakeService) Report(ctx context.Context, runID string) (analysis.RunReport, error) {
	if f.err != nil {
		return analysis.RunReport{}, f.err
	}
	return analysis.RunReport{
		Run: domain.Run{ID: runID, Brand: "acme", RangeLabel: "7 days", Status: domain.RunCompleted},
		Aggregate: pipeline.AggregateReport{
			TotalRecords:      2,
			ClassifiedRecords: 2,
			Sentiment:         pipeline.SentimentCounts{Positive: 2},
			Categories:        map[string]int{"Product": 2},
		},
	}, nil
}

func (f *fakeService) GenerateInsights(ctx context.Context, runID string) (domain.InsightReport, error) {
	if f.err != nil {
		return domain.InsightReport{}, f.err
	}
	return domain.InsightReport{RunID: runID, ExecutiveSummary: "All good."}, nil
}

func TestParseAnalyzeArgs(t *testing.T) {
	tests := []struct {
		input     string
		wantBrand string
		wantDays  int
		wantErr   bool
	}{
		{input: "acme", wantBrand: "acme", wantDays: 7},
		{input: "acme 30", wantBrand: "acme", wantDays: 30},
		{input: "  Acme Corp   90 ", wantBrand: "Acme Corp", wantDays: 90},
		{input: "acme 14", wantErr: true},
		{input: "", wantErr: true},
		{input: "30", wantErr: true},
	}
	for _, tt := range tests {
		brand, days, err := parseAnalyzeArgs(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseAnalyzeArgs(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseAnalyzeArgs(%q) error: %v", tt.input, err)
		}
		if brand != tt.wantBrand || days != tt.wantDays {
			t.Fatalf("parseAnalyzeArgs(%q) = %q, %d; want %q, %d", tt.input, brand, days, tt.wantBrand, tt.wantDays)
		}
	}
}

func TestDispatchAnalyze(t *testing.T) {
	svc := &fakeService{}
	b := New(nil, svc, "C-report", nil)

	reply, broadcast := b.dispatch(context.Background(), slack.SlashCommand{Command: cmdAnalyze, Text: "acme 30", UserID: "U1"})
	if svc.analyzeBrand != "acme" || svc.analyzeDays != 30 {
		t.Fatalf("unexpected analyze call: %q %d", svc.analyzeBrand, svc.analyzeDays)
	}
	if !strings.Contains(reply, "Analyzed acme (30 days)") {
		t.Fatalf("unexpected reply %q", reply)
	}
	if !strings.HasPrefix(broadcast, "<@U1> ran an analysis.") {
		t.Fatalf("unexpected broadcast %q", broadcast)
	}
}

func TestDispatchErrors(t *testing.T) {
	tests := []struct {
		name string
		cmd  slack.SlashCommand
		err  error
		want string
	}{
		{"report usage", slack.SlashCommand{Command: cmdReport}, nil, "Usage: `/brand-report <run-id>`"},
		{"report not found", slack.SlashCommand{Command: cmdReport, Text: "nope"}, fmt.Errorf("run nope: %w", analysis.ErrNotFound), "Could not load report: run not found."},
		{"insights nothing classified", slack.SlashCommand{Command: cmdInsights, Text: "r1"}, analysis.ErrNothingClassified, "Insight generation failed: this run has no classified posts yet."},
		{"analyze failure", slack.SlashCommand{Command: cmdAnalyze, Text: "acme"}, errors.New("rate limited"), "Analysis failed: rate limited"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(nil, &fakeService{err: tt.err}, "", nil)
			reply, broadcast := b.dispatch(context.Background(), tt.cmd)
			if reply != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, reply)
			}
			if broadcast != "" {
				t.Fatalf("expected no broadcast on error, got %q", broadcast)
			}
		})
	}
}

func TestDispatchReportAndHelp(t *testing.T) {
	b := New(nil, &fakeService{}, "", nil)
	reply, _ := b.dispatch(context.Background(), slack.SlashCommand{Command: cmdReport, Text: "run-9"})
	if !strings.Contains(reply, "100% positive") || !strings.Contains(reply, "Product (2 posts)") {
		t.Fatalf("unexpected report reply %q", reply)
	}
	help, _ := b.dispatch(context.Background(), slack.SlashCommand{Command: cmdHelp})
	for _, c := range []string{cmdAnalyze, cmdReport, cmdInsights} {
		if !strings.Contains(help, c) {
			t.Fatalf("help missing %s", c)
		}
	}
	if unknown, _ := b.dispatch(context.Background(), slack.SlashCommand{Command: "/other"}); unknown != "" {
		t.Fatalf("expected no reply for unknown command, got %q", unknown)
	}
}

func TestFormatInsights(t *testing.T) {
	msg := FormatInsights(domain.InsightReport{
		ExecutiveSummary: "Mostly positive.",
		KeyFindings:      []domain.KeyFinding{{Title: "Price", Severity: domain.SeverityCritical, Description: "Too pricey"}},
		Recommendations:  []domain.Recommendation{{Priority: domain.PriorityHigh, Category: "Pricing", Action: "Launch a tier"}},
		Opportunities:    []domain.Opportunity{{Area: "Planet", Suggestion: "Publish a report"}},
		CostEstimate:     "$0.0020",
	})
	for _, want := range []string{"Mostly positive.", "[critical] *Price*: Too pricey", "(high) Pricing: Launch a tier", "*Planet*: Publish a report", "$0.0020"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}

func TestNotifyPostsToReportChannel(t *testing.T) {
	var gotChannel, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = r.ParseForm()
		gotChannel = r.FormValue("channel")
		gotText = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true,"channel":"C-report","ts":"1700000000.000100"}`)
	}))
	defer srv.Close()

	api := slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/"))
	b := New(api, &fakeService{}, "C-report", nil)
	if err := b.Notify(context.Background(), "done"); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if gotChannel != "C-report" || gotText != "done" {
		t.Fatalf("unexpected post channel=%q text=%q", gotChannel, gotText)
	}

	silent := New(api, &fakeService{}, "", nil)
	if err := silent.Notify(context.Background(), "ignored"); err != nil {
		t.Fatalf("Notify without channel should be a no-op, got %v", err)
	}
}
