package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"brandpulse/internal/analysis"
	"brandpulse/internal/domain"
	"brandpulse/internal/integrations/llm"
	"brandpulse/internal/integrations/reddit"
	"brandpulse/internal/pipeline"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeService struct {
	err        error
	gotBrand   string
	gotDays    int
	gotLimit   int
	runs       []domain.Run
	reclassify int
}

func (f *fakeService) Analyze(ctx context.Context, brand string, days int) (analysis.AnalyzeResult, error) {
	f.gotBrand, f.gotDays = brand, days
	if f.err != nil {
		return analysis.AnalyzeResult{}, f.err
	}
	return analysis.AnalyzeResult{
		Run:        domain.Run{ID: "run-1", Brand: brand, RangeLabel: domain.RangeLabel(days), Status: domain.RunCompleted},
		Fetched:    3,
		Candidates: 3,
		Classified: 3,
		CostUSD:    0.0012,
	}, nil
}

func (f *fakeService) Reclassify(ctx context.Context, runID string) (analysis.AnalyzeResult, error) {
	f.reclassify++
	if f.err != nil {
		return analysis.AnalyzeResult{}, f.err
	}
	return analysis.AnalyzeResult{Run: domain.Run{ID: runID, Brand: "acme"}, Candidates: 1, Classified: 1}, nil
}

func (f *fakeService) Report(ctx context.Context, runID string) (analysis.RunReport, error) {
	if f.err != nil {
		return analysis.RunReport{}, f.err
	}
	c := &domain.Classification{RecordID: "r1", Categories: []string{"Product"}, Sentiment: domain.SentimentPositive, Confidence: 0.9}
	pairs := []pipeline.Pair{
		{Record: domain.Record{ID: "r1", Text: "love it"}, Classification: c},
		{Record: domain.Record{ID: "r2", Text: "meh"}},
	}
	return analysis.RunReport{
		Run:       domain.Run{ID: runID, Brand: "acme", Status: domain.RunCompleted},
		Aggregate: pipeline.Aggregate(pairs),
		Pairs:     pairs,
	}, nil
}

func (f *fakeService) Runs(ctx context.Context, brand string, limit int) ([]domain.Run, error) {
	f.gotBrand, f.gotLimit = brand, limit
	return f.runs, f.err
}

func (f *fakeService) GenerateInsights(ctx context.Context, runID string) (domain.InsightReport, error) {
	if f.err != nil {
		return domain.InsightReport{}, f.err
	}
	return domain.InsightReport{RunID: runID, ExecutiveSummary: "fresh"}, nil
}

func (f *fakeService) Insights(ctx context.Context, runID string) (domain.InsightReport, error) {
	if f.err != nil {
		return domain.InsightReport{}, f.err
	}
	return domain.InsightReport{RunID: runID, ExecutiveSummary: "stored"}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestCreateAnalysis(t *testing.T) {
	svc := &fakeService{}
	router := NewRouter(RouterConfig{Service: svc})

	rec := do(t, router, http.MethodPost, "/api/analyses", `{"brand":"  acme ","days":30}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.gotBrand != "acme" || svc.gotDays != 30 {
		t.Fatalf("unexpected call brand=%q days=%d", svc.gotBrand, svc.gotDays)
	}
	var resp analysisResponse
	decode(t, rec, &resp)
	if resp.Run.ID != "run-1" || resp.Classified != 3 || resp.CostEstimate != "$0.0012" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCreateAnalysisDefaultsToSevenDays(t *testing.T) {
	svc := &fakeService{}
	router := NewRouter(RouterConfig{Service: svc})
	rec := do(t, router, http.MethodPost, "/api/analyses", `{"brand":"acme"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if svc.gotDays != 7 {
		t.Fatalf("expected 7 days, got %d", svc.gotDays)
	}
}

func TestCreateAnalysisRejectsBadJSON(t *testing.T) {
	router := NewRouter(RouterConfig{Service: &fakeService{}})
	rec := do(t, router, http.MethodPost, "/api/analyses", `{"brand":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantTag  string
	}{
		{analysis.ErrInvalidBrand, http.StatusBadRequest, "invalid_request"},
		{analysis.ErrInvalidRange, http.StatusBadRequest, "invalid_request"},
		{fmt.Errorf("run x: %w", analysis.ErrNotFound), http.StatusNotFound, "not_found"},
		{analysis.ErrNothingClassified, http.StatusConflict, "nothing_classified"},
		{reddit.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{pipeline.ErrMissingCredentials, http.StatusServiceUnavailable, "missing_credentials"},
		{&llm.ServiceError{Status: 500, Message: "overloaded"}, http.StatusBadGateway, "model_service_error"},
		{errors.New("disk full"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.wantTag, func(t *testing.T) {
			router := NewRouter(RouterConfig{Service: &fakeService{err: tt.err}})
			rec := do(t, router, http.MethodPost, "/api/analyses/run-1/insights", "")
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var env ErrorEnvelope
			decode(t, rec, &env)
			if env.Error.Code != tt.wantTag {
				t.Fatalf("expected code %q, got %q", tt.wantTag, env.Error.Code)
			}
		})
	}
}

func TestGetAnalysisReturnsAggregate(t *testing.T) {
	router := NewRouter(RouterConfig{Service: &fakeService{}})
	rec := do(t, router, http.MethodGet, "/api/analyses/run-7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Run         domain.Run                        `json:"run"`
		Aggregate   pipeline.AggregateReport          `json:"aggregate"`
		Percentages pipeline.SentimentPercentages     `json:"percentages"`
		Posts       []domain.RecordWithClassification `json:"posts"`
	}
	decode(t, rec, &body)
	if body.Run.ID != "run-7" {
		t.Fatalf("expected run-7, got %q", body.Run.ID)
	}
	if body.Aggregate.TotalRecords != 2 || body.Aggregate.ClassifiedRecords != 1 {
		t.Fatalf("unexpected aggregate %+v", body.Aggregate)
	}
	if body.Percentages.Positive != 50 {
		t.Fatalf("expected 50%% positive, got %d", body.Percentages.Positive)
	}
	if len(body.Posts) != 2 || body.Posts[1].Classification != nil {
		t.Fatalf("expected second post unclassified, got %+v", body.Posts)
	}
}

func TestListAnalyses(t *testing.T) {
	svc := &fakeService{runs: []domain.Run{{ID: "a"}, {ID: "b"}}}
	router := NewRouter(RouterConfig{Service: svc})

	rec := do(t, router, http.MethodGet, "/api/analyses?brand=acme&limit=1000", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.gotBrand != "acme" || svc.gotLimit != maxListLimit {
		t.Fatalf("unexpected list call brand=%q limit=%d", svc.gotBrand, svc.gotLimit)
	}
	var body struct {
		Analyses []domain.Run `json:"analyses"`
	}
	decode(t, rec, &body)
	if len(body.Analyses) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(body.Analyses))
	}

	if rec := do(t, router, http.MethodGet, "/api/analyses?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestInsightsRoutes(t *testing.T) {
	router := NewRouter(RouterConfig{Service: &fakeService{}})

	var report domain.InsightReport
	rec := do(t, router, http.MethodPost, "/api/analyses/run-1/insights", "")
	decode(t, rec, &report)
	if rec.Code != http.StatusOK || report.ExecutiveSummary != "fresh" {
		t.Fatalf("unexpected generate response %d %+v", rec.Code, report)
	}

	rec = do(t, router, http.MethodGet, "/api/analyses/run-1/insights", "")
	decode(t, rec, &report)
	if rec.Code != http.StatusOK || report.ExecutiveSummary != "stored" {
		t.Fatalf("unexpected get response %d %+v", rec.Code, report)
	}
}

func TestReclassifyRoute(t *testing.T) {
	svc := &fakeService{}
	router := NewRouter(RouterConfig{Service: svc})
	rec := do(t, router, http.MethodPost, "/api/analyses/run-1/reclassify", "")
	if rec.Code != http.StatusOK || svc.reclassify != 1 {
		t.Fatalf("expected one reclassify call and 200, got %d calls=%d", rec.Code, svc.reclassify)
	}
}

func TestHealthz(t *testing.T) {
	router := NewRouter(RouterConfig{Service: &fakeService{}, Health: fakePinger{}})
	if rec := do(t, router, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("expected ok, got %d %q", rec.Code, rec.Body.String())
	}

	router = NewRouter(RouterConfig{Service: &fakeService{}, Health: fakePinger{err: errors.New("db closed")}})
	if rec := do(t, router, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "brandpulse_up 1\n")
	})
	router := NewRouter(RouterConfig{Service: &fakeService{}, Metrics: metrics})
	rec := do(t, router, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "brandpulse_up") {
		t.Fatalf("unexpected metrics response %d %q", rec.Code, rec.Body.String())
	}
}
