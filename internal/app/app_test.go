package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"brandpulse/internal/config"
	"brandpulse/internal/logger"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		AnthropicAPIKey:            config.Secret("sk-test"),
		LLMModel:                   "claude-test",
		LLMBatchSize:               20,
		LLMBatchIntervalMS:         1000,
		LLMMaxTokens:               2048,
		LLMInputRatePerMTok:        0.80,
		LLMOutputRatePerMTok:       4.00,
		FailedBatchPolicy:          config.FailedBatchRequeue,
		InsightSampleSize:          10,
		RedditClientID:             "client",
		RedditClientSecret:         config.Secret("shh"),
		RedditUserAgent:            "brandpulse-test/1.0",
		RedditMaxPages:             3,
		RedditPageIntervalMS:       250,
		DBPath:                     filepath.Join(t.TempDir(), "app.db"),
		ExternalHTTPTimeoutSeconds: 30,
		HTTPAddr:                   "127.0.0.1:0",
		AnalysisSchedule:           "0 8 * * 1",
		WatchBrands:                []string{"acme", "globex"},
		WatchRangeDays:             30,
	}
}

func TestLLMOptionsFromConfig(t *testing.T) {
	opts := llmOptions(testConfig(t), logger.Nop())
	if opts.Model != "claude-test" {
		t.Fatalf("expected model claude-test, got %q", opts.Model)
	}
	if opts.MaxTokens != 2048 {
		t.Fatalf("expected 2048 max tokens, got %d", opts.MaxTokens)
	}
	if opts.Logger == nil {
		t.Fatal("expected logger to be set")
	}
}

func TestRedditConfigFromConfig(t *testing.T) {
	rc := redditConfig(testConfig(t), logger.Nop())
	if rc.ClientID != "client" || rc.ClientSecret != "shh" {
		t.Fatalf("unexpected credentials %q/%q", rc.ClientID, rc.ClientSecret)
	}
	if rc.UserAgent != "brandpulse-test/1.0" || rc.MaxPages != 3 {
		t.Fatalf("unexpected reddit config %+v", rc)
	}
	if rc.PageInterval != 250*time.Millisecond {
		t.Fatalf("expected 250ms page interval, got %s", rc.PageInterval)
	}
}

func TestScheduleConfigFromConfig(t *testing.T) {
	sc := scheduleConfig(testConfig(t))
	if sc.Schedule != "0 8 * * 1" || sc.Days != 30 || len(sc.Brands) != 2 {
		t.Fatalf("unexpected schedule config %+v", sc)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := run(ctx, cfg, logger.Nop()); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if _, err := os.Stat(cfg.DBPath); err != nil {
		t.Fatalf("expected database at %s: %v", cfg.DBPath, err)
	}
}

func TestRunRejectsInvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.AnalysisSchedule = "not a cron"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx, cfg, logger.Nop()); err == nil {
		t.Fatal("expected an invalid schedule error")
	}
}
