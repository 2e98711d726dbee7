// Package app wires configuration, storage, integrations and the HTTP and
// Slack surfaces into the brandpulse process.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"brandpulse/internal/analysis"
	"brandpulse/internal/config"
	"brandpulse/internal/httpx"
	"brandpulse/internal/integrations/llm"
	"brandpulse/internal/integrations/reddit"
	slackbot "brandpulse/internal/integrations/slack"
	"brandpulse/internal/logger"
	"brandpulse/internal/metrics"
	"brandpulse/internal/schedule"
	"brandpulse/internal/server"
	"brandpulse/internal/storage/sqlite"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"
)

func Main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("brandpulse exited", "error", err)
	}
	log.Info("brandpulse stopped")
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Info("config loaded",
		"model", cfg.LLMModel,
		"batch_size", cfg.LLMBatchSize,
		"batch_interval", cfg.BatchInterval(),
		"failed_batch_policy", cfg.FailedBatchPolicy,
		"reddit_max_pages", cfg.RedditMaxPages,
		"external_http_timeout", appliedHTTPTimeout,
		"watch_brands", len(cfg.WatchBrands),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer store.Close()
	log.Info("database initialized", "path", cfg.DBPath)

	searcher := reddit.NewClient(redditConfig(cfg, log))
	llmOpts := llmOptions(cfg, log)
	opts := analysis.OptionsFromConfig(cfg)
	svc := analysis.NewService(
		store,
		searcher,
		llm.NewClassifier(llmOpts),
		llm.NewInsightGenerator(llmOpts, opts.Rates),
		analysis.StaticCredentials(cfg.AnthropicAPIKey),
		opts,
		log,
	)

	g, gctx := errgroup.WithContext(ctx)

	var notifier schedule.Notifier = logNotifier{log: log}
	var bot *slackbot.Bot
	if cfg.SlackConfigured() {
		api := slack.New(
			cfg.SlackBotToken.Reveal(),
			slack.OptionAppLevelToken(cfg.SlackAppToken.Reveal()),
		)
		bot = slackbot.New(api, svc, cfg.ReportChannelID, log)
		notifier = bot
	} else {
		log.Info("slack tokens not set, slack bot disabled")
	}

	if err := schedule.Start(gctx, scheduleConfig(cfg), svc, notifier, log); err != nil {
		return fmt.Errorf("start schedule: %w", err)
	}

	srv := server.New(cfg.HTTPAddr, server.RouterConfig{Service: svc, Health: store, Logger: log})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if bot != nil {
		g.Go(func() error {
			log.Info("starting slack bot")
			if err := bot.Run(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("slack bot: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func redditConfig(cfg config.Config, log *logger.Logger) reddit.Config {
	return reddit.Config{
		ClientID:     cfg.RedditClientID,
		ClientSecret: cfg.RedditClientSecret.Reveal(),
		UserAgent:    cfg.RedditUserAgent,
		MaxPages:     cfg.RedditMaxPages,
		PageInterval: cfg.RedditPageInterval(),
		Logger:       log,
	}
}

func llmOptions(cfg config.Config, log *logger.Logger) llm.Options {
	return llm.Options{
		Model:     cfg.LLMModel,
		MaxTokens: int64(cfg.LLMMaxTokens),
		Logger:    log,
	}
}

func scheduleConfig(cfg config.Config) schedule.Config {
	return schedule.Config{
		Schedule: cfg.AnalysisSchedule,
		Brands:   cfg.WatchBrands,
		Days:     cfg.WatchRangeDays,
	}
}

// logNotifier stands in for Slack when no report channel is configured.
type logNotifier struct {
	log *logger.Logger
}

func (n logNotifier) Notify(_ context.Context, text string) error {
	n.log.Info("scheduled sweep finished", "summary", text)
	return nil
}
