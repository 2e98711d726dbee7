// Package schedule re-analyzes a watch list of brands on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"brandpulse/internal/analysis"
	"brandpulse/internal/logger"

	"github.com/robfig/cron/v3"
)

type Analyzer interface {
	Analyze(ctx context.Context, brand string, days int) (analysis.AnalyzeResult, error)
}

// Notifier posts a sweep summary somewhere people will see it.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type Config struct {
	Schedule string
	Brands   []string
	Days     int
	Location *time.Location
}

// BrandResult is the outcome of one brand in a sweep.
type BrandResult struct {
	Brand  string
	Result analysis.AnalyzeResult
	Err    error
}

type SweepResult struct {
	Brands []BrandResult
}

func (s SweepResult) Failed() int {
	n := 0
	for _, b := range s.Brands {
		if b.Err != nil {
			n++
		}
	}
	return n
}

// ParseSchedule accepts a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(strings.TrimSpace(spec))
}

// Sweep analyzes every brand in turn. One brand failing does not stop the
// others.
func Sweep(ctx context.Context, a Analyzer, brands []string, days int, log *logger.Logger) SweepResult {
	if log == nil {
		log = logger.Nop()
	}
	var out SweepResult
	for _, brand := range brands {
		if ctx.Err() != nil {
			break
		}
		brand = strings.TrimSpace(brand)
		if brand == "" {
			continue
		}
		result, err := a.Analyze(ctx, brand, days)
		if err != nil {
			log.Warn("scheduled analysis error", "brand", brand, "error", err)
		}
		out.Brands = append(out.Brands, BrandResult{Brand: brand, Result: result, Err: err})
	}
	return out
}

// FormatSweepSummary returns a human-readable summary of a SweepResult.
func FormatSweepSummary(s SweepResult) string {
	if len(s.Brands) == 0 {
		return "Scheduled analysis: no brands analyzed."
	}
	lines := []string{fmt.Sprintf("Scheduled analysis complete: %d brands, %d failed", len(s.Brands), s.Failed())}
	for _, b := range s.Brands {
		if b.Err != nil {
			lines = append(lines, fmt.Sprintf("- %s: error: %v", b.Brand, b.Err))
			continue
		}
		lines = append(lines, "- "+analysis.FormatAnalyzeSummary(b.Result))
	}
	return strings.Join(lines, "\n")
}

// Start launches the scheduler goroutine and returns immediately. An empty
// schedule or watch list disables it. The goroutine stops when ctx is done.
func Start(ctx context.Context, cfg Config, a Analyzer, n Notifier, log *logger.Logger) error {
	if log == nil {
		log = logger.Nop()
	}
	spec := strings.TrimSpace(cfg.Schedule)
	if spec == "" {
		log.Info("scheduled analysis disabled (analysis_schedule not set)")
		return nil
	}
	if len(cfg.Brands) == 0 {
		log.Info("scheduled analysis disabled (watch_brands empty)")
		return nil
	}
	sched, err := ParseSchedule(spec)
	if err != nil {
		return fmt.Errorf("invalid analysis_schedule %q: %w", spec, err)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	log.Info("scheduled analysis enabled", "cron", spec, "brands", strings.Join(cfg.Brands, ","), "days", cfg.Days)

	go func() {
		for {
			now := time.Now().In(loc)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Info("next scheduled analysis", "at", next.Format("Mon Jan 2 15:04"), "in", wait.Round(time.Minute).String())

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			result := Sweep(ctx, a, cfg.Brands, cfg.Days, log)
			summary := FormatSweepSummary(result)
			log.Info("scheduled analysis complete", "brands", len(result.Brands), "failed", result.Failed())

			if n != nil {
				if err := n.Notify(ctx, summary); err != nil {
					log.Warn("scheduled analysis post error", "error", err)
				}
			}
		}
	}()
	return nil
}
