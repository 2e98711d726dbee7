// Package slackbot exposes brand analyses over Slack slash commands
// (Socket Mode) and posts run summaries to a report channel.
package slackbot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"brandpulse/internal/analysis"
	"brandpulse/internal/domain"
	"brandpulse/internal/logger"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

const (
	cmdAnalyze  = "/brand-analyze"
	cmdReport   = "/brand-report"
	cmdInsights = "/brand-insights"
	cmdHelp     = "/brand-help"

	defaultRangeDays = 7
)

type Service interface {
	Analyze(ctx context.Context, brand string, days int) (analysis.AnalyzeResult, error)
	Report(ctx context.Context, runID string) (analysis.RunReport, error)
	GenerateInsights(ctx context.Context, runID string) (domain.InsightReport, error)
}

type Bot struct {
	api             *slack.Client
	svc             Service
	reportChannelID string
	log             *logger.Logger
}

func New(api *slack.Client, svc Service, reportChannelID string, log *logger.Logger) *Bot {
	if log == nil {
		log = logger.Nop()
	}
	return &Bot{api: api, svc: svc, reportChannelID: reportChannelID, log: log}
}

// Run connects over Socket Mode and serves slash commands until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	client := socketmode.New(b.api)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				b.log.Info("slash command received", "command", cmd.Command, "user", cmd.UserID, "channel", cmd.ChannelID)
				go b.handleSlashCommand(ctx, cmd)
			case socketmode.EventTypeConnected:
				b.log.Info("slack bot connected via socket mode")
			}
		}
	}()

	return client.RunContext(ctx)
}

// Notify posts text to the report channel. It is a no-op without one.
func (b *Bot) Notify(ctx context.Context, text string) error {
	if b.reportChannelID == "" {
		return nil
	}
	_, _, err := b.api.PostMessageContext(ctx, b.reportChannelID, slack.MsgOptionText(text, false))
	return err
}

func (b *Bot) handleSlashCommand(ctx context.Context, cmd slack.SlashCommand) {
	if cmd.Command == cmdAnalyze {
		brand, days, err := parseAnalyzeArgs(cmd.Text)
		if err != nil {
			b.postEphemeral(cmd, err.Error())
			return
		}
		b.postEphemeral(cmd, fmt.Sprintf("Analyzing %s over the last %d days...", brand, days))
	}

	reply, broadcast := b.dispatch(ctx, cmd)
	if reply != "" {
		b.postEphemeral(cmd, reply)
	}
	if broadcast != "" {
		if err := b.Notify(ctx, broadcast); err != nil {
			b.log.Warn("slack report channel post error", "error", err)
		}
	}
}

// dispatch runs the command and returns the ephemeral reply for the caller
// plus an optional message for the report channel.
func (b *Bot) dispatch(ctx context.Context, cmd slack.SlashCommand) (string, string) {
	switch cmd.Command {
	case cmdAnalyze:
		brand, days, err := parseAnalyzeArgs(cmd.Text)
		if err != nil {
			return err.Error(), ""
		}
		result, err := b.svc.Analyze(ctx, brand, days)
		if err != nil {
			b.log.Warn("brand-analyze error", "brand", brand, "error", err)
			return "Analysis failed: " + userError(err), ""
		}
		summary := analysis.FormatAnalyzeSummary(result)
		return summary, fmt.Sprintf("<@%s> ran an analysis. %s", cmd.UserID, summary)

	case cmdReport:
		runID, err := parseRunID(cmd.Text, cmdReport)
		if err != nil {
			return err.Error(), ""
		}
		rep, err := b.svc.Report(ctx, runID)
		if err != nil {
			return "Could not load report: " + userError(err), ""
		}
		return analysis.FormatReportSummary(rep), ""

	case cmdInsights:
		runID, err := parseRunID(cmd.Text, cmdInsights)
		if err != nil {
			return err.Error(), ""
		}
		report, err := b.svc.GenerateInsights(ctx, runID)
		if err != nil {
			b.log.Warn("brand-insights error", "run_id", runID, "error", err)
			return "Insight generation failed: " + userError(err), ""
		}
		return FormatInsights(report), ""

	case cmdHelp:
		return helpText(), ""
	}
	return "", ""
}

func (b *Bot) postEphemeral(cmd slack.SlashCommand, text string) {
	_, err := b.api.PostEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText(text, false))
	if err != nil {
		b.log.Warn("slack post ephemeral error", "error", err)
	}
}

// parseAnalyzeArgs reads "<brand> [7|30|90]". The brand may contain spaces;
// a trailing number is taken as the range.
func parseAnalyzeArgs(text string) (string, int, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", 0, fmt.Errorf("Usage: `%s <brand> [7|30|90]`", cmdAnalyze)
	}
	days := defaultRangeDays
	if n, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
		if !domain.ValidRangeDays(n) {
			return "", 0, fmt.Errorf("Range must be 7, 30 or 90 days, got %d.", n)
		}
		days = n
		fields = fields[:len(fields)-1]
	}
	if len(fields) == 0 {
		return "", 0, fmt.Errorf("Usage: `%s <brand> [7|30|90]`", cmdAnalyze)
	}
	return strings.Join(fields, " "), days, nil
}

func parseRunID(text, command string) (string, error) {
	fields := strings.Fields(text)
	if len(fields) != 1 {
		return "", fmt.Errorf("Usage: `%s <run-id>`", command)
	}
	return fields[0], nil
}

func userError(err error) string {
	switch {
	case errors.Is(err, analysis.ErrNotFound):
		return "run not found."
	case errors.Is(err, analysis.ErrNothingClassified):
		return "this run has no classified posts yet."
	}
	return err.Error()
}

// FormatInsights renders an insight report as Slack mrkdwn.
func FormatInsights(r domain.InsightReport) string {
	var b strings.Builder
	b.WriteString("*Executive summary*\n")
	b.WriteString(r.ExecutiveSummary)
	if len(r.KeyFindings) > 0 {
		b.WriteString("\n\n*Key findings*")
		for _, f := range r.KeyFindings {
			fmt.Fprintf(&b, "\n• [%s] *%s*: %s", f.Severity, f.Title, f.Description)
		}
	}
	if len(r.Recommendations) > 0 {
		b.WriteString("\n\n*Recommendations*")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "\n• (%s) %s: %s", rec.Priority, rec.Category, rec.Action)
		}
	}
	if len(r.Opportunities) > 0 {
		b.WriteString("\n\n*Opportunities*")
		for _, o := range r.Opportunities {
			fmt.Fprintf(&b, "\n• *%s*: %s", o.Area, o.Suggestion)
		}
	}
	if r.CostEstimate != "" {
		fmt.Fprintf(&b, "\n\n_Est. cost %s_", r.CostEstimate)
	}
	return b.String()
}

func helpText() string {
	lines := []string{
		"*Brand Pulse Commands*",
		"",
		"`/brand-analyze <brand> [7|30|90]` - Search, classify and summarize recent posts (default 7 days).",
		"`/brand-report <run-id>` - Sentiment and category breakdown for a run.",
		"`/brand-insights <run-id>` - Generate strategic recommendations for a run.",
		"`/brand-help` - Show this help.",
	}
	return strings.Join(lines, "\n")
}
