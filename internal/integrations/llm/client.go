// Package llm talks to the Anthropic Messages API: batch classification of
// records and narrative insight generation.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"brandpulse/internal/httpx"
	"brandpulse/internal/logger"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultModel     = "claude-3-5-haiku-20241022"
	defaultMaxTokens = 4096
)

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Options configure calls to the Messages API. BaseURL and HTTPClient are
// optional; tests point BaseURL at an httptest server.
type Options struct {
	Model      string
	MaxTokens  int64
	BaseURL    string
	HTTPClient *http.Client
	Logger     *logger.Logger
}

func (o Options) model() string {
	if strings.TrimSpace(o.Model) == "" {
		return DefaultModel
	}
	return o.Model
}

func (o Options) maxTokens() int64 {
	if o.MaxTokens < 1 {
		return defaultMaxTokens
	}
	return o.MaxTokens
}

func (o Options) logger() *logger.Logger {
	if o.Logger == nil {
		return logger.Nop()
	}
	return o.Logger
}

// callAnthropic sends one system+user exchange and returns the first text
// block. A client is built per call so the key lives only as long as the
// request.
func callAnthropic(ctx context.Context, opts Options, apiKey, systemPrompt, userPrompt string) (string, Usage, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = httpx.ExternalHTTPClient()
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := anthropic.NewClient(reqOpts...)

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.model()),
		MaxTokens: opts.maxTokens(),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", Usage{}, toServiceError(err)
	}
	usage := Usage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			opts.logger().Debug("llm anthropic response", "size", len(block.Text), "tokens_in", usage.InputTokens, "tokens_out", usage.OutputTokens)
			return block.Text, usage, nil
		}
	}
	return "", usage, &MalformedResponseError{Reason: ErrNoTextContent.Error()}
}

func toServiceError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &ServiceError{Status: apiErr.StatusCode, Message: apiErrorMessage(apiErr), Err: err}
	}
	return &ServiceError{Message: err.Error(), Err: err}
}

// apiErrorMessage pulls error.message out of the API's error envelope.
func apiErrorMessage(apiErr *anthropic.Error) string {
	raw := strings.TrimSpace(apiErr.RawJSON())
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if raw != "" && json.Unmarshal([]byte(raw), &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	if raw != "" {
		return raw
	}
	return http.StatusText(apiErr.StatusCode)
}
