package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	FailedBatchSkip    = "skip"
	FailedBatchRequeue = "requeue"
)

// Secret holds a credential in memory. Formatting it never prints the value.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

func (s Secret) GoString() string { return s.String() }

// Reveal returns the plaintext value. Call it only at the point of use.
func (s Secret) Reveal() string { return string(s) }

type Config struct {
	AnthropicAPIKey      Secret  `yaml:"anthropic_api_key"`
	LLMModel             string  `yaml:"llm_model"`
	LLMBatchSize         int     `yaml:"llm_batch_size"`
	LLMBatchIntervalMS   int     `yaml:"llm_batch_interval_ms"`
	LLMMaxTokens         int     `yaml:"llm_max_tokens"`
	LLMInputRatePerMTok  float64 `yaml:"llm_input_rate_per_mtok"`
	LLMOutputRatePerMTok float64 `yaml:"llm_output_rate_per_mtok"`
	FailedBatchPolicy    string  `yaml:"failed_batch_policy"`
	InsightSampleSize    int     `yaml:"insight_sample_size"`

	RedditClientID       string `yaml:"reddit_client_id"`
	RedditClientSecret   Secret `yaml:"reddit_client_secret"`
	RedditUserAgent      string `yaml:"reddit_user_agent"`
	RedditMaxPages       int    `yaml:"reddit_max_pages"`
	RedditPageIntervalMS int    `yaml:"reddit_page_interval_ms"`

	DBPath                     string `yaml:"db_path"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`
	HTTPAddr                   string `yaml:"http_addr"`
	LogMode                    string `yaml:"log_mode"`

	SlackBotToken   Secret `yaml:"slack_bot_token"`
	SlackAppToken   Secret `yaml:"slack_app_token"`
	ReportChannelID string `yaml:"report_channel_id"`

	AnalysisSchedule string   `yaml:"analysis_schedule"`
	WatchBrands      []string `yaml:"watch_brands"`
	WatchRangeDays   int      `yaml:"watch_range_days"`
}

// Load reads config.yaml (or CONFIG_PATH), applies env overrides and
// defaults, then validates.
func Load() (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	overrides := []error{
		envOverrideSecret(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY"),
		envOverride(&cfg.LLMModel, "LLM_MODEL"),
		envOverrideInt(&cfg.LLMBatchSize, "LLM_BATCH_SIZE"),
		envOverrideInt(&cfg.LLMBatchIntervalMS, "LLM_BATCH_INTERVAL_MS"),
		envOverrideInt(&cfg.LLMMaxTokens, "LLM_MAX_TOKENS"),
		envOverrideFloat(&cfg.LLMInputRatePerMTok, "LLM_INPUT_RATE_PER_MTOK"),
		envOverrideFloat(&cfg.LLMOutputRatePerMTok, "LLM_OUTPUT_RATE_PER_MTOK"),
		envOverride(&cfg.FailedBatchPolicy, "FAILED_BATCH_POLICY"),
		envOverrideInt(&cfg.InsightSampleSize, "INSIGHT_SAMPLE_SIZE"),
		envOverride(&cfg.RedditClientID, "REDDIT_CLIENT_ID"),
		envOverrideSecret(&cfg.RedditClientSecret, "REDDIT_CLIENT_SECRET"),
		envOverride(&cfg.RedditUserAgent, "REDDIT_USER_AGENT"),
		envOverrideInt(&cfg.RedditMaxPages, "REDDIT_MAX_PAGES"),
		envOverrideInt(&cfg.RedditPageIntervalMS, "REDDIT_PAGE_INTERVAL_MS"),
		envOverride(&cfg.DBPath, "DB_PATH"),
		envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"),
		envOverride(&cfg.HTTPAddr, "HTTP_ADDR"),
		envOverride(&cfg.LogMode, "LOG_MODE"),
		envOverrideSecret(&cfg.SlackBotToken, "SLACK_BOT_TOKEN"),
		envOverrideSecret(&cfg.SlackAppToken, "SLACK_APP_TOKEN"),
		envOverride(&cfg.ReportChannelID, "REPORT_CHANNEL_ID"),
		envOverride(&cfg.AnalysisSchedule, "ANALYSIS_SCHEDULE"),
		envOverrideInt(&cfg.WatchRangeDays, "WATCH_RANGE_DAYS"),
	}
	for _, err := range overrides {
		if err != nil {
			return cfg, err
		}
	}
	if brands := os.Getenv("WATCH_BRANDS"); brands != "" {
		cfg.WatchBrands = nil
		for _, b := range strings.Split(brands, ",") {
			b = strings.TrimSpace(b)
			if b != "" {
				cfg.WatchBrands = append(cfg.WatchBrands, b)
			}
		}
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLMModel == "" {
		cfg.LLMModel = "claude-3-5-haiku-20241022"
	}
	if cfg.LLMBatchSize == 0 {
		cfg.LLMBatchSize = 20
	}
	if cfg.LLMBatchIntervalMS == 0 {
		cfg.LLMBatchIntervalMS = 1000
	}
	if cfg.LLMMaxTokens == 0 {
		cfg.LLMMaxTokens = 4096
	}
	if cfg.LLMInputRatePerMTok == 0 {
		cfg.LLMInputRatePerMTok = 0.80
	}
	if cfg.LLMOutputRatePerMTok == 0 {
		cfg.LLMOutputRatePerMTok = 4.00
	}
	if cfg.FailedBatchPolicy == "" {
		cfg.FailedBatchPolicy = FailedBatchSkip
	}
	if cfg.InsightSampleSize == 0 {
		cfg.InsightSampleSize = 10
	}
	if cfg.RedditUserAgent == "" {
		cfg.RedditUserAgent = "brandpulse/1.0"
	}
	if cfg.RedditMaxPages == 0 {
		cfg.RedditMaxPages = 15
	}
	if cfg.RedditPageIntervalMS == 0 {
		cfg.RedditPageIntervalMS = 1000
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./brandpulse.db"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.WatchRangeDays == 0 {
		cfg.WatchRangeDays = 7
	}
}

// Validate checks ranges only. Missing credentials are not a config error:
// they are reported per run, before any external call.
func (c Config) Validate() error {
	if c.LLMBatchSize < 1 {
		return fmt.Errorf("invalid llm_batch_size '%d': must be >= 1", c.LLMBatchSize)
	}
	if c.LLMBatchIntervalMS < 0 {
		return fmt.Errorf("invalid llm_batch_interval_ms '%d': must be >= 0", c.LLMBatchIntervalMS)
	}
	if c.LLMInputRatePerMTok < 0 || c.LLMOutputRatePerMTok < 0 {
		return fmt.Errorf("llm token rates must be >= 0")
	}
	switch c.FailedBatchPolicy {
	case FailedBatchSkip, FailedBatchRequeue:
	default:
		return fmt.Errorf("failed_batch_policy must be '%s' or '%s', got '%s'", FailedBatchSkip, FailedBatchRequeue, c.FailedBatchPolicy)
	}
	if c.InsightSampleSize < 1 {
		return fmt.Errorf("invalid insight_sample_size '%d': must be >= 1", c.InsightSampleSize)
	}
	if c.RedditMaxPages < 1 {
		return fmt.Errorf("invalid reddit_max_pages '%d': must be >= 1", c.RedditMaxPages)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if c.WatchRangeDays != 7 && c.WatchRangeDays != 30 && c.WatchRangeDays != 90 {
		return fmt.Errorf("invalid watch_range_days '%d': must be 7, 30 or 90", c.WatchRangeDays)
	}
	return nil
}

func (c Config) BatchInterval() time.Duration {
	return time.Duration(c.LLMBatchIntervalMS) * time.Millisecond
}

func (c Config) RedditPageInterval() time.Duration {
	return time.Duration(c.RedditPageIntervalMS) * time.Millisecond
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

func envOverride(field *string, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
	return nil
}

func envOverrideSecret(field *Secret, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		*field = Secret(val)
	}
	return nil
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}
