// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Slack settings
	SlackBotToken   string
	SlackChannelID  string
	ErrorRecipients []string // Slack user IDs for out-of-band warnings

	// Ranker settings
	RankerProvider string // "openai" or "gemini"
	OpenAIAPIKey   string
	OpenAIModel    string
	GeminiAPIKey   string
	GeminiModel    string

	// Google Sheets ledger settings
	SheetsCredentialsPath string
	SpreadsheetID         string
	WorksheetName         string

	// Ingestion settings
	FeedsConfigPath string
	MaxArticles     int           // global cap per run
	LookbackDays    int           // discard items older than this
	FeedTimeout     time.Duration // per feed fetch
	ExtractTimeout  time.Duration // per article fetch

	// Delivery settings
	PostDelay time.Duration // pacing delay between successive posts
	Reactions []string      // reactions attached to every delivered message
}

func Load() (*Config, error) {
	cfg := &Config{
		RankerProvider:  "openai",
		OpenAIModel:     "gpt-4o",
		GeminiModel:     "gemini-1.5-flash",
		WorksheetName:   "Articles",
		FeedsConfigPath: "configs/feeds.yaml",
		MaxArticles:     100,
		LookbackDays:    60,
		FeedTimeout:     10 * time.Second,
		ExtractTimeout:  15 * time.Second,
		PostDelay:       30 * time.Second,
		Reactions:       []string{"thumbsup", "no_entry", "eyes"},
	}

	cfg.SlackBotToken = os.Getenv("SLACK_BOT_TOKEN")
	cfg.SlackChannelID = os.Getenv("SLACK_CHANNEL_ID")
	cfg.ErrorRecipients = parseList(os.Getenv("SLACK_ERROR_USER_IDS"))

	if v := os.Getenv("RANKER_PROVIDER"); v != "" {
		cfg.RankerProvider = v
	}
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.GeminiModel = v
	}

	cfg.SheetsCredentialsPath = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	cfg.SpreadsheetID = os.Getenv("GOOGLE_SHEETS_SPREADSHEET_ID")
	if v := os.Getenv("GOOGLE_SHEETS_WORKSHEET_NAME"); v != "" {
		cfg.WorksheetName = v
	}

	if v := os.Getenv("FEEDS_CONFIG_PATH"); v != "" {
		cfg.FeedsConfigPath = v
	}
	cfg.MaxArticles = getEnvIntOrDefault("MAX_ARTICLES", cfg.MaxArticles)
	cfg.LookbackDays = getEnvIntOrDefault("LOOKBACK_DAYS", cfg.LookbackDays)
	cfg.FeedTimeout = getEnvDurationOrDefault("FEED_TIMEOUT", cfg.FeedTimeout)
	cfg.ExtractTimeout = getEnvDurationOrDefault("EXTRACT_TIMEOUT", cfg.ExtractTimeout)
	cfg.PostDelay = getEnvDurationOrDefault("POST_DELAY", cfg.PostDelay)

	if v := os.Getenv("POST_REACTIONS"); v != "" {
		cfg.Reactions = parseList(v)
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.SlackBotToken == "" {
		return fmt.Errorf("SLACK_BOT_TOKEN is required")
	}
	if c.SlackChannelID == "" {
		return fmt.Errorf("SLACK_CHANNEL_ID is required")
	}
	switch c.RankerProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when RANKER_PROVIDER=openai")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when RANKER_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("RANKER_PROVIDER must be 'openai' or 'gemini'")
	}
	if c.MaxArticles <= 0 {
		return fmt.Errorf("MAX_ARTICLES must be positive")
	}
	if c.PostDelay <= 0 {
		return fmt.Errorf("POST_DELAY must be positive")
	}
	return nil
}

// parseList splits a comma or newline separated env value into trimmed,
// non-empty entries.
func parseList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == '\n'
	}) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
