package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Database configuration
	DatabaseDriver string
	DatabaseURL    string

	// Schedule configuration
	DefaultInterval  time.Duration
	CaseSyncSchedule string
	ShutdownTimeout  time.Duration

	// Source resilience
	BreakerFailureThreshold int
	BreakerTimeout          time.Duration
	BreakerResetTimeout     time.Duration
	RetryMaxAttempts        int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	SourceRateLimit         int // requests per minute per source

	// Filtering
	LanguageConfidenceThreshold float64

	// Azure Storage configuration (mention archive)
	StorageAccount   string
	StorageContainer string

	// Notification configuration
	TeamsWebhookURL       string
	NotificationEmail     string
	SMTPHost              string
	SMTPPort              int
	SMTPUsername          string
	SMTPPassword          string
	AlertUrgencyThreshold int

	// API Keys and credentials
	RedditClientID      string
	RedditClientSecret  string
	RedditUserAgent     string
	YouTubeAPIKey       string
	FacebookAppID       string
	FacebookAppSecret   string
	NewsAPIKey          string
	MastodonInstanceURL string
	TelegramBotToken    string
	DiscordBotToken     string
	DiscordChannelIDs   []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		DatabaseDriver: getEnv("DATABASE_DRIVER", DriverSQLite),
		DatabaseURL:    getEnv("DATABASE_URL", "mentions.db"),

		DefaultInterval:  time.Duration(getIntEnv("DEFAULT_INTERVAL_MINUTES", 15)) * time.Minute,
		CaseSyncSchedule: getEnv("CASE_SYNC_SCHEDULE", "@every 5m"),
		ShutdownTimeout:  getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		BreakerFailureThreshold: getIntEnv("BREAKER_FAILURE_THRESHOLD", 3),
		BreakerTimeout:          getDurationEnv("BREAKER_TIMEOUT", 15*time.Second),
		BreakerResetTimeout:     getDurationEnv("BREAKER_RESET_TIMEOUT", 60*time.Second),
		RetryMaxAttempts:        getIntEnv("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:          getDurationEnv("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:           getDurationEnv("RETRY_MAX_DELAY", 10*time.Second),
		SourceRateLimit:         getIntEnv("SOURCE_RATE_LIMIT_PER_MINUTE", 60),

		LanguageConfidenceThreshold: getFloatEnv("LANGUAGE_CONFIDENCE_THRESHOLD", 0.06),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "mentions"),

		TeamsWebhookURL:       getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail:     getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:              getEnv("SMTP_HOST", ""),
		SMTPPort:              getIntEnv("SMTP_PORT", 587),
		SMTPUsername:          getEnv("SMTP_USERNAME", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		AlertUrgencyThreshold: getIntEnv("ALERT_URGENCY_THRESHOLD", 8),

		RedditClientID:      getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret:  getEnv("REDDIT_CLIENT_SECRET", ""),
		RedditUserAgent:     getEnv("REDDIT_USER_AGENT", "mentions-monitor/1.0"),
		YouTubeAPIKey:       getEnv("YOUTUBE_API_KEY", ""),
		FacebookAppID:       getEnv("FACEBOOK_APP_ID", ""),
		FacebookAppSecret:   getEnv("FACEBOOK_APP_SECRET", ""),
		NewsAPIKey:          getEnv("NEWS_API_KEY", ""),
		MastodonInstanceURL: getEnv("MASTODON_INSTANCE_URL", "https://mastodon.social"),
		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		DiscordBotToken:     getEnv("DISCORD_BOT_TOKEN", ""),
		DiscordChannelIDs:   getSliceEnv("DISCORD_CHANNEL_IDS", nil),
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if c.DatabaseDriver != DriverPostgres && c.DatabaseDriver != DriverSQLite {
		return fmt.Errorf("DATABASE_DRIVER must be '%s' or '%s'", DriverPostgres, DriverSQLite)
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.DefaultInterval <= 0 {
		return fmt.Errorf("DEFAULT_INTERVAL_MINUTES must be positive")
	}

	if _, err := cron.ParseStandard(c.CaseSyncSchedule); err != nil {
		return fmt.Errorf("CASE_SYNC_SCHEDULE is invalid: %w", err)
	}

	if c.BreakerFailureThreshold <= 0 || c.BreakerTimeout <= 0 || c.BreakerResetTimeout <= 0 {
		return fmt.Errorf("circuit breaker threshold and timeouts must be positive")
	}

	if c.RetryMaxAttempts <= 0 || c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS and RETRY_BASE_DELAY must be positive and RETRY_MAX_DELAY >= RETRY_BASE_DELAY")
	}

	if c.SourceRateLimit <= 0 {
		return fmt.Errorf("SOURCE_RATE_LIMIT_PER_MINUTE must be positive")
	}

	if c.LanguageConfidenceThreshold < 0 {
		return fmt.Errorf("LANGUAGE_CONFIDENCE_THRESHOLD must not be negative")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// WorstCaseSourceLatency is how long one source can take to surface a
// failure: every attempt runs to the breaker timeout and every backoff is
// slept in full.
func (c *Config) WorstCaseSourceLatency() time.Duration {
	total := time.Duration(c.RetryMaxAttempts) * c.BreakerTimeout
	delay := c.RetryBaseDelay
	for i := 1; i < c.RetryMaxAttempts; i++ {
		if delay > c.RetryMaxDelay {
			delay = c.RetryMaxDelay
		}
		total += delay
		delay *= 2
	}
	return total
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
