// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Overlap policies for submissions that arrive while an exchange is in flight.
const (
	OverlapReject        = "reject"
	OverlapLastWriteWins = "last-write-wins"
)

// Config holds all application configuration.
type Config struct {
	Port              string
	FrontendURL       string
	DBPath            string
	SessionTTL        time.Duration
	SweepInterval     time.Duration
	ExchangeRetention time.Duration
	ProfilePath       string // empty = embedded Bad Lippspringe profile
	SanitizeAnswers   bool
	OverlapPolicy     string
	CORSOrigins       []string
	Gemini            GeminiConfig
	ExchangeLog       ExchangeLogConfig
	LogFile           string
	LogLevel          slog.Level
}

// GeminiConfig configures the generative-language client.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration // 0 = no client-side timeout
}

// ExchangeLogConfig controls the per-tab NDJSON exchange log.
type ExchangeLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("EXCHANGE_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		FrontendURL:       getEnv("FRONTEND_URL", ""),
		DBPath:            getEnv("DB_PATH", "./data/lippe.db"),
		SessionTTL:        getEnvDuration("SESSION_TTL", 60*time.Minute),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		ExchangeRetention: getEnvDuration("EXCHANGE_RETENTION", 7*24*time.Hour),
		ProfilePath:       getEnv("PROFILE_PATH", ""),
		SanitizeAnswers:   getEnvBool("ANSWER_SANITIZE", true),
		OverlapPolicy:     strings.ToLower(getEnv("OVERLAP_POLICY", OverlapReject)),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "*")),
		Gemini: GeminiConfig{
			// An empty key is a valid, if non-functional, configuration.
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			Timeout: getEnvDuration("GEMINI_TIMEOUT", 0),
		},
		ExchangeLog: ExchangeLogConfig{
			Enabled:   getEnvBool("EXCHANGE_LOG_ENABLED", false),
			Dir:       getEnv("EXCHANGE_LOG_DIR", "./data/logs/exchanges"),
			QueueSize: queueSize,
		},
		LogFile:  getEnv("LOG_FILE", ""),
		LogLevel: ParseLogLevel(getEnv("LOG_LEVEL", "INFO")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.Gemini.BaseURL == "" {
		return fmt.Errorf("GEMINI_BASE_URL cannot be empty")
	}
	if c.Gemini.Model == "" {
		return fmt.Errorf("GEMINI_MODEL cannot be empty")
	}
	if c.Gemini.Timeout < 0 {
		return fmt.Errorf("GEMINI_TIMEOUT must be >= 0")
	}
	switch c.OverlapPolicy {
	case OverlapReject, OverlapLastWriteWins:
	default:
		return fmt.Errorf("OVERLAP_POLICY must be %q or %q, got %q", OverlapReject, OverlapLastWriteWins, c.OverlapPolicy)
	}
	if c.ExchangeLog.Enabled && c.ExchangeLog.Dir == "" {
		return fmt.Errorf("EXCHANGE_LOG_DIR cannot be empty")
	}
	if c.ExchangeLog.QueueSize <= 0 {
		return fmt.Errorf("EXCHANGE_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// ParseLogLevel maps a level name to a slog level, defaulting to INFO.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
