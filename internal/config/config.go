package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"sikdae/internal/core"
)

type Config struct {
	// HTTP Server
	Port               string
	MaxUploadBytes     int64
	RateLimitPerMinute int

	// Logging
	LogLevel  string
	LogFormat string

	// Meal policy
	DailyCap          float64
	LunchCategories   []string
	DinnerCategories  []string
	ExcludedCardAlias string
	UserDelimiter     string

	// Report cache
	ReportCacheSize int
	ReportCacheTTL  time.Duration

	// AMQP, disabled when AMQPURL is empty
	AMQPURL          string
	AMQPExchange     string
	AMQPRequestQueue string
	AMQPResultQueue  string

	// Google Sheets
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsJSON string
	GoogleCredentialsFile string

	// Worker
	WorkerPrefetch int
	ReadTimeout    time.Duration
	DataBackend    string // "sheets" or "memory"
	SeedFile       string // memory backend statement
}

// Statement backends for the worker.
const (
	BackendSheets = "sheets"
	BackendMemory = "memory"
)

func Load() *Config {
	def := core.DefaultPolicy()
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DailyCap:          getEnvFloat("DAILY_CAP", def.DailyCap),
		LunchCategories:   getEnvList("LUNCH_CATEGORIES", def.LunchCategories),
		DinnerCategories:  getEnvList("DINNER_CATEGORIES", def.DinnerCategories),
		ExcludedCardAlias: getEnv("EXCLUDED_CARD_ALIAS", def.ExcludedCardAlias),
		UserDelimiter:     def.UserDelimiter,

		ReportCacheSize: getEnvInt("REPORT_CACHE_SIZE", 50),
		ReportCacheTTL:  getEnvDuration("REPORT_CACHE_TTL", 30*time.Minute),

		AMQPURL:          getEnv("AMQP_URL", ""),
		AMQPExchange:     getEnv("AMQP_EXCHANGE", "sikdae"),
		AMQPRequestQueue: getEnv("AMQP_REQUEST_QUEUE", "analysis_requests"),
		AMQPResultQueue:  getEnv("AMQP_RESULT_QUEUE", "analysis_results"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", "법인카드"),
		GoogleCredentialsJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleCredentialsFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		WorkerPrefetch: getEnvInt("WORKER_PREFETCH", 4),
		ReadTimeout:    getEnvDuration("READ_TIMEOUT", 30*time.Second),
		DataBackend:    strings.ToLower(getEnv("DATA_BACKEND", BackendSheets)),
		SeedFile:       getEnv("SEED_FILE", "data/statement.csv"),
	}

	return cfg
}

// Policy builds the meal policy described by the configuration.
func (c *Config) Policy() core.Policy {
	return core.Policy{
		DailyCap:          c.DailyCap,
		LunchCategories:   append([]string(nil), c.LunchCategories...),
		DinnerCategories:  append([]string(nil), c.DinnerCategories...),
		ExcludedCardAlias: c.ExcludedCardAlias,
		UserDelimiter:     c.UserDelimiter,
	}
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool {
	return strings.TrimSpace(c.AMQPURL) != ""
}

// SheetsEnabled reports whether Google Sheets credentials are configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleCredentialsJSON != "" || c.GoogleCredentialsFile != "" ||
		os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.MaxUploadBytes < 1 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be positive", c.MaxUploadBytes))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMinute))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if err := c.Policy().Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid meal policy: %v", err))
	}

	if c.ReportCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid report cache size %d: must be at least 1", c.ReportCacheSize))
	}
	if c.ReportCacheTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid report cache TTL %v: must be at least 1 minute", c.ReportCacheTTL))
	}

	// Validate AMQP URL if provided
	if c.AMQPEnabled() {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRequestQueue == "" || c.AMQPResultQueue == "" {
			errors = append(errors, "AMQP queue names cannot be empty when AMQP URL is provided")
		} else if c.AMQPRequestQueue == c.AMQPResultQueue {
			errors = append(errors, "AMQP request and result queues must differ")
		}
	}

	if c.GoogleCredentialsFile != "" {
		if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleCredentialsFile))
		}
	}

	if c.WorkerPrefetch < 1 || c.WorkerPrefetch > 100 {
		errors = append(errors, fmt.Sprintf("invalid worker prefetch %d: must be between 1 and 100", c.WorkerPrefetch))
	}
	if c.ReadTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid read timeout %v: must be at least 1 second", c.ReadTimeout))
	}
	switch c.DataBackend {
	case BackendSheets, BackendMemory:
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be 'sheets' or 'memory'", c.DataBackend))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker additionally requires the broker and, for the sheets
// backend, service account credentials.
func (c *Config) ValidateWorker() error {
	var errors []string
	if err := c.Validate(); err != nil {
		errors = append(errors, strings.TrimPrefix(err.Error(), "configuration validation failed:\n- "))
	}
	if !c.AMQPEnabled() {
		errors = append(errors, "AMQP_URL is required for the worker")
	}
	if c.DataBackend == BackendSheets && !c.SheetsEnabled() {
		errors = append(errors, "Google service account credentials are required for the worker")
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blank entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
