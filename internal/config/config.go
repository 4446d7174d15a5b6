package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cuzdan/internal/core"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Storage
	DataBackend  string
	SQLiteDBPath string
	SeedFile     string

	// Exchange rate
	RateSourceURL       string
	RateCacheTTL        time.Duration
	FallbackRate        float64
	RateRefreshInterval time.Duration

	// Auth
	JWTSecret   string
	TokenExpiry time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets report sink
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Alerts
	AlertInterval time.Duration
	MailgunDomain string
	MailgunAPIKey string
	SenderEmail   string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/cuzdan.db"),
		SeedFile:     getEnv("SEED_FILE", ""),

		RateSourceURL:       getEnv("RATE_SOURCE_URL", "https://open.er-api.com/v6/latest/USD"),
		RateCacheTTL:        getEnvDuration("RATE_CACHE_TTL", time.Hour),
		FallbackRate:        getEnvFloat("FALLBACK_RATE", core.DefaultRate),
		RateRefreshInterval: getEnvDuration("RATE_REFRESH_INTERVAL", time.Hour),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		TokenExpiry: getEnvDuration("TOKEN_EXPIRY", 24*time.Hour),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "cuzdan"),
		AMQPQueue:    getEnv("AMQP_QUEUE", defaultQueueName()),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Report"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		AlertInterval: getEnvDuration("ALERT_INTERVAL", 24*time.Hour),
		MailgunDomain: getEnv("MAILGUN_DOMAIN", ""),
		MailgunAPIKey: getEnv("MAILGUN_API_KEY", ""),
		SenderEmail:   getEnv("SENDER_EMAIL", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// SheetsEnabled reports whether the Google Sheets export is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// MailgunEnabled reports whether alert emails go through Mailgun.
func (c *Config) MailgunEnabled() bool {
	return c.MailgunDomain != "" && c.MailgunAPIKey != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.SeedFile != "" {
		if _, err := os.Stat(c.SeedFile); err != nil {
			errors = append(errors, fmt.Sprintf("seed file is not readable: %s", c.SeedFile))
		}
	}

	if u, err := url.Parse(c.RateSourceURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid rate source URL '%s': must be an absolute http(s) URL", c.RateSourceURL))
	}
	if c.RateCacheTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rate cache TTL %v: must be at least 1 minute", c.RateCacheTTL))
	}
	if !core.ValidRate(c.FallbackRate) {
		errors = append(errors, fmt.Sprintf("invalid fallback rate %v: must be a positive number", c.FallbackRate))
	}
	if c.RateRefreshInterval < time.Minute || c.RateRefreshInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid rate refresh interval %v: must be between 1 minute and 24 hours", c.RateRefreshInterval))
	}
	if c.AlertInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid alert interval %v: must be at least 1 minute", c.AlertInterval))
	}

	if len(c.JWTSecret) < 32 {
		errors = append(errors, "JWT secret must be at least 32 characters")
	}
	if c.TokenExpiry < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid token expiry %v: must be at least 1 minute", c.TokenExpiry))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SheetsEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasFile && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for the sheets export")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if (c.MailgunDomain == "") != (c.MailgunAPIKey == "") {
		errors = append(errors, "MAILGUN_DOMAIN and MAILGUN_API_KEY must be set together")
	}
	if c.MailgunEnabled() && !strings.Contains(c.SenderEmail, "@") {
		errors = append(errors, fmt.Sprintf("invalid sender email '%s'", c.SenderEmail))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// defaultQueueName gives every instance its own queue on the fanout
// exchange so each one sees every rate update.
func defaultQueueName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = strconv.Itoa(os.Getpid())
	}
	return "rate_updates." + host
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
		if f, err := strconv.ParseFloat(value, 64); err == nil {
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
