package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Backend selection
	DataBackend string

	// SQLite
	SQLiteDBPath string

	// Supabase
	SupabaseURL string
	SupabaseKey string

	// Change bus, disabled when AMQPURL is empty
	AMQPURL         string
	AMQPExchange    string
	AMQPMirrorQueue string

	// Ledger feed and views
	PollInterval       time.Duration
	TrendWindowDays    int
	SessionIdleTimeout time.Duration

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

func Load() *Config {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fintrack.db"),

		SupabaseURL: getEnv("SUPABASE_URL", ""),
		SupabaseKey: getEnv("SUPABASE_KEY", ""),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "fintrack.ledger"),
		AMQPMirrorQueue: getEnv("AMQP_MIRROR_QUEUE", "fintrack.mirror"),

		PollInterval:       getEnvDuration("POLL_INTERVAL", 15*time.Second),
		TrendWindowDays:    getEnvInt("TREND_WINDOW_DAYS", 30),
		SessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
	}

	return cfg
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

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite", "supabase"}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate Supabase configuration if backend is supabase
	if c.DataBackend == "supabase" {
		if c.SupabaseURL == "" {
			errors = append(errors, "SUPABASE_URL is required when using supabase backend")
		} else if u, err := url.Parse(c.SupabaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid Supabase URL '%s': must be an http(s) URL", c.SupabaseURL))
		}
		if c.SupabaseKey == "" {
			errors = append(errors, "SUPABASE_KEY is required when using supabase backend")
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.PollInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid poll interval %v: must be at least 1 second", c.PollInterval))
	} else if c.PollInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid poll interval %v: must be at most 24 hours", c.PollInterval))
	}

	if c.TrendWindowDays < 1 || c.TrendWindowDays > 366 {
		errors = append(errors, fmt.Sprintf("invalid trend window %d: must be between 1 and 366 days", c.TrendWindowDays))
	}

	if c.SessionIdleTimeout < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session idle timeout %v: must be at least 1 minute", c.SessionIdleTimeout))
	}

	if c.RateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be greater than 0", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateMirror checks the settings the spreadsheet mirror needs on top of
// the shared ones.
func (c *Config) ValidateMirror() error {
	var errors []string

	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the spreadsheet mirror")
	}
	if c.AMQPMirrorQueue == "" {
		errors = append(errors, "AMQP mirror queue name cannot be empty")
	}
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required for the spreadsheet mirror")
	}
	if c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required for the spreadsheet mirror")
	}

	hasJSON := c.GoogleServiceAccountJSON != ""
	hasFile := c.GoogleServiceAccountFile != ""
	if !hasJSON && !hasFile {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for the spreadsheet mirror")
	}
	if hasFile {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
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
