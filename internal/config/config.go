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

// Backends accepted by DATA_BACKEND.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendSheets = "sheets"
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Backend selection
	DataBackend   string
	MemoryDataDir string
	DemoMode      bool

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleWorkLogSheet       string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
	GoogleCacheTTL           time.Duration

	// Editing
	EditPasswordHash        string
	EditPassword            string
	UnlockAttemptsPerMinute int
	// SessionSecret signs unlock cookies. Empty picks a random key per start.
	SessionSecret string
	UnlockTTL     time.Duration

	// Preferences
	PreferencesPath    string
	DefaultDailyTarget float64

	// Worker
	SyncBatchSize int
	SyncInterval  time.Duration
}

func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:   getEnv("DATA_BACKEND", BackendSQLite),
		MemoryDataDir: getEnv("MEMORY_DATA_DIR", ""),
		DemoMode:      getEnvBool("DEMO_MODE", false),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/workhours.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "workhours"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_worklog"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleWorkLogSheet:       getEnv("GOOGLE_WORKLOG_SHEET", "WorkLog"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleCacheTTL:           getEnvDuration("GOOGLE_CACHE_TTL", 2*time.Minute),

		EditPasswordHash:        getEnv("EDIT_PASSWORD_HASH", ""),
		EditPassword:            getEnv("EDIT_PASSWORD", ""),
		UnlockAttemptsPerMinute: getEnvInt("UNLOCK_ATTEMPTS_PER_MINUTE", 5),
		SessionSecret:           getEnv("SESSION_SECRET", ""),
		UnlockTTL:               getEnvDuration("UNLOCK_TTL", 12*time.Hour),

		PreferencesPath:    getEnv("PREFERENCES_PATH", "./data/preferences.yaml"),
		DefaultDailyTarget: getEnvFloat("DEFAULT_DAILY_TARGET", 4),

		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),
	}
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendMemory, BackendSQLite, BackendSheets}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}

	if c.DataBackend == BackendMemory && c.MemoryDataDir != "" {
		if info, err := os.Stat(c.MemoryDataDir); err != nil || !info.IsDir() {
			errors = append(errors, fmt.Sprintf("memory data directory does not exist: %s", c.MemoryDataDir))
		}
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

	if c.DataBackend == BackendSheets {
		errors = append(errors, c.validateSheets()...)
	}

	if c.EditPasswordHash != "" && c.EditPassword != "" {
		errors = append(errors, "set only one of EDIT_PASSWORD_HASH or EDIT_PASSWORD")
	}
	if c.EditPasswordHash != "" && !strings.HasPrefix(c.EditPasswordHash, "$2") {
		errors = append(errors, "EDIT_PASSWORD_HASH must be a bcrypt hash")
	}
	if c.UnlockAttemptsPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid unlock attempts per minute %d: must be at least 1", c.UnlockAttemptsPerMinute))
	}
	if c.SessionSecret != "" && len(c.SessionSecret) < 32 {
		errors = append(errors, "SESSION_SECRET must be at least 32 characters")
	}
	if c.UnlockTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid unlock TTL %v: must be at least 1 minute", c.UnlockTTL))
	}

	if c.PreferencesPath == "" {
		errors = append(errors, "preferences path cannot be empty")
	}
	if c.DefaultDailyTarget < 0 || c.DefaultDailyTarget > 24 {
		errors = append(errors, fmt.Sprintf("invalid default daily target %v: must be between 0 and 24", c.DefaultDailyTarget))
	}

	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateSheets() []string {
	var errors []string
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
	}
	if c.GoogleWorkLogSheet == "" {
		errors = append(errors, "Google work log sheet name is required when using sheets backend")
	}
	hasFile := c.GoogleServiceAccountFile != ""
	if !hasFile && c.GoogleServiceAccountJSON == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets backend")
	}
	if hasFile {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	return errors
}

// SyncEnabled reports whether saves are mirrored through AMQP.
func (c *Config) SyncEnabled() bool {
	return c.AMQPURL != ""
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
