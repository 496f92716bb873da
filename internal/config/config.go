package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config keeps runtime settings for the bot.
type Config struct {
	TelegramToken  string
	BackendBaseURL string
	ServiceToken   string
	TenantID       string
	BackendTimeout time.Duration
	SessionTTL     time.Duration
	DatabaseURL    string

	LogLevel          string
	LogFile           string
	LogFileMaxSize    int
	LogFileMaxBackups int
	LogFileMaxAge     int

	HealthCheckInterval   time.Duration
	UserCommandsPerMinute int
	UserCommandBurst      int
	EventRetention        time.Duration
	HistoryLimit          int

	// Warnings collects non-fatal problems found while reading the environment.
	Warnings []string
}

const (
	defaultBackendTimeoutSec  = 10
	defaultSessionTTLHours    = 7 * 24
	defaultDatabaseURL        = "data/collicasa.db"
	defaultLogLevel           = "info"
	defaultLogFileMaxSize     = 20
	defaultLogFileMaxBackups  = 3
	defaultLogFileMaxAge      = 14
	defaultHealthIntervalMin  = 5
	defaultCommandsPerMinute  = 20
	defaultCommandBurst       = 5
	defaultEventRetentionDays = 90
	defaultHistoryLimit       = 10
)

// LoadEnvFile populates the process environment from a .env file and
// reports whether one was found. Variables already set are not overridden.
func LoadEnvFile(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", path, err)
	}
	return true, nil
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	var warnings []string

	cfg := Config{
		TelegramToken:  strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		BackendBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("BACKEND_API_BASE_URL")), "/"),
		ServiceToken:   strings.TrimSpace(os.Getenv("SERVICE_TOKEN")),
		TenantID:       strings.TrimSpace(os.Getenv("TENANT_ID")),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		LogLevel:       sanitizeLogLevel(os.Getenv("LOG_LEVEL"), &warnings),
		LogFile:        strings.TrimSpace(os.Getenv("LOG_FILE")),
	}

	for _, req := range []struct {
		name  string
		value string
	}{
		{"TELEGRAM_BOT_TOKEN", cfg.TelegramToken},
		{"BACKEND_API_BASE_URL", cfg.BackendBaseURL},
		{"SERVICE_TOKEN", cfg.ServiceToken},
		{"TENANT_ID", cfg.TenantID},
	} {
		if req.value == "" {
			return cfg, fmt.Errorf("%s is required", req.name)
		}
	}

	if err := validateBaseURL(cfg.BackendBaseURL); err != nil {
		return cfg, err
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}

	cfg.BackendTimeout = time.Duration(parseIntDefault("BACKEND_TIMEOUT_SEC", defaultBackendTimeoutSec, greaterThanZero, &warnings)) * time.Second
	cfg.SessionTTL = time.Duration(parseIntDefault("SESSION_TTL_HOURS", defaultSessionTTLHours, greaterThanZero, &warnings)) * time.Hour
	cfg.LogFileMaxSize = parseIntDefault("LOG_FILE_MAX_SIZE_MB", defaultLogFileMaxSize, greaterThanZero, &warnings)
	cfg.LogFileMaxBackups = parseIntDefault("LOG_FILE_MAX_BACKUPS", defaultLogFileMaxBackups, nonNegative, &warnings)
	cfg.LogFileMaxAge = parseIntDefault("LOG_FILE_MAX_AGE_DAYS", defaultLogFileMaxAge, nonNegative, &warnings)
	cfg.HealthCheckInterval = time.Duration(parseIntDefault("HEALTH_CHECK_INTERVAL_MIN", defaultHealthIntervalMin, nonNegative, &warnings)) * time.Minute
	cfg.UserCommandsPerMinute = parseIntDefault("USER_COMMANDS_PER_MINUTE", defaultCommandsPerMinute, greaterThanZero, &warnings)
	cfg.UserCommandBurst = parseIntDefault("USER_COMMAND_BURST", defaultCommandBurst, greaterThanZero, &warnings)
	cfg.EventRetention = time.Duration(parseIntDefault("EVENT_RETENTION_DAYS", defaultEventRetentionDays, greaterThanZero, &warnings)) * 24 * time.Hour
	cfg.HistoryLimit = parseIntDefault("HISTORY_LIMIT", defaultHistoryLimit, greaterThanZero, &warnings)

	cfg.Warnings = warnings
	return cfg, nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("BACKEND_API_BASE_URL is invalid: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BACKEND_API_BASE_URL must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

// parseIntDefault falls back to defaultVal on empty, malformed or rejected input.
// Only malformed or rejected values produce a warning.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

func sanitizeLogLevel(level string, warnings *[]string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	switch lvl {
	case "":
		return defaultLogLevel
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "env LOG_LEVEL value %q is invalid; using default %q", level, defaultLogLevel)
		return defaultLogLevel
	}
}

func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

func greaterThanZero(v int) bool { return v > 0 }
func nonNegative(v int) bool     { return v >= 0 }
