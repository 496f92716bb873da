package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("BACKEND_API_BASE_URL", "https://api.example.com/")
	t.Setenv("SERVICE_TOKEN", "svc")
	t.Setenv("TENANT_ID", "tenant-1")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := cfg.BackendBaseURL, "https://api.example.com"; got != want {
		t.Errorf("BackendBaseURL = %q, want %q", got, want)
	}
	if got, want := cfg.BackendTimeout, 10*time.Second; got != want {
		t.Errorf("BackendTimeout = %v, want %v", got, want)
	}
	if got, want := cfg.SessionTTL, 7*24*time.Hour; got != want {
		t.Errorf("SessionTTL = %v, want %v", got, want)
	}
	if got, want := cfg.DatabaseURL, defaultDatabaseURL; got != want {
		t.Errorf("DatabaseURL = %q, want %q", got, want)
	}
	if got, want := cfg.LogLevel, "info"; got != want {
		t.Errorf("LogLevel = %q, want %q", got, want)
	}
	if got, want := cfg.HealthCheckInterval, 5*time.Minute; got != want {
		t.Errorf("HealthCheckInterval = %v, want %v", got, want)
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", cfg.Warnings)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	for _, name := range []string{"TELEGRAM_BOT_TOKEN", "BACKEND_API_BASE_URL", "SERVICE_TOKEN", "TENANT_ID"} {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(name, "")

			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), name) {
				t.Errorf("error %q does not name %s", err, name)
			}
		})
	}
}

func TestLoadRejectsRelativeBaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("BACKEND_API_BASE_URL", "api.example.com")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for relative base URL")
	}
}

func TestLoadInvalidOptionalFallsBack(t *testing.T) {
	setRequired(t)
	t.Setenv("BACKEND_TIMEOUT_SEC", "soon")
	t.Setenv("USER_COMMAND_BURST", "0")
	t.Setenv("LOG_LEVEL", "verbose")
	t.Setenv("HEALTH_CHECK_INTERVAL_MIN", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := cfg.BackendTimeout, 10*time.Second; got != want {
		t.Errorf("BackendTimeout = %v, want %v", got, want)
	}
	if got, want := cfg.UserCommandBurst, defaultCommandBurst; got != want {
		t.Errorf("UserCommandBurst = %d, want %d", got, want)
	}
	if got, want := cfg.LogLevel, "info"; got != want {
		t.Errorf("LogLevel = %q, want %q", got, want)
	}
	if cfg.HealthCheckInterval != 0 {
		t.Errorf("HealthCheckInterval = %v, want disabled", cfg.HealthCheckInterval)
	}
	if got, want := len(cfg.Warnings), 3; got != want {
		t.Errorf("got %d warnings, want %d: %v", got, want, cfg.Warnings)
	}
}

func TestLoadEnvFile(t *testing.T) {
	found, err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil || found {
		t.Fatalf("missing file: found=%v err=%v, want false <nil>", found, err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("COLLICASA_TEST_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COLLICASA_TEST_VALUE", "")
	os.Unsetenv("COLLICASA_TEST_VALUE")

	if found, err := LoadEnvFile(path); err != nil || !found {
		t.Fatalf("LoadEnvFile: found=%v err=%v", found, err)
	}
	if got, want := os.Getenv("COLLICASA_TEST_VALUE"), "from-file"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
