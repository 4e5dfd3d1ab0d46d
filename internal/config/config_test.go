package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"PORT", "DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "CORS_ORIGINS",
		"HOLD_TTL", "CACHE_TTL", "PRODUCT_LOCK_WAIT", "PRODUCT_LOCK_HOLD", "HOLD_LOCK_WAIT",
		"HOLD_LOCK_HOLD", "CACHE_LOCK_WAIT", "CACHE_LOCK_HOLD", "MAX_DEADLOCK_RETRIES",
		"DEADLOCK_BASE_DELAY", "SWEEP_INTERVAL",
	} {
		t.Setenv(k, "")
	}

	cfg := Load()

	if cfg.Port != defaultPort {
		t.Fatalf("expected default port %q, got %q", defaultPort, cfg.Port)
	}
	if cfg.HoldTTL != 2*time.Minute {
		t.Fatalf("expected default hold TTL 2m, got %v", cfg.HoldTTL)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Fatalf("expected default cache TTL 5m, got %v", cfg.CacheTTL)
	}
	if cfg.MaxDeadlockRetries != 3 {
		t.Fatalf("expected default max deadlock retries 3, got %d", cfg.MaxDeadlockRetries)
	}
	if cfg.DeadlockBaseDelay != 100*time.Millisecond {
		t.Fatalf("expected default deadlock base delay 100ms, got %v", cfg.DeadlockBaseDelay)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("expected 2 default CORS origins, got %v", cfg.CORSOrigins)
	}
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("MAX_DEADLOCK_RETRIES", "5")
	t.Setenv("CORS_ORIGINS", "https://a.test, https://b.test")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Fatalf("expected overridden port 9090, got %q", cfg.Port)
	}
	if cfg.CacheTTL != 90*time.Second {
		t.Fatalf("expected overridden cache TTL 90s, got %v", cfg.CacheTTL)
	}
	if cfg.MaxDeadlockRetries != 5 {
		t.Fatalf("expected overridden max deadlock retries 5, got %d", cfg.MaxDeadlockRetries)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "https://a.test" || cfg.CORSOrigins[1] != "https://b.test" {
		t.Fatalf("expected trimmed CSV CORS origins, got %v", cfg.CORSOrigins)
	}
}

func TestParseCSV_EmptyInput(t *testing.T) {
	if got := parseCSV(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestGetEnvInt_InvalidFallsBackToDefault(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	if got := getEnvInt("SOME_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}

func TestGetEnvDuration_InvalidFallsBackToDefault(t *testing.T) {
	t.Setenv("SOME_DURATION", "not-a-duration")
	if got := getEnvDuration("SOME_DURATION", time.Second); got != time.Second {
		t.Fatalf("expected fallback 1s, got %v", got)
	}
}
