package config

import (
	"testing"
	"time"
)

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("ADVERO_DB_DSN", "file:advero.db?cache=shared")
	t.Setenv("ADVERO_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("unexpected default db backend: %q", cfg.DBBackend)
	}
}

func TestLoadEngineTunableDefaults(t *testing.T) {
	t.Setenv("ADVERO_DB_DSN", "file:advero.db?cache=shared")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.PollInterval)
	}
	if cfg.PromoEvery != 3 {
		t.Errorf("PromoEvery = %d, want 3", cfg.PromoEvery)
	}
	if cfg.PromoDuration != 10*time.Second {
		t.Errorf("PromoDuration = %v, want 10s", cfg.PromoDuration)
	}
	if cfg.MinItemDuration != 5*time.Second {
		t.Errorf("MinItemDuration = %v, want 5s", cfg.MinItemDuration)
	}
	if cfg.ProgressTick != 50*time.Millisecond {
		t.Errorf("ProgressTick = %v, want 50ms", cfg.ProgressTick)
	}
}

func TestLoadParsesScreenIDs(t *testing.T) {
	t.Setenv("ADVERO_DB_DSN", "file:advero.db?cache=shared")
	t.Setenv("ADVERO_SCREEN_IDS", "screen-a, screen-b ,,screen-c")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	want := []string{"screen-a", "screen-b", "screen-c"}
	if len(cfg.ScreenIDs) != len(want) {
		t.Fatalf("ScreenIDs = %v, want %v", cfg.ScreenIDs, want)
	}
	for i := range want {
		if cfg.ScreenIDs[i] != want[i] {
			t.Errorf("ScreenIDs[%d] = %q, want %q", i, cfg.ScreenIDs[i], want[i])
		}
	}
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	t.Setenv("ADVERO_DB_DSN", "file:advero.db?cache=shared")
	t.Setenv("ADVERO_DB_BACKEND", "oracle")
	if _, err := Load(); err == nil {
		t.Fatal("expected unknown db backend to fail")
	}

	t.Setenv("ADVERO_DB_BACKEND", "sqlite")
	t.Setenv("ADVERO_NOTIFIER_BACKEND", "kafka")
	if _, err := Load(); err == nil {
		t.Fatal("expected unknown notifier backend to fail")
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("ADVERO_DB_DSN", "file:advero.db?cache=shared")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) < 2 {
		t.Fatalf("expected legacy env warnings, got %v", cfg.LegacyEnvWarnings)
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("ADVERO_DB_DSN", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected missing DSN to fail")
	}
}
