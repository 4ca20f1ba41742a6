/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Notifier backend selection for the distributed change feed.
type NotifierBackend string

const (
	NotifierMemory NotifierBackend = "memory"
	NotifierRedis  NotifierBackend = "redis"
	NotifierNATS   NotifierBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string // Public base URL used to build upload links (e.g., https://advero.example.com)
	MetricsBind string
	InstanceID  string

	DBBackend DatabaseBackend
	DBDSN     string

	// Change notifier transport
	NotifierBackend NotifierBackend
	NATSURL         string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	// Screens hosted by this agent at startup. Sessions can also be
	// started and torn down over the API.
	ScreenIDs []string

	// Playback engine tunables
	PollInterval    time.Duration // snapshot poll cadence
	PromoEvery      int           // promo interstitial after every N completed ads
	PromoDuration   time.Duration
	MinItemDuration time.Duration // floor applied to declared ad durations
	ProgressTick    time.Duration // presentation progress sampling interval

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"ADVERO_ENV", "ADV_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"ADVERO_HTTP_BIND", "ADV_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"ADVERO_HTTP_PORT", "ADV_HTTP_PORT"}, 8080),
		BaseURL:     getEnvAny([]string{"ADVERO_BASE_URL", "ADV_BASE_URL"}, ""),
		MetricsBind: getEnvAny([]string{"ADVERO_METRICS_BIND", "ADV_METRICS_BIND"}, "127.0.0.1:9000"),
		InstanceID:  getEnvAny([]string{"ADVERO_INSTANCE_ID", "ADV_INSTANCE_ID"}, ""),

		DBBackend: DatabaseBackend(getEnvAny([]string{"ADVERO_DB_BACKEND", "ADV_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"ADVERO_DB_DSN", "ADV_DB_DSN"}, ""),

		NotifierBackend: NotifierBackend(getEnvAny([]string{"ADVERO_NOTIFIER_BACKEND", "ADV_NOTIFIER_BACKEND"}, string(NotifierMemory))),
		NATSURL:         getEnvAny([]string{"ADVERO_NATS_URL", "ADV_NATS_URL"}, "nats://localhost:4222"),
		RedisAddr:       getEnvAny([]string{"ADVERO_REDIS_ADDR", "ADV_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:   getEnvAny([]string{"ADVERO_REDIS_PASSWORD", "ADV_REDIS_PASSWORD"}, ""),
		RedisDB:         getEnvIntAny([]string{"ADVERO_REDIS_DB", "ADV_REDIS_DB"}, 0),

		PollInterval:    time.Duration(getEnvIntAny([]string{"ADVERO_POLL_INTERVAL_MS", "ADV_POLL_INTERVAL_MS"}, 2000)) * time.Millisecond,
		PromoEvery:      getEnvIntAny([]string{"ADVERO_PROMO_EVERY", "ADV_PROMO_EVERY"}, 3),
		PromoDuration:   time.Duration(getEnvIntAny([]string{"ADVERO_PROMO_DURATION_SECONDS", "ADV_PROMO_DURATION_SECONDS"}, 10)) * time.Second,
		MinItemDuration: time.Duration(getEnvIntAny([]string{"ADVERO_MIN_ITEM_DURATION_SECONDS", "ADV_MIN_ITEM_DURATION_SECONDS"}, 5)) * time.Second,
		ProgressTick:    time.Duration(getEnvIntAny([]string{"ADVERO_PROGRESS_TICK_MS", "ADV_PROGRESS_TICK_MS"}, 50)) * time.Millisecond,

		TracingEnabled:    getEnvBoolAny([]string{"ADVERO_TRACING_ENABLED", "ADV_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"ADVERO_OTLP_ENDPOINT", "ADV_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"ADVERO_TRACING_SAMPLE_RATE", "ADV_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if raw := getEnvAny([]string{"ADVERO_SCREEN_IDS", "ADV_SCREEN_IDS"}, ""); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if id := strings.TrimSpace(part); id != "" {
				cfg.ScreenIDs = append(cfg.ScreenIDs, id)
			}
		}
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.NotifierBackend != NotifierMemory && cfg.NotifierBackend != NotifierRedis && cfg.NotifierBackend != NotifierNATS {
		return nil, fmt.Errorf("unsupported notifier backend %q", cfg.NotifierBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("ADVERO_DB_DSN or ADV_DB_DSN must be provided")
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("ADVERO_POLL_INTERVAL_MS must be positive")
	}

	if cfg.PromoEvery <= 0 {
		return nil, fmt.Errorf("ADVERO_PROMO_EVERY must be positive")
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":      "use ADVERO_ENV (or ADV_ENV)",
		"POLL_INTERVAL_MS": "use ADVERO_POLL_INTERVAL_MS",
		"DB_DSN":           "use ADVERO_DB_DSN (or ADV_DB_DSN)",
		"REDIS_ADDR":       "use ADVERO_REDIS_ADDR (or ADV_REDIS_ADDR)",
		"TRACING_ENABLED":  "use ADVERO_TRACING_ENABLED (or ADV_TRACING_ENABLED)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
