// Package config loads Observatory's runtime configuration from
// environment variables, following the teacher's plain os.Getenv style
// with explicit fallbacks rather than a flags/viper layer.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-tunable setting for the observatoryd
// binary.
type Config struct {
	StateFile      string
	LedgerFile     string
	AnalyticsFile  string
	TickDuration   time.Duration
	Host           string
	AgentPort      int
	ObserverPort   int
	Domain         string
	Secret         string
	Debug          bool
	VerifierURL    string
	VerifierAPIKey string
	RandomOrgKey   string
	FluxSeed       int64
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() Config {
	return Config{
		StateFile:      envOrDefault("OBSERVATORY_STATE_FILE", "data/world.json"),
		LedgerFile:     envOrDefault("OBSERVATORY_LEDGER_FILE", "data/ledger.jsonl"),
		AnalyticsFile:  envOrDefault("OBSERVATORY_ANALYTICS_FILE", "data/analytics.db"),
		TickDuration:   envDurationOrDefault("OBSERVATORY_TICK_DURATION", 5*time.Second),
		Host:           envOrDefault("OBSERVATORY_HOST", "0.0.0.0"),
		AgentPort:      envIntOrDefault("OBSERVATORY_AGENT_PORT", 8080),
		ObserverPort:   envIntOrDefault("OBSERVATORY_OBSERVER_PORT", 8081),
		Domain:         envOrDefault("OBSERVATORY_DOMAIN", "observatory.local"),
		Secret:         os.Getenv("OBSERVATORY_SECRET"),
		Debug:          envBoolOrDefault("OBSERVATORY_DEBUG", false),
		VerifierURL:    os.Getenv("OBSERVATORY_VERIFIER_URL"),
		VerifierAPIKey: os.Getenv("OBSERVATORY_VERIFIER_API_KEY"),
		RandomOrgKey:   os.Getenv("RANDOM_ORG_API_KEY"),
		FluxSeed:       int64(envIntOrDefault("OBSERVATORY_FLUX_SEED", 42)),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBoolOrDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOrDefault(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
