package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the mindmesh engine.
type Config struct {
	Port      int
	Version   string
	Backends  BackendsConfig
	Budget    BudgetConfig
	Scheduler SchedulerConfig
	Telemetry TelemetryConfig
}

// BackendsConfig points each backend tier at its inference endpoint. An
// empty URL for a tier means the built-in mock backend serves it.
type BackendsConfig struct {
	SmallURL   string
	MediumURL  string
	LargeURL   string
	HTTPClient HTTPClientConfig
}

type HTTPClientConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
}

type BudgetConfig struct {
	HourlyUSD float64
}

type SchedulerConfig struct {
	SynthesisInterval time.Duration
	CleanupInterval   time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first, if
// present, without overriding variables already set.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:    envInt("MINDMESH_PORT", 8080),
		Version: envStr("MINDMESH_VERSION", "0.4.0"),
		Backends: BackendsConfig{
			SmallURL:  envStr("MINDMESH_BACKEND_SMALL_URL", ""),
			MediumURL: envStr("MINDMESH_BACKEND_MEDIUM_URL", ""),
			LargeURL:  envStr("MINDMESH_BACKEND_LARGE_URL", ""),
			HTTPClient: HTTPClientConfig{
				MaxIdleConns:        envInt("MINDMESH_HTTP_MAX_IDLE_CONNS", 100),
				MaxIdleConnsPerHost: envInt("MINDMESH_HTTP_MAX_IDLE_CONNS_PER_HOST", 10),
			},
		},
		Budget: BudgetConfig{
			HourlyUSD: envFloat("MINDMESH_HOURLY_BUDGET_USD", 15.0),
		},
		Scheduler: SchedulerConfig{
			SynthesisInterval: envDuration("MINDMESH_SYNTHESIS_INTERVAL", time.Second),
			CleanupInterval:   envDuration("MINDMESH_CLEANUP_INTERVAL", time.Minute),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "mindmesh-engine"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
