// Package config provides runtime configuration for Trident, read from
// the process environment.
package config

import (
	"os"
	"strconv"
)

// Config holds the runtime configuration.
type Config struct {
	Logging LoggingConfig
	Tracing TracingConfig
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // "json" or "text"
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Insecure    bool
	SampleRate  float64
}

// Load reads configuration from the environment, applying defaults.
func Load() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  getEnv("TRIDENT_LOG_LEVEL", "info"),
			Format: getEnv("TRIDENT_LOG_FORMAT", "text"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("OTEL_ENABLED", false),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "trident"),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			Insecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRate:  getEnvFloat("OTEL_SAMPLE_RATE", 1.0),
		},
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
