// Package config loads leasekeeper settings from LEASEKEEPER_* environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr      string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	StoreKind     string
	StoreDSN      string
	TableName     string
	KeyPrefix     string
	SweepInterval time.Duration
	LogLevel      string
	Metrics       bool
	WatchBuffer   int
	ServerURL     string
	User          string
}

func Load() Config {
	return Config{
		HTTPAddr:      envOrDefault("LEASEKEEPER_HTTP_ADDR", ":8080"),
		ReadTimeout:   durationOrDefault("LEASEKEEPER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:  durationOrDefault("LEASEKEEPER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:   durationOrDefault("LEASEKEEPER_IDLE_TIMEOUT", 60*time.Second),
		StoreKind:     strings.ToLower(envOrDefault("LEASEKEEPER_STORE", "memory")),
		StoreDSN:      os.Getenv("LEASEKEEPER_DSN"),
		TableName:     envOrDefault("LEASEKEEPER_TABLE", "resources"),
		KeyPrefix:     envOrDefault("LEASEKEEPER_PREFIX", "leasekeeper"),
		SweepInterval: durationOrDefault("LEASEKEEPER_SWEEP_INTERVAL", 10*time.Second),
		LogLevel:      strings.ToLower(envOrDefault("LEASEKEEPER_LOG_LEVEL", "info")),
		Metrics:       boolOrDefault("LEASEKEEPER_METRICS", true),
		WatchBuffer:   intOrDefault("LEASEKEEPER_WATCH_BUFFER", 16),
		ServerURL:     normalizeServerURL(os.Getenv("LEASEKEEPER_SERVER")),
		User:          envOrDefault("LEASEKEEPER_USER", os.Getenv("USER")),
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func intOrDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func boolOrDefault(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func normalizeServerURL(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "http://localhost:8080"
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}
