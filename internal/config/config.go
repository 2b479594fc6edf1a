/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"net/url"
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

// Event bus backend selection.
type BusBackend string

const (
	BusMemory BusBackend = "memory"
	BusRedis  BusBackend = "redis"
	BusNATS   BusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string // Public base URL (e.g., http://dash.example.com)
	DBBackend   DatabaseBackend
	DBDSN       string
	MetricsBind string

	// Delivery engine (external HTTP collaborator)
	DeliveryEngineURL    string
	DeliverySecret       string // HMAC key for the X-Botdeck-Signature header
	DeliveryTimeout      time.Duration
	AutomationTick       time.Duration
	DeliveryLogRetention time.Duration

	// Daily matches
	MatchesSelectTopN int

	// Object storage for coupon creatives
	StorageRoot       string // local filesystem root; ignored when S3Bucket is set
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3PublicBaseURL   string // Optional CDN/CloudFront URL
	S3UsePathStyle    bool   // Required for MinIO
	MaxUploadSizeMB   int    // Multipart upload limit for creative uploads (MB)

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	// Distributed event bus
	BusBackend BusBackend
	NATSURL    string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"BOTDECK_ENV", "BDK_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"BOTDECK_HTTP_BIND", "BDK_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"BOTDECK_HTTP_PORT", "BDK_HTTP_PORT"}, 8080),
		BaseURL:     getEnvAny([]string{"BOTDECK_BASE_URL", "BDK_BASE_URL"}, ""),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"BOTDECK_DB_BACKEND", "BDK_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:       getEnvAny([]string{"BOTDECK_DB_DSN", "BDK_DB_DSN"}, ""),
		MetricsBind: getEnvAny([]string{"BOTDECK_METRICS_BIND", "BDK_METRICS_BIND"}, "127.0.0.1:9000"),

		DeliveryEngineURL:    getEnvAny([]string{"BOTDECK_DELIVERY_ENGINE_URL", "BDK_DELIVERY_ENGINE_URL"}, ""),
		DeliverySecret:       getEnvAny([]string{"BOTDECK_DELIVERY_SECRET", "BDK_DELIVERY_SECRET"}, ""),
		DeliveryTimeout:      time.Duration(getEnvIntAny([]string{"BOTDECK_DELIVERY_TIMEOUT_SECONDS", "BDK_DELIVERY_TIMEOUT_SECONDS"}, 10)) * time.Second,
		AutomationTick:       time.Duration(getEnvIntAny([]string{"BOTDECK_AUTOMATION_TICK_SECONDS", "BDK_AUTOMATION_TICK_SECONDS"}, 30)) * time.Second,
		DeliveryLogRetention: time.Duration(getEnvIntAny([]string{"BOTDECK_DELIVERY_LOG_RETENTION_DAYS", "BDK_DELIVERY_LOG_RETENTION_DAYS"}, 30)) * 24 * time.Hour,

		MatchesSelectTopN: getEnvIntAny([]string{"BOTDECK_MATCHES_TOP_N", "BDK_MATCHES_TOP_N"}, 3),

		StorageRoot:       getEnvAny([]string{"BOTDECK_STORAGE_ROOT", "BDK_STORAGE_ROOT"}, "./data/creatives"),
		S3AccessKeyID:     getEnvAny([]string{"BOTDECK_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"BOTDECK_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"BOTDECK_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"BOTDECK_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"BOTDECK_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3PublicBaseURL:   getEnvAny([]string{"BOTDECK_S3_PUBLIC_BASE_URL", "S3_PUBLIC_BASE_URL"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"BOTDECK_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),
		MaxUploadSizeMB:   getEnvIntAny([]string{"BOTDECK_MAX_UPLOAD_SIZE_MB", "BDK_MAX_UPLOAD_SIZE_MB"}, 0),

		TracingEnabled:    getEnvBoolAny([]string{"BOTDECK_TRACING_ENABLED", "BDK_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"BOTDECK_OTLP_ENDPOINT", "BDK_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"BOTDECK_TRACING_SAMPLE_RATE", "BDK_TRACING_SAMPLE_RATE"}, 1.0),

		LeaderElectionEnabled: getEnvBoolAny([]string{"BOTDECK_LEADER_ELECTION_ENABLED", "BDK_LEADER_ELECTION_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"BOTDECK_REDIS_ADDR", "BDK_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"BOTDECK_REDIS_PASSWORD", "BDK_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"BOTDECK_REDIS_DB", "BDK_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"BOTDECK_INSTANCE_ID", "BDK_INSTANCE_ID"}, ""),

		BusBackend: BusBackend(getEnvAny([]string{"BOTDECK_BUS_BACKEND", "BDK_BUS_BACKEND"}, string(BusMemory))),
		NATSURL:    getEnvAny([]string{"BOTDECK_NATS_URL", "BDK_NATS_URL"}, "nats://localhost:4222"),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("BOTDECK_DB_DSN or BDK_DB_DSN must be provided")
	}

	if cfg.BusBackend != BusMemory && cfg.BusBackend != BusRedis && cfg.BusBackend != BusNATS {
		return nil, fmt.Errorf("unsupported bus backend %q", cfg.BusBackend)
	}

	if cfg.DeliveryEngineURL != "" {
		if _, err := url.ParseRequestURI(cfg.DeliveryEngineURL); err != nil {
			return nil, fmt.Errorf("invalid BOTDECK_DELIVERY_ENGINE_URL: %w", err)
		}
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.DeliveryEngineURL == "" {
			return nil, fmt.Errorf("BOTDECK_DELIVERY_ENGINE_URL must be provided in production")
		}
		if cfg.DeliverySecret == "" {
			return nil, fmt.Errorf("BOTDECK_DELIVERY_SECRET must be provided in production")
		}
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":             "use BOTDECK_ENV (or BDK_ENV)",
		"LEADER_ELECTION_ENABLED": "use BOTDECK_LEADER_ELECTION_ENABLED",
		"DELIVERY_ENGINE_URL":     "use BOTDECK_DELIVERY_ENGINE_URL (or BDK_DELIVERY_ENGINE_URL)",
		"TRACING_ENABLED":         "use BOTDECK_TRACING_ENABLED (or BDK_TRACING_ENABLED)",
		"OTLP_ENDPOINT":           "use BOTDECK_OTLP_ENDPOINT (or BDK_OTLP_ENDPOINT)",
		"TRACING_SAMPLE_RATE":     "use BOTDECK_TRACING_SAMPLE_RATE (or BDK_TRACING_SAMPLE_RATE)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// MaxUploadSizeBytes returns the configured upload limit in bytes.
// A value of 0 means "not configured" and callers should use endpoint defaults.
func (c *Config) MaxUploadSizeBytes() int64 {
	if c == nil || c.MaxUploadSizeMB <= 0 {
		return 0
	}
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
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
