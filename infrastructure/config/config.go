package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string
	IsLambda      bool

	// AWS configuration
	AWSRegion         string
	TableName         string
	OwnerIndexName    string // GSI1 - owner-chronological listings
	CategoryIndexName string // GSI2 - category/value listings and the outbox queue
	EventBusName      string
	EventSource       string
	UploadBucket      string
	MetricsNamespace  string

	// Expiration policy. The TTL attribute is always ExpireAt; the codec's
	// item schema and the sweep filter both depend on that name.
	TTLEnabled bool

	// Query boundary limits
	DefaultPageSize int32
	MaxPageSize     int32

	// Change delivery
	OutboxBatchSize   int32
	OutboxInterval    time.Duration
	OutboxMaxAttempts int
	OutboxBaseBackoff time.Duration
	SweepInterval     time.Duration

	// Upload boundary
	UploadURLTTL time.Duration

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Logging and features
	LogLevel      string
	EnableCORS    bool
	EnableTracing bool
	RateLimit     int
	RateWindow    time.Duration
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		IsLambda:      getEnvBool("IS_LAMBDA", os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""),

		AWSRegion:         getEnv("AWS_REGION", "us-west-2"),
		TableName:         getEnv("TABLE_NAME", "cardvault"),
		OwnerIndexName:    getEnv("OWNER_INDEX_NAME", "OwnerIndex"),
		CategoryIndexName: getEnv("CATEGORY_INDEX_NAME", "CategoryIndex"),
		EventBusName:      getEnv("EVENT_BUS_NAME", "cardvault-changes"),
		EventSource:       getEnv("EVENT_SOURCE", "cardvault"),
		UploadBucket:      getEnv("UPLOAD_BUCKET", ""),
		MetricsNamespace:  getEnv("METRICS_NAMESPACE", "CardVault"),

		TTLEnabled: getEnvBool("TTL_ENABLED", true),

		DefaultPageSize: int32(getEnvInt("DEFAULT_PAGE_SIZE", 25)),
		MaxPageSize:     int32(getEnvInt("MAX_PAGE_SIZE", 100)),

		OutboxBatchSize:   int32(getEnvInt("OUTBOX_BATCH_SIZE", 50)),
		OutboxInterval:    getEnvDuration("OUTBOX_INTERVAL", 5*time.Second),
		OutboxMaxAttempts: getEnvInt("OUTBOX_MAX_ATTEMPTS", 5),
		OutboxBaseBackoff: getEnvDuration("OUTBOX_BASE_BACKOFF", 2*time.Second),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", time.Minute),

		UploadURLTTL: getEnvDuration("UPLOAD_URL_TTL", 15*time.Minute),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "cardvault"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		RateLimit:     getEnvInt("RATE_LIMIT", 100),
		RateWindow:    getEnvDuration("RATE_WINDOW", time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.TableName == "" {
		return fmt.Errorf("TABLE_NAME is required")
	}
	if c.DefaultPageSize <= 0 || c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("invalid page size bounds: default=%d max=%d", c.DefaultPageSize, c.MaxPageSize)
	}
	if c.OutboxMaxAttempts < 1 {
		return fmt.Errorf("OUTBOX_MAX_ATTEMPTS must be at least 1")
	}
	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
	}
	return nil
}

// IsProduction checks if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
