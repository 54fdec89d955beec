package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/vendor-negotiation/internal/retry"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	ModelProvider  string
	BedrockModelID string
	GeminiAPIKey   string
	GeminiModelID  string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	RetryMaxRetries     int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	RetryJitter         bool
	ModelAttemptTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DatabaseURL   string

	DeadLetterBackend          string
	DeadLetterSnapshotInterval time.Duration
	DeadLetterQueueURL         string
	DeadLetterArchiveBucket    string

	OpsJWTSecret string
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ModelProvider:  strings.ToLower(strings.TrimSpace(getEnv("MODEL_PROVIDER", "bedrock"))),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RetryMaxRetries:     getEnvAsInt("RETRY_MAX_RETRIES", retry.DefaultMaxRetries),
		RetryBaseDelay:      getEnvAsDuration("RETRY_BASE_DELAY", retry.DefaultBaseDelay),
		RetryMaxDelay:       getEnvAsDuration("RETRY_MAX_DELAY", retry.DefaultMaxDelay),
		RetryJitter:         getEnvAsBool("RETRY_JITTER", true),
		ModelAttemptTimeout: getEnvAsDuration("MODEL_ATTEMPT_TIMEOUT", 20*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		DeadLetterBackend:          strings.ToLower(strings.TrimSpace(getEnv("DEAD_LETTER_BACKEND", "memory"))),
		DeadLetterSnapshotInterval: getEnvAsDuration("DEAD_LETTER_SNAPSHOT_INTERVAL", time.Minute),
		DeadLetterQueueURL:         getEnv("DEAD_LETTER_QUEUE_URL", ""),
		DeadLetterArchiveBucket:    getEnv("DEAD_LETTER_ARCHIVE_BUCKET", ""),

		OpsJWTSecret: getEnv("OPS_JWT_SECRET", ""),
	}
}

// LoadDotEnv copies values from a .env file into the environment. Variables
// that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	for key, value := range values {
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("config: set %s: %w", key, err)
		}
	}
	return nil
}

// RetryPolicy returns the policy applied to model calls.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.DefaultPolicy().
		WithMaxRetries(c.RetryMaxRetries).
		WithBaseDelay(c.RetryBaseDelay).
		WithMaxDelay(c.RetryMaxDelay).
		WithJitter(c.RetryJitter).
		WithAttemptTimeout(c.ModelAttemptTimeout)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
