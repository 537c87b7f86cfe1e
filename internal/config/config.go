package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// HTTP client
	HTTPTimeout     time.Duration
	ProviderTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Webhook delivery de-duplication
	DedupTTL      time.Duration
	RedisAddr     string
	RedisPassword string

	// Observability
	OTLPEndpoint string

	// Persistence
	StoreBackend string
	DatabaseURL  string
	BoltPath     string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	SupabaseJWTSecret  string // when set, access tokens are verified locally

	// YCloud
	YCloudAPIURL        string
	YCloudWebhookSecret string

	EnforceMessagingWindow bool
}

// LoadDotEnv loads a .env file. Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	return godotenv.Load(paths...)
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPTimeout:     getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		DedupTTL:      getEnvDuration("DEDUP_TTL", 24*time.Hour),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendSupabase)),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		BoltPath:     getEnv("BOLT_PATH", "console.db"),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseJWTSecret:  getEnv("SUPABASE_JWT_SECRET", ""),

		YCloudAPIURL:        getEnv("YCLOUD_API_URL", "https://api.ycloud.com/v2"),
		YCloudWebhookSecret: getEnv("YCLOUD_WEBHOOK_SECRET", ""),

		EnforceMessagingWindow: getEnvBool("ENFORCE_MESSAGING_WINDOW", true),
	}
}

// Validate reports settings the selected backends cannot run without.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case BackendSupabase:
		if c.SupabaseURL == "" {
			errs = append(errs, errors.New("SUPABASE_URL is required for the supabase store"))
		}
		if c.SupabaseServiceKey == "" {
			errs = append(errs, errors.New("SUPABASE_SERVICE_ROLE_KEY is required for the supabase store"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case BackendBolt:
		if c.BoltPath == "" {
			errs = append(errs, errors.New("BOLT_PATH is required for the bolt store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	// Without a local secret, tokens are resolved against Supabase Auth.
	if c.SupabaseJWTSecret == "" && c.SupabaseURL == "" {
		errs = append(errs, errors.New("SUPABASE_JWT_SECRET or SUPABASE_URL is required to verify access tokens"))
	}
	if c.Port <= 0 {
		errs = append(errs, fmt.Errorf("invalid PORT %d", c.Port))
	}
	if c.DedupTTL <= 0 {
		errs = append(errs, fmt.Errorf("DEDUP_TTL must be positive, got %s", c.DedupTTL))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %s", c.ProviderTimeout))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
