package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the enrichq server.
type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	AI          AIConfig
	Scheduler   SchedulerConfig
	Health      HealthConfig
	Credentials CredentialsConfig
	Enrich      EnrichConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	AllowedOrigins []string
	RequestsPerMin int
}

type StoreConfig struct {
	// Driver is "postgres" or "memory".
	Driver string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Anthropic        AnthropicConfig
	HTTP             HTTPCapabilityConfig
}

type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// HTTPCapabilityConfig configures a remote enrichment endpoint that accepts a
// JSON EnrichmentRequest and answers with a JSON EnrichmentOutcome.
type HTTPCapabilityConfig struct {
	URL    string
	APIKey string
}

// SchedulerConfig drives the background tasks. Each task has its own interval.
type SchedulerConfig struct {
	ReaperInterval  time.Duration
	MetricsInterval time.Duration
	HealthInterval  time.Duration
	StaleThreshold  time.Duration
}

type HealthConfig struct {
	DBSlowThreshold    time.Duration
	StuckCritical      int
	MinSuccessRate     float64
	MinFinishedForRate int
	CredentialWarnDays int
	ErrorWindow        time.Duration
	ErrorWarnCount     int
	ErrorCriticalCount int
}

type CredentialsConfig struct {
	AmazonEnabled bool
}

type EnrichConfig struct {
	MaxConcurrency int
}

var validProviders = map[string]bool{
	"anthropic": true,
	"http":      true,
	"mock":      true,
}

var validDrivers = map[string]bool{
	"postgres": true,
	"memory":   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("ENRICHQ_PORT", 8080),
			Env:            envString("ENRICHQ_ENV", "development"),
			AllowedOrigins: envList("ENRICHQ_ALLOWED_ORIGINS", []string{"*"}),
			RequestsPerMin: envInt("ENRICHQ_REQUESTS_PER_MIN", 60),
		},
		Store: StoreConfig{
			Driver: envString("STORE_DRIVER", "postgres"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			Provider:         envString("AI_PROVIDER", "mock"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 120*time.Second),
			Anthropic: AnthropicConfig{
				APIKey:    os.Getenv("ANTHROPIC_API_KEY"),
				Model:     envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
				MaxTokens: int64(envInt("ANTHROPIC_MAX_TOKENS", 2048)),
			},
			HTTP: HTTPCapabilityConfig{
				URL:    os.Getenv("ENRICH_CAPABILITY_URL"),
				APIKey: os.Getenv("ENRICH_CAPABILITY_API_KEY"),
			},
		},
		Scheduler: SchedulerConfig{
			ReaperInterval:  envDuration("REAPER_INTERVAL", time.Minute),
			MetricsInterval: envDuration("METRICS_INTERVAL", 10*time.Second),
			HealthInterval:  envDuration("HEALTH_INTERVAL", 30*time.Second),
			StaleThreshold:  envDuration("STALE_THRESHOLD", 10*time.Minute),
		},
		Health: HealthConfig{
			DBSlowThreshold:    time.Duration(envInt("HEALTH_DB_SLOW_MS", 1000)) * time.Millisecond,
			StuckCritical:      envInt("HEALTH_STUCK_CRITICAL", 5),
			MinSuccessRate:     envFloat("HEALTH_MIN_SUCCESS_RATE", 0.8),
			MinFinishedForRate: envInt("HEALTH_MIN_FINISHED_FOR_RATE", 5),
			CredentialWarnDays: envInt("HEALTH_CREDENTIAL_WARN_DAYS", 7),
			ErrorWindow:        envDuration("HEALTH_ERROR_WINDOW", time.Hour),
			ErrorWarnCount:     envInt("HEALTH_ERROR_WARN_COUNT", 10),
			ErrorCriticalCount: envInt("HEALTH_ERROR_CRITICAL_COUNT", 50),
		},
		Credentials: CredentialsConfig{
			AmazonEnabled: envBool("AMAZON_CREDENTIALS_ENABLED", false),
		},
		Enrich: EnrichConfig{
			MaxConcurrency: envInt("ENRICH_MAX_CONCURRENCY", 4),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !validDrivers[c.Store.Driver] {
		return fmt.Errorf("STORE_DRIVER must be one of postgres, memory; got %q", c.Store.Driver)
	}

	if c.Store.Driver == "postgres" {
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_DRIVER is postgres")
		}
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of anthropic, http, mock; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "http" {
		if c.AI.HTTP.URL == "" {
			return fmt.Errorf("ENRICH_CAPABILITY_URL is required when AI_PROVIDER is http")
		}
		if !strings.HasPrefix(c.AI.HTTP.URL, "http://") && !strings.HasPrefix(c.AI.HTTP.URL, "https://") {
			return fmt.Errorf("ENRICH_CAPABILITY_URL must start with http:// or https://, got %q", c.AI.HTTP.URL)
		}
	}

	if c.Scheduler.StaleThreshold <= 0 {
		return fmt.Errorf("STALE_THRESHOLD must be positive, got %s", c.Scheduler.StaleThreshold)
	}
	if c.AI.InferenceTimeout >= c.Scheduler.StaleThreshold {
		return fmt.Errorf("AI_INFERENCE_TIMEOUT_SECS (%s) must be shorter than STALE_THRESHOLD (%s)",
			c.AI.InferenceTimeout, c.Scheduler.StaleThreshold)
	}
	for name, d := range map[string]time.Duration{
		"REAPER_INTERVAL":  c.Scheduler.ReaperInterval,
		"METRICS_INTERVAL": c.Scheduler.MetricsInterval,
		"HEALTH_INTERVAL":  c.Scheduler.HealthInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.Health.MinSuccessRate < 0 || c.Health.MinSuccessRate > 1 {
		return fmt.Errorf("HEALTH_MIN_SUCCESS_RATE must be between 0 and 1, got %v", c.Health.MinSuccessRate)
	}
	if c.Health.ErrorCriticalCount < c.Health.ErrorWarnCount {
		return fmt.Errorf("HEALTH_ERROR_CRITICAL_COUNT (%d) must not be below HEALTH_ERROR_WARN_COUNT (%d)",
			c.Health.ErrorCriticalCount, c.Health.ErrorWarnCount)
	}

	if c.Enrich.MaxConcurrency <= 0 {
		return fmt.Errorf("ENRICH_MAX_CONCURRENCY must be positive, got %d", c.Enrich.MaxConcurrency)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
