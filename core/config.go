package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the hosted FarmIQ API endpoint
const DefaultBaseURL = "https://mr-thop-farmiq.hf.space"

// Config holds all configuration options for the client core.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithBaseURL("http://localhost:5000"),
//	    WithCredentialsPath("/var/lib/farmiq/credentials.json"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// BaseURL is the root of the remote API collaborator
	BaseURL string `json:"base_url" yaml:"base_url" env:"FARMIQ_API_URL"`

	// HTTP transport configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Credentials persistence configuration
	Credentials CredentialConfig `json:"credentials" yaml:"credentials"`

	// Cache configuration for the product catalog
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Sync configuration for background cart mirroring
	Sync SyncConfig `json:"sync" yaml:"sync"`

	// Telemetry configuration
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// HTTPConfig contains transport settings for the API gateway
type HTTPConfig struct {
	Timeout time.Duration `json:"timeout" yaml:"timeout" env:"FARMIQ_HTTP_TIMEOUT"`
}

// CredentialConfig selects where the session record is persisted.
// Provider is one of "file", "redis", or "memory".
type CredentialConfig struct {
	Provider string `json:"provider" yaml:"provider" env:"FARMIQ_CREDENTIALS_PROVIDER"`
	Path     string `json:"path" yaml:"path" env:"FARMIQ_CREDENTIALS_PATH"`
	RedisURL string `json:"redis_url" yaml:"redis_url" env:"FARMIQ_REDIS_URL"`
}

// CacheConfig controls the catalog response cache.
// Provider is one of "inmemory" or "redis".
type CacheConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled" env:"FARMIQ_CACHE_ENABLED"`
	Provider string        `json:"provider" yaml:"provider" env:"FARMIQ_CACHE_PROVIDER"`
	RedisURL string        `json:"redis_url" yaml:"redis_url" env:"FARMIQ_REDIS_URL"`
	TTL      time.Duration `json:"ttl" yaml:"ttl" env:"FARMIQ_CACHE_TTL"`
	MaxSize  int           `json:"max_size" yaml:"max_size" env:"FARMIQ_CACHE_MAX_SIZE"`
}

// SyncConfig controls background remote persistence of cart mutations
type SyncConfig struct {
	// Timeout bounds each background mirror call
	Timeout time.Duration `json:"timeout" yaml:"timeout" env:"FARMIQ_SYNC_TIMEOUT"`

	// CircuitBreaker guards mirror calls against a dead backend
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

// CircuitBreakerConfig defines circuit breaker settings for the sync path.
// After Threshold consecutive failures the breaker opens and mirror calls
// fail locally until SleepWindow elapses.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled" env:"FARMIQ_CB_ENABLED"`
	Threshold        int           `json:"threshold" yaml:"threshold" env:"FARMIQ_CB_THRESHOLD"`
	SleepWindow      time.Duration `json:"sleep_window" yaml:"sleep_window" env:"FARMIQ_CB_SLEEP_WINDOW"`
	HalfOpenRequests int           `json:"half_open_requests" yaml:"half_open_requests" env:"FARMIQ_CB_HALF_OPEN"`
}

// TelemetryConfig enables OpenTelemetry instrumentation of the gateway transport
type TelemetryConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" env:"FARMIQ_TELEMETRY_ENABLED"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"FARMIQ_LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"FARMIQ_LOG_FORMAT"`
}

// Option is a functional option for configuring the client.
// Options are applied in order and can return an error if the configuration is invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	credPath := ".farmiq/credentials.json"
	if home != "" {
		credPath = home + "/" + credPath
	}

	return &Config{
		BaseURL: DefaultBaseURL,
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
		},
		Credentials: CredentialConfig{
			Provider: "file",
			Path:     credPath,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Provider: "inmemory",
			TTL:      5 * time.Minute,
			MaxSize:  1000,
		},
		Sync: SyncConfig{
			Timeout: 10 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				Threshold:        5,
				SleepWindow:      30 * time.Second,
				HalfOpenRequests: 3,
			},
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromEnv overrides configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("FARMIQ_API_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("FARMIQ_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FARMIQ_HTTP_TIMEOUT: %w", err)
		}
		c.HTTP.Timeout = d
	}
	if v := os.Getenv("FARMIQ_CREDENTIALS_PROVIDER"); v != "" {
		c.Credentials.Provider = v
	}
	if v := os.Getenv("FARMIQ_CREDENTIALS_PATH"); v != "" {
		c.Credentials.Path = v
	}
	if v := os.Getenv("FARMIQ_REDIS_URL"); v != "" {
		c.Credentials.RedisURL = v
		c.Cache.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Credentials.RedisURL = v
		c.Cache.RedisURL = v
	}
	if v := os.Getenv("FARMIQ_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = v == "true"
	}
	if v := os.Getenv("FARMIQ_CACHE_PROVIDER"); v != "" {
		c.Cache.Provider = v
	}
	if v := os.Getenv("FARMIQ_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FARMIQ_CACHE_TTL: %w", err)
		}
		c.Cache.TTL = d
	}
	if v := os.Getenv("FARMIQ_CACHE_MAX_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FARMIQ_CACHE_MAX_SIZE: %w", err)
		}
		c.Cache.MaxSize = n
	}
	if v := os.Getenv("FARMIQ_SYNC_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FARMIQ_SYNC_TIMEOUT: %w", err)
		}
		c.Sync.Timeout = d
	}
	if v := os.Getenv("FARMIQ_CB_ENABLED"); v != "" {
		c.Sync.CircuitBreaker.Enabled = v == "true"
	}
	if v := os.Getenv("FARMIQ_CB_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FARMIQ_CB_THRESHOLD: %w", err)
		}
		c.Sync.CircuitBreaker.Threshold = n
	}
	if v := os.Getenv("FARMIQ_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true"
	}
	if v := os.Getenv("FARMIQ_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FARMIQ_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	return nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL", ErrMissingConfiguration)
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("%w: base URL must be http(s), got %q", ErrInvalidConfiguration, c.BaseURL)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("%w: HTTP timeout must be positive", ErrInvalidConfiguration)
	}
	switch c.Credentials.Provider {
	case "file":
		if c.Credentials.Path == "" {
			return fmt.Errorf("%w: credentials path for file provider", ErrMissingConfiguration)
		}
	case "redis":
		if c.Credentials.RedisURL == "" {
			return fmt.Errorf("%w: redis URL for redis credentials provider", ErrMissingConfiguration)
		}
	case "memory":
	default:
		return fmt.Errorf("%w: unknown credentials provider %q", ErrInvalidConfiguration, c.Credentials.Provider)
	}
	if c.Cache.Enabled {
		switch c.Cache.Provider {
		case "inmemory":
		case "redis":
			if c.Cache.RedisURL == "" {
				return fmt.Errorf("%w: redis URL for redis cache provider", ErrMissingConfiguration)
			}
		default:
			return fmt.Errorf("%w: unknown cache provider %q", ErrInvalidConfiguration, c.Cache.Provider)
		}
	}
	return nil
}

// NewConfig creates a configuration from defaults, environment, and options,
// in that order of increasing priority
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// fileConfig mirrors Config for YAML decoding. Durations are strings in
// Go syntax ("30s", "5m"); pointer fields distinguish absent from zero
// so the file only overrides what it mentions.
type fileConfig struct {
	BaseURL *string `yaml:"base_url"`
	HTTP    struct {
		Timeout *string `yaml:"timeout"`
	} `yaml:"http"`
	Credentials struct {
		Provider *string `yaml:"provider"`
		Path     *string `yaml:"path"`
		RedisURL *string `yaml:"redis_url"`
	} `yaml:"credentials"`
	Cache struct {
		Enabled  *bool   `yaml:"enabled"`
		Provider *string `yaml:"provider"`
		RedisURL *string `yaml:"redis_url"`
		TTL      *string `yaml:"ttl"`
		MaxSize  *int    `yaml:"max_size"`
	} `yaml:"cache"`
	Sync struct {
		Timeout        *string `yaml:"timeout"`
		CircuitBreaker struct {
			Enabled          *bool   `yaml:"enabled"`
			Threshold        *int    `yaml:"threshold"`
			SleepWindow      *string `yaml:"sleep_window"`
			HalfOpenRequests *int    `yaml:"half_open_requests"`
		} `yaml:"circuit_breaker"`
	} `yaml:"sync"`
	Telemetry struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"telemetry"`
	Logging struct {
		Level  *string `yaml:"level"`
		Format *string `yaml:"format"`
	} `yaml:"logging"`
}

// LoadConfigFile reads a YAML configuration file over the given config.
// File values sit between defaults and environment in priority, so call
// this before LoadFromEnv when layering manually.
func (c *Config) LoadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setDuration := func(dst *time.Duration, src *string, field string) error {
		if src == nil {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return fmt.Errorf("invalid %s in config file: %w", field, err)
		}
		*dst = d
		return nil
	}

	setString(&c.BaseURL, fc.BaseURL)
	if err := setDuration(&c.HTTP.Timeout, fc.HTTP.Timeout, "http.timeout"); err != nil {
		return err
	}
	setString(&c.Credentials.Provider, fc.Credentials.Provider)
	setString(&c.Credentials.Path, fc.Credentials.Path)
	setString(&c.Credentials.RedisURL, fc.Credentials.RedisURL)
	if fc.Cache.Enabled != nil {
		c.Cache.Enabled = *fc.Cache.Enabled
	}
	setString(&c.Cache.Provider, fc.Cache.Provider)
	setString(&c.Cache.RedisURL, fc.Cache.RedisURL)
	if err := setDuration(&c.Cache.TTL, fc.Cache.TTL, "cache.ttl"); err != nil {
		return err
	}
	if fc.Cache.MaxSize != nil {
		c.Cache.MaxSize = *fc.Cache.MaxSize
	}
	if err := setDuration(&c.Sync.Timeout, fc.Sync.Timeout, "sync.timeout"); err != nil {
		return err
	}
	if fc.Sync.CircuitBreaker.Enabled != nil {
		c.Sync.CircuitBreaker.Enabled = *fc.Sync.CircuitBreaker.Enabled
	}
	if fc.Sync.CircuitBreaker.Threshold != nil {
		c.Sync.CircuitBreaker.Threshold = *fc.Sync.CircuitBreaker.Threshold
	}
	if err := setDuration(&c.Sync.CircuitBreaker.SleepWindow,
		fc.Sync.CircuitBreaker.SleepWindow, "sync.circuit_breaker.sleep_window"); err != nil {
		return err
	}
	if fc.Sync.CircuitBreaker.HalfOpenRequests != nil {
		c.Sync.CircuitBreaker.HalfOpenRequests = *fc.Sync.CircuitBreaker.HalfOpenRequests
	}
	if fc.Telemetry.Enabled != nil {
		c.Telemetry.Enabled = *fc.Telemetry.Enabled
	}
	setString(&c.Logging.Level, fc.Logging.Level)
	setString(&c.Logging.Format, fc.Logging.Format)
	return nil
}

// LoadEnvFile loads a .env file into the process environment if present.
// Missing files are not an error.
func LoadEnvFile(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// WithBaseURL sets the remote API base URL
func WithBaseURL(url string) Option {
	return func(c *Config) error {
		if url == "" {
			return fmt.Errorf("base URL cannot be empty")
		}
		c.BaseURL = strings.TrimRight(url, "/")
		return nil
	}
}

// WithHTTPTimeout sets the gateway request timeout
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		c.HTTP.Timeout = timeout
		return nil
	}
}

// WithCredentialsPath selects the file credential store at the given path
func WithCredentialsPath(path string) Option {
	return func(c *Config) error {
		c.Credentials.Provider = "file"
		c.Credentials.Path = path
		return nil
	}
}

// WithRedisURL points credential persistence and the catalog cache at Redis
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Credentials.Provider = "redis"
		c.Credentials.RedisURL = url
		c.Cache.Provider = "redis"
		c.Cache.RedisURL = url
		return nil
	}
}

// WithoutCache disables the catalog response cache
func WithoutCache() Option {
	return func(c *Config) error {
		c.Cache.Enabled = false
		return nil
	}
}

// WithCacheTTL sets how long catalog responses are cached
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl <= 0 {
			return fmt.Errorf("cache TTL must be positive")
		}
		c.Cache.TTL = ttl
		return nil
	}
}

// WithTelemetry enables OpenTelemetry instrumentation of the gateway
func WithTelemetry() Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = true
		return nil
	}
}

// WithLogLevel sets the log level (debug, info, warn, error)
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}
