package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigFile is read from the working directory when present.
const DefaultConfigFile = "config.yaml"

// Config holds all configuration for ekaya-answer.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// OpenAI-compatible endpoint
	OpenAI OpenAIConfig `yaml:"openai"`

	// Generation loop behaviour
	Generation GenerationConfig `yaml:"generation"`

	// Sampling parameters sent with every completion request
	Sampling SamplingConfig `yaml:"sampling"`

	// Circuit breaker around model listing
	ListingBreaker BreakerConfig `yaml:"listing_breaker"`

	Metrics MetricsConfig `yaml:"metrics"`
}

// OpenAIConfig describes the OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url" env:"OPENAI_API_BASE_URL"`
	APIKey  string `yaml:"-" env:"OPENAI_API_KEY"` // Secret - not in YAML

	// Model pins a model id. When empty a model is discovered from GET {base_url}/models.
	Model string `yaml:"model" env:"OPENAI_MODEL" env-default:""`

	// EndpointIdentifier is sent as x-alltrue-llm-endpoint-identifier when set.
	EndpointIdentifier string `yaml:"endpoint_identifier" env:"OPENAI_ENDPOINT_IDENTIFIER" env-default:""`

	// UserSession is sent as x-alltrue-llm-firewall-user-session when set.
	UserSession string `yaml:"user_session" env:"OPENAI_USER_SESSION" env-default:""`

	RequestTimeout time.Duration `yaml:"request_timeout" env:"OPENAI_REQUEST_TIMEOUT" env-default:"5m"`
}

// GenerationConfig controls the fallback retry loop and response formatting.
type GenerationConfig struct {
	MaxRetries     int           `yaml:"max_retries" env:"GENERATION_MAX_RETRIES" env-default:"5"`
	BackoffStep    time.Duration `yaml:"backoff_step" env:"GENERATION_BACKOFF_STEP" env-default:"100ms"`
	ListingRetries int           `yaml:"listing_retries" env:"GENERATION_LISTING_RETRIES" env-default:"0"`

	ReasoningStartMarker string `yaml:"reasoning_start_marker" env:"REASONING_START_MARKER" env-default:"<think>"`
	ReasoningEndMarker   string `yaml:"reasoning_end_marker" env:"REASONING_END_MARKER" env-default:"</think>"`

	// MaxLogEntries caps the in-memory generation log.
	MaxLogEntries int `yaml:"max_log_entries" env:"GENERATION_MAX_LOG_ENTRIES" env-default:"500"`
}

// SamplingConfig holds completion sampling parameters.
type SamplingConfig struct {
	MaxTokens        int     `yaml:"max_tokens" env:"SAMPLING_MAX_TOKENS" env-default:"4096"`
	Temperature      float32 `yaml:"temperature" env:"SAMPLING_TEMPERATURE" env-default:"0.6"`
	TopP             float32 `yaml:"top_p" env:"SAMPLING_TOP_P" env-default:"0.95"`
	FrequencyPenalty float32 `yaml:"frequency_penalty" env:"SAMPLING_FREQUENCY_PENALTY" env-default:"0"`
	PresencePenalty  float32 `yaml:"presence_penalty" env:"SAMPLING_PRESENCE_PENALTY" env-default:"0"`
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	Threshold  int           `yaml:"threshold" env:"LISTING_BREAKER_THRESHOLD" env-default:"3"`
	ResetAfter time.Duration `yaml:"reset_after" env:"LISTING_BREAKER_RESET_AFTER" env-default:"30s"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Namespace string `yaml:"namespace" env:"METRICS_NAMESPACE" env-default:"ekaya_answer"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// When config.yaml does not exist, configuration comes from the environment only.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultConfigFile, version)
}

// LoadFile is Load with an explicit YAML path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.OpenAI.BaseURL = ResolveURLForDocker(strings.TrimSpace(cfg.OpenAI.BaseURL))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks values that cleanenv cannot enforce.
func (c *Config) Validate() error {
	if c.OpenAI.BaseURL == "" {
		return fmt.Errorf("openai.base_url is required (set OPENAI_API_BASE_URL)")
	}
	u, err := url.Parse(c.OpenAI.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("openai.base_url %q is not an absolute URL", c.OpenAI.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("openai.base_url must use http or https, got %q", u.Scheme)
	}

	if c.Generation.MaxRetries < 1 {
		return fmt.Errorf("generation.max_retries must be at least 1, got %d", c.Generation.MaxRetries)
	}
	if c.Generation.BackoffStep <= 0 {
		return fmt.Errorf("generation.backoff_step must be positive")
	}
	if c.Generation.ListingRetries < 0 {
		return fmt.Errorf("generation.listing_retries must not be negative")
	}

	if c.Sampling.Temperature < 0 || c.Sampling.Temperature > 2 {
		return fmt.Errorf("sampling.temperature must be between 0 and 2, got %v", c.Sampling.Temperature)
	}
	if c.Sampling.TopP < 0 || c.Sampling.TopP > 1 {
		return fmt.Errorf("sampling.top_p must be between 0 and 1, got %v", c.Sampling.TopP)
	}
	if c.Sampling.MaxTokens < 0 {
		return fmt.Errorf("sampling.max_tokens must not be negative")
	}

	return nil
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}
