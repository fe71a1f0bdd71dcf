// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"CAMPUSQA_HOST" yaml:"host"`
	Port int    `envconfig:"CAMPUSQA_PORT" yaml:"port"`

	// Institution is the name the assistant answers about.
	Institution string `envconfig:"CAMPUSQA_INSTITUTION" yaml:"institution"`

	Server        ServerConfig        `yaml:"server"`
	Cache         CacheConfig         `yaml:"cache"`
	LLM           LLMConfig           `yaml:"llm"`
	News          NewsConfig          `yaml:"news"`
	Search        SearchConfig        `yaml:"search"`
	Limits        LimitsConfig        `yaml:"limits"`
	Bus           BusConfig           `yaml:"bus"`
	Log           LogConfig           `yaml:"log"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server timeouts (seconds).
type ServerConfig struct {
	RequestTimeout  int `envconfig:"REQUEST_TIMEOUT" yaml:"request_timeout"`
	ShutdownTimeout int `envconfig:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout"`
}

// CacheConfig holds cache settings. TTLs and timeouts are in seconds.
type CacheConfig struct {
	Type             string `envconfig:"CACHE_TYPE" yaml:"type"`
	RedisURL         string `envconfig:"REDIS_URL" yaml:"redis_url"`
	KeyPrefix        string `envconfig:"CACHE_KEY_PREFIX" yaml:"key_prefix"`
	TTL              int    `envconfig:"CACHE_TTL" yaml:"ttl"` // general namespace
	SearchTTL        int    `envconfig:"SEARCH_CACHE_TTL" yaml:"search_ttl"`
	PopularTTL       int    `envconfig:"POPULAR_CACHE_TTL" yaml:"popular_ttl"`
	PopularThreshold int64  `envconfig:"POPULAR_THRESHOLD" yaml:"popular_threshold"`
	Timeout          int    `envconfig:"REDIS_TIMEOUT" yaml:"timeout"`
}

// LLMConfig holds language model settings.
type LLMConfig struct {
	Provider     string  `envconfig:"LLM_PROVIDER" yaml:"provider"`
	Model        string  `envconfig:"GPT_MODEL" yaml:"model"`
	APIKey       string  `envconfig:"OPENAI_API_KEY" yaml:"api_key"`
	BaseURL      string  `envconfig:"OPENAI_BASE_URL" yaml:"base_url"`
	GeminiAPIKey string  `envconfig:"GEMINI_API_KEY" yaml:"gemini_api_key"`
	Temperature  float64 `envconfig:"TEMPERATURE" yaml:"temperature"`
	MaxTokens    int     `envconfig:"MAX_TOKENS" yaml:"max_tokens"`
	Timeout      int     `envconfig:"GPT_TIMEOUT" yaml:"timeout"` // seconds, per attempt
	MaxRetries   int     `envconfig:"GPT_MAX_RETRIES" yaml:"max_retries"`
	RetryBaseMS  int     `envconfig:"GPT_RETRY_BASE_DELAY_MS" yaml:"retry_base_delay_ms"`
	RetryJitter  bool    `envconfig:"GPT_RETRY_JITTER" yaml:"retry_jitter"`

	MaxContextSegments int `envconfig:"MAX_CONTEXT_SEGMENTS" yaml:"max_context_segments"`
	MaxContextChars    int `envconfig:"MAX_CONTEXT_CHARS" yaml:"max_context_chars"`
}

// NewsConfig holds news feed settings.
type NewsConfig struct {
	Enabled  bool   `envconfig:"NEWS_ENABLED" yaml:"enabled"`
	FeedURL  string `envconfig:"NEWS_RSS_URL" yaml:"feed_url"`
	MaxItems int    `envconfig:"NEWS_MAX_ITEMS" yaml:"max_items"`
	Timeout  int    `envconfig:"HTTP_TIMEOUT" yaml:"timeout"` // seconds
}

// SearchConfig holds web search settings.
type SearchConfig struct {
	Enabled    bool    `envconfig:"SEARCH_ENABLED" yaml:"enabled"`
	APIKey     string  `envconfig:"GOOGLE_API_KEY" yaml:"api_key"`
	EngineID   string  `envconfig:"GOOGLE_CSE_ID" yaml:"engine_id"`
	Keyword    string  `envconfig:"SEARCH_KEYWORD" yaml:"keyword"`
	MaxResults int     `envconfig:"MAX_SEARCH_RESULTS" yaml:"max_results"`
	Timeout    int     `envconfig:"SEARCH_TIMEOUT" yaml:"timeout"` // seconds
	Workers    int     `envconfig:"THREAD_POOL_SIZE" yaml:"workers"`
	QPS        float64 `envconfig:"SEARCH_QPS" yaml:"qps"`
}

// LimitsConfig holds admission control settings.
type LimitsConfig struct {
	MaxConcurrentRequests int `envconfig:"MAX_CONCURRENT_REQUESTS" yaml:"max_concurrent_requests"`
	RateLimitRequests     int `envconfig:"RATE_LIMIT_REQUESTS" yaml:"rate_limit_requests"` // 0 = disabled
	RateLimitWindow       int `envconfig:"RATE_LIMIT_WINDOW" yaml:"rate_limit_window"`     // seconds

	// TrustProxyHeaders keys rate limiting on X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool `envconfig:"TRUST_PROXY_HEADERS" yaml:"trust_proxy_headers"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaVersion string `envconfig:"KAFKA_VERSION" yaml:"kafka_version"`
	KafkaGroup   string `envconfig:"KAFKA_GROUP" yaml:"kafka_group"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"LOG_FORMAT" yaml:"format"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	MetricsEnabled     bool    `envconfig:"METRICS_ENABLED" yaml:"metrics_enabled"`
	MetricsPath        string  `envconfig:"METRICS_PATH" yaml:"metrics_path"`
	TracingEnabled     bool    `envconfig:"TRACING_ENABLED" yaml:"tracing_enabled"`
	TracingSampleRatio float64 `envconfig:"TRACING_SAMPLE_RATIO" yaml:"tracing_sample_ratio"`
	ServiceName        string  `envconfig:"SERVICE_NAME" yaml:"service_name"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	cfg.applyProviderDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default models per provider.
const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.5-flash"
)

// applyProviderDefaults swaps the OpenAI default model for the Gemini one
// when Gemini is selected without a model of its own.
func (c *Config) applyProviderDefaults() {
	if c.LLM.Provider == "gemini" && (c.LLM.Model == "" || c.LLM.Model == DefaultOpenAIModel) {
		c.LLM.Model = DefaultGeminiModel
	}
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080
	cfg.Institution = "ИТМО"

	cfg.Server = ServerConfig{
		RequestTimeout:  90,
		ShutdownTimeout: 30,
	}

	cfg.Cache = CacheConfig{
		Type:             "redis",
		RedisURL:         "redis://redis:6379/0",
		KeyPrefix:        "campusqa:",
		TTL:              60,
		SearchTTL:        6 * 60 * 60,
		PopularTTL:       12 * 60 * 60,
		PopularThreshold: 5,
		Timeout:          2,
	}

	cfg.LLM = LLMConfig{
		Provider:           "openai",
		Model:              DefaultOpenAIModel,
		Temperature:        0.7,
		MaxTokens:          1000,
		Timeout:            60,
		MaxRetries:         3,
		RetryBaseMS:        1000,
		MaxContextSegments: 10,
		MaxContextChars:    8000,
	}

	cfg.News = NewsConfig{
		Enabled:  true,
		FeedURL:  "https://news.itmo.ru/ru/news/rss/",
		MaxItems: 5,
		Timeout:  20,
	}

	cfg.Search = SearchConfig{
		Enabled:    true,
		Keyword:    "ИТМО",
		MaxResults: 5,
		Timeout:    20,
		Workers:    3,
		QPS:        5,
	}

	cfg.Limits = LimitsConfig{
		MaxConcurrentRequests: 5,
		RateLimitRequests:     60,
		RateLimitWindow:       60,
	}

	cfg.Bus = BusConfig{
		Type:         "memory",
		KafkaVersion: "2.8.0",
		KafkaGroup:   "campusqa",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Observability = ObservabilityConfig{
		MetricsEnabled:     true,
		MetricsPath:        "/metrics",
		TracingEnabled:     false,
		TracingSampleRatio: 0.3,
		ServiceName:        "campusqa",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	if c.Server.RequestTimeout < 1 {
		errs = append(errs, "request_timeout must be positive")
	}

	// Cache validation
	validCacheTypes := map[string]bool{"memory": true, "redis": true}
	if !validCacheTypes[c.Cache.Type] {
		errs = append(errs, fmt.Sprintf("invalid cache type: %s (must be memory or redis)", c.Cache.Type))
	}
	if c.Cache.Type == "redis" && c.Cache.RedisURL == "" {
		errs = append(errs, "redis_url is required for redis cache")
	}
	if c.Cache.TTL < 1 || c.Cache.SearchTTL < 1 || c.Cache.PopularTTL < 1 {
		errs = append(errs, "cache TTLs must be positive")
	}
	if c.Cache.Timeout < 1 {
		errs = append(errs, "cache timeout must be positive")
	}

	// LLM validation
	validProviders := map[string]bool{"openai": true, "gemini": true}
	if !validProviders[c.LLM.Provider] {
		errs = append(errs, fmt.Sprintf("invalid llm provider: %s (must be openai or gemini)", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, "llm model is required")
	}
	if c.LLM.Provider == "gemini" && strings.HasPrefix(c.LLM.Model, "gpt-") {
		errs = append(errs, fmt.Sprintf("llm model %s is not served by gemini", c.LLM.Model))
	}
	if c.LLM.MaxRetries < 1 {
		errs = append(errs, "max_retries must be at least 1")
	}
	if c.LLM.Timeout < 1 {
		errs = append(errs, "llm timeout must be positive")
	}
	if c.LLM.RetryBaseMS < 0 {
		errs = append(errs, "retry_base_delay_ms must not be negative")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}
	if c.LLM.MaxContextSegments < 1 {
		errs = append(errs, "max_context_segments must be positive")
	}

	// Context providers
	if c.News.Enabled && c.News.MaxItems < 1 {
		errs = append(errs, "news max_items must be positive")
	}
	if c.Search.Enabled {
		if c.Search.MaxResults < 1 || c.Search.MaxResults > 10 {
			errs = append(errs, "search max_results must be between 1 and 10")
		}
		if c.Search.Workers < 1 {
			errs = append(errs, "search workers must be positive")
		}
	}

	// Limits validation
	if c.Limits.MaxConcurrentRequests < 1 {
		errs = append(errs, "max_concurrent_requests must be positive")
	}
	if c.Limits.RateLimitRequests < 0 {
		errs = append(errs, "rate_limit_requests must not be negative")
	}
	if c.Limits.RateLimitRequests > 0 && c.Limits.RateLimitWindow < 1 {
		errs = append(errs, "rate_limit_window must be positive")
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true, "console": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text, json, or console)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Seconds converts a seconds setting into a time.Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
