package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CAMPUSQA_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GPT_MAX_RETRIES", "5")
	t.Setenv("MAX_CONCURRENT_REQUESTS", "8")
	t.Setenv("CACHE_TTL", "120")
	t.Setenv("TRUST_PROXY_HEADERS", "true")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
	if cfg.LLM.MaxRetries != 5 {
		t.Errorf("LLM.MaxRetries = %d, want 5", cfg.LLM.MaxRetries)
	}
	if cfg.Limits.MaxConcurrentRequests != 8 {
		t.Errorf("Limits.MaxConcurrentRequests = %d, want 8", cfg.Limits.MaxConcurrentRequests)
	}
	if cfg.Cache.TTL != 120 {
		t.Errorf("Cache.TTL = %d, want 120", cfg.Cache.TTL)
	}
	if !cfg.Limits.TrustProxyHeaders {
		t.Error("Limits.TrustProxyHeaders = false, want true")
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
host: "127.0.0.1"
port: 8888
log:
  level: warn
  format: json
cache:
  type: memory
  ttl: 30
llm:
  provider: gemini
  model: gemini-2.5-flash
limits:
  rate_limit_requests: 10
  rate_limit_window: 5
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", cfg.Host)
	}
	if cfg.Port != 8888 {
		t.Errorf("Port = %d, want 8888", cfg.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %s, want warn", cfg.Log.Level)
	}
	if cfg.Cache.Type != "memory" || cfg.Cache.TTL != 30 {
		t.Errorf("Cache = %+v, want memory/30", cfg.Cache)
	}
	// Untouched nested fields keep their defaults.
	if cfg.Cache.SearchTTL != 6*60*60 {
		t.Errorf("Cache.SearchTTL = %d, want default", cfg.Cache.SearchTTL)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.Model != "gemini-2.5-flash" {
		t.Errorf("LLM = %s/%s", cfg.LLM.Provider, cfg.LLM.Model)
	}
	if cfg.Limits.RateLimitRequests != 10 || cfg.Limits.RateLimitWindow != 5 {
		t.Errorf("Limits = %+v", cfg.Limits)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("port: 8888\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("CAMPUSQA_PORT", "7070")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Port)
	}
}

func TestLoad_GeminiModelDefault(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  string
	}{
		{"openai default replaced", "", DefaultGeminiModel},
		{"explicit gemini model kept", "gemini-2.5-pro", "gemini-2.5-pro"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LLM_PROVIDER", "gemini")
			if tt.model != "" {
				t.Setenv("GPT_MODEL", tt.model)
			}

			cfg, err := LoadFromEnv()
			if err != nil {
				t.Fatalf("LoadFromEnv() error = %v", err)
			}
			if cfg.LLM.Model != tt.want {
				t.Errorf("LLM.Model = %s, want %s", cfg.LLM.Model, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid port",
			modify:  func(c *Config) { c.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Log.Level = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid cache type",
			modify:  func(c *Config) { c.Cache.Type = "invalid" },
			wantErr: true,
		},
		{
			name:    "redis without url",
			modify:  func(c *Config) { c.Cache.RedisURL = "" },
			wantErr: true,
		},
		{
			name:    "memory cache without url",
			modify:  func(c *Config) { c.Cache.Type = "memory"; c.Cache.RedisURL = "" },
			wantErr: false,
		},
		{
			name:    "invalid bus type",
			modify:  func(c *Config) { c.Bus.Type = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid llm provider",
			modify:  func(c *Config) { c.LLM.Provider = "llama" },
			wantErr: true,
		},
		{
			name:    "gemini with openai model",
			modify:  func(c *Config) { c.LLM.Provider = "gemini"; c.LLM.Model = "gpt-4o" },
			wantErr: true,
		},
		{
			name:    "gemini with gemini model",
			modify:  func(c *Config) { c.LLM.Provider = "gemini"; c.LLM.Model = DefaultGeminiModel },
			wantErr: false,
		},
		{
			name:    "zero retries",
			modify:  func(c *Config) { c.LLM.MaxRetries = 0 },
			wantErr: true,
		},
		{
			name:    "zero concurrency",
			modify:  func(c *Config) { c.Limits.MaxConcurrentRequests = 0 },
			wantErr: true,
		},
		{
			name:    "rate limit disabled",
			modify:  func(c *Config) { c.Limits.RateLimitRequests = 0; c.Limits.RateLimitWindow = 0 },
			wantErr: false,
		},
		{
			name:    "rate limit without window",
			modify:  func(c *Config) { c.Limits.RateLimitWindow = 0 },
			wantErr: true,
		},
		{
			name:    "too many search results",
			modify:  func(c *Config) { c.Search.MaxResults = 11 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	cfg := &Config{
		Host: "localhost",
		Port: 8080,
	}

	if addr := cfg.Address(); addr != "localhost:8080" {
		t.Errorf("Address() = %s, want localhost:8080", addr)
	}
}

func TestSeconds(t *testing.T) {
	if got := Seconds(90); got != 90*time.Second {
		t.Errorf("Seconds(90) = %v", got)
	}
}
