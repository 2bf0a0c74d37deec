package model

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds the complete runtime configuration
type Config struct {
	Database     DatabaseConfig    `yaml:"database" mapstructure:"database"`
	HTTP         HTTPConfig        `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig       `yaml:"cache" mapstructure:"cache"`
	RateLimiting RateLimitConfig   `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Concurrency  ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Extractor    ExtractorConfig   `yaml:"extractor" mapstructure:"extractor"`
	Output       OutputConfig      `yaml:"output" mapstructure:"output"`
}

// DatabaseConfig holds storage connection parameters
type DatabaseConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"` // postgres or sqlite
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	Name     string `yaml:"name" mapstructure:"name"` // Database name, or file path for sqlite
	SSLMode  string `yaml:"sslmode" mapstructure:"sslmode"`
}

// HTTPConfig controls page fetching
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxRetries    int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval" mapstructure:"retry_interval"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// CacheConfig controls the fetched page cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// RateLimitConfig controls per-host request pacing
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ConcurrencyConfig controls how many items a pass processes at once
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"` // 1 keeps strict item order
}

// ExtractorConfig selects and tunes the extractor
type ExtractorConfig struct {
	Kind    string        `yaml:"kind" mapstructure:"kind"`       // cvlac or llm
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"` // 0 disables the bound
	LLM     LLMConfig     `yaml:"llm" mapstructure:"llm"`
}

// LLMConfig configures the model-assisted extractor
type LLMConfig struct {
	APIKey       string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL      string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Model        string `yaml:"model" mapstructure:"model"`
	MaxTextChars int    `yaml:"max_text_chars" mapstructure:"max_text_chars"`
}

// OutputConfig controls reporting
type OutputConfig struct {
	Verbose         bool   `yaml:"verbose" mapstructure:"verbose"`
	JSON            bool   `yaml:"json" mapstructure:"json"`
	MetricsTextfile string `yaml:"metrics_textfile,omitempty" mapstructure:"metrics_textfile"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	cacheDir := ".cvlacsync/cache"
	if home, err := os.UserHomeDir(); err == nil {
		cacheDir = filepath.Join(home, ".cvlacsync", "cache")
	}

	return &Config{
		Database: DatabaseConfig{
			Driver:  "postgres",
			Host:    "localhost",
			Port:    5432,
			User:    "root",
			Name:    "scraping",
			SSLMode: "disable",
		},
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "cvlacsync/0.1 (+https://github.com/ppiankov/cvlacsync)",
			MaxBodyBytes:  5_000_000,
			MaxRetries:    2,
			RetryInterval: 500 * time.Millisecond,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       cacheDir,
			MemoryTTL: time.Hour,
			DiskTTL:   24 * time.Hour,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 2,
			BurstSize:         1,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 1,
		},
		Extractor: ExtractorConfig{
			Kind:    "cvlac",
			Timeout: 2 * time.Minute,
			LLM: LLMConfig{
				Model:        "gpt-4o-mini",
				MaxTextChars: 50_000,
			},
		},
	}
}
