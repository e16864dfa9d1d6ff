package model

import (
	"path/filepath"
	"runtime"
	"time"

	"github.com/adrg/xdg"
)

// Config holds all biosbias settings. Zero-valued sections are filled from
// DefaultConfig before the config file, env vars and flags are applied.
type Config struct {
	Extract      ExtractConfig      `yaml:"extract" mapstructure:"extract"`
	Fetch        FetchConfig        `yaml:"fetch" mapstructure:"fetch"`
	S3           S3Config           `yaml:"s3" mapstructure:"s3"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Dedup        DedupConfig        `yaml:"dedup" mapstructure:"dedup"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
}

// ExtractConfig controls the bio extraction heuristics
type ExtractConfig struct {
	TitlesFile string `yaml:"titles_file" mapstructure:"titles_file"`   // Title catalog (YAML or JSON); empty uses the built-in catalog
	MinLength  int    `yaml:"min_length" mapstructure:"min_length"`     // Minimum line and bio body length
	MaxLineLen int    `yaml:"max_line_len" mapstructure:"max_line_len"` // Lines longer than this are dropped
	MaxPrecede int    `yaml:"max_precede" mapstructure:"max_precede"`   // How far into a line "is a" may start
	MaxPageLen int    `yaml:"max_page_len" mapstructure:"max_page_len"` // Page text is truncated to this many bytes
}

// FetchConfig controls how archive shards are retrieved
type FetchConfig struct {
	Source        string        `yaml:"source" mapstructure:"source"`     // "http" or "s3"
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"` // Prefix joined with shard paths
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`   // Per-shard timeout
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxAttempts   int           `yaml:"max_attempts" mapstructure:"max_attempts"` // Attempts per request for transient errors
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// S3Config is used when Fetch.Source is "s3"
type S3Config struct {
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
	Region string `yaml:"region" mapstructure:"region"`
}

// CacheConfig controls the per-shard result cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig controls shard-level parallelism and retries
type ConcurrencyConfig struct {
	Workers         int `yaml:"workers" mapstructure:"workers"`
	Retries         int `yaml:"retries" mapstructure:"retries"`                   // Extra rounds for failed shards
	MaxFailures     int `yaml:"max_failures" mapstructure:"max_failures"`         // Stop scheduling after this many failures
	ProgressReports int `yaml:"progress_reports" mapstructure:"progress_reports"` // Number of chunks (progress lines)
}

// RateLimitingConfig limits requests per archive host
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// DedupConfig controls the global dedup pass
type DedupConfig struct {
	IgnoreTitles []string `yaml:"ignore_titles" mapstructure:"ignore_titles"` // Labels with too little data
	Placeholder  string   `yaml:"placeholder" mapstructure:"placeholder"`     // Replacement for pronouns and name tokens
}

// OutputConfig controls reporting
type OutputConfig struct {
	Verbose bool   `yaml:"verbose" mapstructure:"verbose"`
	NoColor bool   `yaml:"no_color" mapstructure:"no_color"`
	LogFile string `yaml:"log_file,omitempty" mapstructure:"log_file"` // Extra log destination; download defaults it next to the output
}

// DefaultExtractConfig returns the extraction thresholds used for the corpus
func DefaultExtractConfig() ExtractConfig {
	return ExtractConfig{
		MinLength:  150,
		MaxLineLen: 1000,
		MaxPrecede: 40,
		MaxPageLen: 100 * 1000,
	}
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	workers := runtime.NumCPU()
	workers -= workers / 10

	return &Config{
		Extract: DefaultExtractConfig(),
		Fetch: FetchConfig{
			Source:      "http",
			BaseURL:     "https://data.commoncrawl.org/",
			Timeout:     20 * time.Minute,
			UserAgent:   "biosbias/0.1 (+https://github.com/ppiankov/biosbias)",
			MaxAttempts: 3,
		},
		S3: S3Config{
			Bucket: "commoncrawl",
			Region: "us-east-1",
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       filepath.Join(xdg.CacheHome, "biosbias"),
			MemoryTTL: time.Hour,
			DiskTTL:   30 * 24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers:         workers,
			Retries:         2,
			MaxFailures:     100,
			ProgressReports: 50,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 10,
			BurstSize:         5,
		},
		Dedup: DedupConfig{
			IgnoreTitles: []string{
				"real_estate_broker",
				"landscape_architect",
				"massage_therapist",
				"magician",
				"acupuncturist",
			},
			Placeholder: "_",
		},
	}
}
