package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for promptforge-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3030"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// DataDir is the root directory for all persisted documents: the sample
	// store, job status, prompt file, complete-optimization record and the
	// versioned archive.
	DataDir string `yaml:"data_dir" env:"DATA_DIR" env-default:"./data"`

	// External optimizer service
	Optimizer OptimizerConfig `yaml:"optimizer"`
}

// OptimizerConfig holds settings for the external optimizer endpoint.
type OptimizerConfig struct {
	// BaseURL is the external optimizer's base address.
	BaseURL string `yaml:"base_url" env:"OPTIMIZER_BASE_URL" env-default:"http://localhost:8000"`

	// TimeoutSeconds bounds a single /optimize call. 0 disables the client
	// timeout; optimization runs can legitimately take many minutes.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"OPTIMIZER_TIMEOUT_SECONDS" env-default:"0"`

	// MaxMetricCalls is the default metric-call budget sent to the optimizer
	// when a start request does not override it.
	MaxMetricCalls int `yaml:"max_metric_calls" env:"OPTIMIZER_MAX_METRIC_CALLS" env-default:"50"`

	// Auto selects the optimizer's automatic tuning level ("light", "medium",
	// "heavy"). Empty leaves the choice to the optimizer.
	Auto string `yaml:"auto" env:"OPTIMIZER_AUTO" env-default:""`

	// NumThreads is the worker-thread count passed to the optimizer. 0 leaves
	// the choice to the optimizer.
	NumThreads int `yaml:"num_threads" env:"OPTIMIZER_NUM_THREADS" env-default:"0"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. A missing config.yaml is not an error; configuration then comes
// from environment variables and defaults alone. The version parameter is
// injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate checks fields that would otherwise fail deep inside a request.
func (c *Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if _, err := url.Parse(c.Optimizer.BaseURL); err != nil {
		return fmt.Errorf("optimizer base_url is not a valid URL: %w", err)
	}
	if c.Optimizer.TimeoutSeconds < 0 {
		return fmt.Errorf("optimizer timeout_seconds must not be negative")
	}
	return nil
}

// SamplesPath is the location of the recorded-session store.
func (c *Config) SamplesPath() string {
	return filepath.Join(c.DataDir, "samples.json")
}

// StatusPath is the location of the job-status document.
func (c *Config) StatusPath() string {
	return filepath.Join(c.DataDir, "status.json")
}

// PromptPath is the location of the latest optimized prompt text.
func (c *Config) PromptPath() string {
	return filepath.Join(c.DataDir, "optimized-prompt.txt")
}

// LatestOptimizationPath is the location of the latest complete-optimization
// record.
func (c *Config) LatestOptimizationPath() string {
	return filepath.Join(c.DataDir, "complete-optimization.json")
}

// VersionsDir is the root of the per-run versioned archive.
func (c *Config) VersionsDir() string {
	return filepath.Join(c.DataDir, "versions")
}
