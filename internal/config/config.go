// Package config handles configuration loading, validation, and hot reload
// for armrng commands.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"armrng/internal/logging"
	"armrng/internal/rndr"
	"armrng/internal/sanity"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Sampler configures retry for both hardware sources.
	Sampler SamplerConfig `toml:"sampler" json:"sampler" yaml:"sampler"`

	// Sanity configures the acceptance harness.
	Sanity SanityConfig `toml:"sanity" json:"sanity" yaml:"sanity"`

	// Monitor configures periodic checking.
	Monitor MonitorConfig `toml:"monitor" json:"monitor" yaml:"monitor"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// SamplerConfig holds the retry budget of the sampling wrapper.
type SamplerConfig struct {
	// MaxAttempts bounds calls to the instruction per request.
	MaxAttempts int `toml:"max_attempts" json:"max_attempts" yaml:"max_attempts"`

	// IntervalMs is the pause between attempts in milliseconds.
	IntervalMs int `toml:"interval_ms" json:"interval_ms" yaml:"interval_ms"`
}

// SanityConfig holds the acceptance harness parameters.
type SanityConfig struct {
	Rounds        int  `toml:"rounds" json:"rounds" yaml:"rounds"`
	BufferSize    int  `toml:"buffer_size" json:"buffer_size" yaml:"buffer_size"`
	TailSize      int  `toml:"tail_size" json:"tail_size" yaml:"tail_size"`
	MaxZeroWords  int  `toml:"max_zero_words" json:"max_zero_words" yaml:"max_zero_words"`
	MinFailures   int  `toml:"min_failures" json:"min_failures" yaml:"min_failures"`
	FastRetries   int  `toml:"fast_retries" json:"fast_retries" yaml:"fast_retries"`
	DirectRetries int  `toml:"direct_retries" json:"direct_retries" yaml:"direct_retries"`
	HealthTests   bool `toml:"health_tests" json:"health_tests" yaml:"health_tests"`
}

// MonitorConfig holds periodic checking parameters.
type MonitorConfig struct {
	// IntervalSec is the pause between monitor passes in seconds.
	IntervalSec int `toml:"interval_sec" json:"interval_sec" yaml:"interval_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is stdout, stderr, file or both.
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file for file output.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB rotates the log file once it reaches this size.
	MaxSizeMB int64 `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is how many rotated files are kept.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// Compress gzips rotated files.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Sampler: SamplerConfig{
			MaxAttempts: rndr.DefaultMaxAttempts,
			IntervalMs:  int(rndr.DefaultInterval / time.Millisecond),
		},
		Sanity: SanityConfig{
			Rounds:        sanity.DefaultRounds,
			BufferSize:    sanity.DefaultBufferSize,
			TailSize:      sanity.DefaultTailSize,
			MaxZeroWords:  sanity.DefaultMaxZeroWords,
			FastRetries:   sanity.FastMaxRetries,
			DirectRetries: sanity.DirectMaxRetries,
		},
		Monitor: MonitorConfig{
			IntervalSec: 60,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  logging.DefaultMaxSizeMB,
			MaxBackups: logging.DefaultMaxBackups,
		},
	}
}

// ConfigDir returns the directory holding the default configuration file.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "armrng")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "armrng")
}

// ConfigPath returns the default configuration file path, or ARMRNG_CONFIG
// when set.
func ConfigPath() string {
	if v := os.Getenv("ARMRNG_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
// Environment overrides are applied; validation is left to the caller.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigFromFile reads and parses a config file based on its extension.
func loadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}
	return cfg, nil
}

// Save writes cfg to path in the format implied by its extension, TOML
// when the extension is unknown.
func Save(cfg *Config, path string) error {
	var data []byte
	var err error

	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with ARMRNG_ and use underscores.
func (c *Config) ApplyEnvOverrides() error {
	ints := []struct {
		env string
		dst *int
	}{
		{"ARMRNG_SAMPLER_MAX_ATTEMPTS", &c.Sampler.MaxAttempts},
		{"ARMRNG_SAMPLER_INTERVAL_MS", &c.Sampler.IntervalMs},
		{"ARMRNG_SANITY_ROUNDS", &c.Sanity.Rounds},
		{"ARMRNG_MONITOR_INTERVAL_SEC", &c.Monitor.IntervalSec},
	}
	for _, o := range ints {
		v := os.Getenv(o.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", o.env, err)
		}
		*o.dst = n
	}

	// Logging overrides
	if v := os.Getenv("ARMRNG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ARMRNG_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// NewSampler returns a sampler over src with the configured retry budget.
func (c *Config) NewSampler(src rndr.Source) *rndr.Sampler {
	return &rndr.Sampler{
		Source:      src,
		MaxAttempts: c.Sampler.MaxAttempts,
		Interval:    time.Duration(c.Sampler.IntervalMs) * time.Millisecond,
	}
}

// FastOptions returns harness options for RNDR.
func (c *Config) FastOptions() sanity.Options {
	return c.sanityOptions(c.Sanity.FastRetries)
}

// DirectOptions returns harness options for RNDRRS.
func (c *Config) DirectOptions() sanity.Options {
	return c.sanityOptions(c.Sanity.DirectRetries)
}

func (c *Config) sanityOptions(retries int) sanity.Options {
	return sanity.Options{
		Rounds:       c.Sanity.Rounds,
		BufferSize:   c.Sanity.BufferSize,
		TailSize:     c.Sanity.TailSize,
		MaxRetries:   retries,
		MaxZeroWords: c.Sanity.MaxZeroWords,
		MinFailures:  c.Sanity.MinFailures,
		HealthTests:  c.Sanity.HealthTests,
	}
}

// MonitorInterval returns the pause between monitor passes.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalSec) * time.Second
}

// LoggerConfig converts the logging section for logging.New.
func (c *Config) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Component = "rndrcheck"
	if c.Logging.Output != "" {
		lc.Output = c.Logging.Output
	}
	if c.Logging.FilePath != "" {
		lc.FilePath = c.Logging.FilePath
	}
	if c.Logging.MaxSizeMB > 0 {
		lc.MaxSizeMB = c.Logging.MaxSizeMB
	}
	if c.Logging.MaxBackups > 0 {
		lc.MaxBackups = c.Logging.MaxBackups
	}
	lc.Compress = c.Logging.Compress
	return lc, nil
}
