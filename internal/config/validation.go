package config

import (
	"fmt"
	"strings"

	"armrng/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig checks every section and returns all problems at once as
// ValidationErrors, or nil.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Version < 1 || c.Version > Version {
		add("version", "unsupported version %d (current: %d)", c.Version, Version)
	}

	// Sampler
	if c.Sampler.MaxAttempts < 1 {
		add("sampler.max_attempts", "must be at least 1, got %d", c.Sampler.MaxAttempts)
	}
	if c.Sampler.IntervalMs < 1 {
		add("sampler.interval_ms", "must be at least 1, got %d", c.Sampler.IntervalMs)
	}

	// Sanity
	s := c.Sanity
	if s.Rounds < 1 {
		add("sanity.rounds", "must be at least 1, got %d", s.Rounds)
	}
	if s.BufferSize < 1 {
		add("sanity.buffer_size", "must be at least 1, got %d", s.BufferSize)
	}
	if s.TailSize < 2 || s.TailSize > s.BufferSize {
		add("sanity.tail_size", "must be between 2 and buffer_size (%d), got %d", s.BufferSize, s.TailSize)
	}
	if s.MaxZeroWords < 0 {
		add("sanity.max_zero_words", "must not be negative, got %d", s.MaxZeroWords)
	}
	if s.MinFailures < 0 {
		add("sanity.min_failures", "must not be negative, got %d", s.MinFailures)
	}
	if s.FastRetries < 1 {
		add("sanity.fast_retries", "must be at least 1, got %d", s.FastRetries)
	}
	if s.DirectRetries < 1 {
		add("sanity.direct_retries", "must be at least 1, got %d", s.DirectRetries)
	}

	// Monitor
	if c.Monitor.IntervalSec < 1 {
		add("monitor.interval_sec", "must be at least 1, got %d", c.Monitor.IntervalSec)
	}

	// Logging
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		add("logging.format", "%v", err)
	}
	switch strings.ToLower(c.Logging.Output) {
	case "", "stdout", "stderr":
	case "file", "both":
		if c.Logging.FilePath == "" {
			add("logging.file_path", "required when output is %s", c.Logging.Output)
		}
	default:
		add("logging.output", "unknown output %q", c.Logging.Output)
	}
	if c.Logging.MaxSizeMB < 0 {
		add("logging.max_size_mb", "must not be negative, got %d", c.Logging.MaxSizeMB)
	}
	if c.Logging.MaxBackups < 0 {
		add("logging.max_backups", "must not be negative, got %d", c.Logging.MaxBackups)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
