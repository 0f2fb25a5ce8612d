package config

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem found joined into one error.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.ResultsDir == "" {
		errs = append(errs, ValidationError{Field: "results", Message: "must not be empty"})
	}
	if cfg.BinDir == "" {
		errs = append(errs, ValidationError{Field: "bin_dir", Message: "must not be empty"})
	}

	// Ports
	for _, p := range []struct {
		field string
		port  int
	}{
		{"origin_port", cfg.OriginPort},
		{"proxy_port", cfg.ProxyPort},
	} {
		if p.port < 1 || p.port > 65535 {
			errs = append(errs, ValidationError{
				Field:   p.field,
				Message: fmt.Sprintf("must be between 1 and 65535 (got %d)", p.port),
			})
		}
	}
	if cfg.OriginPort == cfg.ProxyPort {
		errs = append(errs, ValidationError{
			Field:   "proxy_port",
			Message: fmt.Sprintf("must differ from origin_port (both %d)", cfg.ProxyPort),
		})
	}

	// Tools
	if cfg.CurlPath == "" {
		errs = append(errs, ValidationError{Field: "curl", Message: "must not be empty"})
	}
	if cfg.OhaPath == "" {
		errs = append(errs, ValidationError{Field: "oha", Message: "must not be empty"})
	}

	// Load test
	if cfg.Concurrency < 1 {
		errs = append(errs, ValidationError{Field: "concurrency", Message: "must be at least 1"})
	}
	if cfg.LoadDuration <= 0 {
		errs = append(errs, ValidationError{Field: "load_duration", Message: "must be positive"})
	} else if cfg.LoadDuration%time.Millisecond != 0 {
		errs = append(errs, ValidationError{
			Field:   "load_duration",
			Message: fmt.Sprintf("must be a whole number of milliseconds (got %v)", cfg.LoadDuration),
		})
	}

	validPhases := map[string]bool{"both": true, "no-keepalive": true}
	if !validPhases[cfg.Phases] {
		errs = append(errs, ValidationError{
			Field:   "phases",
			Message: fmt.Sprintf("must be 'both' or 'no-keepalive' (got %q)", cfg.Phases),
		})
	}

	// Readiness
	validReadiness := map[string]bool{"poll": true, "sleep": true}
	if !validReadiness[cfg.Readiness] {
		errs = append(errs, ValidationError{
			Field:   "readiness",
			Message: fmt.Sprintf("must be 'poll' or 'sleep' (got %q)", cfg.Readiness),
		})
	}
	if cfg.Warmup < 0 {
		errs = append(errs, ValidationError{Field: "warmup", Message: "must not be negative"})
	}
	if cfg.Settle < 0 {
		errs = append(errs, ValidationError{Field: "settle", Message: "must not be negative"})
	}
	if cfg.ReadyTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "ready_timeout", Message: "must be positive"})
	}

	// Failure handling
	validPolicies := map[string]bool{"record": true, "fail": true}
	if !validPolicies[cfg.ToolFailurePolicy] {
		errs = append(errs, ValidationError{
			Field:   "tool_failure_policy",
			Message: fmt.Sprintf("must be 'record' or 'fail' (got %q)", cfg.ToolFailurePolicy),
		})
	}
	if cfg.TerminateTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "terminate_timeout", Message: "must be positive"})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
