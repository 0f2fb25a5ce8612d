package config

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"
)

func TestStringList_Set(t *testing.T) {
	var s stringList

	if err := s.Set("origin-hyper"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := s.Set("proxy-hyper, proxy-actix,"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	want := "origin-hyper,proxy-hyper,proxy-actix"
	if got := s.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFlagType(t *testing.T) {
	testCases := []struct {
		name     string
		defValue string
		expected string
	}{
		{"bool true", "true", ""},
		{"bool false", "false", ""},
		{"int", "3000", "int"},
		{"string", "results", "string"},
		{"path", "target/release", "string"},
		{"duration seconds", "15s", "duration"},
		{"duration minutes", "1m0s", "duration"},
		{"empty", "", "string"},
		{"zero", "0", "int"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &flag.Flag{DefValue: tc.defValue}
			if got := flagType(f); got != tc.expected {
				t.Errorf("flagType(%q) = %q, want %q", tc.defValue, got, tc.expected)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.OriginPort != 3000 || cfg.ProxyPort != 3001 {
		t.Errorf("ports = %d/%d, want 3000/3001", cfg.OriginPort, cfg.ProxyPort)
	}
	if cfg.Concurrency != 100 {
		t.Errorf("Concurrency = %d, want 100", cfg.Concurrency)
	}
	if cfg.LoadDuration != 15*time.Second {
		t.Errorf("LoadDuration = %v, want 15s", cfg.LoadDuration)
	}
	if cfg.Phases != "both" {
		t.Errorf("Phases = %q, want both", cfg.Phases)
	}
	if cfg.ToolFailurePolicy != "record" {
		t.Errorf("ToolFailurePolicy = %q, want record", cfg.ToolFailurePolicy)
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want disabled", cfg.MetricsAddr)
	}
	if cfg.BinDir != "target/release" || cfg.ResultsDir != "results" {
		t.Errorf("dirs = %q, %q", cfg.BinDir, cfg.ResultsDir)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() does not validate: %v", err)
	}
}

func TestParseArgs(t *testing.T) {
	var out bytes.Buffer
	cfg, err := ParseArgs([]string{
		"-only", "origin-hyper,proxy-hyper",
		"-only", "origin-nginx",
		"-load-duration", "5s",
		"-phases", "no-keepalive",
		"-tool-failure-policy", "fail",
		"--print-cmd",
		"-tui",
	}, &out)
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}

	if strings.Join(cfg.Only, ",") != "origin-hyper,proxy-hyper,origin-nginx" {
		t.Errorf("Only = %v", cfg.Only)
	}
	if cfg.LoadDuration != 5*time.Second || cfg.Phases != "no-keepalive" {
		t.Errorf("load = %v %q", cfg.LoadDuration, cfg.Phases)
	}
	if cfg.ToolFailurePolicy != "fail" || !cfg.PrintCmd || !cfg.TUIEnabled {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestParseArgs_Errors(t *testing.T) {
	var out bytes.Buffer
	if _, err := ParseArgs([]string{"http://localhost:3000"}, &out); err == nil {
		t.Error("positional argument accepted")
	}
	if _, err := ParseArgs([]string{"-no-such-flag"}, &out); err == nil {
		t.Error("unknown flag accepted")
	}
}

func TestParseArgs_Usage(t *testing.T) {
	var out bytes.Buffer
	_, err := ParseArgs([]string{"-h"}, &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("ParseArgs(-h) error = %v, want flag.ErrHelp", err)
	}
	usage := out.String()
	for _, want := range []string{"Batch Flags:", "-tool-failure-policy", "(default record)", "-results string"} {
		if !strings.Contains(usage, want) {
			t.Errorf("usage missing %q", want)
		}
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"origin port zero", func(c *Config) { c.OriginPort = 0 }, "origin_port"},
		{"proxy port too high", func(c *Config) { c.ProxyPort = 70000 }, "proxy_port"},
		{"same ports", func(c *Config) { c.ProxyPort = c.OriginPort }, "proxy_port"},
		{"no concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
		{"no load duration", func(c *Config) { c.LoadDuration = 0 }, "load_duration"},
		{"sub-millisecond duration", func(c *Config) { c.LoadDuration = 1500 * time.Microsecond }, "load_duration"},
		{"bad phases", func(c *Config) { c.Phases = "keepalive" }, "phases"},
		{"bad readiness", func(c *Config) { c.Readiness = "wait" }, "readiness"},
		{"negative warmup", func(c *Config) { c.Warmup = -time.Second }, "warmup"},
		{"negative settle", func(c *Config) { c.Settle = -time.Second }, "settle"},
		{"zero ready timeout", func(c *Config) { c.ReadyTimeout = 0 }, "ready_timeout"},
		{"bad policy", func(c *Config) { c.ToolFailurePolicy = "ignore" }, "tool_failure_policy"},
		{"zero terminate timeout", func(c *Config) { c.TerminateTimeout = 0 }, "terminate_timeout"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"empty results", func(c *Config) { c.ResultsDir = "" }, "results"},
		{"empty curl", func(c *Config) { c.CurlPath = "" }, "curl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.field+":") {
				t.Errorf("Validate() = %v, want field %s", err, tt.field)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Concurrency = 0
	cfg.Phases = "x"
	cfg.LogFormat = "y"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	for _, field := range []string{"concurrency", "phases", "log_format"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("combined error missing %s: %v", field, err)
		}
	}

	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Error("errors.As(ValidationError) failed on joined error")
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "phases", Message: "must be 'both' or 'no-keepalive'"}
	if got := err.Error(); got != "phases: must be 'both' or 'no-keepalive'" {
		t.Errorf("Error() = %q", got)
	}
}
