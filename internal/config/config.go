// Package config provides configuration management for http-bench-driver.
package config

import "time"

// Config holds all configuration options for the driver.
type Config struct {
	// Batch
	BatchFile  string   `json:"batch_file"` // empty = compiled-in batch
	Only       []string `json:"only"`       // run only these variants
	ResultsDir string   `json:"results_dir"`
	BinDir     string   `json:"bin_dir"`

	// Ports
	OriginPort int `json:"origin_port"`
	ProxyPort  int `json:"proxy_port"`

	// Tools
	CurlPath  string `json:"curl_path"`
	OhaPath   string `json:"oha_path"`
	NginxPath string `json:"nginx_path"`
	ShellPath string `json:"shell_path"`

	// Load test
	Concurrency       int           `json:"concurrency"`
	LoadDuration      time.Duration `json:"load_duration"`
	LatencyCorrection bool          `json:"latency_correction"`
	Phases            string        `json:"phases"` // both, no-keepalive

	// Readiness
	Readiness    string        `json:"readiness"` // poll, sleep
	Warmup       time.Duration `json:"warmup"`
	Settle       time.Duration `json:"settle"`
	ReadyTimeout time.Duration `json:"ready_timeout"`

	// Failure handling
	ToolFailurePolicy string        `json:"tool_failure_policy"` // record, fail
	TerminateTimeout  time.Duration `json:"terminate_timeout"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // empty = disabled
	TUIEnabled  bool   `json:"tui_enabled"`
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`  // debug, info, warn, error

	// Diagnostic modes
	PrintCmd      bool `json:"print_cmd"`
	SkipPreflight bool `json:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Batch
		ResultsDir: "results",
		BinDir:     "target/release",

		// Ports
		OriginPort: 3000,
		ProxyPort:  3001,

		// Tools
		CurlPath:  "curl",
		OhaPath:   "oha",
		NginxPath: "/usr/sbin/nginx",
		ShellPath: "/bin/sh",

		// Load test
		Concurrency:       100,
		LoadDuration:      15 * time.Second,
		LatencyCorrection: true,
		Phases:            "both",

		// Readiness
		Readiness:    "poll",
		Warmup:       2 * time.Second,
		Settle:       time.Second,
		ReadyTimeout: 10 * time.Second,

		// Failure handling
		ToolFailurePolicy: "record",
		TerminateTimeout:  10 * time.Second,

		// Observability
		LogFormat: "json",
		LogLevel:  "info",
	}
}
