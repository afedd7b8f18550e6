// Package config handles TOML and YAML configuration for tally.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultOutput is the workbook written when no output is configured.
const DefaultOutput = "aws_services_report.xlsx"

// Config is the root configuration structure.
type Config struct {
	AWS       AWSConfig       `toml:"aws" yaml:"aws"`
	Report    ReportConfig    `toml:"report" yaml:"report"`
	Collector CollectorConfig `toml:"collector" yaml:"collector"`
	OTEL      OTELConfig      `toml:"otel" yaml:"otel"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
	Log       LogConfig       `toml:"log" yaml:"log"`
}

// AWSConfig holds AWS session settings. Empty values defer to the SDK's
// own environment and shared config resolution.
type AWSConfig struct {
	Region  string `toml:"region" yaml:"region"`
	Profile string `toml:"profile" yaml:"profile"`
}

// ReportConfig holds workbook settings.
type ReportConfig struct {
	Output     string   `toml:"output" yaml:"output"`
	Summary    *bool    `toml:"summary" yaml:"summary"`
	Categories []string `toml:"categories" yaml:"categories"`
	Exclude    []string `toml:"exclude" yaml:"exclude"`
}

// SummaryEnabled reports whether the summary sheet is written.
func (r ReportConfig) SummaryEnabled() bool {
	return r.Summary == nil || *r.Summary
}

// CollectorConfig holds per-category timeout and retry settings.
type CollectorConfig struct {
	TimeoutStr        string        `toml:"timeout" yaml:"timeout"`
	Timeout           time.Duration `toml:"-" yaml:"-"`
	MaxAttempts       uint          `toml:"max_attempts" yaml:"max_attempts"`
	InitialBackoffStr string        `toml:"initial_backoff" yaml:"initial_backoff"`
	InitialBackoff    time.Duration `toml:"-" yaml:"-"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string       `toml:"endpoint" yaml:"endpoint"`
	Insecure    bool         `toml:"insecure" yaml:"insecure"`
	ServiceName string       `toml:"service_name" yaml:"service_name"`
	Traces      TracesConfig `toml:"traces" yaml:"traces"`
	Metrics     OTLPMetrics  `toml:"metrics" yaml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled" yaml:"enabled"`
	SampleRate float64 `toml:"sample_rate" yaml:"sample_rate"`
}

// OTLPMetrics holds OTLP metrics export settings.
type OTLPMetrics struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
}

// MetricsConfig holds the Prometheus text-file output.
type MetricsConfig struct {
	Textfile string `toml:"textfile" yaml:"textfile"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	_ = parseDurations(cfg)
	return cfg
}

// Load reads and parses a config file. ".yaml" and ".yml" files are read as
// YAML, anything else as TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Report.Output == "" {
		cfg.Report.Output = DefaultOutput
	}
	if cfg.Collector.TimeoutStr == "" {
		cfg.Collector.TimeoutStr = "2m"
	}
	if cfg.Collector.MaxAttempts == 0 {
		cfg.Collector.MaxAttempts = 3
	}
	if cfg.Collector.InitialBackoffStr == "" {
		cfg.Collector.InitialBackoffStr = "500ms"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "tally"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func parseDurations(cfg *Config) error {
	d, err := time.ParseDuration(cfg.Collector.TimeoutStr)
	if err != nil {
		return fmt.Errorf("parse timeout %q: %w", cfg.Collector.TimeoutStr, err)
	}
	cfg.Collector.Timeout = d

	d, err = time.ParseDuration(cfg.Collector.InitialBackoffStr)
	if err != nil {
		return fmt.Errorf("parse initial_backoff %q: %w", cfg.Collector.InitialBackoffStr, err)
	}
	cfg.Collector.InitialBackoff = d
	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if c.Collector.Timeout <= 0 {
		return fmt.Errorf("collector: timeout must be positive (got %v)", c.Collector.Timeout)
	}
	if c.Collector.MaxAttempts > 10 {
		return fmt.Errorf("collector: max_attempts must be at most 10 (got %d)", c.Collector.MaxAttempts)
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if strings.TrimSpace(c.Report.Output) == "" {
		return fmt.Errorf("report: output path required")
	}
	return nil
}
