// Package config loads and validates freetext engine configuration.
//
// Configuration hierarchy:
//  1. Hardcoded defaults (DefaultConfig)
//  2. YAML config file (optional)
//  3. Environment variables (EQUELLA_FREETEXT_*)
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Pipeline names accepted in the per-field table.
const (
	PipelineNormal       = "normal"
	PipelineNonStemmed   = "non_stemmed"
	PipelineAutocomplete = "autocomplete"
)

// Config is the complete freetext engine configuration.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IndexConfig configures the on-disk index location.
type IndexConfig struct {
	// Path is the storage location for the index directory.
	Path string `yaml:"path"`
}

// AnalyzerConfig configures text-analysis pipelines.
type AnalyzerConfig struct {
	// Language is the analyzer language code (default "en").
	Language string `yaml:"language"`

	// StopWordsPath optionally points to a stopword list file
	// (one word per line, '#' starts a comment).
	StopWordsPath string `yaml:"stop_words_path"`

	// Fields maps field names to pipelines: normal, non_stemmed, autocomplete.
	// Unlisted fields use the normal pipeline.
	Fields map[string]string `yaml:"fields"`
}

// SchedulerConfig configures the background reopen and commit tasks.
type SchedulerConfig struct {
	// ReopenTarget is how soon a snapshot should reflect new writes (default 5s).
	ReopenTarget time.Duration `yaml:"reopen_target"`

	// ReopenFloor is the minimum interval between consecutive reopens
	// (default 100ms).
	ReopenFloor time.Duration `yaml:"reopen_floor"`

	// CommitInterval is the period between durable flushes (default 5m).
	CommitInterval time.Duration `yaml:"commit_interval"`
}

// LoggingConfig configures engine logging.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// DefaultConfig returns the hardcoded defaults.
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Path: ".equella/freetext",
		},
		Analyzer: AnalyzerConfig{
			Language: "en",
		},
		Scheduler: SchedulerConfig{
			ReopenTarget:   5 * time.Second,
			ReopenFloor:    100 * time.Millisecond,
			CommitInterval: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given YAML file, applying defaults and
// environment overrides. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies EQUELLA_FREETEXT_* environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("EQUELLA_FREETEXT_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("EQUELLA_FREETEXT_LANGUAGE"); v != "" {
		c.Analyzer.Language = v
	}
	if v := os.Getenv("EQUELLA_FREETEXT_STOP_WORDS"); v != "" {
		c.Analyzer.StopWordsPath = v
	}
	if v := os.Getenv("EQUELLA_FREETEXT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EQUELLA_FREETEXT_REOPEN_TARGET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scheduler.ReopenTarget = d
		}
	}
	if v := os.Getenv("EQUELLA_FREETEXT_REOPEN_FLOOR"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scheduler.ReopenFloor = d
		}
	}
	if v := os.Getenv("EQUELLA_FREETEXT_COMMIT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scheduler.CommitInterval = d
		}
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Index.Path == "" {
		return fmt.Errorf("index.path must not be empty")
	}
	if c.Scheduler.ReopenTarget <= 0 {
		return fmt.Errorf("scheduler.reopen_target must be positive, got %s", c.Scheduler.ReopenTarget)
	}
	if c.Scheduler.ReopenFloor <= 0 {
		return fmt.Errorf("scheduler.reopen_floor must be positive, got %s", c.Scheduler.ReopenFloor)
	}
	if c.Scheduler.ReopenFloor > c.Scheduler.ReopenTarget {
		return fmt.Errorf("scheduler.reopen_floor %s exceeds reopen_target %s",
			c.Scheduler.ReopenFloor, c.Scheduler.ReopenTarget)
	}
	if c.Scheduler.CommitInterval <= 0 {
		return fmt.Errorf("scheduler.commit_interval must be positive, got %s", c.Scheduler.CommitInterval)
	}
	for field, pipeline := range c.Analyzer.Fields {
		switch pipeline {
		case PipelineNormal, PipelineNonStemmed, PipelineAutocomplete:
		default:
			return fmt.Errorf("analyzer.fields[%s]: unknown pipeline %q", field, pipeline)
		}
	}
	return nil
}
