// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the rewind CLI configuration from
// ~/.rewind/rewind.yaml, creating the file with defaults on first run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// CurrentConfigVersion is written into new config files. Loaders accept
// older files; unknown keys are ignored.
const CurrentConfigVersion = "1.0.0"

// ErrInvalidConfig wraps validation failures of a loaded config file.
var ErrInvalidConfig = errors.New("invalid configuration")

// validate is the validator instance for config types.
// Initialized in init() with custom validators.
var validate *validator.Validate

func init() {
	validate = validator.New()

	// "duration" accepts anything time.ParseDuration does ("90s", "5m", "1h").
	_ = validate.RegisterValidation("duration", validateDuration)
}

func validateDuration(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// RewindConfig is the root of ~/.rewind/rewind.yaml.
type RewindConfig struct {
	// Meta tracks the config file format.
	Meta MetaConfig `yaml:"meta"`

	// Store configures the durable snapshot store.
	Store StoreConfig `yaml:"store"`

	// Ingest configures the directory scanner.
	Ingest IngestConfig `yaml:"ingest"`

	// Session configures session defaults.
	Session SessionConfig `yaml:"session"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`

	// Observability configures traces and metrics. Off by default.
	Observability ObservabilityConfig `yaml:"observability"`

	// UX configures terminal output.
	UX UXConfig `yaml:"ux"`
}

type MetaConfig struct {
	Version string `yaml:"version"`
}

type StoreConfig struct {
	// Path is the store directory. Required unless InMemory. Supports ~.
	Path string `yaml:"path" validate:"required_without=InMemory"`

	// InMemory keeps everything in memory; data is lost on exit.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites fsyncs every commit.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is the background value-log GC period ("5m"). Empty
	// disables the runner.
	GCInterval string `yaml:"gc_interval" validate:"omitempty,duration"`

	// GCDiscardRatio is the minimum discardable fraction before a GC
	// cycle rewrites a value-log file.
	GCDiscardRatio float64 `yaml:"gc_discard_ratio" validate:"gte=0,lte=1"`

	// CacheMaxEntries bounds the in-memory cache. 0 uses the built-in
	// default.
	CacheMaxEntries int `yaml:"cache_max_entries" validate:"gte=0"`

	// CacheTTL is the in-memory cache entry lifetime ("1h"). Empty uses
	// the built-in default.
	CacheTTL string `yaml:"cache_ttl" validate:"omitempty,duration"`
}

// GCIntervalDuration returns the parsed gc_interval, or def when unset.
func (s StoreConfig) GCIntervalDuration(def time.Duration) time.Duration {
	return parseDurationOr(s.GCInterval, def)
}

// CacheTTLDuration returns the parsed cache_ttl, or def when unset.
func (s StoreConfig) CacheTTLDuration(def time.Duration) time.Duration {
	return parseDurationOr(s.CacheTTL, def)
}

type IngestConfig struct {
	// MaxFileBytes skips files larger than this during directory scans.
	// 0 disables the limit.
	MaxFileBytes int64 `yaml:"max_file_bytes" validate:"gte=0"`

	// Ignore lists path names and glob patterns excluded from scans.
	Ignore []string `yaml:"ignore"`

	// IncludeHidden scans dot-files and dot-directories too.
	IncludeHidden bool `yaml:"include_hidden"`
}

type SessionConfig struct {
	// Default is the session used when --session and REWIND_SESSION are
	// both unset.
	Default string `yaml:"default,omitempty"`

	// MaxReplayDepth bounds snapshot reconstruction walks. 0 uses the
	// built-in default; -1 disables replay.
	MaxReplayDepth int `yaml:"max_replay_depth" validate:"gte=-1,lte=1024"`
}

type LoggingConfig struct {
	// Level is the minimum emitted level.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Dir enables JSON file logging when set. Supports ~.
	Dir string `yaml:"dir,omitempty"`

	// JSON switches stderr logging from text to JSON.
	JSON bool `yaml:"json"`
}

type ObservabilityConfig struct {
	// Enabled turns on trace and metric export.
	Enabled bool `yaml:"enabled"`

	TraceExporter  string  `yaml:"trace_exporter" validate:"omitempty,oneof=otlp jaeger stdout none"`
	MetricExporter string  `yaml:"metric_exporter" validate:"omitempty,oneof=prometheus stdout none"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint,omitempty"`
	OTLPInsecure   bool    `yaml:"otlp_insecure"`
	PrometheusPort int     `yaml:"prometheus_port" validate:"gte=0,lte=65535"`
	SampleRate     float64 `yaml:"sample_rate" validate:"gte=0,lte=1"`
}

type UXConfig struct {
	// Personality overrides terminal output style
	// (full/standard/minimal/machine). Empty auto-detects.
	Personality string `yaml:"personality" validate:"omitempty,oneof=full standard minimal machine"`

	// ShowTips prints occasional usage hints.
	ShowTips bool `yaml:"show_tips"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() RewindConfig {
	storePath := filepath.Join(".rewind", "store")
	if home, err := os.UserHomeDir(); err == nil {
		storePath = filepath.Join(home, ".rewind", "store")
	}

	return RewindConfig{
		Meta: MetaConfig{Version: CurrentConfigVersion},
		Store: StoreConfig{
			Path:           storePath,
			SyncWrites:     true,
			GCInterval:     "5m",
			GCDiscardRatio: 0.5,
		},
		Ingest: IngestConfig{
			MaxFileBytes: 10 << 20,
			Ignore: []string{
				".git", "node_modules", "__pycache__", ".venv", "vendor",
				"*.pyc", "*.log", "*.tmp", "*.swp",
			},
		},
		Session: SessionConfig{
			MaxReplayDepth: 32,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Observability: ObservabilityConfig{
			Enabled:        false,
			TraceExporter:  "otlp",
			MetricExporter: "prometheus",
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
			PrometheusPort: 9090,
			SampleRate:     1.0,
		},
		UX: UXConfig{
			ShowTips: true,
		},
	}
}

// Validate checks the config against its struct tags.
func (c *RewindConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// ExpandPath resolves a leading ~ against the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
