// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// Global is the loaded configuration. Populated by Load.
	Global RewindConfig

	once sync.Once
)

// Load reads the config file into Global, creating it with defaults on
// first run. Safe to call from every command; the file is read once.
//
// Resolution order for each setting: defaults, then the config file,
// then REWIND_* environment variables.
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal()
	})
	return err
}

// Path returns the config file location. REWIND_CONFIG overrides the
// default of ~/.rewind/rewind.yaml.
func Path() (string, error) {
	if p := os.Getenv("REWIND_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".rewind", "rewind.yaml"), nil
}

func loadInternal() error {
	configPath, err := Path()
	if err != nil {
		return err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf("First run detected, creating the config at %s\n", configPath)
		if err := createDefault(configPath); err != nil {
			return fmt.Errorf("failed to create default config: %w", err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Start from defaults so a partial file keeps sane values for
	// everything it omits.
	Global = DefaultConfig()
	if err := yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	applyEnvOverrides(&Global)

	if err := Global.Validate(); err != nil {
		return fmt.Errorf("config file %s: %w", configPath, err)
	}
	return nil
}

func createDefault(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	cfg := DefaultConfig()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}
	return nil
}

// applyEnvOverrides layers REWIND_* environment variables over cfg.
func applyEnvOverrides(cfg *RewindConfig) {
	if v := os.Getenv("REWIND_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("REWIND_SESSION"); v != "" {
		cfg.Session.Default = v
	}
	if v := os.Getenv("REWIND_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REWIND_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := os.Getenv("REWIND_OBSERVABILITY"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Observability.Enabled = enabled
		}
	}
	if v := os.Getenv("REWIND_OTLP_ENDPOINT"); v != "" {
		cfg.Observability.OTLPEndpoint = v
	}
}
