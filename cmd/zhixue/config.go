// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/zhixueban/zhixue-cli/pkg/logging"
)

// =============================================================================
// Configuration
// =============================================================================

// Config is the CLI configuration, read from ~/.zhixueban/config.yaml.
type Config struct {
	// BackendURL is the Zhixueban backend base URL.
	BackendURL string `yaml:"backend_url" validate:"required,url"`

	// UserID identifies the logged-in learner. Empty runs the CLI in
	// guest mode: conversations are kept in the local store instead of
	// the backend.
	UserID string `yaml:"user_id,omitempty"`

	// Provider is the default AI provider for new questions. Empty
	// lets the backend choose.
	Provider string `yaml:"provider,omitempty"`

	// DataDir holds the local conversation store. Supports ~.
	DataDir string `yaml:"data_dir,omitempty"`

	// LogDir enables file logging when set. Supports ~.
	LogDir string `yaml:"log_dir,omitempty"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn warning error"`

	// Output forces the terminal style: rich, plain or machine.
	// Empty auto-detects from the terminal.
	Output string `yaml:"output,omitempty" validate:"omitempty,oneof=rich plain machine"`
}

// DefaultConfig returns the configuration used before `zhixue init`
// has run.
func DefaultConfig() Config {
	return Config{
		BackendURL: "http://localhost:8000",
		DataDir:    "~/.zhixueban/data",
		LogDir:     "~/.zhixueban/logs",
		LogLevel:   "info",
	}
}

// DefaultConfigPath returns ~/.zhixueban/config.yaml.
func DefaultConfigPath() string {
	return logging.ExpandPath("~/.zhixueban/config.yaml")
}

// LoadConfig reads and validates the configuration file. A missing
// file yields DefaultConfig so the CLI works out of the box against a
// local dev server.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := validateConfig(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration, creating the directory if
// needed.
func SaveConfig(path string, cfg Config) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// validateConfig runs struct validation with readable error text.
func validateConfig(cfg Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) && len(invalid) > 0 {
			field := invalid[0]
			return fmt.Errorf("field %s fails %q validation", field.Field(), field.Tag())
		}
		return err
	}
	return nil
}
