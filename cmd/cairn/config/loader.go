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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultPath returns ~/.cairn/cairn.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".cairn", "cairn.yaml"), nil
}

// Load reads the config at path, creating it with defaults on first run,
// then applies environment overrides.
//
// # Inputs
//
//   - path: Config file. Its directory also holds the default data dir.
//   - notice: Receives the first-run message. May be nil.
//
// # Outputs
//
//   - CairnConfig: Parsed and overridden, with ~ expanded in paths.
//   - error: Read, parse or environment errors.
func Load(path string, notice io.Writer) (CairnConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if notice != nil {
			fmt.Fprintf(notice, "First run detected, creating the config at %s\n", path)
		}
		if err := createDefault(path); err != nil {
			return CairnConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return CairnConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	var cfg CairnConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return CairnConfig{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if err := env.Parse(&cfg); err != nil {
		return CairnConfig{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Logging.Dir = expandHome(cfg.Logging.Dir)
	cfg.Observability.AuditLogPath = expandHome(cfg.Observability.AuditLogPath)
	return cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	defaultCfg, err := DefaultConfig(dir)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(defaultCfg)
	if err != nil {
		return err
	}
	// 0600: the file holds the signing secret
	return os.WriteFile(path, data, 0600)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
