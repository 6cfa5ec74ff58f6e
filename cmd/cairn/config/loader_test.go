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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// TestLoad_FirstRunCreatesDefault verifies default config creation.
func TestLoad_FirstRunCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ".cairn", "cairn.yaml")

	var notice bytes.Buffer
	cfg, err := Load(configPath, &notice)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !strings.Contains(notice.String(), "First run detected") {
		t.Errorf("notice = %q, want first run message", notice.String())
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config mode = %o, want 600", perm)
	}

	if cfg.Server.Port != 12310 {
		t.Errorf("Server.Port = %d, want 12310", cfg.Server.Port)
	}
	if cfg.Store.Backend != "badger" {
		t.Errorf("Store.Backend = %q, want badger", cfg.Store.Backend)
	}
	if want := filepath.Join(dir, ".cairn", "data"); cfg.Store.Path != want {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, want)
	}
	if len(cfg.Auth.JWTSecret) != 64 {
		t.Errorf("JWTSecret length = %d, want 64", len(cfg.Auth.JWTSecret))
	}
	if cfg.Auth.TokenTTL != 7*24*time.Hour {
		t.Errorf("TokenTTL = %v, want 168h", cfg.Auth.TokenTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

// TestLoad_SecondRunKeepsSecret verifies the generated secret is persisted.
func TestLoad_SecondRunKeepsSecret(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "cairn.yaml")

	first, err := Load(configPath, nil)
	if err != nil {
		t.Fatalf("first Load() failed: %v", err)
	}
	var notice bytes.Buffer
	second, err := Load(configPath, &notice)
	if err != nil {
		t.Fatalf("second Load() failed: %v", err)
	}
	if first.Auth.JWTSecret != second.Auth.JWTSecret {
		t.Error("secret changed between runs")
	}
	if notice.Len() != 0 {
		t.Errorf("unexpected notice on second run: %q", notice.String())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "cairn.yaml")
	t.Setenv("CAIRN_PORT", "9999")
	t.Setenv("CAIRN_STORE_BACKEND", "sqlite")
	t.Setenv("CAIRN_STORE_PATH", "~/cairn.db")
	t.Setenv("CAIRN_LOG_LEVEL", "debug")
	t.Setenv("CAIRN_TOKEN_TTL", "2h")
	t.Setenv("CAIRN_CASCADE_DELETES", "true")
	t.Setenv("CAIRN_OTEL_ENDPOINT", "localhost:4317")

	cfg, err := Load(configPath, nil)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	home, _ := os.UserHomeDir()

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Store.Backend = %q, want sqlite", cfg.Store.Backend)
	}
	if want := filepath.Join(home, "cairn.db"); cfg.Store.Path != want {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, want)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("TokenTTL = %v, want 2h", cfg.Auth.TokenTTL)
	}
	if !cfg.Tracker.CascadeDeletes {
		t.Error("CascadeDeletes should be true")
	}
	if cfg.Observability.OTelEndpoint != "localhost:4317" {
		t.Errorf("OTelEndpoint = %q", cfg.Observability.OTelEndpoint)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "cairn.yaml")
	if err := os.WriteFile(configPath, []byte("server: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(configPath, nil); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "cairn.yaml")
	t.Setenv("CAIRN_PORT", "not-a-number")
	if _, err := Load(configPath, nil); err == nil {
		t.Fatal("expected an env parse error")
	}
}

func TestDefaultConfig_RoundTripsThroughYAML(t *testing.T) {
	cfg, err := DefaultConfig("/srv/cairn")
	if err != nil {
		t.Fatal(err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "token_ttl: 168h0m0s") {
		t.Errorf("token_ttl not written as a duration:\n%s", data)
	}
	var back CairnConfig
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, cfg)
	}
}

func TestValidate(t *testing.T) {
	valid, err := DefaultConfig(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*CairnConfig)
		want   string
	}{
		{"port", func(c *CairnConfig) { c.Server.Port = 70000 }, "server.port"},
		{"backend", func(c *CairnConfig) { c.Store.Backend = "mongo" }, "store.backend"},
		{"sqlite path", func(c *CairnConfig) { c.Store.Backend = "sqlite"; c.Store.Path = "" }, "store.path"},
		{"secret", func(c *CairnConfig) { c.Auth.JWTSecret = "short" }, "jwt_secret"},
		{"level", func(c *CairnConfig) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/data"); got != filepath.Join(home, "data") {
		t.Errorf("expandHome(~/data) = %q", got)
	}
	if got := expandHome("~other/data"); got != "~other/data" {
		t.Errorf("expandHome(~other/data) = %q", got)
	}
	if got := expandHome("/abs"); got != "/abs" {
		t.Errorf("expandHome(/abs) = %q", got)
	}
}
