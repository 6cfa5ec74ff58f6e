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
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/cairn/pkg/logging"
)

// CairnConfig is the on-disk configuration. Every field can be overridden
// by the environment variable in its env tag.
type CairnConfig struct {
	Server        ServerConfig        `yaml:"server"`
	Store         StoreConfig         `yaml:"store"`
	Auth          AuthConfig          `yaml:"auth"`
	Tracker       TrackerConfig       `yaml:"tracker"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Port    int    `yaml:"port" env:"CAIRN_PORT"`
	GinMode string `yaml:"gin_mode" env:"CAIRN_GIN_MODE"` // debug, release or test
}

type StoreConfig struct {
	// Backend is "badger" or "sqlite".
	Backend string `yaml:"backend" env:"CAIRN_STORE_BACKEND"`
	// Path is a directory for badger, a file for sqlite. Supports ~.
	Path string `yaml:"path" env:"CAIRN_STORE_PATH"`
}

type AuthConfig struct {
	// JWTSecret is generated on first run. Keep it private.
	JWTSecret     string        `yaml:"jwt_secret" env:"CAIRN_JWT_SECRET"`
	TokenTTL      time.Duration `yaml:"token_ttl" env:"CAIRN_TOKEN_TTL"`
	RatePerMinute int           `yaml:"rate_per_minute" env:"CAIRN_AUTH_RATE_PER_MINUTE"`
	Burst         int           `yaml:"burst" env:"CAIRN_AUTH_BURST"`
}

type TrackerConfig struct {
	CascadeDeletes   bool `yaml:"cascade_deletes" env:"CAIRN_CASCADE_DELETES"`
	SweepConcurrency int  `yaml:"sweep_concurrency" env:"CAIRN_SWEEP_CONCURRENCY"`
}

type LoggingConfig struct {
	Level string `yaml:"level" env:"CAIRN_LOG_LEVEL"`
	Dir   string `yaml:"dir,omitempty" env:"CAIRN_LOG_DIR"`
	JSON  bool   `yaml:"json" env:"CAIRN_LOG_JSON"`
}

type ObservabilityConfig struct {
	// OTelEndpoint is an OTLP gRPC collector address. Empty disables tracing.
	OTelEndpoint string `yaml:"otel_endpoint,omitempty" env:"CAIRN_OTEL_ENDPOINT"`
	// AuditLogPath enables the hash-chained audit log. Supports ~.
	AuditLogPath string `yaml:"audit_log_path,omitempty" env:"CAIRN_AUDIT_LOG"`
}

// DefaultConfig returns the configuration written on first run, with data
// kept under dir.
func DefaultConfig(dir string) (CairnConfig, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return CairnConfig{}, err
	}
	return CairnConfig{
		Server: ServerConfig{Port: 12310, GinMode: "release"},
		Store: StoreConfig{
			Backend: "badger",
			Path:    filepath.Join(dir, "data"),
		},
		Auth: AuthConfig{
			JWTSecret:     secret,
			TokenTTL:      7 * 24 * time.Hour,
			RatePerMinute: 10,
			Burst:         5,
		},
		Tracker: TrackerConfig{SweepConcurrency: 4},
		Logging: LoggingConfig{Level: "info"},
	}, nil
}

// GenerateSecret returns 32 random bytes, hex encoded.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Validate checks the values the service cannot default.
func (c CairnConfig) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Store.Backend) {
	case "", "badger":
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q must be badger or sqlite", c.Store.Backend))
	}
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 characters"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	return errors.Join(errs...)
}
