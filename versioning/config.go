// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package versioning

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config configures the versioning engine.
//
// Description:
//
//	Contains all settings for ledger storage, snapshot cadence,
//	state resolution caching and history retention.
type Config struct {
	// DataDir is the directory for BadgerDB files.
	// Required for persistent mode.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// InMemory uses an in-memory ledger (for testing).
	// Default: false.
	InMemory bool `json:"in_memory" yaml:"in_memory"`

	// SyncWrites enables synchronous writes for durability.
	// Commits are not acknowledged until fsynced. Default: true.
	SyncWrites bool `json:"sync_writes" yaml:"sync_writes"`

	// DefaultBranch is the branch created on first open and used when
	// callers pass an empty branch name. Default: "main".
	DefaultBranch string `json:"default_branch" yaml:"default_branch"`

	// SnapshotEvery creates an automatic snapshot after this many commits
	// on a branch. 0 disables automatic snapshots. Default: 20.
	SnapshotEvery int `json:"snapshot_every" yaml:"snapshot_every"`

	// CompressionLevel is the gzip compression level (1-9) for snapshot
	// payloads. Higher = smaller files, slower. Default: 6.
	CompressionLevel int `json:"compression_level" yaml:"compression_level"`

	// StateCacheSize is the number of materialized states kept in the
	// resolver's LRU cache. Default: 128.
	StateCacheSize int `json:"state_cache_size" yaml:"state_cache_size"`

	// ReverseReplayWindow is how many versions past the target the
	// resolver will look for a newer snapshot to replay backwards from.
	// 0 disables reverse replay. Default: 32.
	ReverseReplayWindow int `json:"reverse_replay_window" yaml:"reverse_replay_window"`

	// RetentionMaxAge bounds how far back compaction keeps full history.
	// 0 keeps everything forever. Default: 0.
	RetentionMaxAge time.Duration `json:"retention_max_age" yaml:"retention_max_age"`

	// MinSnapshotsKept is the minimum number of snapshots compaction
	// preserves regardless of age. Default: 3.
	MinSnapshotsKept int `json:"min_snapshots_kept" yaml:"min_snapshots_kept"`

	// Logger for engine operations.
	// Default: slog.Default().
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// DefaultConfig returns production defaults rooted at dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:             dataDir,
		InMemory:            false,
		SyncWrites:          true,
		DefaultBranch:       "main",
		SnapshotEvery:       20,
		CompressionLevel:    6,
		StateCacheSize:      128,
		ReverseReplayWindow: 32,
		RetentionMaxAge:     0,
		MinSnapshotsKept:    3,
		Logger:              slog.Default(),
	}
}

// EphemeralConfig returns an in-memory configuration for tests.
func EphemeralConfig() Config {
	cfg := DefaultConfig("")
	cfg.InMemory = true
	cfg.SyncWrites = false
	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !c.InMemory && c.DataDir == "" {
		return errors.New("data_dir is required for persistent mode")
	}
	if c.DefaultBranch == "" {
		return errors.New("default_branch must not be empty")
	}
	if err := ValidateBranchName(c.DefaultBranch); err != nil {
		return fmt.Errorf("default_branch: %w", err)
	}
	if c.SnapshotEvery < 0 {
		return errors.New("snapshot_every must be non-negative")
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 9 {
		return fmt.Errorf("compression_level must be 1-9, got %d", c.CompressionLevel)
	}
	if c.StateCacheSize < 1 {
		return errors.New("state_cache_size must be positive")
	}
	if c.ReverseReplayWindow < 0 {
		return errors.New("reverse_replay_window must be non-negative")
	}
	if c.RetentionMaxAge < 0 {
		return errors.New("retention_max_age must be non-negative")
	}
	if c.MinSnapshotsKept < 0 {
		return errors.New("min_snapshots_kept must be non-negative")
	}
	return nil
}

// withDefaults fills zero-valued optional fields.
func (c Config) withDefaults() Config {
	if c.DefaultBranch == "" {
		c.DefaultBranch = "main"
	}
	if c.CompressionLevel == 0 {
		c.CompressionLevel = 6
	}
	if c.StateCacheSize == 0 {
		c.StateCacheSize = 128
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// LoadConfig loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - dataDir: Ledger directory used for the defaults.
//   - configPath: Path to YAML/JSON config file (optional, can be empty).
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the file exists but is invalid.
func LoadConfig(dataDir, configPath string) (Config, error) {
	config := DefaultConfig(dataDir)

	if configPath != "" {
		if err := loadConfigFile(configPath, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}

	loadConfigFromEnv(&config)

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}

	return nil
}

func loadConfigFromEnv(config *Config) {
	if v := os.Getenv("CHRONOGRAPH_DATA_DIR"); v != "" {
		config.DataDir = v
	}
	if v := os.Getenv("CHRONOGRAPH_DEFAULT_BRANCH"); v != "" {
		config.DefaultBranch = v
	}
	if v := os.Getenv("CHRONOGRAPH_SYNC_WRITES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.SyncWrites = b
		}
	}
	if v := os.Getenv("CHRONOGRAPH_SNAPSHOT_EVERY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.SnapshotEvery = i
		}
	}
	if v := os.Getenv("CHRONOGRAPH_COMPRESSION_LEVEL"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.CompressionLevel = i
		}
	}
	if v := os.Getenv("CHRONOGRAPH_STATE_CACHE_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.StateCacheSize = i
		}
	}
	if v := os.Getenv("CHRONOGRAPH_REVERSE_REPLAY_WINDOW"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.ReverseReplayWindow = i
		}
	}
	if v := os.Getenv("CHRONOGRAPH_RETENTION_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.RetentionMaxAge = d
		}
	}
	if v := os.Getenv("CHRONOGRAPH_MIN_SNAPSHOTS_KEPT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.MinSnapshotsKept = i
		}
	}
}
