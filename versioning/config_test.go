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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Default Tests
// -----------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/var/lib/chronograph")

	assert.Equal(t, "/var/lib/chronograph", cfg.DataDir)
	assert.False(t, cfg.InMemory)
	assert.True(t, cfg.SyncWrites)
	assert.Equal(t, "main", cfg.DefaultBranch)
	assert.Equal(t, 20, cfg.SnapshotEvery)
	assert.Equal(t, 6, cfg.CompressionLevel)
	assert.Equal(t, 128, cfg.StateCacheSize)
	assert.Equal(t, 32, cfg.ReverseReplayWindow)
	assert.Equal(t, time.Duration(0), cfg.RetentionMaxAge)
	assert.Equal(t, 3, cfg.MinSnapshotsKept)
	assert.NoError(t, cfg.Validate())
}

func TestEphemeralConfig(t *testing.T) {
	cfg := EphemeralConfig()

	assert.True(t, cfg.InMemory)
	assert.False(t, cfg.SyncWrites)
	assert.Empty(t, cfg.DataDir)
	assert.NoError(t, cfg.Validate())
}

// -----------------------------------------------------------------------------
// Validation Tests
// -----------------------------------------------------------------------------

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "persistent mode requires a data dir",
			mutate:  func(cfg *Config) { cfg.DataDir = "" },
			wantErr: "data_dir is required",
		},
		{
			name: "in-memory mode does not",
			mutate: func(cfg *Config) {
				cfg.DataDir = ""
				cfg.InMemory = true
			},
		},
		{
			name:    "empty default branch",
			mutate:  func(cfg *Config) { cfg.DefaultBranch = "" },
			wantErr: "default_branch must not be empty",
		},
		{
			name:    "invalid default branch name",
			mutate:  func(cfg *Config) { cfg.DefaultBranch = "bad:name" },
			wantErr: "default_branch",
		},
		{
			name:    "negative snapshot cadence",
			mutate:  func(cfg *Config) { cfg.SnapshotEvery = -1 },
			wantErr: "snapshot_every",
		},
		{
			name:    "compression level too low",
			mutate:  func(cfg *Config) { cfg.CompressionLevel = 0 },
			wantErr: "compression_level must be 1-9",
		},
		{
			name:    "compression level too high",
			mutate:  func(cfg *Config) { cfg.CompressionLevel = 10 },
			wantErr: "compression_level must be 1-9",
		},
		{
			name:    "zero cache size",
			mutate:  func(cfg *Config) { cfg.StateCacheSize = 0 },
			wantErr: "state_cache_size must be positive",
		},
		{
			name:    "negative reverse replay window",
			mutate:  func(cfg *Config) { cfg.ReverseReplayWindow = -1 },
			wantErr: "reverse_replay_window",
		},
		{
			name:    "negative retention age",
			mutate:  func(cfg *Config) { cfg.RetentionMaxAge = -time.Hour },
			wantErr: "retention_max_age",
		},
		{
			name:    "negative min snapshots",
			mutate:  func(cfg *Config) { cfg.MinSnapshotsKept = -1 },
			wantErr: "min_snapshots_kept",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("/tmp/ledger")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{InMemory: true}.withDefaults()

	assert.Equal(t, "main", cfg.DefaultBranch)
	assert.Equal(t, 6, cfg.CompressionLevel)
	assert.Equal(t, 128, cfg.StateCacheSize)
	assert.NotNil(t, cfg.Logger)
	assert.NoError(t, cfg.Validate())
}

// -----------------------------------------------------------------------------
// Loading Tests
// -----------------------------------------------------------------------------

func TestLoadConfig(t *testing.T) {
	t.Run("defaults when no file is given", func(t *testing.T) {
		cfg, err := LoadConfig("/tmp/ledger", "")
		require.NoError(t, err)
		assert.Equal(t, "/tmp/ledger", cfg.DataDir)
		assert.Equal(t, "main", cfg.DefaultBranch)
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := LoadConfig("/tmp/ledger", "/nonexistent/config.yaml")
		require.NoError(t, err)
		assert.Equal(t, 20, cfg.SnapshotEvery)
	})

	t.Run("yaml file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
default_branch: trunk
snapshot_every: 5
compression_level: 9
retention_max_age: 720h
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := LoadConfig("/tmp/ledger", path)
		require.NoError(t, err)
		assert.Equal(t, "trunk", cfg.DefaultBranch)
		assert.Equal(t, 5, cfg.SnapshotEvery)
		assert.Equal(t, 9, cfg.CompressionLevel)
		assert.Equal(t, 720*time.Hour, cfg.RetentionMaxAge)
		// Untouched fields keep their defaults.
		assert.Equal(t, "/tmp/ledger", cfg.DataDir)
		assert.Equal(t, 128, cfg.StateCacheSize)
	})

	t.Run("json file is accepted", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		content := `{"default_branch": "trunk", "snapshot_every": 7}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := LoadConfig("/tmp/ledger", path)
		require.NoError(t, err)
		assert.Equal(t, "trunk", cfg.DefaultBranch)
		assert.Equal(t, 7, cfg.SnapshotEvery)
	})

	t.Run("malformed file is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{{not valid"), 0o644))

		_, err := LoadConfig("/tmp/ledger", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load config file")
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("snapshot_every: 5\n"), 0o644))

		t.Setenv("CHRONOGRAPH_SNAPSHOT_EVERY", "50")
		t.Setenv("CHRONOGRAPH_DEFAULT_BRANCH", "trunk")
		t.Setenv("CHRONOGRAPH_RETENTION_MAX_AGE", "24h")

		cfg, err := LoadConfig("/tmp/ledger", path)
		require.NoError(t, err)
		assert.Equal(t, 50, cfg.SnapshotEvery)
		assert.Equal(t, "trunk", cfg.DefaultBranch)
		assert.Equal(t, 24*time.Hour, cfg.RetentionMaxAge)
	})

	t.Run("invalid merged config fails", func(t *testing.T) {
		t.Setenv("CHRONOGRAPH_COMPRESSION_LEVEL", "99")

		_, err := LoadConfig("/tmp/ledger", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})
}
