// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/AleutianAI/chronograph/versioning"
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		os.Exit(CLIExitError)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ledgerConfig merges defaults, the optional config file, and environment
// overrides, and attaches the CLI logger.
func ledgerConfig() (versioning.Config, error) {
	cfg, err := versioning.LoadConfig(expandHome(dataDir), cfgFile)
	if err != nil {
		return cfg, err
	}
	cfg.Logger = appLogger.Slog()
	return cfg, nil
}

// mustOpenEngine opens the ledger or exits with an error.
//
// Every command opens its own engine and closes it before returning, so a
// crashed command never leaves the ledger locked longer than the process.
func mustOpenEngine(ctx context.Context, opts ...versioning.Option) *versioning.Engine {
	cfg, err := ledgerConfig()
	if err != nil {
		OutputError(jsonOutput(), "Invalid configuration", err)
		os.Exit(CLIExitError)
	}

	engine, err := versioning.Open(ctx, cfg, opts...)
	if err != nil {
		OutputError(jsonOutput(), "Failed to open ledger", err)
		os.Exit(CLIExitError)
	}
	return engine
}

// resolveActor returns the --actor flag, falling back to $USER, then a
// fixed name so version attribution is never empty.
func resolveActor() string {
	if actor != "" {
		return actor
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "chronoctl"
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
