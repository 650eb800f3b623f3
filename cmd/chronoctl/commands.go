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
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/chronograph/pkg/logging"
)

// --- Global Command Variables ---
var (
	cfgFile    string
	dataDir    string
	actor      string
	outputJSON bool
	verbose    bool
	quietLogs  bool

	historyLimit  int
	historyOffset int
	branchLog     bool

	showDeltas   bool
	diffPayloads bool

	branchFrom string

	snapshotName        string
	snapshotDescription string
	restoreBranch       string
	listDeleted         bool
	listArchived        bool

	mergeInto     string
	mergeStrategy string
	mergeMessage  string
	mergePreview  bool

	gcOlderThan string

	exportOutput string

	serveAddr        string
	serveTelemetry   bool
	serveMirrorURL   string
	serveMirrorGraph string
	metricsAddr      string

	appLogger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "chronoctl",
		Short: "A cli to manage a chronograph version ledger",
		Long: `Chronoctl inspects and operates a chronograph knowledge-graph
				ledger: commit history, branches, merges, snapshots,
				time-travel reads, retention, and a read-only HTTP API.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logging.LevelInfo
			if verbose {
				level = logging.LevelDebug
			}
			appLogger = logging.New(logging.Config{
				Level:   level,
				Service: "chronoctl",
				Quiet:   quietLogs,
			})
			slog.SetDefault(appLogger.Slog())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if appLogger != nil {
				_ = appLogger.Close()
			}
		},
	}

	// --- History / Inspection ---
	historyCmd = &cobra.Command{
		Use:   "history [ref]",
		Short: "Walk the commit chain back from a ref (default: the default branch head)",
		Args:  cobra.MaximumNArgs(1),
		Run:   runHistory, // Defined in cmd_log.go
	}
	showCmd = &cobra.Command{
		Use:   "show <ref>",
		Short: "Resolve a ref and show the version it names",
		Args:  cobra.ExactArgs(1),
		Run:   runShow, // Defined in cmd_log.go
	}
	diffCmd = &cobra.Command{
		Use:   "diff <from-ref> <to-ref>",
		Short: "Show the element changes between the states at two refs",
		Args:  cobra.ExactArgs(2),
		Run:   runDiff, // Defined in cmd_log.go
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show ledger record counts and commit time bounds",
		Run:   runStats, // Defined in cmd_log.go
	}
	exportCmd = &cobra.Command{
		Use:   "export <ref>",
		Short: "Reconstruct the full graph state at a ref and write it as JSON",
		Args:  cobra.ExactArgs(1),
		Run:   runExport, // Defined in cmd_log.go
	}

	// --- Branches ---
	branchCmd = &cobra.Command{
		Use:   "branch",
		Short: "Manage branches of the version ledger",
	}
	branchListCmd = &cobra.Command{
		Use:   "list",
		Short: "List branches",
		Run:   runBranchList, // Defined in cmd_branch.go
	}
	branchCreateCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "Create a branch pointing at an existing version",
		Args:  cobra.ExactArgs(1),
		Run:   runBranchCreate, // Defined in cmd_branch.go
	}
	branchDeleteCmd = &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a branch pointer (committed versions are kept)",
		Args:  cobra.ExactArgs(1),
		Run:   runBranchDelete, // Defined in cmd_branch.go
	}
	branchArchiveCmd = &cobra.Command{
		Use:   "archive <name>",
		Short: "Mark a branch read-only and hide it from listings",
		Args:  cobra.ExactArgs(1),
		Run:   runBranchArchive, // Defined in cmd_branch.go
	}

	// --- Snapshots ---
	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Manage full-state snapshots",
	}
	snapshotCreateCmd = &cobra.Command{
		Use:   "create [ref]",
		Short: "Capture a checksummed snapshot of the state at a ref",
		Args:  cobra.MaximumNArgs(1),
		Run:   runSnapshotCreate, // Defined in cmd_snapshot.go
	}
	snapshotListCmd = &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Run:   runSnapshotList, // Defined in cmd_snapshot.go
	}
	snapshotVerifyCmd = &cobra.Command{
		Use:   "verify <id-or-name>",
		Short: "Re-hash a snapshot payload and compare it to the stored checksum",
		Args:  cobra.ExactArgs(1),
		Run:   runSnapshotVerify, // Defined in cmd_snapshot.go
	}
	snapshotRestoreCmd = &cobra.Command{
		Use:   "restore <id-or-name>",
		Short: "Commit a snapshot's state as the new head of a branch",
		Args:  cobra.ExactArgs(1),
		Run:   runSnapshotRestore, // Defined in cmd_snapshot.go
	}

	// --- Merge ---
	mergeCmd = &cobra.Command{
		Use:   "merge <source-branch>",
		Short: "Three-way merge a source branch into a target branch",
		Args:  cobra.ExactArgs(1),
		Run:   runMerge, // Defined in cmd_merge.go
	}

	// --- Retention ---
	gcCmd = &cobra.Command{
		Use:   "gc",
		Short: "Compact history older than a cutoff, planting replay-base snapshots",
		Run:   runGC, // Defined in cmd_snapshot.go
	}

	// --- Serving ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only ledger HTTP API (plus /metrics)",
		Run:   runServe, // Defined in cmd_serve.go
	}
	serveMetricsCmd = &cobra.Command{
		Use:   "serve-metrics",
		Short: "Serve only the Prometheus /metrics endpoint",
		Run:   runServeMetrics, // Defined in cmd_serve.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Path to a YAML or JSON ledger config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "~/.chronograph/data",
		"Ledger directory (overridden by CHRONOGRAPH_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "",
		"Actor recorded on versions this invocation creates (default: $USER)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false,
		"Output results as JSON (implied when stdout is not a terminal)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quietLogs, "quiet", "q", false,
		"Suppress log output (results still print)")

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum versions to show")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0,
		"Versions to skip from the newest end (branch log mode only)")
	historyCmd.Flags().BoolVar(&branchLog, "branch-log", false,
		"List the branch's own commit log instead of walking parent links")

	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showDeltas, "deltas", false, "Also list the version's element deltas")

	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().BoolVar(&diffPayloads, "payloads", false,
		"Include decoded element payloads (JSON output only)")

	rootCmd.AddCommand(statsCmd)

	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"Write to a file instead of stdout")

	rootCmd.AddCommand(branchCmd)
	branchCmd.AddCommand(branchListCmd)
	branchListCmd.Flags().BoolVar(&listArchived, "archived", false, "Include archived branches")
	branchCmd.AddCommand(branchCreateCmd)
	branchCreateCmd.Flags().StringVar(&branchFrom, "from", "",
		"Ref the branch starts at (default: the default branch head)")
	branchCmd.AddCommand(branchDeleteCmd)
	branchCmd.AddCommand(branchArchiveCmd)

	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCreateCmd.Flags().StringVar(&snapshotName, "name", "", "Human-readable snapshot label")
	snapshotCreateCmd.Flags().StringVar(&snapshotDescription, "description", "", "Free-form description")
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotListCmd.Flags().BoolVar(&listDeleted, "deleted", false, "Include soft-deleted snapshots")
	snapshotCmd.AddCommand(snapshotVerifyCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	snapshotRestoreCmd.Flags().StringVar(&restoreBranch, "branch", "",
		"Branch receiving the restored state (default: the default branch)")

	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().StringVar(&mergeInto, "into", "",
		"Target branch (default: the default branch)")
	mergeCmd.Flags().StringVar(&mergeStrategy, "strategy", "manual",
		"Conflict strategy: manual, ours, or theirs")
	mergeCmd.Flags().StringVarP(&mergeMessage, "message", "m", "",
		"Override the generated merge commit message")
	mergeCmd.Flags().BoolVar(&mergePreview, "preview", false,
		"Compute the merge without committing anything")

	rootCmd.AddCommand(gcCmd)
	gcCmd.Flags().StringVar(&gcOlderThan, "older-than", "",
		"Purge versions older than this duration, e.g. 720h (required)")
	_ = gcCmd.MarkFlagRequired("older-than")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":12240", "Listen address for the HTTP API")
	serveCmd.Flags().BoolVar(&serveTelemetry, "telemetry", false,
		"Initialize OpenTelemetry tracing and metrics export")
	serveCmd.Flags().StringVar(&serveMirrorURL, "mirror-url", "",
		"Weaviate URL to mirror the default branch head into (optional)")
	serveCmd.Flags().StringVar(&serveMirrorGraph, "mirror-graph-id", "default",
		"Graph isolation key used in the Weaviate mirror")

	rootCmd.AddCommand(serveMetricsCmd)
	serveMetricsCmd.Flags().StringVar(&metricsAddr, "addr", ":9090", "Listen address for /metrics")
}
