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
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/chronograph/versioning"
)

// snapshotJSON is the JSON shape for one snapshot record.
type snapshotJSON struct {
	ID                string  `json:"id"`
	VersionID         string  `json:"version_id"`
	Name              string  `json:"name,omitempty"`
	Description       string  `json:"description,omitempty"`
	CreatedBy         string  `json:"created_by"`
	CreatedAt         string  `json:"created_at"`
	Elements          int     `json:"elements"`
	UncompressedBytes int64   `json:"uncompressed_bytes"`
	CompressedBytes   int64   `json:"compressed_bytes"`
	CompressionRatio  float64 `json:"compression_ratio"`
	Checksum          string  `json:"checksum"`
	Deleted           bool    `json:"deleted,omitempty"`
}

func toSnapshotJSON(s *versioning.SnapshotRecord) snapshotJSON {
	return snapshotJSON{
		ID:                s.ID,
		VersionID:         s.VersionID,
		Name:              s.Name,
		Description:       s.Description,
		CreatedBy:         s.CreatedBy,
		CreatedAt:         milliTime(s.CreatedAtMilli),
		Elements:          s.Elements(),
		UncompressedBytes: s.UncompressedBytes,
		CompressedBytes:   s.CompressedBytes,
		CompressionRatio:  s.CompressionRatio(),
		Checksum:          s.Checksum,
		Deleted:           s.Deleted,
	}
}

// findSnapshot looks a snapshot up by ID first, then by name, so commands
// accept either form.
func findSnapshot(ctx context.Context, engine *versioning.Engine, idOrName string) (*versioning.SnapshotRecord, error) {
	rec, err := engine.Snapshots().Get(ctx, idOrName)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, versioning.ErrSnapshotNotFound) {
		return nil, err
	}
	return engine.Snapshots().GetByName(ctx, idOrName)
}

// =============================================================================
// SNAPSHOT CREATE COMMAND
// =============================================================================

// runSnapshotCreate captures a compressed, checksummed snapshot of the
// state at a ref. Creating a second snapshot at the same version returns
// the existing record unchanged.
func runSnapshotCreate(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	engine := mustOpenEngine(ctx)
	defer engine.Close()

	ref := engine.DefaultBranch()
	if len(args) > 0 {
		ref = args[0]
	}

	rec, err := engine.CreateSnapshot(ctx, versioning.Ref(ref), versioning.CreateSnapshotOptions{
		Name:        snapshotName,
		Description: snapshotDescription,
		CreatedBy:   resolveActor(),
	})
	if err != nil {
		fail("Failed to create snapshot", err)
	}

	if jsonOutput() {
		if err := OutputJSON(toSnapshotJSON(rec)); err != nil {
			fail("Failed to encode JSON", err)
		}
		return
	}
	fmt.Printf("Created snapshot %s (%s) at version %s: %d elements, %d bytes compressed\n",
		shortID(rec.ID), rec.Name, shortID(rec.VersionID), rec.Elements(), rec.CompressedBytes)
}

// =============================================================================
// SNAPSHOT LIST COMMAND
// =============================================================================

// runSnapshotList lists snapshots, newest first.
func runSnapshotList(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	engine := mustOpenEngine(ctx)
	defer engine.Close()

	snapshots, err := engine.Snapshots().List(ctx, listDeleted)
	if err != nil {
		fail("Failed to list snapshots", err)
	}

	if jsonOutput() {
		out := make([]snapshotJSON, 0, len(snapshots))
		for _, s := range snapshots {
			out = append(out, toSnapshotJSON(s))
		}
		if err := OutputJSON(out); err != nil {
			fail("Failed to encode JSON", err)
		}
		return
	}

	if len(snapshots) == 0 {
		fmt.Println("No snapshots.")
		return
	}
	for _, s := range snapshots {
		suffix := ""
		if s.Deleted {
			suffix = " (deleted)"
		}
		fmt.Printf("%s  %s  %-20s version %s  %6d elements%s\n",
			shortID(s.ID), milliTime(s.CreatedAtMilli), s.Name,
			shortID(s.VersionID), s.Elements(), suffix)
	}
}

// =============================================================================
// SNAPSHOT VERIFY COMMAND
// =============================================================================

// runSnapshotVerify re-hashes a snapshot's stored payload and compares it
// to the recorded checksum.
//
// # Exit Codes
//
//   - 0: Payload matches the checksum
//   - 1: Payload is corrupted
//   - 2: Snapshot not found or read failed
func runSnapshotVerify(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	engine := mustOpenEngine(ctx)
	defer engine.Close()

	rec, err := findSnapshot(ctx, engine, args[0])
	if err != nil {
		fail("Failed to find snapshot", err)
	}

	verifyErr := engine.Snapshots().Verify(ctx, rec.ID)
	if verifyErr != nil && !errors.Is(verifyErr, versioning.ErrSnapshotCorrupted) {
		fail("Failed to verify snapshot", verifyErr)
	}

	if jsonOutput() {
		out := struct {
			ID       string `json:"id"`
			Checksum string `json:"checksum"`
			Valid    bool   `json:"valid"`
			Error    string `json:"error,omitempty"`
		}{ID: rec.ID, Checksum: rec.Checksum, Valid: verifyErr == nil}
		if verifyErr != nil {
			out.Error = verifyErr.Error()
		}
		if err := OutputJSON(out); err != nil {
			fail("Failed to encode JSON", err)
		}
	} else if verifyErr == nil {
		fmt.Printf("Snapshot %s OK (sha256:%s)\n", shortID(rec.ID), rec.Checksum)
	} else {
		fmt.Printf("Snapshot %s CORRUPTED: %v\n", shortID(rec.ID), verifyErr)
	}

	if verifyErr != nil {
		os.Exit(CLIExitFindings)
	}
}

// =============================================================================
// SNAPSHOT RESTORE COMMAND
// =============================================================================

// runSnapshotRestore commits a snapshot's state as the new head of a
// branch. The restore is an ordinary commit; history before it is kept.
func runSnapshotRestore(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	engine := mustOpenEngine(ctx)
	defer engine.Close()

	rec, err := findSnapshot(ctx, engine, args[0])
	if err != nil {
		fail("Failed to find snapshot", err)
	}

	v, err := engine.RestoreSnapshot(ctx, rec.ID, versioning.RestoreOptions{
		Branch: restoreBranch,
		Actor:  resolveActor(),
	})
	if err != nil {
		fail("Failed to restore snapshot", err)
	}

	if jsonOutput() {
		if err := OutputJSON(toVersionJSON(v)); err != nil {
			fail("Failed to encode JSON", err)
		}
		return
	}
	fmt.Printf("Restored snapshot %s as version %s on %s (%d changes)\n",
		shortID(rec.ID), shortID(v.ID), v.Branch, v.Stats.Total())
}

// =============================================================================
// GC COMMAND
// =============================================================================

// runGC compacts history older than the cutoff. Branch heads and merge
// bases always survive; a replay-base snapshot is planted before anything
// is purged, so every surviving version stays reconstructible.
func runGC(cmd *cobra.Command, args []string) {
	olderThan, err := time.ParseDuration(gcOlderThan)
	if err != nil {
		fail("Invalid --older-than duration", err)
	}
	if olderThan <= 0 {
		fail("Invalid --older-than duration", fmt.Errorf("must be positive, got %s", olderThan))
	}

	ctx := cmd.Context()
	engine := mustOpenEngine(ctx)
	defer engine.Close()

	result, err := engine.CompactHistory(ctx, olderThan)
	if err != nil {
		fail("Failed to compact history", err)
	}

	if jsonOutput() {
		out := struct {
			VersionsPurged   int `json:"versions_purged"`
			SnapshotsCreated int `json:"snapshots_created"`
			SnapshotsDeleted int `json:"snapshots_deleted"`
		}{result.VersionsPurged, result.SnapshotsCreated, result.SnapshotsDeleted}
		if err := OutputJSON(out); err != nil {
			fail("Failed to encode JSON", err)
		}
		return
	}
	fmt.Printf("Purged %d versions (created %d replay-base snapshots, reclaimed %d)\n",
		result.VersionsPurged, result.SnapshotsCreated, result.SnapshotsDeleted)
}
