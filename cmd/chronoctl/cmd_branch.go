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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/chronograph/versioning"
)

// branchJSON is the JSON shape for one branch.
type branchJSON struct {
	Name      string `json:"name"`
	HeadID    string `json:"head_id"`
	BaseID    string `json:"base_id,omitempty"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
	IsDefault bool   `json:"is_default"`
	Archived  bool   `json:"archived,omitempty"`
}

func toBranchJSON(b *versioning.Branch) branchJSON {
	return branchJSON{
		Name:      b.Name,
		HeadID:    b.HeadID,
		BaseID:    b.BaseID,
		CreatedBy: b.CreatedBy,
		CreatedAt: milliTime(b.CreatedAtMilli),
		IsDefault: b.IsDefault,
		Archived:  b.Archived,
	}
}

// =============================================================================
// BRANCH LIST COMMAND
// =============================================================================

// runBranchList lists branches sorted by name. Archived branches are
// hidden unless --archived is set.
func runBranchList(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	engine := mustOpenEngine(ctx)
	defer engine.Close()

	branches, err := engine.Branches().List(ctx)
	if err != nil {
		fail("Failed to list branches", err)
	}

	visible := branches[:0]
	for _, b := range branches {
		if b.Archived && !listArchived {
			continue
		}
		visible = append(visible, b)
	}

	if jsonOutput() {
		out := make([]branchJSON, 0, len(visible))
		for _, b := range visible {
			out = append(out, toBranchJSON(b))
		}
		if err := OutputJSON(out); err != nil {
			fail("Failed to encode JSON", err)
		}
		return
	}

	for _, b := range visible {
		marker := "  "
		if b.IsDefault {
			marker = "* "
		}
		suffix := ""
		if b.Archived {
			suffix = " (archived)"
		}
		fmt.Printf("%s%-24s %s%s\n", marker, b.Name, shortID(b.HeadID), suffix)
	}
}

// =============================================================================
// BRANCH CREATE COMMAND
// =============================================================================

// runBranchCreate creates a branch pointing at an existing version. The
// branch is a movable head pointer; no history is copied.
func runBranchCreate(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	engine := mustOpenEngine(ctx)
	defer engine.Close()

	b, err := engine.Branches().Create(ctx, args[0], versioning.CreateBranchOptions{
		From:      versioning.Ref(branchFrom),
		CreatedBy: resolveActor(),
	})
	if err != nil {
		fail("Failed to create branch", err)
	}

	if jsonOutput() {
		if err := OutputJSON(toBranchJSON(b)); err != nil {
			fail("Failed to encode JSON", err)
		}
		return
	}
	fmt.Printf("Created branch %s at %s\n", b.Name, shortID(b.HeadID))
}

// =============================================================================
// BRANCH DELETE COMMAND
// =============================================================================

// runBranchDelete removes a branch pointer. Versions committed on the
// branch stay in the ledger and remain reachable by ID.
func runBranchDelete(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	engine := mustOpenEngine(ctx)
	defer engine.Close()

	if err := engine.Branches().Delete(ctx, args[0]); err != nil {
		fail("Failed to delete branch", err)
	}

	if jsonOutput() {
		if err := OutputJSON(map[string]any{"deleted": args[0]}); err != nil {
			fail("Failed to encode JSON", err)
		}
		return
	}
	fmt.Printf("Deleted branch %s (its versions are kept)\n", args[0])
}

// =============================================================================
// BRANCH ARCHIVE COMMAND
// =============================================================================

// runBranchArchive marks a branch read-only and hides it from listings.
func runBranchArchive(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	engine := mustOpenEngine(ctx)
	defer engine.Close()

	if err := engine.Branches().Archive(ctx, args[0]); err != nil {
		fail("Failed to archive branch", err)
	}

	if jsonOutput() {
		if err := OutputJSON(map[string]any{"archived": args[0]}); err != nil {
			fail("Failed to encode JSON", err)
		}
		return
	}
	fmt.Printf("Archived branch %s\n", args[0])
}
