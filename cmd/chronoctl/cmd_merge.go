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
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/chronograph/versioning"
)

// conflictJSON is the JSON shape for one merge conflict.
type conflictJSON struct {
	Type        string `json:"type"`
	ElementType string `json:"element_type"`
	ElementID   string `json:"element_id"`
	Label       string `json:"label,omitempty"`
	Property    string `json:"property,omitempty"`
	Base        string `json:"base,omitempty"`
	Source      string `json:"source,omitempty"`
	Target      string `json:"target,omitempty"`
}

// mergeResultJSON is the JSON shape for a merge outcome.
type mergeResultJSON struct {
	Status          string         `json:"status"`
	MergedVersionID string         `json:"merged_version_id,omitempty"`
	BaseVersionID   string         `json:"base_version_id,omitempty"`
	SourceHeadID    string         `json:"source_head_id"`
	TargetHeadID    string         `json:"target_head_id"`
	Changes         int            `json:"changes"`
	Conflicts       []conflictJSON `json:"conflicts,omitempty"`
	Resolved        int            `json:"resolved,omitempty"`
}

func toMergeResultJSON(r *versioning.MergeResult) mergeResultJSON {
	out := mergeResultJSON{
		Status:          string(r.Status),
		MergedVersionID: r.MergedVersionID,
		BaseVersionID:   r.BaseVersionID,
		SourceHeadID:    r.SourceHeadID,
		TargetHeadID:    r.TargetHeadID,
		Changes:         r.Stats.Total(),
		Resolved:        len(r.Resolved),
	}
	for _, c := range r.Conflicts {
		out.Conflicts = append(out.Conflicts, conflictJSON{
			Type:        string(c.Type),
			ElementType: string(c.ElementType),
			ElementID:   c.ElementID,
			Label:       c.Label,
			Property:    c.Property,
			Base:        c.Base,
			Source:      c.Source,
			Target:      c.Target,
		})
	}
	return out
}

// =============================================================================
// MERGE COMMAND
// =============================================================================

// runMerge is the CLI handler for the "chronoctl merge" command.
//
// Merges the source branch into --into (default: the default branch). With
// --preview the merge is computed but nothing is committed. A conflicted
// merge commits nothing and lists every conflict.
//
// # Exit Codes
//
//   - 0: Merged, fast-forwarded, or nothing to merge
//   - 1: Unresolved conflicts (nothing committed)
//   - 2: Merge failed
func runMerge(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	engine := mustOpenEngine(ctx)
	defer engine.Close()

	target := mergeInto
	if target == "" {
		target = engine.DefaultBranch()
	}

	req := versioning.MergeRequest{
		SourceBranch: args[0],
		TargetBranch: target,
		Strategy:     versioning.MergeStrategy(mergeStrategy),
		Message:      mergeMessage,
		Actor:        resolveActor(),
	}

	var result *versioning.MergeResult
	var err error
	if mergePreview {
		result, err = engine.PreviewMerge(ctx, req)
	} else {
		result, err = engine.Merge(ctx, req)
	}
	if err != nil {
		fail("Failed to merge", err)
	}

	if jsonOutput() {
		if err := OutputJSON(toMergeResultJSON(result)); err != nil {
			fail("Failed to encode JSON", err)
		}
		if result.Status == versioning.MergeConflict {
			os.Exit(CLIExitFindings)
		}
		return
	}

	switch result.Status {
	case versioning.MergeSuccess:
		verb := "Merged"
		if mergePreview {
			verb = "Would merge"
		}
		fmt.Printf("%s %s into %s: %d changes", verb, args[0], target, result.Stats.Total())
		if result.MergedVersionID != "" {
			fmt.Printf(" (version %s)", shortID(result.MergedVersionID))
		}
		fmt.Println()
		if len(result.Resolved) > 0 {
			fmt.Printf("Auto-resolved %d conflicts with strategy %q\n", len(result.Resolved), mergeStrategy)
		}
	case versioning.MergeFastForward:
		to := result.MergedVersionID
		if to == "" {
			to = result.SourceHeadID
		}
		verb := "Fast-forwarded"
		if mergePreview {
			verb = "Would fast-forward"
		}
		fmt.Printf("%s %s to %s\n", verb, target, shortID(to))
	case versioning.MergeNothingToMerge:
		fmt.Printf("Nothing to merge: %s already contains %s\n", target, args[0])
	case versioning.MergeConflict:
		fmt.Printf("Merge of %s into %s has %d conflicts; nothing committed.\n",
			args[0], target, len(result.Conflicts))
		for _, c := range result.Conflicts {
			printConflict(c)
		}
		fmt.Println("\nResolve with --strategy ours|theirs, or commit fixes and retry.")
		os.Exit(CLIExitFindings)
	}
}

// printConflict writes one conflict in a reviewable form.
func printConflict(c versioning.Conflict) {
	name := c.ElementID
	if c.Label != "" {
		name = fmt.Sprintf("%s (%s)", c.ElementID, c.Label)
	}
	switch c.Type {
	case versioning.ConflictUpdateUpdate:
		fmt.Printf("  CONFLICT %s %s property %q: base=%s source=%s target=%s\n",
			c.ElementType, name, c.Property, c.Base, c.Source, c.Target)
	default:
		fmt.Printf("  CONFLICT (%s) %s %s: source=%s target=%s\n",
			c.Type, c.ElementType, name, c.Source, c.Target)
	}
}
