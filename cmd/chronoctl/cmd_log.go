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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/chronograph/graph"
	"github.com/AleutianAI/chronograph/versioning"
)

// =============================================================================
// HISTORY COMMAND
// =============================================================================

// runHistory is the CLI handler for the "chronoctl history" command.
//
// With no argument it walks back from the default branch head. With
// --branch-log it lists the branch's own commit log instead, which after a
// fast-forward differs from the parent-link walk.
func runHistory(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	engine := mustOpenEngine(ctx)
	defer engine.Close()

	ref := engine.DefaultBranch()
	if len(args) > 0 {
		ref = args[0]
	}

	var versions []*versioning.Version
	var err error
	if branchLog {
		versions, err = engine.ListVersions(ctx, ref, historyLimit, historyOffset)
	} else {
		versions, err = engine.History(ctx, versioning.Ref(ref), historyLimit)
	}
	if err != nil {
		fail("Failed to read history", err)
	}

	if jsonOutput() {
		out := make([]versionJSON, 0, len(versions))
		for _, v := range versions {
			out = append(out, toVersionJSON(v))
		}
		if err := OutputJSON(out); err != nil {
			fail("Failed to encode JSON", err)
		}
		return
	}

	if len(versions) == 0 {
		fmt.Println("No versions.")
		return
	}
	for _, v := range versions {
		printVersionLine(v)
	}
}

// =============================================================================
// SHOW COMMAND
// =============================================================================

// runShow resolves a ref (version ID, branch, snapshot name, ~N ancestor,
// or branch@timestamp) and prints the version it names.
func runShow(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	engine := mustOpenEngine(ctx)
	defer engine.Close()

	v, err := engine.Resolve(ctx, versioning.Ref(args[0]))
	if err != nil {
		fail("Failed to resolve ref", err)
	}

	var deltas []*versioning.Delta
	if showDeltas {
		deltas, err = engine.GetDeltas(ctx, v.ID)
		if err != nil {
			fail("Failed to read deltas", err)
		}
	}

	if jsonOutput() {
		out := struct {
			Version versionJSON `json:"version"`
			Deltas  []deltaJSON `json:"deltas,omitempty"`
		}{Version: toVersionJSON(v)}
		for _, d := range deltas {
			out.Deltas = append(out.Deltas, toDeltaJSON(d, false))
		}
		if err := OutputJSON(out); err != nil {
			fail("Failed to encode JSON", err)
		}
		return
	}

	printVersionDetail(v)
	if showDeltas && len(deltas) > 0 {
		fmt.Println()
		for _, d := range deltas {
			printDeltaLine(d)
		}
	}
}

// =============================================================================
// DIFF COMMAND
// =============================================================================

// runDiff prints the element deltas that transform the state at one ref
// into the state at another.
func runDiff(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	engine := mustOpenEngine(ctx)
	defer engine.Close()

	deltas, err := engine.Diff(ctx, versioning.Ref(args[0]), versioning.Ref(args[1]))
	if err != nil {
		fail("Failed to diff refs", err)
	}

	if jsonOutput() {
		out := make([]deltaJSON, 0, len(deltas))
		for _, d := range deltas {
			out = append(out, toDeltaJSON(d, diffPayloads))
		}
		if err := OutputJSON(out); err != nil {
			fail("Failed to encode JSON", err)
		}
		return
	}

	if len(deltas) == 0 {
		fmt.Println("States are identical.")
		return
	}
	for _, d := range deltas {
		printDeltaLine(d)
	}
	fmt.Printf("%d changes\n", len(deltas))
}

// =============================================================================
// STATS COMMAND
// =============================================================================

// runStats prints ledger record counts and commit time bounds.
func runStats(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	engine := mustOpenEngine(ctx)
	defer engine.Close()

	stats, err := engine.Stats(ctx)
	if err != nil {
		fail("Failed to read ledger stats", err)
	}

	if jsonOutput() {
		out := struct {
			Versions      int64  `json:"versions"`
			Deltas        int64  `json:"deltas"`
			Snapshots     int64  `json:"snapshots"`
			Branches      int64  `json:"branches"`
			DefaultBranch string `json:"default_branch"`
			OldestVersion string `json:"oldest_version,omitempty"`
			NewestVersion string `json:"newest_version,omitempty"`
		}{
			Versions:      stats.Versions,
			Deltas:        stats.Deltas,
			Snapshots:     stats.Snapshots,
			Branches:      stats.Branches,
			DefaultBranch: engine.DefaultBranch(),
		}
		if stats.OldestVersionMilli > 0 {
			out.OldestVersion = milliTime(stats.OldestVersionMilli)
		}
		if stats.NewestVersionMilli > 0 {
			out.NewestVersion = milliTime(stats.NewestVersionMilli)
		}
		if err := OutputJSON(out); err != nil {
			fail("Failed to encode JSON", err)
		}
		return
	}

	fmt.Println("--- Ledger ---")
	fmt.Printf("Versions:       %d\n", stats.Versions)
	fmt.Printf("Deltas:         %d\n", stats.Deltas)
	fmt.Printf("Snapshots:      %d\n", stats.Snapshots)
	fmt.Printf("Branches:       %d\n", stats.Branches)
	fmt.Printf("Default branch: %s\n", engine.DefaultBranch())
	if stats.OldestVersionMilli > 0 {
		fmt.Printf("Oldest commit:  %s\n", milliTime(stats.OldestVersionMilli))
		fmt.Printf("Newest commit:  %s\n", milliTime(stats.NewestVersionMilli))
	}
}

// =============================================================================
// EXPORT COMMAND
// =============================================================================

// exportedElement is one element in an export document.
type exportedElement struct {
	Type    string `json:"type"`
	Element any    `json:"element"`
}

// exportDocument is the export file format: the resolved version plus the
// full element set at that version.
type exportDocument struct {
	Ref       string            `json:"ref"`
	VersionID string            `json:"version_id"`
	Checksum  string            `json:"checksum"`
	Count     int               `json:"count"`
	Elements  []exportedElement `json:"elements"`
}

// runExport reconstructs the full state at a ref and writes it as JSON.
func runExport(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	engine := mustOpenEngine(ctx)
	defer engine.Close()

	ref := args[0]
	v, err := engine.Resolve(ctx, versioning.Ref(ref))
	if err != nil {
		fail("Failed to resolve ref", err)
	}
	state, err := engine.StateAt(ctx, versioning.Ref(v.ID))
	if err != nil {
		fail("Failed to reconstruct state", err)
	}

	elements := state.Elements()
	doc := exportDocument{
		Ref:       ref,
		VersionID: v.ID,
		Checksum:  state.Checksum(),
		Count:     len(elements),
		Elements:  make([]exportedElement, 0, len(elements)),
	}
	for _, el := range elements {
		doc.Elements = append(doc.Elements, exportedElement{
			Type:    string(el.Type),
			Element: elementPayload(el),
		})
	}

	out := os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			fail("Failed to create output file", err)
		}
		defer f.Close()
		out = f
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		fail("Failed to encode export", err)
	}

	if exportOutput != "" && !jsonOutput() {
		fmt.Printf("Exported %d elements at %s to %s\n", len(elements), shortID(v.ID), exportOutput)
	}
}

// elementPayload unwraps the element union so exports carry the concrete
// element rather than a tag plus three nulls.
func elementPayload(el graph.Element) any {
	switch el.Type {
	case graph.ElementTypeEntity:
		return el.Entity
	case graph.ElementTypeRelationship:
		return el.Relationship
	case graph.ElementTypeClaim:
		return el.Claim
	case graph.ElementTypeAxiom:
		return el.Axiom
	}
	return nil
}
