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
	"time"

	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/chronograph/versioning"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Operation completed with findings (e.g. merge conflicts)
	CLIExitError    = 2 // Operation failed
)

// CommandResult wraps command output with metadata for JSON mode.
type CommandResult struct {
	APIVersion string      `json:"api_version"`
	Command    string      `json:"command,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// jsonOutput reports whether results should be encoded as JSON. The --json
// flag forces it; piped stdout (scripts, CI) also gets JSON so consumers
// never have to parse the human-readable tables.
func jsonOutput() bool {
	if outputJSON {
		return true
	}
	fd := os.Stdout.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// OutputJSON writes structured data as indented JSON to stdout.
//
// # Inputs
//
//   - data: The data to encode. Must be JSON-serializable.
//
// # Outputs
//
//   - error: Non-nil if encoding fails.
func OutputJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// OutputError writes an error in the appropriate format.
//
// # Inputs
//
//   - jsonMode: If true, output as JSON to stdout.
//   - msg: Human-readable error message.
//   - err: The underlying error.
func OutputError(jsonMode bool, msg string, err error) {
	if jsonMode {
		result := CommandResult{
			APIVersion: "1.0",
			Timestamp:  time.Now(),
			Success:    false,
			Error:      fmt.Sprintf("%s: %v", msg, err),
		}
		_ = OutputJSON(result)
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
}

// fail reports an error and exits with CLIExitError.
func fail(msg string, err error) {
	OutputError(jsonOutput(), msg, err)
	os.Exit(CLIExitError)
}

// milliTime renders Unix milliseconds as RFC 3339 UTC.
func milliTime(milli int64) string {
	return time.UnixMilli(milli).UTC().Format(time.RFC3339)
}

// shortID trims an ID for table output.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// changeSymbol maps a change type to a one-character diff marker.
func changeSymbol(t versioning.ChangeType) string {
	switch t {
	case versioning.ChangeCreate:
		return "+"
	case versioning.ChangeDelete:
		return "-"
	default:
		return "~"
	}
}

// printVersionLine writes one history row: short id, time, branch, author,
// change count, message.
func printVersionLine(v *versioning.Version) {
	fmt.Printf("%s  %s  %-12s %-10s %4d changes  %s\n",
		shortID(v.ID), milliTime(v.CreatedAtMilli), v.Branch, v.CreatedBy,
		v.Stats.Total(), v.Message)
}

// printVersionDetail writes the full metadata block for one version.
func printVersionDetail(v *versioning.Version) {
	fmt.Printf("Version:  %s\n", v.ID)
	if v.ParentID != "" {
		fmt.Printf("Parent:   %s\n", v.ParentID)
	}
	fmt.Printf("Branch:   %s\n", v.Branch)
	fmt.Printf("Author:   %s\n", v.CreatedBy)
	fmt.Printf("Date:     %s\n", milliTime(v.CreatedAtMilli))
	fmt.Printf("Seq:      %d\n", v.Seq)
	fmt.Printf("Message:  %s\n", v.Message)
	fmt.Printf("Changes:  %d created, %d modified, %d deleted\n",
		v.Stats.EntitiesCreated+v.Stats.RelationshipsCreated+v.Stats.ClaimsCreated+v.Stats.AxiomsCreated,
		v.Stats.EntitiesModified+v.Stats.RelationshipsModified+v.Stats.ClaimsModified+v.Stats.AxiomsModified,
		v.Stats.EntitiesDeleted+v.Stats.RelationshipsDeleted+v.Stats.ClaimsDeleted+v.Stats.AxiomsDeleted)
}

// printDeltaLine writes one delta row in diff style.
func printDeltaLine(d *versioning.Delta) {
	fmt.Printf("  %s %s %s\n", changeSymbol(d.ChangeType), d.ElementType, d.ElementID)
}

// versionJSON is the JSON shape for one version.
type versionJSON struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent_id,omitempty"`
	Branch    string `json:"branch"`
	Message   string `json:"message"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
	Seq       uint64 `json:"seq"`
	Changes   int    `json:"changes"`
}

func toVersionJSON(v *versioning.Version) versionJSON {
	return versionJSON{
		ID:        v.ID,
		ParentID:  v.ParentID,
		Branch:    v.Branch,
		Message:   v.Message,
		CreatedBy: v.CreatedBy,
		CreatedAt: milliTime(v.CreatedAtMilli),
		Seq:       v.Seq,
		Changes:   v.Stats.Total(),
	}
}

// deltaJSON is the JSON shape for one element delta.
type deltaJSON struct {
	ElementType string `json:"element_type"`
	ElementID   string `json:"element_id"`
	ChangeType  string `json:"change_type"`
	Old         any    `json:"old,omitempty"`
	New         any    `json:"new,omitempty"`
}

func toDeltaJSON(d *versioning.Delta, withPayloads bool) deltaJSON {
	out := deltaJSON{
		ElementType: string(d.ElementType),
		ElementID:   d.ElementID,
		ChangeType:  string(d.ChangeType),
	}
	if !withPayloads {
		return out
	}
	if old, err := d.DecodeOld(); err == nil && !old.IsZero() {
		out.Old = elementPayload(old)
	}
	if next, err := d.DecodeNew(); err == nil && !next.IsZero() {
		out.New = elementPayload(next)
	}
	return out
}
