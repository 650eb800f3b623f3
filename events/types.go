// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events provides event types and publication for the versioning
// engine.
//
// Events let external systems observe commits, snapshots, branch changes
// and merges without coupling to the engine implementation. The engine
// takes a Publisher at construction; nothing in this package is a global.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package events

import "time"

// Type identifies the kind of event.
type Type string

const (
	// TypeVersionCreated is emitted after a commit produces a new version.
	TypeVersionCreated Type = "version_created"

	// TypeSnapshotCreated is emitted after a snapshot is persisted.
	TypeSnapshotCreated Type = "snapshot_created"

	// TypeSnapshotRestored is emitted after a snapshot replaces the live graph.
	TypeSnapshotRestored Type = "snapshot_restored"

	// TypeSnapshotDeleted is emitted after a snapshot is soft-deleted.
	TypeSnapshotDeleted Type = "snapshot_deleted"

	// TypeBranchCreated is emitted when a branch is created.
	TypeBranchCreated Type = "branch_created"

	// TypeBranchDeleted is emitted when a branch pointer is removed.
	TypeBranchDeleted Type = "branch_deleted"

	// TypeBranchesMerged is emitted after a merge attempt completes,
	// whatever its outcome.
	TypeBranchesMerged Type = "branches_merged"

	// TypeHistoryCompacted is emitted after a retention sweep.
	TypeHistoryCompacted Type = "history_compacted"
)

// Event is a single engine occurrence.
//
// Description:
//
//	Each event has a type that determines the structure of its Data field.
//	Use the matching typed data struct (VersionCreatedData,
//	SnapshotCreatedData, ...) when setting Data.
//
// Thread Safety:
//
//	Events should be treated as immutable after creation.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Type identifies the kind of event.
	Type Type `json:"type"`

	// Timestamp is when the event occurred (Unix milliseconds UTC).
	Timestamp int64 `json:"timestamp"`

	// Data contains event-specific data; one of the typed data structs
	// below.
	Data any `json:"data,omitempty"`
}

// Time returns the event timestamp as a time.Time.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// VersionCreatedData accompanies TypeVersionCreated.
type VersionCreatedData struct {
	VersionID string `json:"version_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Branch    string `json:"branch"`
	Message   string `json:"message,omitempty"`
	Changes   int    `json:"changes"`
}

// SnapshotCreatedData accompanies TypeSnapshotCreated.
type SnapshotCreatedData struct {
	SnapshotID      string `json:"snapshot_id"`
	VersionID       string `json:"version_id"`
	CompressedBytes int64  `json:"compressed_bytes"`
	Checksum        string `json:"checksum"`
}

// SnapshotRestoredData accompanies TypeSnapshotRestored.
type SnapshotRestoredData struct {
	SnapshotID string `json:"snapshot_id"`
	VersionID  string `json:"version_id"`
	Elements   int    `json:"elements"`
}

// SnapshotDeletedData accompanies TypeSnapshotDeleted.
type SnapshotDeletedData struct {
	SnapshotID string `json:"snapshot_id"`
}

// BranchCreatedData accompanies TypeBranchCreated.
type BranchCreatedData struct {
	Name   string `json:"name"`
	HeadID string `json:"head_id"`
}

// BranchDeletedData accompanies TypeBranchDeleted.
type BranchDeletedData struct {
	Name string `json:"name"`
}

// BranchesMergedData accompanies TypeBranchesMerged.
type BranchesMergedData struct {
	Source          string `json:"source"`
	Target          string `json:"target"`
	Status          string `json:"status"`
	MergedVersionID string `json:"merged_version_id,omitempty"`
	Conflicts       int    `json:"conflicts"`
}

// HistoryCompactedData accompanies TypeHistoryCompacted.
type HistoryCompactedData struct {
	VersionsPurged   int `json:"versions_purged"`
	SnapshotsCreated int `json:"snapshots_created"`
}

// Publisher is the port the engine publishes through. Implementations must
// not block: slow consumers belong behind the Emitter's handler layer, not
// in the commit path.
type Publisher interface {
	Publish(event Event)
}

// NopPublisher discards every event. It is the engine default.
type NopPublisher struct{}

// Publish drops the event.
func (NopPublisher) Publish(Event) {}
