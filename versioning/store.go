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
	"context"
)

// VersionStore is the append-only ledger beneath the versioning engine.
//
// Description:
//
//	Persists version records, their element deltas, branch pointers and
//	snapshot payloads. Versions are immutable once written; the only
//	mutable records are branch pointers and snapshot tombstones. Every
//	version carries a ledger-assigned sequence number, so ancestor walks
//	are index lookups rather than pointer chases.
//
// Thread Safety: Implementations must be safe for concurrent use.
type VersionStore interface {
	// PutVersion atomically appends a version, its deltas, and advances
	// the branch head, all in one transaction.
	//
	// Inputs:
	//   - ctx: Context for cancellation. Must not be nil.
	//   - version: Version record. Seq and ParentSeq are assigned here.
	//   - deltas: Element deltas for this version. May be empty for roots.
	//   - expectedHead: The branch head the caller based its work on.
	//     Empty means the branch must have no head yet.
	//
	// Outputs:
	//   - error: ErrConcurrentHeadConflict if the head moved since the
	//     caller read it, ErrBranchNotFound if the branch record is
	//     missing, ErrParentNotFound if ParentID resolves to nothing.
	PutVersion(ctx context.Context, version *Version, deltas []*Delta, expectedHead string) error

	// GetVersion returns a version record by ID.
	GetVersion(ctx context.Context, id string) (*Version, error)

	// GetVersionBySeq returns a version record by ledger sequence number.
	GetVersionBySeq(ctx context.Context, seq uint64) (*Version, error)

	// GetDeltas returns the element deltas recorded for a version, in
	// the order they were applied.
	GetDeltas(ctx context.Context, versionID string) ([]*Delta, error)

	// ListVersions returns versions on a branch, newest first.
	//
	// Inputs:
	//   - branch: Branch name. Must exist.
	//   - limit: Maximum records returned. <= 0 means no limit.
	//   - offset: Records skipped from the newest end.
	ListVersions(ctx context.Context, branch string, limit, offset int) ([]*Version, error)

	// GetVersionsByTimeRange returns versions on a branch created within
	// [fromMilli, toMilli], oldest first.
	GetVersionsByTimeRange(ctx context.Context, branch string, fromMilli, toMilli int64) ([]*Version, error)

	// GetChain walks parent links from the given version towards the
	// root, returning up to limit records starting with the version
	// itself. limit <= 0 means walk all the way to the root.
	GetChain(ctx context.Context, versionID string, limit int) ([]*Version, error)

	// LatestVersion returns the version at the branch head, or
	// ErrVersionNotFound if the branch has no commits yet.
	LatestVersion(ctx context.Context, branch string) (*Version, error)

	// PutBranch creates a branch record. Fails with ErrBranchExists if
	// the name is taken.
	PutBranch(ctx context.Context, b *Branch) error

	// GetBranch returns a branch record by name.
	GetBranch(ctx context.Context, name string) (*Branch, error)

	// ListBranches returns all branch records sorted by name.
	ListBranches(ctx context.Context) ([]*Branch, error)

	// UpdateBranch rewrites a branch record's metadata. The head pointer
	// is ignored here; use UpdateBranchHead to move heads.
	UpdateBranch(ctx context.Context, b *Branch) error

	// UpdateBranchHead moves a branch head with compare-and-swap
	// semantics: fails with ErrConcurrentHeadConflict unless the stored
	// head still equals expectedHead.
	UpdateBranchHead(ctx context.Context, name, expectedHead, newHead string) error

	// DeleteBranch removes a branch pointer. Version records the branch
	// pointed at are left in the ledger.
	DeleteBranch(ctx context.Context, name string) error

	// PutSnapshot stores a snapshot record and its compressed payload.
	PutSnapshot(ctx context.Context, rec *SnapshotRecord, payload []byte) error

	// GetSnapshot returns a snapshot record by ID.
	GetSnapshot(ctx context.Context, id string) (*SnapshotRecord, error)

	// GetSnapshotByVersion returns the snapshot anchored at a version,
	// or ErrSnapshotNotFound if that version was never snapshotted.
	GetSnapshotByVersion(ctx context.Context, versionID string) (*SnapshotRecord, error)

	// GetSnapshotData returns the compressed payload for a snapshot.
	GetSnapshotData(ctx context.Context, id string) ([]byte, error)

	// ListSnapshots returns snapshot records, newest first. Soft-deleted
	// records are included only when includeDeleted is true.
	ListSnapshots(ctx context.Context, includeDeleted bool) ([]*SnapshotRecord, error)

	// UpdateSnapshot rewrites a snapshot record (soft-delete tombstones).
	// The payload is untouched.
	UpdateSnapshot(ctx context.Context, rec *SnapshotRecord) error

	// DeleteSnapshot removes a snapshot record and its payload for good.
	DeleteSnapshot(ctx context.Context, id string) error

	// PurgeVersionsBefore removes versions on a branch with sequence
	// numbers strictly below seq, along with their deltas. Returns how
	// many versions were removed. Fails with
	// ErrRetentionInvariantViolation if the purge would remove any
	// branch head.
	PurgeVersionsBefore(ctx context.Context, branch string, seq uint64) (int, error)

	// Stats returns ledger-wide counters.
	Stats(ctx context.Context) (LedgerStats, error)

	// Close releases storage resources. Idempotent.
	Close() error
}
