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

import "errors"

// -----------------------------------------------------------------------------
// Version Store Errors
// -----------------------------------------------------------------------------

var (
	// ErrVersionNotFound is returned when a version lookup misses.
	ErrVersionNotFound = errors.New("version not found")

	// ErrParentNotFound is returned when a commit references a parent
	// version that does not exist in the ledger.
	ErrParentNotFound = errors.New("parent version not found")

	// ErrConcurrentHeadConflict is returned when a branch head moved
	// between a scope observing it and the commit landing.
	ErrConcurrentHeadConflict = errors.New("branch head moved concurrently")

	// ErrRetentionInvariantViolation is returned when a purge would leave
	// a branch without its head version.
	ErrRetentionInvariantViolation = errors.New("purge would remove a branch head")

	// ErrStoreClosed is returned for operations on a closed store.
	ErrStoreClosed = errors.New("version store is closed")

	// ErrCorruptRecord is returned when a persisted record fails its
	// integrity check (CRC mismatch).
	ErrCorruptRecord = errors.New("record corrupted (CRC mismatch)")
)

// -----------------------------------------------------------------------------
// Branch Errors
// -----------------------------------------------------------------------------

var (
	// ErrBranchNotFound is returned when a branch lookup misses.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrBranchExists is returned when creating a branch whose name is taken.
	ErrBranchExists = errors.New("branch already exists")

	// ErrInvalidBranchName is returned for names outside the allowed pattern.
	ErrInvalidBranchName = errors.New("invalid branch name")

	// ErrReservedBranchName is returned for names the engine reserves.
	ErrReservedBranchName = errors.New("branch name is reserved")

	// ErrCannotDeleteDefaultBranch is returned when deleting the default branch.
	ErrCannotDeleteDefaultBranch = errors.New("default branch cannot be deleted")

	// ErrBranchArchived is returned when mutating an archived branch.
	ErrBranchArchived = errors.New("branch is archived (read-only)")
)

// -----------------------------------------------------------------------------
// Snapshot Errors
// -----------------------------------------------------------------------------

var (
	// ErrSnapshotNotFound is returned when a snapshot lookup misses.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotCorrupted is returned when a snapshot payload fails its
	// checksum validation.
	ErrSnapshotCorrupted = errors.New("snapshot corrupted (checksum mismatch)")
)

// -----------------------------------------------------------------------------
// Scope & Resolution Errors
// -----------------------------------------------------------------------------

var (
	// ErrScopeClosed is returned for operations on a committed or
	// rolled-back scope.
	ErrScopeClosed = errors.New("mutation scope is closed")

	// ErrNothingToCommit is returned when a scope commits with no
	// pending changes.
	ErrNothingToCommit = errors.New("no pending changes to commit")

	// ErrInvalidRef is returned when a version reference cannot be parsed.
	ErrInvalidRef = errors.New("invalid version reference")

	// ErrStateUnreachable is returned when neither a snapshot nor a delta
	// chain can reconstruct the requested state.
	ErrStateUnreachable = errors.New("state unreachable: no snapshot or delta chain covers it")

	// ErrNilContext is returned when a nil context reaches a public entry point.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilStore is returned when a required store dependency is nil.
	ErrNilStore = errors.New("store must not be nil")
)
