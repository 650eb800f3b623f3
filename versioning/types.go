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
	"fmt"
	"time"

	"github.com/AleutianAI/chronograph/graph"
)

// -----------------------------------------------------------------------------
// Change Types
// -----------------------------------------------------------------------------

// ChangeType classifies how a delta touches its element.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// String returns the string representation of the change type.
func (c ChangeType) String() string {
	return string(c)
}

// Valid reports whether c is a known change type.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeCreate, ChangeUpdate, ChangeDelete:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Change Stats
// -----------------------------------------------------------------------------

// ChangeStats counts a version's deltas by element kind and change type.
// A version's stats are always derived from its delta set at commit time,
// never caller-supplied, so the two can never disagree.
type ChangeStats struct {
	EntitiesCreated  int
	EntitiesModified int
	EntitiesDeleted  int

	RelationshipsCreated  int
	RelationshipsModified int
	RelationshipsDeleted  int

	ClaimsCreated  int
	ClaimsModified int
	ClaimsDeleted  int

	AxiomsCreated  int
	AxiomsModified int
	AxiomsDeleted  int
}

// Add records one change of the given kind and type.
func (s *ChangeStats) Add(t graph.ElementType, c ChangeType) {
	switch t {
	case graph.ElementTypeEntity:
		switch c {
		case ChangeCreate:
			s.EntitiesCreated++
		case ChangeUpdate:
			s.EntitiesModified++
		case ChangeDelete:
			s.EntitiesDeleted++
		}
	case graph.ElementTypeRelationship:
		switch c {
		case ChangeCreate:
			s.RelationshipsCreated++
		case ChangeUpdate:
			s.RelationshipsModified++
		case ChangeDelete:
			s.RelationshipsDeleted++
		}
	case graph.ElementTypeClaim:
		switch c {
		case ChangeCreate:
			s.ClaimsCreated++
		case ChangeUpdate:
			s.ClaimsModified++
		case ChangeDelete:
			s.ClaimsDeleted++
		}
	case graph.ElementTypeAxiom:
		switch c {
		case ChangeCreate:
			s.AxiomsCreated++
		case ChangeUpdate:
			s.AxiomsModified++
		case ChangeDelete:
			s.AxiomsDeleted++
		}
	}
}

// Merge folds other into s.
func (s *ChangeStats) Merge(other ChangeStats) {
	s.EntitiesCreated += other.EntitiesCreated
	s.EntitiesModified += other.EntitiesModified
	s.EntitiesDeleted += other.EntitiesDeleted
	s.RelationshipsCreated += other.RelationshipsCreated
	s.RelationshipsModified += other.RelationshipsModified
	s.RelationshipsDeleted += other.RelationshipsDeleted
	s.ClaimsCreated += other.ClaimsCreated
	s.ClaimsModified += other.ClaimsModified
	s.ClaimsDeleted += other.ClaimsDeleted
	s.AxiomsCreated += other.AxiomsCreated
	s.AxiomsModified += other.AxiomsModified
	s.AxiomsDeleted += other.AxiomsDeleted
}

// Total returns the number of changes across all kinds and types.
func (s ChangeStats) Total() int {
	return s.EntitiesCreated + s.EntitiesModified + s.EntitiesDeleted +
		s.RelationshipsCreated + s.RelationshipsModified + s.RelationshipsDeleted +
		s.ClaimsCreated + s.ClaimsModified + s.ClaimsDeleted +
		s.AxiomsCreated + s.AxiomsModified + s.AxiomsDeleted
}

// -----------------------------------------------------------------------------
// Versions
// -----------------------------------------------------------------------------

// Version is one atomic commit in the ledger.
//
// Description:
//
//	Versions are append-only: once written they are never modified.
//	Each version belongs to exactly one branch and references its parent
//	both by ID and by sequence number. Seq is the position in the global
//	append-only version log (starting at 1); ParentSeq 0 marks a root.
//	Ancestor walks hop ParentSeq directly, one ledger read per step.
type Version struct {
	// ID uniquely identifies the version.
	ID string

	// ParentID is the parent version's ID, or "" for a root version.
	ParentID string

	// Branch names the branch this version was committed to.
	Branch string

	// Message is the caller-supplied commit description.
	Message string

	// CreatedBy identifies the committing actor.
	CreatedBy string

	// CreatedAtMilli is the commit time in Unix milliseconds UTC.
	CreatedAtMilli int64

	// Stats aggregates the version's deltas by kind and change type.
	Stats ChangeStats

	// Seq is the version's position in the append-only log, starting at 1.
	Seq uint64

	// ParentSeq is the parent's log position, or 0 for a root version.
	ParentSeq uint64
}

// IsRoot reports whether the version has no parent.
func (v *Version) IsRoot() bool {
	return v.ParentSeq == 0
}

// CreatedAt returns the commit time as a time.Time.
func (v *Version) CreatedAt() time.Time {
	return time.UnixMilli(v.CreatedAtMilli).UTC()
}

// ShortID returns a truncated ID for logs and CLI output.
func (v *Version) ShortID() string {
	if len(v.ID) <= 8 {
		return v.ID
	}
	return v.ID[:8]
}

// -----------------------------------------------------------------------------
// Deltas
// -----------------------------------------------------------------------------

// Delta is one element-level change inside a version.
//
// Description:
//
//	OldValue and NewValue hold the element's encoded payload (see
//	EncodeElement): empty OldValue for a create, empty NewValue for a
//	delete, both populated for an update. Payloads decode lazily so
//	history scans never pay for elements they do not inspect.
type Delta struct {
	// ID uniquely identifies the delta.
	ID string

	// VersionID is the owning version.
	VersionID string

	// Seq orders the delta within its version, starting at 0.
	Seq int

	// ElementType and ElementID identify the changed element.
	ElementType graph.ElementType
	ElementID   string

	// ChangeType classifies the mutation.
	ChangeType ChangeType

	// OldValue is the encoded element before the change ("" for creates).
	OldValue []byte

	// NewValue is the encoded element after the change ("" for deletes).
	NewValue []byte

	// CreatedAtMilli is when the change was recorded, Unix milliseconds UTC.
	CreatedAtMilli int64
}

// DecodeOld returns the element payload before the change.
// Returns the zero Element for creates.
func (d *Delta) DecodeOld() (graph.Element, error) {
	if len(d.OldValue) == 0 {
		return graph.Element{}, nil
	}
	return DecodeElement(d.OldValue)
}

// DecodeNew returns the element payload after the change.
// Returns the zero Element for deletes.
func (d *Delta) DecodeNew() (graph.Element, error) {
	if len(d.NewValue) == 0 {
		return graph.Element{}, nil
	}
	return DecodeElement(d.NewValue)
}

// Invert returns the reverse of d, used when replaying history backwards:
// creates become deletes, deletes become creates, updates swap old and new.
func (d *Delta) Invert() Delta {
	inv := Delta{
		ID:             d.ID,
		VersionID:      d.VersionID,
		Seq:            d.Seq,
		ElementType:    d.ElementType,
		ElementID:      d.ElementID,
		CreatedAtMilli: d.CreatedAtMilli,
		OldValue:       d.NewValue,
		NewValue:       d.OldValue,
	}
	switch d.ChangeType {
	case ChangeCreate:
		inv.ChangeType = ChangeDelete
	case ChangeDelete:
		inv.ChangeType = ChangeCreate
	default:
		inv.ChangeType = ChangeUpdate
	}
	return inv
}

// Validate checks the delta's structural invariants.
func (d *Delta) Validate() error {
	if d.ElementID == "" {
		return fmt.Errorf("%w: delta has no element ID", ErrCorruptRecord)
	}
	if !d.ElementType.Valid() {
		return fmt.Errorf("%w: delta %s has unknown element type %q", ErrCorruptRecord, d.ID, d.ElementType)
	}
	if !d.ChangeType.Valid() {
		return fmt.Errorf("%w: delta %s has unknown change type %q", ErrCorruptRecord, d.ID, d.ChangeType)
	}
	switch d.ChangeType {
	case ChangeCreate:
		if len(d.NewValue) == 0 {
			return fmt.Errorf("%w: create delta %s has no new value", ErrCorruptRecord, d.ID)
		}
	case ChangeUpdate:
		if len(d.OldValue) == 0 || len(d.NewValue) == 0 {
			return fmt.Errorf("%w: update delta %s missing old or new value", ErrCorruptRecord, d.ID)
		}
	case ChangeDelete:
		if len(d.OldValue) == 0 {
			return fmt.Errorf("%w: delete delta %s has no old value", ErrCorruptRecord, d.ID)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

// SnapshotRecord is the metadata for one persisted full-state snapshot.
// The payload itself (gzip-compressed canonical state) is stored separately
// and verified against Checksum on every read.
type SnapshotRecord struct {
	// ID uniquely identifies the snapshot.
	ID string

	// VersionID is the version whose state the snapshot captures.
	VersionID string

	// Name is an optional human label.
	Name string

	// Description is optional free text.
	Description string

	// CreatedBy identifies the creating actor.
	CreatedBy string

	// CreatedAtMilli is when the snapshot was taken, Unix milliseconds UTC.
	CreatedAtMilli int64

	// Element counts at snapshot time.
	EntityCount       int
	RelationshipCount int
	ClaimCount        int
	AxiomCount        int

	// UncompressedBytes is the canonical state size before compression.
	UncompressedBytes int64

	// CompressedBytes is the stored payload size.
	CompressedBytes int64

	// Checksum is the SHA-256 hex digest of the compressed payload as
	// stored. Recomputed over the stored bytes before decompression.
	Checksum string

	// Deleted marks a soft-deleted snapshot whose payload was reclaimed.
	Deleted        bool
	DeletedAtMilli int64
}

// Elements returns the total element count captured by the snapshot.
func (s *SnapshotRecord) Elements() int {
	return s.EntityCount + s.RelationshipCount + s.ClaimCount + s.AxiomCount
}

// CompressionRatio returns compressed/uncompressed size, or 0 when unknown.
func (s *SnapshotRecord) CompressionRatio() float64 {
	if s.UncompressedBytes == 0 {
		return 0
	}
	return float64(s.CompressedBytes) / float64(s.UncompressedBytes)
}

// -----------------------------------------------------------------------------
// Branches
// -----------------------------------------------------------------------------

// Branch is a movable pointer to a head version.
type Branch struct {
	// Name uniquely identifies the branch.
	Name string

	// HeadID is the branch's newest version.
	HeadID string

	// BaseID is the version the branch was forked from ("" for the
	// default branch's root).
	BaseID string

	// CreatedBy identifies the creating actor.
	CreatedBy string

	// CreatedAtMilli is the creation time, Unix milliseconds UTC.
	CreatedAtMilli int64

	// IsDefault marks the engine's default branch.
	IsDefault bool

	// Archived hides the branch from normal listings without deleting it.
	Archived bool
}

// -----------------------------------------------------------------------------
// Refs
// -----------------------------------------------------------------------------

// Ref is a textual version reference. Supported forms:
//
//	<version-id>               exact version
//	<branch>                   the branch head
//	<snapshot-name>            the version a named snapshot was taken at
//	<branch>~N                 N commits before the branch head
//	<version-id>~N             N commits before the version
//	<branch>@<timestamp>       newest version at or before the instant,
//	                           timestamp as RFC3339 or Unix milliseconds
//
// A name is tried as a version ID first, then a branch, then a snapshot.
type Ref string

// String returns the reference text.
func (r Ref) String() string {
	return string(r)
}

// -----------------------------------------------------------------------------
// Ledger Stats
// -----------------------------------------------------------------------------

// LedgerStats summarizes the version store's contents.
type LedgerStats struct {
	Versions  int64
	Deltas    int64
	Snapshots int64
	Branches  int64

	// OldestVersionMilli and NewestVersionMilli bound the ledger's
	// commit times (0 when empty).
	OldestVersionMilli int64
	NewestVersionMilli int64
}
