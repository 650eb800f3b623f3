// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"time"

	"github.com/AleutianAI/chronograph/graph"
	"github.com/AleutianAI/chronograph/versioning"
)

// -----------------------------------------------------------------------------
// Request Types
// -----------------------------------------------------------------------------

// ListVersionsRequest is the query for GET /v1/ledger/versions.
type ListVersionsRequest struct {
	// Branch restricts the listing to one branch. Defaults to the
	// engine's default branch.
	Branch string `form:"branch"`

	// Limit is the maximum number of versions returned. Default: 50.
	Limit int `form:"limit"`

	// Offset skips that many versions from the newest end.
	Offset int `form:"offset"`
}

// HistoryRequest is the query for GET /v1/ledger/history.
type HistoryRequest struct {
	// Ref is the version reference to walk back from. Required.
	Ref string `form:"ref" binding:"required"`

	// Limit is the maximum number of versions returned. Default: 50.
	Limit int `form:"limit"`
}

// ResolveRequest is the query for GET /v1/ledger/resolve.
type ResolveRequest struct {
	// Ref is the version reference to resolve. Required.
	Ref string `form:"ref" binding:"required"`
}

// StateRequest is the query for GET /v1/ledger/state.
type StateRequest struct {
	// Ref is the version reference to reconstruct. Required.
	Ref string `form:"ref" binding:"required"`
}

// DiffRequest is the query for GET /v1/ledger/diff.
type DiffRequest struct {
	// From and To are the version references to diff. Both required.
	From string `form:"from" binding:"required"`
	To   string `form:"to" binding:"required"`

	// Payloads includes decoded element payloads in each delta.
	Payloads bool `form:"payloads"`
}

// DeltasRequest is the query for GET /v1/ledger/versions/:id/deltas.
type DeltasRequest struct {
	// Payloads includes decoded element payloads in each delta.
	Payloads bool `form:"payloads"`
}

// GetBranchRequest is the query for GET /v1/ledger/branch.
//
// Branch lookup goes through a query parameter rather than a path segment
// because branch names may contain slashes ("feature/axioms").
type GetBranchRequest struct {
	// Name is the branch name. Required.
	Name string `form:"name" binding:"required"`
}

// ListBranchesRequest is the query for GET /v1/ledger/branches.
type ListBranchesRequest struct {
	// Archived includes archived branches in the listing.
	Archived bool `form:"archived"`
}

// CompareBranchesRequest is the query for GET /v1/ledger/branches/compare.
type CompareBranchesRequest struct {
	// A and B are the branch names to compare. Both required.
	A string `form:"a" binding:"required"`
	B string `form:"b" binding:"required"`
}

// ListSnapshotsRequest is the query for GET /v1/ledger/snapshots.
type ListSnapshotsRequest struct {
	// Deleted includes soft-deleted snapshots in the listing.
	Deleted bool `form:"deleted"`
}

// -----------------------------------------------------------------------------
// Response Types
// -----------------------------------------------------------------------------

// ChangeSummary aggregates a version's deltas by element kind and change type.
type ChangeSummary struct {
	EntitiesCreated  int `json:"entities_created"`
	EntitiesModified int `json:"entities_modified"`
	EntitiesDeleted  int `json:"entities_deleted"`

	RelationshipsCreated  int `json:"relationships_created"`
	RelationshipsModified int `json:"relationships_modified"`
	RelationshipsDeleted  int `json:"relationships_deleted"`

	ClaimsCreated  int `json:"claims_created"`
	ClaimsModified int `json:"claims_modified"`
	ClaimsDeleted  int `json:"claims_deleted"`

	AxiomsCreated  int `json:"axioms_created"`
	AxiomsModified int `json:"axioms_modified"`
	AxiomsDeleted  int `json:"axioms_deleted"`

	// Total is the overall delta count.
	Total int `json:"total"`
}

// VersionInfo describes one commit in the ledger.
type VersionInfo struct {
	// ID uniquely identifies the version.
	ID string `json:"id"`

	// ParentID is the parent version, empty for a root.
	ParentID string `json:"parent_id,omitempty"`

	// Branch is the branch the version was committed to.
	Branch string `json:"branch"`

	// Message is the commit description.
	Message string `json:"message"`

	// CreatedBy is the committing actor.
	CreatedBy string `json:"created_by"`

	// CreatedAt is the commit time in RFC 3339 UTC.
	CreatedAt string `json:"created_at"`

	// Seq is the version's position in the append-only log.
	Seq uint64 `json:"seq"`

	// Changes summarizes the version's deltas.
	Changes ChangeSummary `json:"changes"`
}

// VersionsResponse is the response for GET /v1/ledger/versions.
type VersionsResponse struct {
	// Branch is the branch that was listed.
	Branch string `json:"branch"`

	// Count is the number of versions returned.
	Count int `json:"count"`

	// Versions are ordered newest first.
	Versions []VersionInfo `json:"versions"`
}

// HistoryResponse is the response for GET /v1/ledger/history.
type HistoryResponse struct {
	// Ref is the reference the walk started from.
	Ref string `json:"ref"`

	// Count is the number of versions returned.
	Count int `json:"count"`

	// Versions are ordered newest first, starting at the resolved ref.
	Versions []VersionInfo `json:"versions"`
}

// DeltaInfo describes one element-level change inside a version.
type DeltaInfo struct {
	// ID uniquely identifies the delta.
	ID string `json:"id"`

	// VersionID is the owning version.
	VersionID string `json:"version_id"`

	// Seq orders the delta within its version.
	Seq int `json:"seq"`

	// ElementType and ElementID identify the changed element.
	ElementType string `json:"element_type"`
	ElementID   string `json:"element_id"`

	// ChangeType is "create", "update" or "delete".
	ChangeType string `json:"change_type"`

	// CreatedAt is when the change was recorded, RFC 3339 UTC.
	CreatedAt string `json:"created_at"`

	// Old and New are the decoded element payloads before and after the
	// change. Populated only when payloads were requested; Old is absent
	// for creates and New is absent for deletes.
	Old any `json:"old,omitempty"`
	New any `json:"new,omitempty"`
}

// DeltasResponse is the response for GET /v1/ledger/versions/:id/deltas.
type DeltasResponse struct {
	// VersionID is the version the deltas belong to.
	VersionID string `json:"version_id"`

	// Count is the number of deltas returned.
	Count int `json:"count"`

	// Deltas are ordered by their sequence within the version.
	Deltas []DeltaInfo `json:"deltas"`
}

// DiffResponse is the response for GET /v1/ledger/diff.
type DiffResponse struct {
	// From and To echo the requested references.
	From string `json:"from"`
	To   string `json:"to"`

	// FromVersionID and ToVersionID are the resolved endpoints.
	FromVersionID string `json:"from_version_id"`
	ToVersionID   string `json:"to_version_id"`

	// Count is the number of deltas returned.
	Count int `json:"count"`

	// Deltas transform the from-state into the to-state when applied in
	// order.
	Deltas []DeltaInfo `json:"deltas"`
}

// StateResponse is the response for GET /v1/ledger/state.
//
// The response carries counts and a checksum rather than the full element
// set; bulk extraction goes through the CLI export command.
type StateResponse struct {
	// Ref echoes the requested reference.
	Ref string `json:"ref"`

	// VersionID is the version the ref resolved to.
	VersionID string `json:"version_id"`

	// Element counts at the resolved version.
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
	Claims        int `json:"claims"`
	Axioms        int `json:"axioms"`
	Total         int `json:"total"`

	// Checksum is the SHA-256 hex digest of the canonical state encoding.
	Checksum string `json:"checksum"`
}

// BranchInfo describes one branch.
type BranchInfo struct {
	// Name uniquely identifies the branch.
	Name string `json:"name"`

	// HeadID is the branch's newest version.
	HeadID string `json:"head_id"`

	// BaseID is the version the branch was forked from, empty for the
	// default branch's root.
	BaseID string `json:"base_id,omitempty"`

	// CreatedBy is the creating actor.
	CreatedBy string `json:"created_by"`

	// CreatedAt is the creation time in RFC 3339 UTC.
	CreatedAt string `json:"created_at"`

	// IsDefault marks the engine's default branch.
	IsDefault bool `json:"is_default"`

	// Archived marks a read-only branch hidden from normal listings.
	Archived bool `json:"archived,omitempty"`
}

// BranchesResponse is the response for GET /v1/ledger/branches.
type BranchesResponse struct {
	// Count is the number of branches returned.
	Count int `json:"count"`

	// Branches are sorted by name.
	Branches []BranchInfo `json:"branches"`
}

// ComparisonInfo is the response for GET /v1/ledger/branches/compare.
type ComparisonInfo struct {
	// A and B echo the compared branch names.
	A string `json:"a"`
	B string `json:"b"`

	// Ahead counts versions on A that B lacks; Behind the reverse.
	Ahead  int `json:"ahead"`
	Behind int `json:"behind"`

	// CommonAncestorID is empty when the branches share no retained
	// history.
	CommonAncestorID string `json:"common_ancestor_id,omitempty"`
}

// SnapshotInfo describes one persisted full-state snapshot.
type SnapshotInfo struct {
	// ID uniquely identifies the snapshot.
	ID string `json:"id"`

	// VersionID is the version whose state the snapshot captures.
	VersionID string `json:"version_id"`

	// Name is an optional human label.
	Name string `json:"name,omitempty"`

	// Description is optional free text.
	Description string `json:"description,omitempty"`

	// CreatedBy is the creating actor.
	CreatedBy string `json:"created_by"`

	// CreatedAt is when the snapshot was taken, RFC 3339 UTC.
	CreatedAt string `json:"created_at"`

	// Element counts at snapshot time.
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
	Claims        int `json:"claims"`
	Axioms        int `json:"axioms"`
	Elements      int `json:"elements"`

	// Payload sizes in bytes.
	UncompressedBytes int64 `json:"uncompressed_bytes"`
	CompressedBytes   int64 `json:"compressed_bytes"`

	// CompressionRatio is compressed/uncompressed, 0 when unknown.
	CompressionRatio float64 `json:"compression_ratio"`

	// Checksum is the SHA-256 hex digest of the stored payload.
	Checksum string `json:"checksum"`

	// Deleted marks a soft-deleted snapshot whose payload was reclaimed.
	Deleted bool `json:"deleted,omitempty"`
}

// SnapshotsResponse is the response for GET /v1/ledger/snapshots.
type SnapshotsResponse struct {
	// Count is the number of snapshots returned.
	Count int `json:"count"`

	// Snapshots are ordered newest first.
	Snapshots []SnapshotInfo `json:"snapshots"`
}

// StatsResponse is the response for GET /v1/ledger/stats.
type StatsResponse struct {
	// Ledger record counts.
	Versions  int64 `json:"versions"`
	Deltas    int64 `json:"deltas"`
	Snapshots int64 `json:"snapshots"`
	Branches  int64 `json:"branches"`

	// OldestVersion and NewestVersion bound the ledger's commit times,
	// RFC 3339 UTC. Empty when the ledger has no versions.
	OldestVersion string `json:"oldest_version,omitempty"`
	NewestVersion string `json:"newest_version,omitempty"`

	// DefaultBranch is the branch new scopes target by default.
	DefaultBranch string `json:"default_branch"`

	// MirrorStale is true when the live mirror missed a commit and has
	// not yet been resynced.
	MirrorStale bool `json:"mirror_stale"`
}

// HealthResponse is the response for GET /v1/ledger/health.
type HealthResponse struct {
	// Status is "healthy" or "degraded".
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`
}

// ReadyResponse is the response for GET /v1/ledger/ready.
type ReadyResponse struct {
	// Ready is true if the ledger is open and answering reads.
	Ready bool `json:"ready"`

	// DefaultBranch is the engine's default branch.
	DefaultBranch string `json:"default_branch"`

	// Versions is the total version count.
	Versions int64 `json:"versions"`

	// MirrorStale is true when the live mirror is behind the ledger.
	MirrorStale bool `json:"mirror_stale"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// -----------------------------------------------------------------------------
// Converters
// -----------------------------------------------------------------------------

// formatMilli renders Unix milliseconds as RFC 3339 UTC.
func formatMilli(milli int64) string {
	return time.UnixMilli(milli).UTC().Format(time.RFC3339)
}

// newChangeSummary flattens per-kind change counts for serialization.
func newChangeSummary(s versioning.ChangeStats) ChangeSummary {
	return ChangeSummary{
		EntitiesCreated:  s.EntitiesCreated,
		EntitiesModified: s.EntitiesModified,
		EntitiesDeleted:  s.EntitiesDeleted,

		RelationshipsCreated:  s.RelationshipsCreated,
		RelationshipsModified: s.RelationshipsModified,
		RelationshipsDeleted:  s.RelationshipsDeleted,

		ClaimsCreated:  s.ClaimsCreated,
		ClaimsModified: s.ClaimsModified,
		ClaimsDeleted:  s.ClaimsDeleted,

		AxiomsCreated:  s.AxiomsCreated,
		AxiomsModified: s.AxiomsModified,
		AxiomsDeleted:  s.AxiomsDeleted,

		Total: s.Total(),
	}
}

// newVersionInfo renders one version for serialization.
func newVersionInfo(v *versioning.Version) VersionInfo {
	return VersionInfo{
		ID:        v.ID,
		ParentID:  v.ParentID,
		Branch:    v.Branch,
		Message:   v.Message,
		CreatedBy: v.CreatedBy,
		CreatedAt: v.CreatedAt().Format(time.RFC3339),
		Seq:       v.Seq,
		Changes:   newChangeSummary(v.Stats),
	}
}

// newVersionInfos renders a version list, preserving order.
func newVersionInfos(versions []*versioning.Version) []VersionInfo {
	out := make([]VersionInfo, 0, len(versions))
	for _, v := range versions {
		out = append(out, newVersionInfo(v))
	}
	return out
}

// newDeltaInfo renders one delta; withPayloads decodes the element values.
// A payload that fails to decode is left absent rather than failing the
// whole response.
func newDeltaInfo(d *versioning.Delta, withPayloads bool) DeltaInfo {
	info := DeltaInfo{
		ID:          d.ID,
		VersionID:   d.VersionID,
		Seq:         d.Seq,
		ElementType: string(d.ElementType),
		ElementID:   d.ElementID,
		ChangeType:  string(d.ChangeType),
		CreatedAt:   formatMilli(d.CreatedAtMilli),
	}
	if !withPayloads {
		return info
	}
	if old, err := d.DecodeOld(); err == nil && !old.IsZero() {
		info.Old = elementPayload(old)
	}
	if next, err := d.DecodeNew(); err == nil && !next.IsZero() {
		info.New = elementPayload(next)
	}
	return info
}

// newDeltaInfos renders a delta list, preserving order.
func newDeltaInfos(deltas []*versioning.Delta, withPayloads bool) []DeltaInfo {
	out := make([]DeltaInfo, 0, len(deltas))
	for _, d := range deltas {
		out = append(out, newDeltaInfo(d, withPayloads))
	}
	return out
}

// elementPayload unwraps the union so the response carries the concrete
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

// newBranchInfo renders one branch for serialization.
func newBranchInfo(b *versioning.Branch) BranchInfo {
	return BranchInfo{
		Name:      b.Name,
		HeadID:    b.HeadID,
		BaseID:    b.BaseID,
		CreatedBy: b.CreatedBy,
		CreatedAt: formatMilli(b.CreatedAtMilli),
		IsDefault: b.IsDefault,
		Archived:  b.Archived,
	}
}

func newSnapshotInfo(s *versioning.SnapshotRecord) SnapshotInfo {
	return SnapshotInfo{
		ID:          s.ID,
		VersionID:   s.VersionID,
		Name:        s.Name,
		Description: s.Description,
		CreatedBy:   s.CreatedBy,
		CreatedAt:   formatMilli(s.CreatedAtMilli),

		Entities:      s.EntityCount,
		Relationships: s.RelationshipCount,
		Claims:        s.ClaimCount,
		Axioms:        s.AxiomCount,
		Elements:      s.Elements(),

		UncompressedBytes: s.UncompressedBytes,
		CompressedBytes:   s.CompressedBytes,
		CompressionRatio:  s.CompressionRatio(),

		Checksum: s.Checksum,
		Deleted:  s.Deleted,
	}
}
