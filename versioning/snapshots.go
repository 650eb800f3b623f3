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
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/chronograph/events"
	"github.com/AleutianAI/chronograph/graph"
)

var snapshotTracer = otel.Tracer("chronograph.snapshots")

// loggerWithTrace returns a logger with trace context attached so log
// lines correlate with spans.
func loggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// -----------------------------------------------------------------------------
// SnapshotManager
// -----------------------------------------------------------------------------

// SnapshotManager captures, verifies and restores full-state snapshots.
//
// Description:
//
//	A snapshot is the complete graph state at one version, gzip
//	compressed and fingerprinted with SHA-256 over the compressed
//	payload exactly as stored. Snapshots anchor state resolution: the
//	resolver replays deltas from the nearest snapshotted ancestor
//	instead of from the root, and history compaction uses them to
//	discard old delta chains without losing reachable states.
//
// Thread Safety: Safe for concurrent use.
type SnapshotManager struct {
	store     VersionStore
	resolver  *Resolver
	tracker   *Tracker
	publisher events.Publisher
	logger    *slog.Logger
	now       func() int64

	compressionLevel int
	snapshotEvery    int
	minKept          int
	maxAge           time.Duration
}

// newSnapshotManager wires a snapshot manager; the engine owns construction.
// The tracker is bound afterwards because it depends on this manager.
func newSnapshotManager(store VersionStore, resolver *Resolver, publisher events.Publisher, cfg Config, now func() int64) *SnapshotManager {
	return &SnapshotManager{
		store:            store,
		resolver:         resolver,
		publisher:        publisher,
		logger:           cfg.Logger.With(slog.String("component", "snapshots")),
		now:              now,
		compressionLevel: cfg.CompressionLevel,
		snapshotEvery:    cfg.SnapshotEvery,
		minKept:          cfg.MinSnapshotsKept,
		maxAge:           cfg.RetentionMaxAge,
	}
}

func (m *SnapshotManager) bindTracker(t *Tracker) {
	m.tracker = t
}

// CreateSnapshotOptions configures snapshot creation.
type CreateSnapshotOptions struct {
	// Name is a human-readable label. Defaults to "snapshot-<short id>".
	Name string

	// Description is free-form text.
	Description string

	// CreatedBy is recorded as the snapshot author. Optional.
	CreatedBy string
}

// RestoreOptions configures a snapshot restore.
type RestoreOptions struct {
	// Branch receiving the restored state. Empty means the default branch.
	Branch string

	// Actor is recorded as the restore version author. Optional.
	Actor string
}

// CompactionResult summarizes one history compaction run.
type CompactionResult struct {
	VersionsPurged   int
	SnapshotsCreated int
	SnapshotsDeleted int
}

// Create captures a snapshot of the state at a version.
//
// Description:
//
//	Idempotent per version: if a live snapshot already anchors the
//	version, it is returned unchanged and no new payload is written.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - versionID: Version whose state is captured.
//   - opts: Naming and attribution.
//
// Outputs:
//   - *SnapshotRecord: The created (or pre-existing) snapshot.
//   - error: ErrVersionNotFound if the version is unknown.
func (m *SnapshotManager) Create(ctx context.Context, versionID string, opts CreateSnapshotOptions) (*SnapshotRecord, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	start := time.Now()
	ctx, span := snapshotTracer.Start(ctx, "snapshots.Create",
		trace.WithAttributes(attribute.String("version_id", versionID)),
	)
	defer span.End()

	logger := loggerWithTrace(ctx, m.logger)

	version, err := m.store.GetVersion(ctx, versionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if existing, err := m.store.GetSnapshotByVersion(ctx, versionID); err == nil && !existing.Deleted {
		span.SetAttributes(attribute.Bool("already_exists", true))
		return existing, nil
	} else if err != nil && !errors.Is(err, ErrSnapshotNotFound) {
		return nil, err
	}

	state, err := m.resolver.stateForVersion(ctx, version)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "materialize state failed")
		return nil, fmt.Errorf("materialize state: %w", err)
	}

	raw, err := encodeState(state)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Compress and fingerprint in one pass. The checksum covers the
	// compressed bytes exactly as stored, so verification never has to
	// decompress first.
	var buf bytes.Buffer
	hasher := sha256.New()
	gzw, err := gzip.NewWriterLevel(io.MultiWriter(&buf, hasher), m.compressionLevel)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := gzw.Write(raw); err != nil {
		gzw.Close()
		span.RecordError(err)
		return nil, fmt.Errorf("compress state: %w", err)
	}
	if err := gzw.Close(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("close gzip: %w", err)
	}

	counts := state.Counts()
	name := opts.Name
	if name == "" {
		name = "snapshot-" + version.ShortID()
	}

	rec := &SnapshotRecord{
		ID:                uuid.NewString(),
		VersionID:         versionID,
		Name:              name,
		Description:       opts.Description,
		CreatedBy:         opts.CreatedBy,
		CreatedAtMilli:    m.now(),
		EntityCount:       counts.Entities,
		RelationshipCount: counts.Relationships,
		ClaimCount:        counts.Claims,
		AxiomCount:        counts.Axioms,
		UncompressedBytes: int64(len(raw)),
		CompressedBytes:   int64(buf.Len()),
		Checksum:          hex.EncodeToString(hasher.Sum(nil)),
	}

	if err := m.store.PutSnapshot(ctx, rec, buf.Bytes()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store snapshot failed")
		return nil, fmt.Errorf("store snapshot: %w", err)
	}

	snapshotDuration.WithLabelValues("create").Observe(time.Since(start).Seconds())
	snapshotCompressedBytes.Observe(float64(buf.Len()))
	span.SetAttributes(
		attribute.String("snapshot_id", rec.ID),
		attribute.Int64("compressed_bytes", rec.CompressedBytes),
	)

	m.publisher.Publish(events.Event{
		Type: events.TypeSnapshotCreated,
		Data: events.SnapshotCreatedData{
			SnapshotID:      rec.ID,
			VersionID:       versionID,
			CompressedBytes: rec.CompressedBytes,
			Checksum:        rec.Checksum,
		},
	})

	logger.Info("snapshot created",
		slog.String("snapshot_id", rec.ID),
		slog.String("version_id", versionID),
		slog.Int("elements", rec.Elements()),
		slog.Int64("compressed_bytes", rec.CompressedBytes),
		slog.String("ratio", fmt.Sprintf("%.2f", rec.CompressionRatio())))

	return rec, nil
}

// Get returns a snapshot record by ID.
func (m *SnapshotManager) Get(ctx context.Context, id string) (*SnapshotRecord, error) {
	return m.store.GetSnapshot(ctx, id)
}

// GetByVersion returns the snapshot anchored at a version.
func (m *SnapshotManager) GetByVersion(ctx context.Context, versionID string) (*SnapshotRecord, error) {
	return m.store.GetSnapshotByVersion(ctx, versionID)
}

// GetByName returns the newest live snapshot with the given name. Names
// also work as refs, so a named snapshot pins a version for time-travel.
func (m *SnapshotManager) GetByName(ctx context.Context, name string) (*SnapshotRecord, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	records, err := m.store.ListSnapshots(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Name == name {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: name %q", ErrSnapshotNotFound, name)
}

// List returns snapshot records, newest first.
func (m *SnapshotManager) List(ctx context.Context, includeDeleted bool) ([]*SnapshotRecord, error) {
	return m.store.ListSnapshots(ctx, includeDeleted)
}

// Compare materializes two snapshots and returns the element deltas that
// transform the first into the second.
func (m *SnapshotManager) Compare(ctx context.Context, fromID, toID string) ([]*Delta, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	fromState, err := m.Materialize(ctx, fromID)
	if err != nil {
		return nil, fmt.Errorf("materialize %s: %w", fromID, err)
	}
	toState, err := m.Materialize(ctx, toID)
	if err != nil {
		return nil, fmt.Errorf("materialize %s: %w", toID, err)
	}
	return diffStates(fromState, toState)
}

// Materialize decompresses a snapshot back into a full state.
//
// Description:
//
//	The stored checksum is verified against the compressed payload
//	before any decompression happens; corrupt payloads surface as
//	ErrSnapshotCorrupted, never as garbage states.
func (m *SnapshotManager) Materialize(ctx context.Context, id string) (*graph.State, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	start := time.Now()
	ctx, span := snapshotTracer.Start(ctx, "snapshots.Materialize",
		trace.WithAttributes(attribute.String("snapshot_id", id)),
	)
	defer span.End()

	rec, err := m.store.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, fmt.Errorf("%w: %s is deleted", ErrSnapshotNotFound, id)
	}

	state, err := m.materializeRecord(ctx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "materialize failed")
		return nil, err
	}

	snapshotDuration.WithLabelValues("materialize").Observe(time.Since(start).Seconds())
	return state, nil
}

// materializeRecord verifies and decodes a snapshot payload.
func (m *SnapshotManager) materializeRecord(ctx context.Context, rec *SnapshotRecord) (*graph.State, error) {
	return materializeSnapshot(ctx, m.store, rec)
}

// materializeSnapshot verifies a snapshot's checksum against the stored
// compressed payload, then decompresses and decodes it. The resolver uses
// this directly when replaying from snapshot bases.
func materializeSnapshot(ctx context.Context, store VersionStore, rec *SnapshotRecord) (*graph.State, error) {
	data, err := store.GetSnapshotData(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != rec.Checksum {
		return nil, fmt.Errorf("%w: snapshot %s", ErrSnapshotCorrupted, rec.ID)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupted, err)
	}
	defer gzr.Close()

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupted, err)
	}

	state, err := decodeState(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupted, err)
	}
	return state, nil
}

// Verify checks a snapshot's integrity end to end.
//
// Description:
//
//	Verifies the stored checksum, decompresses the payload, decodes the
//	state and compares element counts against the record. Works on
//	soft-deleted snapshots too.
func (m *SnapshotManager) Verify(ctx context.Context, id string) error {
	if ctx == nil {
		return ErrNilContext
	}

	start := time.Now()
	ctx, span := snapshotTracer.Start(ctx, "snapshots.Verify",
		trace.WithAttributes(attribute.String("snapshot_id", id)),
	)
	defer span.End()

	rec, err := m.store.GetSnapshot(ctx, id)
	if err != nil {
		return err
	}

	state, err := m.materializeRecord(ctx, rec)
	if err != nil {
		span.RecordError(err)
		return err
	}

	counts := state.Counts()
	if counts.Entities != rec.EntityCount ||
		counts.Relationships != rec.RelationshipCount ||
		counts.Claims != rec.ClaimCount ||
		counts.Axioms != rec.AxiomCount {
		return fmt.Errorf("%w: snapshot %s element counts diverge from record", ErrSnapshotCorrupted, id)
	}

	snapshotDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())
	return nil
}

// Restore commits a snapshot's state back onto a branch as a new version.
//
// Description:
//
//	The restored state lands through a normal mutation scope, so the
//	ledger records exactly which elements the restore changed, and the
//	branch history keeps both the pre- and post-restore states
//	reachable. Restoring a state identical to the branch head returns
//	ErrNothingToCommit.
func (m *SnapshotManager) Restore(ctx context.Context, id string, opts RestoreOptions) (*Version, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	start := time.Now()
	ctx, span := snapshotTracer.Start(ctx, "snapshots.Restore",
		trace.WithAttributes(
			attribute.String("snapshot_id", id),
			attribute.String("branch", opts.Branch),
		),
	)
	defer span.End()

	logger := loggerWithTrace(ctx, m.logger)

	rec, err := m.store.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, fmt.Errorf("%w: %s is deleted", ErrSnapshotNotFound, id)
	}

	state, err := m.materializeRecord(ctx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "materialize failed")
		return nil, err
	}

	scope, err := m.tracker.Begin(ctx, BeginOptions{Branch: opts.Branch, Actor: opts.Actor})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := scope.Store().Replace(ctx, state); err != nil {
		scope.Rollback()
		span.RecordError(err)
		return nil, fmt.Errorf("apply restored state: %w", err)
	}

	version, err := scope.Commit(ctx, fmt.Sprintf("restore snapshot %s", rec.Name))
	if err != nil {
		scope.Rollback()
		span.RecordError(err)
		if !errors.Is(err, ErrNothingToCommit) {
			span.SetStatus(codes.Error, "restore commit failed")
		}
		return nil, err
	}

	snapshotDuration.WithLabelValues("restore").Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("version_id", version.ID))

	m.publisher.Publish(events.Event{
		Type: events.TypeSnapshotRestored,
		Data: events.SnapshotRestoredData{
			SnapshotID: rec.ID,
			VersionID:  version.ID,
			Elements:   rec.Elements(),
		},
	})

	logger.Info("snapshot restored",
		slog.String("snapshot_id", rec.ID),
		slog.String("branch", version.Branch),
		slog.String("version_id", version.ID),
		slog.Int("changes", version.Stats.Total()))

	return version, nil
}

// Delete tombstones a snapshot. The payload stays on disk until the next
// history compaction; deleting twice is a no-op.
func (m *SnapshotManager) Delete(ctx context.Context, id string) error {
	if ctx == nil {
		return ErrNilContext
	}

	rec, err := m.store.GetSnapshot(ctx, id)
	if err != nil {
		return err
	}
	if rec.Deleted {
		return nil
	}

	rec.Deleted = true
	rec.DeletedAtMilli = m.now()
	if err := m.store.UpdateSnapshot(ctx, rec); err != nil {
		return err
	}

	m.publisher.Publish(events.Event{
		Type: events.TypeSnapshotDeleted,
		Data: events.SnapshotDeletedData{SnapshotID: id},
	})

	m.logger.Info("snapshot deleted", slog.String("snapshot_id", id))
	return nil
}

// -----------------------------------------------------------------------------
// History Compaction
// -----------------------------------------------------------------------------

// CompactHistory discards delta history older than the retention bound.
//
// Description:
//
//	For every branch, versions at or before the cutoff are purged after
//	a snapshot is planted at the oldest surviving version, so every
//	surviving state stays reconstructible. Branch heads and fork points
//	are never purged regardless of age. Tombstoned snapshots and
//	orphaned snapshots past the minimum-kept count are hard-deleted.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - olderThan: Retention bound. <= 0 falls back to the configured
//     RetentionMaxAge; if both are zero the call fails.
//
// Outputs:
//   - *CompactionResult: What was purged, created and deleted.
//   - error: Non-nil on storage failure or a missing retention bound.
func (m *SnapshotManager) CompactHistory(ctx context.Context, olderThan time.Duration) (*CompactionResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if olderThan <= 0 {
		olderThan = m.maxAge
	}
	if olderThan <= 0 {
		return nil, errors.New("no retention bound: pass olderThan or set retention_max_age")
	}

	ctx, span := snapshotTracer.Start(ctx, "snapshots.CompactHistory",
		trace.WithAttributes(attribute.String("older_than", olderThan.String())),
	)
	defer span.End()

	logger := loggerWithTrace(ctx, m.logger)
	cutoff := m.now() - olderThan.Milliseconds()

	branches, err := m.store.ListBranches(ctx)
	if err != nil {
		return nil, err
	}

	// Fork points and heads pin the purge boundary on the branch that
	// carries them: everything a branch still references must survive.
	protected := map[string]uint64{}
	clamp := func(branch string, seq uint64) {
		if cur, ok := protected[branch]; !ok || seq < cur {
			protected[branch] = seq
		}
	}
	for _, b := range branches {
		for _, id := range []string{b.HeadID, b.BaseID} {
			if id == "" {
				continue
			}
			v, err := m.store.GetVersion(ctx, id)
			if err != nil {
				continue // already purged base; nothing left to protect
			}
			clamp(v.Branch, v.Seq)
		}
	}

	result := &CompactionResult{}

	for _, b := range branches {
		all, err := m.store.ListVersions(ctx, b.Name, 0, 0)
		if err != nil {
			return nil, err
		}
		if len(all) == 0 {
			continue
		}

		// all is newest first; find the purge boundary.
		var boundary uint64
		for i := len(all) - 1; i >= 0; i-- {
			if all[i].CreatedAtMilli > cutoff {
				break
			}
			boundary = all[i].Seq + 1
		}
		if p, ok := protected[b.Name]; ok && p < boundary {
			boundary = p
		}
		if boundary == 0 {
			continue
		}

		var oldestSurvivor *Version
		for i := len(all) - 1; i >= 0; i-- {
			if all[i].Seq >= boundary {
				oldestSurvivor = all[i]
				break
			}
		}
		if oldestSurvivor == nil {
			// Everything would go; the head guard below keeps the
			// boundary honest, so this means an empty purge.
			continue
		}

		// Plant the replay base before cutting the chain beneath it. A
		// tombstoned snapshot on the survivor does not count: the
		// cleanup pass below hard-deletes it, so the branch needs a
		// live base regardless.
		existing, err := m.store.GetSnapshotByVersion(ctx, oldestSurvivor.ID)
		if err != nil && !errors.Is(err, ErrSnapshotNotFound) {
			return result, err
		}
		if err != nil || existing.Deleted {
			if _, err := m.Create(ctx, oldestSurvivor.ID, CreateSnapshotOptions{
				Name:        "compaction-base-" + oldestSurvivor.ShortID(),
				Description: fmt.Sprintf("replay base planted by history compaction on %s", b.Name),
				CreatedBy:   "chronograph",
			}); err != nil {
				return result, fmt.Errorf("plant replay base on %s: %w", b.Name, err)
			}
			result.SnapshotsCreated++
		}

		purged, err := m.store.PurgeVersionsBefore(ctx, b.Name, boundary)
		if err != nil {
			return result, fmt.Errorf("purge %s: %w", b.Name, err)
		}
		result.VersionsPurged += purged
	}

	// Snapshot cleanup: tombstones go, orphans past the minimum go.
	recs, err := m.store.ListSnapshots(ctx, true)
	if err != nil {
		return result, err
	}
	kept := 0
	for _, rec := range recs {
		if rec.Deleted {
			if err := m.store.DeleteSnapshot(ctx, rec.ID); err != nil {
				return result, err
			}
			result.SnapshotsDeleted++
			continue
		}
		if _, err := m.store.GetVersion(ctx, rec.VersionID); err == nil {
			kept++
			continue
		}
		if kept < m.minKept || rec.CreatedAtMilli > cutoff {
			kept++
			continue
		}
		if err := m.store.DeleteSnapshot(ctx, rec.ID); err != nil {
			return result, err
		}
		result.SnapshotsDeleted++
	}

	m.resolver.invalidate()

	span.SetAttributes(
		attribute.Int("versions_purged", result.VersionsPurged),
		attribute.Int("snapshots_created", result.SnapshotsCreated),
		attribute.Int("snapshots_deleted", result.SnapshotsDeleted),
	)

	m.publisher.Publish(events.Event{
		Type: events.TypeHistoryCompacted,
		Data: events.HistoryCompactedData{
			VersionsPurged:   result.VersionsPurged,
			SnapshotsCreated: result.SnapshotsCreated,
		},
	})

	logger.Info("history compacted",
		slog.Int("versions_purged", result.VersionsPurged),
		slog.Int("snapshots_created", result.SnapshotsCreated),
		slog.Int("snapshots_deleted", result.SnapshotsDeleted))

	return result, nil
}

// maybeAutoSnapshot plants a snapshot when the configured commit cadence
// has passed without one. Best effort: failures log, never fail commits.
func (m *SnapshotManager) maybeAutoSnapshot(ctx context.Context, v *Version) {
	if m.snapshotEvery <= 0 {
		return
	}

	chain, err := m.store.GetChain(ctx, v.ID, m.snapshotEvery)
	if err != nil || len(chain) < m.snapshotEvery {
		return
	}
	for _, cv := range chain {
		if rec, err := m.store.GetSnapshotByVersion(ctx, cv.ID); err == nil && !rec.Deleted {
			return
		}
	}

	if _, err := m.Create(ctx, v.ID, CreateSnapshotOptions{
		Name:      "auto-" + v.ShortID(),
		CreatedBy: "chronograph",
	}); err != nil {
		m.logger.Warn("auto snapshot failed",
			slog.String("version_id", v.ID),
			slog.String("error", err.Error()))
	}
}
