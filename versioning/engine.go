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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/chronograph/events"
	"github.com/AleutianAI/chronograph/graph"
)

// bootstrapActor is recorded on versions the engine creates itself.
const bootstrapActor = "chronograph"

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

type engineOptions struct {
	logger    *slog.Logger
	publisher events.Publisher
	now       func() int64
	live      graph.Store
}

// Option customizes engine construction.
type Option func(*engineOptions)

// WithLogger overrides the config logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

// WithPublisher sets the event publisher. Default: events.NopPublisher.
func WithPublisher(p events.Publisher) Option {
	return func(o *engineOptions) { o.publisher = p }
}

// WithClock injects the millisecond clock. Test seam.
func WithClock(now func() int64) Option {
	return func(o *engineOptions) { o.now = now }
}

// WithLiveStore attaches a live graph store that mirrors the default
// branch head. Commits on the default branch apply their deltas to the
// mirror after the ledger write succeeds.
func WithLiveStore(s graph.Store) Option {
	return func(o *engineOptions) { o.live = s }
}

// -----------------------------------------------------------------------------
// Engine
// -----------------------------------------------------------------------------

// Engine is the facade over the versioned knowledge-graph store.
//
// Description:
//
//	Open wires the append-only ledger, the change tracker, the
//	time-travel resolver, and the snapshot, branch and merge managers
//	over one BadgerDB instance, bootstrapping the default branch with
//	an empty root version on first use. All state flows through
//	explicit values: scopes are returned to the caller, the event
//	publisher is injected, and nothing hides in process globals.
//
// Thread Safety: Safe for concurrent use.
type Engine struct {
	cfg       Config
	store     VersionStore
	resolver  *Resolver
	tracker   *Tracker
	snapshots *SnapshotManager
	branches  *BranchManager
	merges    *MergeEngine
	publisher events.Publisher
	logger    *slog.Logger
	now       func() int64

	live        graph.Store
	mirrorStale atomic.Bool

	defaultBranch atomic.Value // string

	closeOnce sync.Once
	closeErr  error
}

// Open builds and bootstraps an engine.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - cfg: Engine configuration; see DefaultConfig.
//   - opts: Optional publisher, clock, logger, live mirror.
//
// Outputs:
//   - *Engine: Ready engine; callers own Close.
//   - error: Config validation, ledger open, or bootstrap errors.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := engineOptions{
		publisher: events.NopPublisher{},
		now:       func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		cfg.Logger = o.logger
	}

	store, err := NewBadgerStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		store:     store,
		publisher: o.publisher,
		logger:    cfg.Logger.With(slog.String("component", "engine")),
		now:       o.now,
	}
	e.defaultBranch.Store(cfg.DefaultBranch)
	current := func() string { return e.DefaultBranch() }

	e.resolver, err = newResolver(store, cfg, current)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	e.snapshots = newSnapshotManager(store, e.resolver, o.publisher, cfg, o.now)
	e.tracker = newTracker(store, e.resolver, e.snapshots, o.publisher, cfg.Logger, current, o.now)
	e.snapshots.bindTracker(e.tracker)
	e.branches = newBranchManager(store, e.resolver, o.publisher, cfg.Logger, o.now, current)
	e.merges = newMergeEngine(store, e.resolver, e.tracker, o.publisher, cfg.Logger)

	if err := e.bootstrap(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	if o.live != nil {
		e.live = o.live
		e.tracker.onCommit = e.mirrorCommit
		if err := e.Resync(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("sync live mirror: %w", err)
		}
	}

	return e, nil
}

// bootstrap adopts the persisted default branch, or creates the configured
// one with an empty root version so every branch always has a head.
func (e *Engine) bootstrap(ctx context.Context) error {
	branches, err := e.store.ListBranches(ctx)
	if err != nil {
		return err
	}

	var def *Branch
	for _, b := range branches {
		if b.IsDefault {
			def = b
			break
		}
	}

	if def == nil {
		name := e.cfg.DefaultBranch
		b, err := e.store.GetBranch(ctx, name)
		switch {
		case errors.Is(err, ErrBranchNotFound):
			b = &Branch{
				Name:           name,
				IsDefault:      true,
				CreatedBy:      bootstrapActor,
				CreatedAtMilli: e.now(),
			}
			if err := e.store.PutBranch(ctx, b); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			// Branch exists without the flag: an interrupted default
			// change. Repair it.
			b.IsDefault = true
			if err := e.store.UpdateBranch(ctx, b); err != nil {
				return err
			}
		}
		def = b
	}
	e.defaultBranch.Store(def.Name)

	current, err := e.store.GetBranch(ctx, def.Name)
	if err != nil {
		return err
	}
	if current.HeadID == "" {
		root := &Version{
			ID:             uuid.NewString(),
			Branch:         def.Name,
			Message:        "genesis",
			CreatedBy:      bootstrapActor,
			CreatedAtMilli: e.now(),
		}
		if err := e.store.PutVersion(ctx, root, nil, ""); err != nil {
			return err
		}
		e.logger.Info("ledger initialized",
			slog.String("branch", def.Name),
			slog.String("root_version", root.ID))
	}

	return nil
}

// -----------------------------------------------------------------------------
// Mutation
// -----------------------------------------------------------------------------

// Begin opens a mutation scope. See Tracker.Begin.
func (e *Engine) Begin(ctx context.Context, opts BeginOptions) (*Scope, error) {
	return e.tracker.Begin(ctx, opts)
}

// -----------------------------------------------------------------------------
// Resolution & History
// -----------------------------------------------------------------------------

// Resolve turns a ref into its version record. See Resolver.Resolve.
func (e *Engine) Resolve(ctx context.Context, ref Ref) (*Version, error) {
	return e.resolver.Resolve(ctx, ref)
}

// StateAt materializes the full graph state a ref names.
func (e *Engine) StateAt(ctx context.Context, ref Ref) (*graph.State, error) {
	return e.resolver.StateAt(ctx, ref)
}

// Diff returns the element deltas between two refs.
func (e *Engine) Diff(ctx context.Context, from, to Ref) ([]*Delta, error) {
	return e.resolver.Diff(ctx, from, to)
}

// GetVersion returns a version record by ID.
func (e *Engine) GetVersion(ctx context.Context, id string) (*Version, error) {
	return e.store.GetVersion(ctx, id)
}

// GetDeltas returns a version's element deltas in application order.
func (e *Engine) GetDeltas(ctx context.Context, versionID string) ([]*Delta, error) {
	return e.store.GetDeltas(ctx, versionID)
}

// History walks parent links back from the version a ref names, newest
// first. Unlike ListVersions it follows the chain, so after a fast-forward
// it includes versions committed on the merged-from branch. limit <= 0
// walks to the root.
func (e *Engine) History(ctx context.Context, ref Ref, limit int) ([]*Version, error) {
	if ref == "" {
		ref = Ref(e.DefaultBranch())
	}
	v, err := e.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return e.store.GetChain(ctx, v.ID, limit)
}

// ListVersions returns the commit log of one branch, newest first. Empty
// branch means the default branch.
func (e *Engine) ListVersions(ctx context.Context, branch string, limit, offset int) ([]*Version, error) {
	if branch == "" {
		branch = e.DefaultBranch()
	}
	return e.store.ListVersions(ctx, branch, limit, offset)
}

// VersionsBetween returns a branch's versions created within [from, to],
// oldest first. A zero from means the beginning of history; a zero to
// means now.
func (e *Engine) VersionsBetween(ctx context.Context, branch string, from, to time.Time) ([]*Version, error) {
	if branch == "" {
		branch = e.DefaultBranch()
	}
	fromMilli := int64(0)
	if !from.IsZero() {
		fromMilli = from.UnixMilli()
	}
	toMilli := e.now()
	if !to.IsZero() {
		toMilli = to.UnixMilli()
	}
	return e.store.GetVersionsByTimeRange(ctx, branch, fromMilli, toMilli)
}

// -----------------------------------------------------------------------------
// Components
// -----------------------------------------------------------------------------

// Branches returns the branch manager.
func (e *Engine) Branches() *BranchManager {
	return e.branches
}

// Snapshots returns the snapshot manager.
func (e *Engine) Snapshots() *SnapshotManager {
	return e.snapshots
}

// DefaultBranch returns the branch that empty branch arguments and the
// HEAD ref resolve to.
func (e *Engine) DefaultBranch() string {
	return e.defaultBranch.Load().(string)
}

// SetDefaultBranch moves the default flag and repoints HEAD resolution.
// The live mirror, when attached, is resynced to the new default's head.
func (e *Engine) SetDefaultBranch(ctx context.Context, name string) error {
	if err := e.branches.SetDefault(ctx, name); err != nil {
		return err
	}
	e.defaultBranch.Store(name)
	if e.live != nil {
		return e.Resync(ctx)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Snapshots & Merge
// -----------------------------------------------------------------------------

// CreateSnapshot resolves a ref and snapshots the state at it.
func (e *Engine) CreateSnapshot(ctx context.Context, ref Ref, opts CreateSnapshotOptions) (*SnapshotRecord, error) {
	v, err := e.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return e.snapshots.Create(ctx, v.ID, opts)
}

// RestoreSnapshot commits a snapshot's state as a new version. See
// SnapshotManager.Restore.
func (e *Engine) RestoreSnapshot(ctx context.Context, id string, opts RestoreOptions) (*Version, error) {
	return e.snapshots.Restore(ctx, id, opts)
}

// Merge merges one branch into another. See MergeEngine.Merge.
func (e *Engine) Merge(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	return e.merges.Merge(ctx, req)
}

// PreviewMerge classifies a merge without writing. See MergeEngine.Preview.
func (e *Engine) PreviewMerge(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	return e.merges.Preview(ctx, req)
}

// CompactHistory purges old versions under the retention policy. See
// SnapshotManager.CompactHistory.
func (e *Engine) CompactHistory(ctx context.Context, olderThan time.Duration) (*CompactionResult, error) {
	return e.snapshots.CompactHistory(ctx, olderThan)
}

// -----------------------------------------------------------------------------
// Mirror & Lifecycle
// -----------------------------------------------------------------------------

// Live returns the attached live mirror store, or nil.
func (e *Engine) Live() graph.Store {
	return e.live
}

// MirrorStale reports whether a mirror update failed since the last
// successful sync.
func (e *Engine) MirrorStale() bool {
	return e.mirrorStale.Load()
}

// Resync forces the live mirror to the default branch head. A no-op
// without a mirror, or when the mirror's checksum already matches.
func (e *Engine) Resync(ctx context.Context) error {
	if e.live == nil {
		return nil
	}
	if ctx == nil {
		return ErrNilContext
	}

	head, err := e.resolver.StateAt(ctx, Ref(e.DefaultBranch()))
	if err != nil {
		return err
	}

	if current, err := e.live.Export(ctx); err == nil && current.Checksum() == head.Checksum() {
		e.mirrorStale.Store(false)
		return nil
	}

	if err := e.live.Replace(ctx, head); err != nil {
		e.mirrorStale.Store(true)
		return err
	}
	e.mirrorStale.Store(false)

	e.logger.Info("live mirror synced",
		slog.String("branch", e.DefaultBranch()),
		slog.Int("elements", head.Len()))
	return nil
}

// mirrorCommit applies a committed version's deltas to the live mirror.
// Mirror failures never fail the commit; the mirror is marked stale and
// repaired by the next Resync.
func (e *Engine) mirrorCommit(ctx context.Context, v *Version, deltas []*Delta) {
	if e.live == nil || v.Branch != e.DefaultBranch() {
		return
	}
	if err := applyDeltasToStore(ctx, e.live, deltas); err != nil {
		e.mirrorStale.Store(true)
		e.logger.Warn("live mirror update failed",
			slog.String("version_id", v.ID),
			slog.String("error", err.Error()))
	}
}

// applyDeltasToStore replays deltas onto a graph store in order. Deletes
// of elements the store never had are ignored.
func applyDeltasToStore(ctx context.Context, store graph.Store, deltas []*Delta) error {
	for _, d := range deltas {
		switch d.ChangeType {
		case ChangeCreate, ChangeUpdate:
			el, err := d.DecodeNew()
			if err != nil {
				return err
			}
			if err := store.Put(ctx, el); err != nil {
				return err
			}
		case ChangeDelete:
			err := store.Delete(ctx, d.ElementType, d.ElementID)
			if err != nil && !errors.Is(err, graph.ErrElementNotFound) {
				return err
			}
		default:
			return fmt.Errorf("unknown change type %q", d.ChangeType)
		}
	}
	return nil
}

// Stats returns ledger-wide counts and the history time window.
func (e *Engine) Stats(ctx context.Context) (LedgerStats, error) {
	return e.store.Stats(ctx)
}

// Close releases the ledger. Idempotent.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.store.Close()
		e.logger.Info("engine closed")
	})
	return e.closeErr
}
