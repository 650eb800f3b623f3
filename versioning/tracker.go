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
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/chronograph/events"
	"github.com/AleutianAI/chronograph/graph"
)

var trackerTracer = otel.Tracer("chronograph.tracker")

// -----------------------------------------------------------------------------
// Tracker
// -----------------------------------------------------------------------------

// Tracker opens mutation scopes against branch heads.
//
// Description:
//
//	Every graph mutation happens inside an explicit scope: Begin hands
//	back a Scope whose Store() records element deltas, and Commit turns
//	the recorded changes into one atomic version on the branch. Scopes
//	are plain values passed by the caller; nothing is stashed in
//	goroutine-local storage.
//
// Thread Safety: Safe for concurrent use. Concurrent commits to the same
// branch are serialized by head compare-and-swap; losers get
// ErrConcurrentHeadConflict and must re-begin from the new head.
type Tracker struct {
	store     VersionStore
	resolver  *Resolver
	snapshots *SnapshotManager
	publisher events.Publisher
	logger    *slog.Logger
	now       func() int64

	defaultBranch func() string

	// onCommit runs after every successful commit, before auto-snapshot
	// consideration. The engine uses it to keep the live mirror current.
	onCommit func(ctx context.Context, v *Version, deltas []*Delta)
}

// newTracker wires a tracker; the engine owns construction.
func newTracker(store VersionStore, resolver *Resolver, snapshots *SnapshotManager, publisher events.Publisher, logger *slog.Logger, defaultBranch func() string, now func() int64) *Tracker {
	return &Tracker{
		store:         store,
		resolver:      resolver,
		snapshots:     snapshots,
		publisher:     publisher,
		logger:        logger.With(slog.String("component", "tracker")),
		now:           now,
		defaultBranch: defaultBranch,
	}
}

// BeginOptions configures a mutation scope.
type BeginOptions struct {
	// Branch to mutate. Empty means the default branch.
	Branch string

	// Actor is recorded as the version author. Optional.
	Actor string
}

// Begin opens a mutation scope at the branch head.
//
// Description:
//
//	Materializes the branch head state into a private working copy and
//	wraps it with change recording. The scope never sees commits made by
//	others after Begin; a commit against a moved head fails with
//	ErrConcurrentHeadConflict.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - opts: Scope options.
//
// Outputs:
//   - *Scope: Open scope ready for mutation.
//   - error: ErrBranchNotFound or ErrBranchArchived.
func (t *Tracker) Begin(ctx context.Context, opts BeginOptions) (*Scope, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	branch := opts.Branch
	if branch == "" {
		branch = t.defaultBranch()
	}

	b, err := t.store.GetBranch(ctx, branch)
	if err != nil {
		return nil, err
	}
	if b.Archived {
		return nil, fmt.Errorf("%w: %s", ErrBranchArchived, branch)
	}

	st := graph.NewState()
	if b.HeadID != "" {
		st, err = t.resolver.StateAt(ctx, Ref(b.HeadID))
		if err != nil {
			return nil, fmt.Errorf("materialize head of %q: %w", branch, err)
		}
	}

	working := graph.NewMemoryStore()
	if err := working.Replace(ctx, st); err != nil {
		return nil, err
	}

	t.logger.Debug("scope opened",
		slog.String("branch", branch),
		slog.String("head", b.HeadID),
		slog.String("actor", opts.Actor))

	return &Scope{
		tracker:  t,
		branch:   branch,
		actor:    opts.Actor,
		baseHead: b.HeadID,
		rec:      NewRecordingStore(working),
	}, nil
}

// -----------------------------------------------------------------------------
// Scope
// -----------------------------------------------------------------------------

// Scope is one open mutation session against a branch head.
//
// Description:
//
//	All mutations go through Store(). Commit records the net changes as
//	a version; Rollback discards them. A scope closes after a successful
//	commit or a rollback; a failed commit leaves it open so the caller
//	can inspect Pending() before giving up.
//
// Thread Safety: Safe for concurrent use, though scopes are typically
// driven by one goroutine.
type Scope struct {
	tracker  *Tracker
	branch   string
	actor    string
	baseHead string
	rec      *RecordingStore

	mu     sync.Mutex
	closed bool
}

// Store returns the recording store all scope mutations go through.
func (s *Scope) Store() graph.Store {
	return s.rec
}

// Branch returns the branch this scope commits to.
func (s *Scope) Branch() string {
	return s.branch
}

// BaseVersionID returns the head version the scope was opened at, or ""
// for a branch with no commits.
func (s *Scope) BaseVersionID() string {
	return s.baseHead
}

// Pending returns the coalesced deltas recorded so far. Nil once the
// scope is closed.
func (s *Scope) Pending() []*Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.rec.Deltas()
}

// Commit turns the recorded changes into one version on the branch.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - message: Human-readable description of the change.
//
// Outputs:
//   - *Version: The committed version.
//   - error: ErrNothingToCommit if no net changes were recorded,
//     ErrConcurrentHeadConflict if the branch head moved since Begin,
//     ErrScopeClosed after a successful commit or rollback.
func (s *Scope) Commit(ctx context.Context, message string) (*Version, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrScopeClosed
	}

	t := s.tracker
	start := time.Now()

	ctx, span := trackerTracer.Start(ctx, "tracker.Commit",
		trace.WithAttributes(
			attribute.String("branch", s.branch),
			attribute.String("base_head", s.baseHead),
		),
	)
	defer span.End()

	deltas := s.rec.Deltas()
	if len(deltas) == 0 {
		commitsTotal.WithLabelValues("empty").Inc()
		span.SetStatus(codes.Error, "nothing to commit")
		return nil, ErrNothingToCommit
	}

	version := &Version{
		ID:             uuid.NewString(),
		ParentID:       s.baseHead,
		Branch:         s.branch,
		Message:        message,
		CreatedBy:      s.actor,
		CreatedAtMilli: t.now(),
		Stats:          statsForDeltas(deltas),
	}

	if err := t.store.PutVersion(ctx, version, deltas, s.baseHead); err != nil {
		if errors.Is(err, ErrConcurrentHeadConflict) {
			commitsTotal.WithLabelValues("conflict").Inc()
		} else {
			commitsTotal.WithLabelValues("error").Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return nil, err
	}

	s.closed = true
	commitsTotal.WithLabelValues("committed").Inc()
	commitDuration.Observe(time.Since(start).Seconds())
	deltasPerCommit.Observe(float64(len(deltas)))
	span.SetAttributes(
		attribute.String("version_id", version.ID),
		attribute.Int64("seq", int64(version.Seq)),
		attribute.Int("delta_count", len(deltas)),
	)

	t.publisher.Publish(events.Event{
		Type: events.TypeVersionCreated,
		Data: events.VersionCreatedData{
			VersionID: version.ID,
			ParentID:  version.ParentID,
			Branch:    version.Branch,
			Message:   version.Message,
			Changes:   version.Stats.Total(),
		},
	})

	t.logger.Info("version committed",
		slog.String("version_id", version.ID),
		slog.String("branch", version.Branch),
		slog.Uint64("seq", version.Seq),
		slog.Int("changes", version.Stats.Total()))

	if t.onCommit != nil {
		t.onCommit(ctx, version, deltas)
	}

	t.snapshots.maybeAutoSnapshot(ctx, version)

	return version, nil
}

// Rollback discards all recorded changes and closes the scope.
func (s *Scope) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrScopeClosed
	}
	s.closed = true

	s.tracker.logger.Debug("scope rolled back",
		slog.String("branch", s.branch),
		slog.Int("discarded", s.rec.Len()))
	return nil
}
