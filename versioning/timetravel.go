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
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/chronograph/graph"
)

var resolveTracer = otel.Tracer("chronograph.resolve")

// -----------------------------------------------------------------------------
// Ref Parsing
// -----------------------------------------------------------------------------

// parsedRef is the structured form of a Ref.
type parsedRef struct {
	base    string // version ID or branch name
	back    int    // ancestor hops from ~N
	atMilli int64  // timestamp from @ts, -1 when absent
}

// parseRef splits a ref into base, ancestor hops and timestamp.
//
// Accepted forms: "base", "base~N", "branch@ts", "branch@ts~N" where ts
// is RFC 3339 or Unix milliseconds. Branch names cannot contain '~' or
// '@', so the split is unambiguous.
func parseRef(r Ref) (parsedRef, error) {
	s := strings.TrimSpace(string(r))
	if s == "" {
		return parsedRef{}, fmt.Errorf("%w: empty", ErrInvalidRef)
	}

	p := parsedRef{base: s, atMilli: -1}

	if i := strings.LastIndex(p.base, "~"); i > 0 {
		n, err := strconv.Atoi(p.base[i+1:])
		if err != nil || n < 1 {
			return parsedRef{}, fmt.Errorf("%w: bad ancestor count in %q", ErrInvalidRef, s)
		}
		p.back = n
		p.base = p.base[:i]
	}

	if i := strings.LastIndex(p.base, "@"); i > 0 {
		raw := p.base[i+1:]
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			p.atMilli = ts.UnixMilli()
		} else if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			p.atMilli = ms
		} else {
			return parsedRef{}, fmt.Errorf("%w: bad timestamp in %q", ErrInvalidRef, s)
		}
		p.base = p.base[:i]
	}

	if p.base == "" {
		return parsedRef{}, fmt.Errorf("%w: %q has no base", ErrInvalidRef, s)
	}
	return p, nil
}

// -----------------------------------------------------------------------------
// Resolver
// -----------------------------------------------------------------------------

// Resolver turns refs into versions and versions into full graph states.
//
// Description:
//
//	State reconstruction picks the cheapest route available: an exact
//	snapshot at the version, forward delta replay from the nearest
//	snapshotted ancestor, reverse delta replay from a snapshotted
//	descendant inside the configured window, or forward replay from the
//	genesis state. Materialized states live in an LRU cache keyed by
//	version ID, except branch heads, which move too often to be worth
//	evicting stable history for. Concurrent resolutions of one version
//	collapse into a single rebuild via singleflight.
//
// Thread Safety: Safe for concurrent use.
type Resolver struct {
	store  VersionStore
	logger *slog.Logger

	cache  *lru.Cache[string, *graph.State]
	flight singleflight.Group

	window        int
	defaultBranch func() string
}

// newResolver wires a resolver; the engine owns construction.
func newResolver(store VersionStore, cfg Config, defaultBranch func() string) (*Resolver, error) {
	cache, err := lru.New[string, *graph.State](cfg.StateCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create state cache: %w", err)
	}
	return &Resolver{
		store:         store,
		logger:        cfg.Logger.With(slog.String("component", "resolver")),
		cache:         cache,
		window:        cfg.ReverseReplayWindow,
		defaultBranch: defaultBranch,
	}, nil
}

// Resolve turns a ref into the version record it names.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - ref: Version ID, branch name, snapshot name, "HEAD", base~N or
//     branch@timestamp.
//
// Outputs:
//   - *Version: The resolved version.
//   - error: ErrInvalidRef for unparseable or unknown refs,
//     ErrVersionNotFound when the ref names an empty spot (branch with
//     no commits, timestamp before the first commit).
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (*Version, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	p, err := parseRef(ref)
	if err != nil {
		return nil, err
	}
	if p.base == "HEAD" {
		p.base = r.defaultBranch()
	}

	var v *Version
	if p.atMilli >= 0 {
		versions, err := r.store.GetVersionsByTimeRange(ctx, p.base, 0, p.atMilli)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, fmt.Errorf("%w: no version on %q at or before %d", ErrVersionNotFound, p.base, p.atMilli)
		}
		v = versions[len(versions)-1]
	} else {
		v, err = r.store.GetVersion(ctx, p.base)
		if errors.Is(err, ErrVersionNotFound) {
			v, err = r.resolveName(ctx, p.base)
		}
		if err != nil {
			return nil, err
		}
	}

	if p.back > 0 {
		chain, err := r.store.GetChain(ctx, v.ID, p.back+1)
		if err != nil {
			return nil, err
		}
		if len(chain) < p.back+1 {
			return nil, fmt.Errorf("%w: %q walks past the root", ErrInvalidRef, ref)
		}
		v = chain[p.back]
	}

	return v, nil
}

// resolveName tries a base that is not a version ID as a branch head, then
// as a snapshot name.
func (r *Resolver) resolveName(ctx context.Context, base string) (*Version, error) {
	b, err := r.store.GetBranch(ctx, base)
	switch {
	case err == nil:
		if b.HeadID == "" {
			return nil, fmt.Errorf("%w: branch %q has no commits", ErrVersionNotFound, base)
		}
		return r.store.GetVersion(ctx, b.HeadID)
	case !errors.Is(err, ErrBranchNotFound):
		return nil, err
	}

	snapshots, err := r.store.ListSnapshots(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, rec := range snapshots {
		if rec.Name == base {
			return r.store.GetVersion(ctx, rec.VersionID)
		}
	}

	return nil, fmt.Errorf("%w: %q is not a version ID, branch, or snapshot name", ErrInvalidRef, base)
}

// StateAt materializes the full graph state a ref names.
//
// Outputs:
//   - *graph.State: A private copy the caller may mutate.
//   - error: Resolution errors, or ErrStateUnreachable after compaction
//     removed the only route to the state.
func (r *Resolver) StateAt(ctx context.Context, ref Ref) (*graph.State, error) {
	v, err := r.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	st, err := r.stateForVersion(ctx, v)
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// Diff returns the element deltas that transform the state at from into
// the state at to. Neither ref needs to be an ancestor of the other.
func (r *Resolver) Diff(ctx context.Context, from, to Ref) ([]*Delta, error) {
	fromVersion, err := r.Resolve(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", from, err)
	}
	toVersion, err := r.Resolve(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", to, err)
	}

	fromState, err := r.stateForVersion(ctx, fromVersion)
	if err != nil {
		return nil, err
	}
	toState, err := r.stateForVersion(ctx, toVersion)
	if err != nil {
		return nil, err
	}

	return diffStates(fromState, toState)
}

// CacheLen returns the number of cached materialized states.
func (r *Resolver) CacheLen() int {
	return r.cache.Len()
}

// invalidate drops every cached state. Compaction calls this so memory
// is not pinned by states of purged versions.
func (r *Resolver) invalidate() {
	r.cache.Purge()
}

// stateForVersion returns the canonical materialized state for a version.
// The returned state is shared: callers must not mutate it. Public paths
// clone before handing it out.
func (r *Resolver) stateForVersion(ctx context.Context, v *Version) (*graph.State, error) {
	if st, ok := r.cache.Get(v.ID); ok {
		stateCacheHits.Inc()
		return st, nil
	}
	stateCacheMisses.Inc()

	val, err, _ := r.flight.Do(v.ID, func() (interface{}, error) {
		if st, ok := r.cache.Get(v.ID); ok {
			return st, nil
		}

		st, err := r.rebuild(ctx, v)
		if err != nil {
			return nil, err
		}

		// Branch heads stay out of the cache: they change on every
		// commit and would evict stable history entries.
		if b, berr := r.store.GetBranch(ctx, v.Branch); berr != nil || b.HeadID != v.ID {
			r.cache.Add(v.ID, st)
		}
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*graph.State), nil
}

// rebuild materializes a version's state via the cheapest available route.
func (r *Resolver) rebuild(ctx context.Context, v *Version) (*graph.State, error) {
	start := time.Now()
	ctx, span := resolveTracer.Start(ctx, "resolver.rebuild",
		trace.WithAttributes(
			attribute.String("version_id", v.ID),
			attribute.Int64("seq", int64(v.Seq)),
		),
	)
	defer span.End()

	finish := func(st *graph.State, strategy string, steps int) (*graph.State, error) {
		resolveDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
		resolveReplaySteps.Observe(float64(steps))
		span.SetAttributes(
			attribute.String("strategy", strategy),
			attribute.Int("replay_steps", steps),
		)
		r.logger.Debug("state rebuilt",
			slog.String("version_id", v.ID),
			slog.String("strategy", strategy),
			slog.Int("steps", steps))
		return st, nil
	}

	// Exact snapshot: no replay at all.
	if rec, err := r.store.GetSnapshotByVersion(ctx, v.ID); err == nil && !rec.Deleted {
		st, merr := materializeSnapshot(ctx, r.store, rec)
		if merr == nil {
			return finish(st, "snapshot", 0)
		}
		r.logger.Warn("snapshot unusable, replaying instead",
			slog.String("snapshot_id", rec.ID),
			slog.String("error", merr.Error()))
	}

	// Ancestor route: walk towards the root until a usable snapshot or
	// the genesis state.
	pending := []*Version{v}
	var baseState *graph.State
	strategy := ""

	cur := v
	for {
		if cur.IsRoot() {
			baseState = graph.NewState()
			strategy = "genesis"
			break
		}
		parent, err := r.store.GetVersionBySeq(ctx, cur.ParentSeq)
		if err != nil {
			// Compacted below this point; the ancestor route is gone.
			pending = nil
			break
		}
		if rec, serr := r.store.GetSnapshotByVersion(ctx, parent.ID); serr == nil && !rec.Deleted {
			st, merr := materializeSnapshot(ctx, r.store, rec)
			if merr == nil {
				baseState = st
				strategy = "forward"
				break
			}
			r.logger.Warn("snapshot unusable, walking past it",
				slog.String("snapshot_id", rec.ID),
				slog.String("error", merr.Error()))
		}
		pending = append(pending, parent)
		cur = parent
	}
	forwardSteps := len(pending)

	// Reverse route: a snapshotted descendant within the window can be
	// unwound back to v.
	var reverseFrom []*Version // descendants from the snapshot down to v's child
	if r.window > 0 {
		if head, herr := r.store.LatestVersion(ctx, v.Branch); herr == nil &&
			head.Seq > v.Seq && head.Seq-v.Seq <= uint64(r.window) {

			var descendants []*Version
			walk := head
			reached := false
			for hops := 0; hops <= r.window; hops++ {
				if walk.ID == v.ID {
					reached = true
					break
				}
				descendants = append(descendants, walk)
				if walk.IsRoot() {
					break
				}
				parent, perr := r.store.GetVersionBySeq(ctx, walk.ParentSeq)
				if perr != nil {
					break
				}
				walk = parent
			}
			if reached {
				for j := len(descendants) - 1; j >= 0; j-- {
					if rec, serr := r.store.GetSnapshotByVersion(ctx, descendants[j].ID); serr == nil && !rec.Deleted {
						reverseFrom = descendants[j:]
						break
					}
				}
			}
		}
	}

	useReverse := len(reverseFrom) > 0 && (baseState == nil || len(reverseFrom) < forwardSteps)

	if useReverse {
		rec, err := r.store.GetSnapshotByVersion(ctx, reverseFrom[0].ID)
		if err != nil {
			return nil, err
		}
		st, err := materializeSnapshot(ctx, r.store, rec)
		if err != nil {
			return nil, err
		}
		for _, d := range reverseFrom {
			deltas, err := r.store.GetDeltas(ctx, d.ID)
			if err != nil {
				return nil, err
			}
			if err := applyDeltasReverse(st, deltas); err != nil {
				return nil, fmt.Errorf("reverse replay at %s: %w", d.ID, err)
			}
		}
		return finish(st, "reverse", len(reverseFrom))
	}

	if baseState == nil {
		span.SetStatus(codes.Error, "unreachable")
		return nil, fmt.Errorf("%w: version %s", ErrStateUnreachable, v.ID)
	}

	// Forward replay, oldest first.
	for i := len(pending) - 1; i >= 0; i-- {
		deltas, err := r.store.GetDeltas(ctx, pending[i].ID)
		if err != nil {
			return nil, err
		}
		if err := applyDeltas(baseState, deltas); err != nil {
			return nil, fmt.Errorf("forward replay at %s: %w", pending[i].ID, err)
		}
	}
	return finish(baseState, strategy, forwardSteps)
}
