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
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/chronograph/events"
	"github.com/AleutianAI/chronograph/graph"
)

var mergeTracer = otel.Tracer("chronograph.merge")

// -----------------------------------------------------------------------------
// Merge Vocabulary
// -----------------------------------------------------------------------------

// MergeStatus is the terminal outcome of a merge. A conflicted merge is a
// normal result, not an error; callers branch on the status.
type MergeStatus string

const (
	// MergeSuccess means a merge version was committed on the target branch.
	MergeSuccess MergeStatus = "success"

	// MergeConflict means unresolved conflicts were found and nothing was
	// committed.
	MergeConflict MergeStatus = "conflict"

	// MergeNothingToMerge means the target already contains everything the
	// source has.
	MergeNothingToMerge MergeStatus = "nothing_to_merge"

	// MergeFastForward means the target head was advanced to the source head
	// without creating a version.
	MergeFastForward MergeStatus = "fast_forward"
)

// MergeStrategy selects how conflicts are handled.
type MergeStrategy string

const (
	// StrategyManual reports conflicts and commits nothing. The default.
	StrategyManual MergeStrategy = "manual"

	// StrategyOurs resolves every conflict toward the target branch.
	StrategyOurs MergeStrategy = "ours"

	// StrategyTheirs resolves every conflict toward the source branch.
	StrategyTheirs MergeStrategy = "theirs"
)

// ConflictType classifies why two sides of a merge disagree.
type ConflictType string

const (
	// ConflictUpdateUpdate: both sides changed the same property to
	// different values.
	ConflictUpdateUpdate ConflictType = "update_update"

	// ConflictDeleteUpdate: one side deleted an element the other updated.
	ConflictDeleteUpdate ConflictType = "delete_update"

	// ConflictAddAdd: both sides added the same ID with different content.
	ConflictAddAdd ConflictType = "add_add"

	// ConflictTypeChange: one side changed an element's type while the
	// other still relies on the old shape.
	ConflictTypeChange ConflictType = "type_change"
)

// Conflict describes one disagreement between the merge sides. Base, Source
// and Target are rendered for display: property values for
// ConflictUpdateUpdate, element summaries otherwise, with "<deleted>" and
// "<absent>" marking missing sides.
type Conflict struct {
	Type        ConflictType
	ElementType graph.ElementType
	ElementID   string

	// Label is the element's display name when it carries one.
	Label string

	// Property is set for ConflictUpdateUpdate only.
	Property string

	Base   string
	Source string
	Target string

	// Typed payloads kept for strategy resolution.
	baseValue     graph.PropertyValue
	sourceValue   graph.PropertyValue
	sourceElement graph.Element
}

// Resolution records a conflict an automatic strategy decided.
type Resolution struct {
	Conflict Conflict

	// Winner is StrategyOurs or StrategyTheirs.
	Winner MergeStrategy
}

// MergeRequest names the branches and strategy for a merge.
type MergeRequest struct {
	// SourceBranch is merged into TargetBranch.
	SourceBranch string
	TargetBranch string

	// Strategy defaults to StrategyManual.
	Strategy MergeStrategy

	// Message overrides the generated merge commit message. Optional.
	Message string

	// Actor is recorded as the merge version author. Optional.
	Actor string
}

func (req *MergeRequest) validate() error {
	if req.SourceBranch == "" || req.TargetBranch == "" {
		return errors.New("merge requires a source and a target branch")
	}
	if req.SourceBranch == req.TargetBranch {
		return fmt.Errorf("cannot merge branch %q into itself", req.SourceBranch)
	}
	switch req.Strategy {
	case "", StrategyManual, StrategyOurs, StrategyTheirs:
		return nil
	}
	return fmt.Errorf("unknown merge strategy %q", req.Strategy)
}

// MergeResult is the outcome of a merge or a preview.
type MergeResult struct {
	Status MergeStatus

	// MergedVersionID is the committed merge version on success, or the
	// version the head advanced to on fast-forward. Empty on preview.
	MergedVersionID string

	// BaseVersionID is the common ancestor the three-way diff used. Empty
	// when the branches share no retained history.
	BaseVersionID string

	SourceHeadID string
	TargetHeadID string

	// Conflicts is populated when Status is MergeConflict.
	Conflicts []Conflict

	// Resolved lists conflicts an automatic strategy decided.
	Resolved []Resolution

	// Stats describes the merge version's deltas on success.
	Stats ChangeStats
}

// -----------------------------------------------------------------------------
// MergeEngine
// -----------------------------------------------------------------------------

// MergeEngine reconciles two diverged branches with a three-way merge.
//
// Description:
//
//	The engine finds the deepest common ancestor of the two heads, diffs
//	base→source and base→target at element and property granularity,
//	auto-applies one-sided changes, and classifies the rest as conflicts.
//	A clean (or strategy-resolved) merge commits one version on the
//	target branch through the ordinary commit path, so it carries the
//	same head compare-and-swap guarantees as any commit.
//
// Thread Safety: Safe for concurrent use.
type MergeEngine struct {
	store     VersionStore
	resolver  *Resolver
	tracker   *Tracker
	publisher events.Publisher
	logger    *slog.Logger
}

// newMergeEngine wires a merge engine; the engine facade owns construction.
func newMergeEngine(store VersionStore, resolver *Resolver, tracker *Tracker, publisher events.Publisher, logger *slog.Logger) *MergeEngine {
	return &MergeEngine{
		store:     store,
		resolver:  resolver,
		tracker:   tracker,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "merge")),
	}
}

// Preview classifies a merge without writing anything.
//
// Outputs:
//   - *MergeResult: Same classification Merge would act on; on a would-be
//     success, Stats carries the deltas the merge version would contain and
//     MergedVersionID stays empty (fast-forward previews carry the source
//     head as the would-be head).
//   - error: Branch lookup or state reconstruction errors.
func (me *MergeEngine) Preview(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	ctx, span := mergeTracer.Start(ctx, "merge.Preview")
	defer span.End()

	result, merged, err := me.plan(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "merge preview failed")
		return nil, err
	}

	if result.Status == MergeSuccess && merged != nil {
		tgtState, err := me.stateForHead(ctx, result.TargetHeadID)
		if err != nil {
			return nil, err
		}
		deltas, err := diffStates(tgtState, merged)
		if err != nil {
			return nil, err
		}
		result.Stats = statsForDeltas(deltas)
		if len(deltas) == 0 {
			result.Status = MergeNothingToMerge
		}
	}

	span.SetAttributes(
		attribute.String("merge.source", req.SourceBranch),
		attribute.String("merge.target", req.TargetBranch),
		attribute.String("merge.status", string(result.Status)),
		attribute.Int("merge.conflicts", len(result.Conflicts)),
	)
	return result, nil
}

// Merge merges the source branch into the target branch.
//
// Description:
//
//	Fast paths first: identical heads or a source already contained in
//	the target return MergeNothingToMerge; a target head that is the
//	common ancestor fast-forwards to the source head without a new
//	version. Otherwise the three-way diff runs. Conflicts under
//	StrategyManual produce a MergeConflict result and no writes; under
//	StrategyOurs / StrategyTheirs every conflict is resolved toward the
//	target / source and the merge commits.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - req: Branches, strategy, message and attribution.
//
// Outputs:
//   - *MergeResult: Terminal status plus conflict and resolution detail.
//   - error: ErrBranchNotFound, ErrBranchArchived for an archived target,
//     ErrConcurrentHeadConflict when the target head moved mid-merge, or
//     reconstruction errors. Conflicts are NOT errors.
func (me *MergeEngine) Merge(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	ctx, span := mergeTracer.Start(ctx, "merge.Merge")
	defer span.End()

	fail := func(err error) (*MergeResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "merge failed")
		return nil, err
	}

	target, err := me.store.GetBranch(ctx, req.TargetBranch)
	if err != nil {
		return fail(err)
	}
	if target.Archived {
		return fail(fmt.Errorf("%w: %s", ErrBranchArchived, req.TargetBranch))
	}

	result, merged, err := me.plan(ctx, req)
	if err != nil {
		return fail(err)
	}

	switch result.Status {
	case MergeNothingToMerge, MergeConflict:
		// Nothing to write.

	case MergeFastForward:
		err := me.store.UpdateBranchHead(ctx, req.TargetBranch, result.TargetHeadID, result.SourceHeadID)
		if err != nil {
			return fail(err)
		}
		result.MergedVersionID = result.SourceHeadID

	case MergeSuccess:
		version, err := me.commitMerged(ctx, req, result, merged)
		if errors.Is(err, ErrNothingToCommit) {
			// Both sides made identical changes; the merged state equals
			// the target head.
			result.Status = MergeNothingToMerge
			result.Resolved = nil
			break
		}
		if err != nil {
			return fail(err)
		}
		result.MergedVersionID = version.ID
		result.Stats = version.Stats
	}

	mergesTotal.WithLabelValues(string(result.Status)).Inc()
	mergeConflicts.Observe(float64(len(result.Conflicts) + len(result.Resolved)))
	span.SetAttributes(
		attribute.String("merge.source", req.SourceBranch),
		attribute.String("merge.target", req.TargetBranch),
		attribute.String("merge.status", string(result.Status)),
		attribute.Int("merge.conflicts", len(result.Conflicts)),
		attribute.Int("merge.resolved", len(result.Resolved)),
	)

	me.publisher.Publish(events.Event{
		Type: events.TypeBranchesMerged,
		Data: events.BranchesMergedData{
			Source:          req.SourceBranch,
			Target:          req.TargetBranch,
			Status:          string(result.Status),
			MergedVersionID: result.MergedVersionID,
			Conflicts:       len(result.Conflicts),
		},
	})

	me.logger.Info("merge finished",
		slog.String("source", req.SourceBranch),
		slog.String("target", req.TargetBranch),
		slog.String("status", string(result.Status)),
		slog.Int("conflicts", len(result.Conflicts)),
		slog.Int("resolved", len(result.Resolved)),
		slog.String("merged_version", result.MergedVersionID))

	return result, nil
}

// commitMerged writes the merged state as one version on the target branch.
// The ordinary commit path supplies the head CAS; a head that moved after
// planning is caught before any element is staged.
func (me *MergeEngine) commitMerged(ctx context.Context, req MergeRequest, result *MergeResult, merged *graph.State) (*Version, error) {
	scope, err := me.tracker.Begin(ctx, BeginOptions{Branch: req.TargetBranch, Actor: req.Actor})
	if err != nil {
		return nil, err
	}
	if scope.BaseVersionID() != result.TargetHeadID {
		_ = scope.Rollback()
		return nil, fmt.Errorf("%w: target branch %q advanced during merge", ErrConcurrentHeadConflict, req.TargetBranch)
	}

	if err := scope.Store().Replace(ctx, merged); err != nil {
		_ = scope.Rollback()
		return nil, err
	}

	message := req.Message
	if message == "" {
		message = fmt.Sprintf("merge branch %q (source head %s)", req.SourceBranch, shortID(result.SourceHeadID))
	}

	version, err := scope.Commit(ctx, message)
	if err != nil {
		rbErr := scope.Rollback()
		if rbErr != nil && !errors.Is(err, ErrNothingToCommit) {
			me.logger.Warn("merge scope rollback failed", slog.String("error", rbErr.Error()))
		}
		return nil, err
	}
	return version, nil
}

// -----------------------------------------------------------------------------
// Planning
// -----------------------------------------------------------------------------

// plan classifies the merge and, when it would succeed, builds the merged
// state. It performs no writes.
func (me *MergeEngine) plan(ctx context.Context, req MergeRequest) (*MergeResult, *graph.State, error) {
	source, err := me.store.GetBranch(ctx, req.SourceBranch)
	if err != nil {
		return nil, nil, err
	}
	target, err := me.store.GetBranch(ctx, req.TargetBranch)
	if err != nil {
		return nil, nil, err
	}

	result := &MergeResult{
		SourceHeadID: source.HeadID,
		TargetHeadID: target.HeadID,
	}

	if source.HeadID == "" || source.HeadID == target.HeadID {
		result.Status = MergeNothingToMerge
		result.BaseVersionID = source.HeadID
		return result, nil, nil
	}

	base, _, _, err := chainIntersection(ctx, me.store, source.HeadID, target.HeadID)
	if err != nil {
		return nil, nil, err
	}
	baseID := ""
	if base != nil {
		baseID = base.ID
	}
	result.BaseVersionID = baseID

	switch baseID {
	case source.HeadID:
		result.Status = MergeNothingToMerge
		return result, nil, nil
	case target.HeadID:
		result.Status = MergeFastForward
		result.MergedVersionID = source.HeadID
		return result, nil, nil
	}

	baseState := graph.NewState()
	if base != nil {
		baseState, err = me.resolver.stateForVersion(ctx, base)
		if err != nil {
			return nil, nil, err
		}
	}
	srcState, err := me.stateForHead(ctx, source.HeadID)
	if err != nil {
		return nil, nil, err
	}
	tgtState, err := me.stateForHead(ctx, target.HeadID)
	if err != nil {
		return nil, nil, err
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategyManual
	}

	merged, conflicts, resolved, err := me.threeWay(baseState, srcState, tgtState, strategy)
	if err != nil {
		return nil, nil, err
	}

	if len(conflicts) > 0 {
		result.Status = MergeConflict
		result.Conflicts = conflicts
		return result, nil, nil
	}
	result.Status = MergeSuccess
	result.Resolved = resolved
	return result, merged, nil
}

// stateForHead materializes a head version's state, treating an empty head
// as the empty graph.
func (me *MergeEngine) stateForHead(ctx context.Context, headID string) (*graph.State, error) {
	if headID == "" {
		return graph.NewState(), nil
	}
	v, err := me.store.GetVersion(ctx, headID)
	if err != nil {
		return nil, err
	}
	return me.resolver.stateForVersion(ctx, v)
}

// chainIntersection finds the deepest version both heads descend from by
// parent chain intersection, plus each head's distance to it in commits.
// A compacted-away parent ends a walk early; disjoint retained histories
// yield a nil base with the full chain lengths as distances.
func chainIntersection(ctx context.Context, store VersionStore, aID, bID string) (*Version, int, int, error) {
	depthA := make(map[string]int)
	lenA := 0
	if aID != "" {
		cur, err := store.GetVersion(ctx, aID)
		if err != nil {
			return nil, 0, 0, err
		}
		for {
			depthA[cur.ID] = lenA
			lenA++
			if cur.IsRoot() {
				break
			}
			parent, err := store.GetVersionBySeq(ctx, cur.ParentSeq)
			if errors.Is(err, ErrVersionNotFound) {
				break
			}
			if err != nil {
				return nil, 0, 0, err
			}
			cur = parent
		}
	}

	lenB := 0
	if bID != "" {
		cur, err := store.GetVersion(ctx, bID)
		if err != nil {
			return nil, 0, 0, err
		}
		for {
			if d, ok := depthA[cur.ID]; ok {
				return cur, d, lenB, nil
			}
			lenB++
			if cur.IsRoot() {
				break
			}
			parent, err := store.GetVersionBySeq(ctx, cur.ParentSeq)
			if errors.Is(err, ErrVersionNotFound) {
				break
			}
			if err != nil {
				return nil, 0, 0, err
			}
			cur = parent
		}
	}

	return nil, lenA, lenB, nil
}

// -----------------------------------------------------------------------------
// Three-Way Diff
// -----------------------------------------------------------------------------

// threeWay builds the merged state from base, source and target.
//
// Description:
//
//	The merged state starts as a copy of the target, so target-only
//	changes are already in place. Source-only changes are applied on
//	top. Both-sided changes collapse when identical and conflict when
//	not: element type changes first (one bare ID wearing different
//	types across the sides), then element-level add/delete pairs, then
//	property-level update pairs. Under an automatic strategy each
//	conflict is applied toward its winner as it is found.
func (me *MergeEngine) threeWay(base, src, tgt *graph.State, strategy MergeStrategy) (*graph.State, []Conflict, []Resolution, error) {
	merged := tgt.Clone()

	var conflicts []Conflict
	var resolved []Resolution

	// record routes a conflict to the conflict list or, under an automatic
	// strategy, to the resolved list after apply ran.
	record := func(c Conflict, apply func(winner MergeStrategy) error) error {
		switch strategy {
		case StrategyOurs, StrategyTheirs:
			if err := apply(strategy); err != nil {
				return err
			}
			resolved = append(resolved, Resolution{Conflict: c, Winner: strategy})
		default:
			conflicts = append(conflicts, c)
		}
		return nil
	}

	handled, err := me.mergeTypeChanges(merged, base, src, tgt, record)
	if err != nil {
		return nil, nil, nil, err
	}

	for _, key := range unionKeys(base, src, tgt) {
		if handled[key] {
			continue
		}
		bEl, bOK := base.Lookup(key.t, key.id)
		sEl, sOK := src.Lookup(key.t, key.id)
		tEl, tOK := tgt.Lookup(key.t, key.id)

		srcChanged := sideChanged(bEl, bOK, sEl, sOK)
		tgtChanged := sideChanged(bEl, bOK, tEl, tOK)

		switch {
		case !srcChanged:
			// Target-only change or no change; merged already has it.

		case !tgtChanged:
			// Source-only change.
			if sOK {
				if err := merged.Apply(sEl.Clone()); err != nil {
					return nil, nil, nil, err
				}
			} else {
				merged.Remove(key.t, key.id)
			}

		case sOK == tOK && (!sOK || sEl.Equal(tEl)):
			// Identical change on both sides.

		default:
			if err := me.mergeConflicted(merged, key, bEl, bOK, sEl, sOK, tEl, tOK, record); err != nil {
				return nil, nil, nil, err
			}
		}
	}

	return merged, conflicts, resolved, nil
}

// mergeConflicted classifies and handles one both-sided disagreement on a
// single element key.
func (me *MergeEngine) mergeConflicted(
	merged *graph.State,
	key elementKey,
	bEl graph.Element, bOK bool,
	sEl graph.Element, sOK bool,
	tEl graph.Element, tOK bool,
	record func(Conflict, func(MergeStrategy) error) error,
) error {
	label := conflictLabel(bEl, bOK, sEl, sOK, tEl, tOK)

	switch {
	case !bOK:
		// Added on both sides with different content.
		c := Conflict{
			Type:          ConflictAddAdd,
			ElementType:   key.t,
			ElementID:     key.id,
			Label:         label,
			Base:          "<absent>",
			Source:        describeElement(sEl),
			Target:        describeElement(tEl),
			sourceElement: sEl.Clone(),
		}
		return record(c, func(winner MergeStrategy) error {
			if winner == StrategyTheirs {
				return merged.Apply(c.sourceElement.Clone())
			}
			return nil
		})

	case !sOK:
		// Source deleted, target updated.
		c := Conflict{
			Type:        ConflictDeleteUpdate,
			ElementType: key.t,
			ElementID:   key.id,
			Label:       label,
			Base:        describeElement(bEl),
			Source:      "<deleted>",
			Target:      describeElement(tEl),
		}
		return record(c, func(winner MergeStrategy) error {
			if winner == StrategyTheirs {
				merged.Remove(key.t, key.id)
			}
			return nil
		})

	case !tOK:
		// Target deleted, source updated.
		c := Conflict{
			Type:          ConflictDeleteUpdate,
			ElementType:   key.t,
			ElementID:     key.id,
			Label:         label,
			Base:          describeElement(bEl),
			Source:        describeElement(sEl),
			Target:        "<deleted>",
			sourceElement: sEl.Clone(),
		}
		return record(c, func(winner MergeStrategy) error {
			if winner == StrategyTheirs {
				return merged.Apply(c.sourceElement.Clone())
			}
			return nil
		})

	default:
		return me.mergeProperties(merged, key, bEl, sEl, tEl, label, record)
	}
}

// mergeProperties merges one element both sides updated, property by
// property. Disjoint property edits combine cleanly; only a property both
// sides set to different values conflicts.
func (me *MergeEngine) mergeProperties(
	merged *graph.State,
	key elementKey,
	bEl, sEl, tEl graph.Element,
	label string,
	record func(Conflict, func(MergeStrategy) error) error,
) error {
	bProps := bEl.PropertyMap()
	sProps := sEl.PropertyMap()
	tProps := tEl.PropertyMap()

	names := make(map[string]bool, len(bProps)+len(sProps)+len(tProps))
	for name := range bProps {
		names[name] = true
	}
	for name := range sProps {
		names[name] = true
	}
	for name := range tProps {
		names[name] = true
	}
	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	slices.Sort(ordered)

	mergedEl := tEl.Clone()
	for _, name := range ordered {
		bv := bProps[name]
		sv := sProps[name]
		tv := tProps[name]

		srcChanged := !sv.Equal(bv)
		tgtChanged := !tv.Equal(bv)

		switch {
		case !srcChanged:
			// Target's value (or the shared base value) stands.
		case !tgtChanged:
			if err := mergedEl.SetProperty(name, sv); err != nil {
				return fmt.Errorf("apply %s.%s from source: %w", key.id, name, err)
			}
		case sv.Equal(tv):
			// Same change on both sides.
		default:
			c := Conflict{
				Type:        ConflictUpdateUpdate,
				ElementType: key.t,
				ElementID:   key.id,
				Label:       label,
				Property:    name,
				Base:        bv.String(),
				Source:      sv.String(),
				Target:      tv.String(),
				baseValue:   bv.Clone(),
				sourceValue: sv.Clone(),
			}
			propName := name
			if err := record(c, func(winner MergeStrategy) error {
				if winner == StrategyTheirs {
					return mergedEl.SetProperty(propName, c.sourceValue)
				}
				return nil
			}); err != nil {
				return err
			}
		}
	}

	return merged.Apply(mergedEl)
}

// mergeTypeChanges handles bare IDs that wear different element types across
// the sides: a side that deleted an element under its base type and re-added
// the same ID under another type changed its type. Returns the element keys
// it consumed so the per-key pass skips them.
func (me *MergeEngine) mergeTypeChanges(
	merged, base, src, tgt *graph.State,
	record func(Conflict, func(MergeStrategy) error) error,
) (map[elementKey]bool, error) {
	handled := make(map[elementKey]bool)

	ids := make(map[string]bool)
	for _, el := range base.Elements() {
		ids[el.ID()] = true
	}
	ordered := make([]string, 0, len(ids))
	for id := range ids {
		ordered = append(ordered, id)
	}
	slices.Sort(ordered)

	for _, id := range ordered {
		baseTypes := presentTypes(base, id)
		if len(baseTypes) != 1 {
			continue
		}
		baseType := baseTypes[0]
		bEl, _ := base.Lookup(baseType, id)

		sNewType, sRetyped := retypedAs(src, id, baseType)
		tNewType, tRetyped := retypedAs(tgt, id, baseType)
		if !sRetyped && !tRetyped {
			continue
		}

		consume := func(states ...*graph.State) {
			for _, st := range states {
				for _, t := range presentTypes(st, id) {
					handled[elementKey{t: t, id: id}] = true
				}
			}
			handled[elementKey{t: baseType, id: id}] = true
		}

		sEl, _ := src.Lookup(sNewType, id)
		tEl, _ := tgt.Lookup(tNewType, id)

		switch {
		case sRetyped && tRetyped:
			consume(src, tgt)
			if sNewType == tNewType && sEl.Equal(tEl) {
				// Both sides made the same type change.
				continue
			}
			c := Conflict{
				Type:          ConflictTypeChange,
				ElementType:   baseType,
				ElementID:     id,
				Label:         conflictLabel(bEl, true, sEl, true, tEl, true),
				Base:          describeElement(bEl),
				Source:        describeElement(sEl),
				Target:        describeElement(tEl),
				sourceElement: sEl.Clone(),
			}
			if err := record(c, func(winner MergeStrategy) error {
				if winner == StrategyTheirs {
					merged.Remove(tNewType, id)
					return merged.Apply(c.sourceElement.Clone())
				}
				return nil
			}); err != nil {
				return nil, err
			}

		case sRetyped:
			consume(src, tgt)
			tBaseEl, tHasBase := tgt.Lookup(baseType, id)
			if tHasBase && tBaseEl.Equal(bEl) {
				// Target left the element alone; apply the re-type.
				merged.Remove(baseType, id)
				if err := merged.Apply(sEl.Clone()); err != nil {
					return nil, err
				}
				continue
			}
			c := Conflict{
				Type:          ConflictTypeChange,
				ElementType:   baseType,
				ElementID:     id,
				Label:         conflictLabel(bEl, true, sEl, true, tBaseEl, tHasBase),
				Base:          describeElement(bEl),
				Source:        describeElement(sEl),
				Target:        describeSide(tBaseEl, tHasBase),
				sourceElement: sEl.Clone(),
			}
			if err := record(c, func(winner MergeStrategy) error {
				if winner == StrategyTheirs {
					merged.Remove(baseType, id)
					return merged.Apply(c.sourceElement.Clone())
				}
				return nil
			}); err != nil {
				return nil, err
			}

		default: // tRetyped only
			consume(src, tgt)
			sBaseEl, sHasBase := src.Lookup(baseType, id)
			if sHasBase && sBaseEl.Equal(bEl) {
				// Source left the element alone; target's re-type stands.
				continue
			}
			c := Conflict{
				Type:          ConflictTypeChange,
				ElementType:   baseType,
				ElementID:     id,
				Label:         conflictLabel(bEl, true, sBaseEl, sHasBase, tEl, true),
				Base:          describeElement(bEl),
				Source:        describeSide(sBaseEl, sHasBase),
				Target:        describeElement(tEl),
				sourceElement: sBaseEl.Clone(),
			}
			if err := record(c, func(winner MergeStrategy) error {
				if winner == StrategyTheirs {
					merged.Remove(tNewType, id)
					if sHasBase {
						return merged.Apply(c.sourceElement.Clone())
					}
					merged.Remove(baseType, id)
				}
				return nil
			}); err != nil {
				return nil, err
			}
		}
	}

	return handled, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// sideChanged reports whether a side differs from base in presence or
// content. Element equality ignores timestamps.
func sideChanged(baseEl graph.Element, baseOK bool, el graph.Element, ok bool) bool {
	if baseOK != ok {
		return true
	}
	if !ok {
		return false
	}
	return !baseEl.Equal(el)
}

// unionKeys returns every (type, id) key present in any of the states, in
// canonical order.
func unionKeys(states ...*graph.State) []elementKey {
	seen := make(map[elementKey]bool)
	var keys []elementKey
	for _, st := range states {
		for _, el := range st.Elements() {
			key := elementKey{t: el.Type, id: el.ID()}
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	typeRank := make(map[graph.ElementType]int, len(graph.ElementTypes))
	for i, t := range graph.ElementTypes {
		typeRank[t] = i
	}
	slices.SortFunc(keys, func(a, b elementKey) int {
		if a.t != b.t {
			return typeRank[a.t] - typeRank[b.t]
		}
		return strings.Compare(a.id, b.id)
	})
	return keys
}

// presentTypes lists the element types a bare ID occupies in a state.
func presentTypes(st *graph.State, id string) []graph.ElementType {
	var out []graph.ElementType
	for _, t := range graph.ElementTypes {
		if _, ok := st.Lookup(t, id); ok {
			out = append(out, t)
		}
	}
	return out
}

// retypedAs reports whether a side moved a bare ID from its base type to
// exactly one other type.
func retypedAs(st *graph.State, id string, baseType graph.ElementType) (graph.ElementType, bool) {
	if _, ok := st.Lookup(baseType, id); ok {
		return "", false
	}
	types := presentTypes(st, id)
	if len(types) != 1 {
		return "", false
	}
	return types[0], true
}

// describeElement renders an element for conflict display.
func describeElement(el graph.Element) string {
	if el.IsZero() {
		return "<absent>"
	}
	if label := elementLabel(el); label != "" {
		return fmt.Sprintf("%s %q", el.Type, label)
	}
	return fmt.Sprintf("%s %s", el.Type, el.ID())
}

// describeSide renders an element that may be absent on its side.
func describeSide(el graph.Element, ok bool) string {
	if !ok {
		return "<deleted>"
	}
	return describeElement(el)
}

// elementLabel picks the element's display name, when it has one.
func elementLabel(el graph.Element) string {
	switch el.Type {
	case graph.ElementTypeEntity:
		if el.Entity != nil {
			return el.Entity.Label
		}
	case graph.ElementTypeRelationship:
		if el.Relationship != nil {
			return el.Relationship.Label
		}
	case graph.ElementTypeClaim:
		if el.Claim != nil {
			return el.Claim.Predicate
		}
	case graph.ElementTypeAxiom:
		if el.Axiom != nil {
			return el.Axiom.Name
		}
	}
	return ""
}

// conflictLabel picks a display label from whichever side has the element.
func conflictLabel(bEl graph.Element, bOK bool, sEl graph.Element, sOK bool, tEl graph.Element, tOK bool) string {
	if bOK {
		if label := elementLabel(bEl); label != "" {
			return label
		}
	}
	if tOK {
		if label := elementLabel(tEl); label != "" {
			return label
		}
	}
	if sOK {
		if label := elementLabel(sEl); label != "" {
			return label
		}
	}
	return ""
}

// shortID abbreviates a version ID for messages.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
