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
	"regexp"

	"github.com/AleutianAI/chronograph/events"
)

// -----------------------------------------------------------------------------
// Branch Names
// -----------------------------------------------------------------------------

// branchNamePattern is the allowed branch name shape. The character set
// deliberately excludes ':' (the ledger key separator), '~' and '@' (ref
// operators), so branch names never collide with ref grammar or keys.
var branchNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._/-]{1,100}$`)

// reservedBranchNames cannot be created by callers.
var reservedBranchNames = map[string]bool{
	"HEAD": true,
	".":    true,
	"..":   true,
}

// ValidateBranchName checks a branch name against the allowed pattern
// and the reserved set.
func ValidateBranchName(name string) error {
	if !branchNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidBranchName, name)
	}
	if reservedBranchNames[name] {
		return fmt.Errorf("%w: %q", ErrReservedBranchName, name)
	}
	return nil
}

// -----------------------------------------------------------------------------
// BranchManager
// -----------------------------------------------------------------------------

// BranchManager creates, lists and retires branches.
//
// Description:
//
//	A branch is a movable pointer onto the version ledger. Creating one
//	copies no data: the new branch's head points at an existing version
//	and diverges only when commits land on it. Deleting one removes the
//	pointer; the versions it pointed at stay in the ledger.
//
// Thread Safety: Safe for concurrent use.
type BranchManager struct {
	store     VersionStore
	resolver  *Resolver
	publisher events.Publisher
	logger    *slog.Logger
	now       func() int64

	defaultBranch func() string
}

// newBranchManager wires a branch manager; the engine owns construction.
func newBranchManager(store VersionStore, resolver *Resolver, publisher events.Publisher, logger *slog.Logger, now func() int64, defaultBranch func() string) *BranchManager {
	return &BranchManager{
		store:         store,
		resolver:      resolver,
		publisher:     publisher,
		logger:        logger.With(slog.String("component", "branches")),
		now:           now,
		defaultBranch: defaultBranch,
	}
}

// CreateBranchOptions configures branch creation.
type CreateBranchOptions struct {
	// From is the ref the new branch starts at. Empty means the default
	// branch's head.
	From Ref

	// CreatedBy is recorded as the branch author. Optional.
	CreatedBy string
}

// Create makes a new branch pointing at an existing version.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - name: Branch name. Must pass ValidateBranchName.
//   - opts: Starting point and attribution.
//
// Outputs:
//   - *Branch: The created branch.
//   - error: ErrBranchExists, ErrInvalidBranchName, ErrReservedBranchName,
//     or ref resolution errors.
func (bm *BranchManager) Create(ctx context.Context, name string, opts CreateBranchOptions) (*Branch, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := ValidateBranchName(name); err != nil {
		return nil, err
	}

	from := opts.From
	if from == "" {
		from = Ref(bm.defaultBranch())
	}

	baseID := ""
	v, err := bm.resolver.Resolve(ctx, from)
	switch {
	case err == nil:
		baseID = v.ID
	case errors.Is(err, ErrVersionNotFound) && Ref(bm.defaultBranch()) == from:
		// Branching off an empty default branch: start empty too.
	default:
		return nil, fmt.Errorf("resolve %q: %w", from, err)
	}

	b := &Branch{
		Name:           name,
		HeadID:         baseID,
		BaseID:         baseID,
		CreatedBy:      opts.CreatedBy,
		CreatedAtMilli: bm.now(),
	}
	if err := bm.store.PutBranch(ctx, b); err != nil {
		return nil, err
	}

	bm.publisher.Publish(events.Event{
		Type: events.TypeBranchCreated,
		Data: events.BranchCreatedData{Name: name, HeadID: baseID},
	})

	bm.logger.Info("branch created",
		slog.String("branch", name),
		slog.String("from", string(from)),
		slog.String("head", baseID))

	return b, nil
}

// Get returns a branch by name.
func (bm *BranchManager) Get(ctx context.Context, name string) (*Branch, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return bm.store.GetBranch(ctx, name)
}

// List returns all branches sorted by name.
func (bm *BranchManager) List(ctx context.Context) ([]*Branch, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return bm.store.ListBranches(ctx)
}

// Head returns the version at a branch's head.
func (bm *BranchManager) Head(ctx context.Context, name string) (*Version, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return bm.store.LatestVersion(ctx, name)
}

// AdvanceHead moves a branch head with compare-and-swap semantics. The
// merge engine uses this for fast-forwards; regular commits move heads
// inside the commit transaction instead.
func (bm *BranchManager) AdvanceHead(ctx context.Context, name, expectedHead, newHead string) error {
	if ctx == nil {
		return ErrNilContext
	}
	return bm.store.UpdateBranchHead(ctx, name, expectedHead, newHead)
}

// BranchComparison relates two branches: Ahead counts commits on A that B
// lacks, Behind counts commits on B that A lacks.
type BranchComparison struct {
	A string
	B string

	Ahead  int
	Behind int

	// CommonAncestorID is empty when the branches share no retained
	// history.
	CommonAncestorID string
}

// Compare walks both branches' chains back to the first shared version and
// reports ahead/behind counts relative to it.
func (bm *BranchManager) Compare(ctx context.Context, a, b string) (*BranchComparison, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	branchA, err := bm.store.GetBranch(ctx, a)
	if err != nil {
		return nil, err
	}
	branchB, err := bm.store.GetBranch(ctx, b)
	if err != nil {
		return nil, err
	}

	base, ahead, behind, err := chainIntersection(ctx, bm.store, branchA.HeadID, branchB.HeadID)
	if err != nil {
		return nil, err
	}

	cmp := &BranchComparison{A: a, B: b, Ahead: ahead, Behind: behind}
	if base != nil {
		cmp.CommonAncestorID = base.ID
	}
	return cmp, nil
}

// Delete removes a branch pointer. Versions reachable from it stay in
// the ledger and remain resolvable by ID.
func (bm *BranchManager) Delete(ctx context.Context, name string) error {
	if ctx == nil {
		return ErrNilContext
	}

	b, err := bm.store.GetBranch(ctx, name)
	if err != nil {
		return err
	}
	if b.IsDefault {
		return fmt.Errorf("%w: %s", ErrCannotDeleteDefaultBranch, name)
	}

	if err := bm.store.DeleteBranch(ctx, name); err != nil {
		return err
	}

	bm.publisher.Publish(events.Event{
		Type: events.TypeBranchDeleted,
		Data: events.BranchDeletedData{Name: name},
	})

	bm.logger.Info("branch deleted", slog.String("branch", name))
	return nil
}

// Archive marks a branch read-only. Scopes can no longer be opened on
// it; history and resolution keep working.
func (bm *BranchManager) Archive(ctx context.Context, name string) error {
	return bm.setArchived(ctx, name, true)
}

// Unarchive clears a branch's read-only flag.
func (bm *BranchManager) Unarchive(ctx context.Context, name string) error {
	return bm.setArchived(ctx, name, false)
}

func (bm *BranchManager) setArchived(ctx context.Context, name string, archived bool) error {
	if ctx == nil {
		return ErrNilContext
	}

	b, err := bm.store.GetBranch(ctx, name)
	if err != nil {
		return err
	}
	if b.IsDefault && archived {
		return fmt.Errorf("%w: cannot archive the default branch", ErrBranchArchived)
	}
	if b.Archived == archived {
		return nil
	}

	b.Archived = archived
	if err := bm.store.UpdateBranch(ctx, b); err != nil {
		return err
	}

	bm.logger.Info("branch archive flag changed",
		slog.String("branch", name),
		slog.Bool("archived", archived))
	return nil
}

// SetDefault moves the default flag to another branch.
//
// Description:
//
//	The default branch is what empty branch arguments and the HEAD ref
//	resolve to. The flag flip is two record writes, not one
//	transaction; the engine treats its in-memory default as the source
//	of truth, so a crash between the writes costs only a stale flag in
//	listings, repaired on the next SetDefault.
func (bm *BranchManager) SetDefault(ctx context.Context, name string) error {
	if ctx == nil {
		return ErrNilContext
	}

	b, err := bm.store.GetBranch(ctx, name)
	if err != nil {
		return err
	}
	if b.Archived {
		return fmt.Errorf("%w: cannot be the default", ErrBranchArchived)
	}
	if b.IsDefault {
		return nil
	}

	branches, err := bm.store.ListBranches(ctx)
	if err != nil {
		return err
	}
	for _, old := range branches {
		if !old.IsDefault {
			continue
		}
		old.IsDefault = false
		if err := bm.store.UpdateBranch(ctx, old); err != nil {
			return err
		}
	}

	b.IsDefault = true
	if err := bm.store.UpdateBranch(ctx, b); err != nil {
		return err
	}

	bm.logger.Info("default branch changed", slog.String("branch", name))
	return nil
}
