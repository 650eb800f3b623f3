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
	"sync"

	"github.com/AleutianAI/chronograph/graph"
)

// elementKey identifies an element within a recording session.
type elementKey struct {
	t  graph.ElementType
	id string
}

// RecordingStore is a graph.Store decorator that captures element-level
// deltas for every mutation passing through it.
//
// Description:
//
//	Wraps any store and records what changed, including the value each
//	element had before its first modification in the session. Repeated
//	changes to one element coalesce into a single net delta:
//
//	  create then update  -> create (with the latest value)
//	  create then delete  -> nothing
//	  update then update  -> update (original old, latest new)
//	  update then delete  -> delete (original old)
//	  delete then create  -> update (original old, created value)
//
//	A sequence that lands an element back on its original content drops
//	the record entirely, so committing a scope that undid itself reports
//	nothing to commit.
//
// Thread Safety: Safe for concurrent use.
type RecordingStore struct {
	inner graph.Store

	mu      sync.Mutex
	order   []elementKey
	changes map[elementKey]*Delta
}

var _ graph.Store = (*RecordingStore)(nil)

// NewRecordingStore wraps inner with change recording.
func NewRecordingStore(inner graph.Store) *RecordingStore {
	return &RecordingStore{
		inner:   inner,
		changes: make(map[elementKey]*Delta),
	}
}

// Get delegates to the wrapped store.
func (r *RecordingStore) Get(ctx context.Context, t graph.ElementType, id string) (graph.Element, error) {
	return r.inner.Get(ctx, t, id)
}

// Export delegates to the wrapped store.
func (r *RecordingStore) Export(ctx context.Context) (*graph.State, error) {
	return r.inner.Export(ctx)
}

// Count delegates to the wrapped store.
func (r *RecordingStore) Count(ctx context.Context) (graph.Counts, error) {
	return r.inner.Count(ctx)
}

// Put writes an element and records a create or update delta.
func (r *RecordingStore) Put(ctx context.Context, el graph.Element) error {
	if err := el.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old, err := r.inner.Get(ctx, el.Type, el.ID())
	exists := err == nil
	if err != nil && !errors.Is(err, graph.ErrElementNotFound) {
		return err
	}

	// Content-equal writes are not changes.
	if exists && old.Equal(el) {
		return r.inner.Put(ctx, el)
	}

	if err := r.inner.Put(ctx, el); err != nil {
		return err
	}

	newVal, err := EncodeElement(el)
	if err != nil {
		return err
	}

	d := &Delta{
		ElementType: el.Type,
		ElementID:   el.ID(),
		ChangeType:  ChangeCreate,
		NewValue:    newVal,
	}
	if exists {
		oldVal, err := EncodeElement(old)
		if err != nil {
			return err
		}
		d.ChangeType = ChangeUpdate
		d.OldValue = oldVal
	}

	return r.recordLocked(d)
}

// Delete removes an element and records a delete delta.
func (r *RecordingStore) Delete(ctx context.Context, t graph.ElementType, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, err := r.inner.Get(ctx, t, id)
	if err != nil {
		return err
	}
	if err := r.inner.Delete(ctx, t, id); err != nil {
		return err
	}

	oldVal, err := EncodeElement(old)
	if err != nil {
		return err
	}

	return r.recordLocked(&Delta{
		ElementType: t,
		ElementID:   id,
		ChangeType:  ChangeDelete,
		OldValue:    oldVal,
	})
}

// Replace swaps the wrapped store's state and records the difference as
// element deltas, exactly as if each change had been made individually.
func (r *RecordingStore) Replace(ctx context.Context, st *graph.State) error {
	if st == nil {
		return graph.ErrNilState
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.inner.Export(ctx)
	if err != nil {
		return err
	}
	deltas, err := diffStates(current, st)
	if err != nil {
		return err
	}
	if err := r.inner.Replace(ctx, st); err != nil {
		return err
	}

	for _, d := range deltas {
		if err := r.recordLocked(d); err != nil {
			return err
		}
	}
	return nil
}

// recordLocked folds a fresh delta into the coalesced change set.
// Caller holds r.mu.
func (r *RecordingStore) recordLocked(d *Delta) error {
	k := elementKey{t: d.ElementType, id: d.ElementID}
	prev, tracked := r.changes[k]
	if !tracked {
		r.changes[k] = d
		r.order = append(r.order, k)
		return nil
	}

	switch {
	case prev.ChangeType == ChangeCreate && d.ChangeType == ChangeUpdate:
		prev.NewValue = d.NewValue

	case prev.ChangeType == ChangeCreate && d.ChangeType == ChangeDelete:
		delete(r.changes, k)

	case prev.ChangeType == ChangeUpdate && d.ChangeType == ChangeUpdate:
		prev.NewValue = d.NewValue
		return r.dropIfRestoredLocked(k, prev)

	case prev.ChangeType == ChangeUpdate && d.ChangeType == ChangeDelete:
		prev.ChangeType = ChangeDelete
		prev.NewValue = nil

	case prev.ChangeType == ChangeDelete && d.ChangeType == ChangeCreate:
		prev.ChangeType = ChangeUpdate
		prev.NewValue = d.NewValue
		return r.dropIfRestoredLocked(k, prev)

	default:
		return fmt.Errorf("inconsistent change sequence for %s %s: %s then %s",
			d.ElementType, d.ElementID, prev.ChangeType, d.ChangeType)
	}
	return nil
}

// dropIfRestoredLocked removes an update record whose old and new content
// are equal again. Caller holds r.mu.
func (r *RecordingStore) dropIfRestoredLocked(k elementKey, d *Delta) error {
	oldEl, err := d.DecodeOld()
	if err != nil {
		return err
	}
	newEl, err := d.DecodeNew()
	if err != nil {
		return err
	}
	if oldEl.Equal(newEl) {
		delete(r.changes, k)
	}
	return nil
}

// Deltas returns the coalesced changes in first-touch order.
func (r *RecordingStore) Deltas() []*Delta {
	r.mu.Lock()
	defer r.mu.Unlock()

	deltas := make([]*Delta, 0, len(r.changes))
	seen := make(map[elementKey]bool, len(r.changes))
	for _, k := range r.order {
		d, ok := r.changes[k]
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		cp := *d
		deltas = append(deltas, &cp)
	}
	return deltas
}

// Len returns the number of elements with pending changes.
func (r *RecordingStore) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}
