// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// -----------------------------------------------------------------------------
// Store Errors
// -----------------------------------------------------------------------------

var (
	// ErrElementNotFound is returned when a lookup misses.
	ErrElementNotFound = errors.New("element not found")

	// ErrNilState is returned when Replace is called with a nil state.
	ErrNilState = errors.New("state must not be nil")

	// ErrNilContext is returned when a nil context is passed to a store method.
	ErrNilContext = errors.New("context must not be nil")
)

// -----------------------------------------------------------------------------
// Store Interface
// -----------------------------------------------------------------------------

// Store is the live-graph port the versioning engine reads, mutates and
// restores. Implementations must make Replace atomic: readers observe
// either the full previous state or the full new one, never a mix.
type Store interface {
	// Get returns the element of the given type and ID.
	// Returns ErrElementNotFound when absent.
	Get(ctx context.Context, t ElementType, id string) (Element, error)

	// Put upserts an element.
	Put(ctx context.Context, el Element) error

	// Delete removes an element. Returns ErrElementNotFound when absent.
	Delete(ctx context.Context, t ElementType, id string) error

	// Export materializes the full graph into a State the caller owns.
	Export(ctx context.Context) (*State, error)

	// Replace swaps the entire graph content for the given state,
	// all-or-nothing.
	Replace(ctx context.Context, st *State) error

	// Count returns per-kind element totals.
	Count(ctx context.Context) (Counts, error)
}

// -----------------------------------------------------------------------------
// Memory Store
// -----------------------------------------------------------------------------

// MemoryStore is a map-backed Store for tests, tooling and small graphs.
//
// Thread Safety:
//
//	Safe for concurrent use. Reads take a shared lock; Put, Delete and
//	Replace take the exclusive lock. Elements are copied on the way in
//	and out, so callers can never alias internal state.
type MemoryStore struct {
	mu    sync.RWMutex
	state *State
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: NewState()}
}

// NewMemoryStoreFromState returns a store seeded with a deep copy of st.
func NewMemoryStoreFromState(st *State) *MemoryStore {
	if st == nil {
		return NewMemoryStore()
	}
	return &MemoryStore{state: st.Clone()}
}

// Get returns a copy of the element.
func (m *MemoryStore) Get(ctx context.Context, t ElementType, id string) (Element, error) {
	if ctx == nil {
		return Element{}, ErrNilContext
	}
	if !t.Valid() {
		return Element{}, fmt.Errorf("%w: %q", ErrUnknownElementType, t)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	el, ok := m.state.Lookup(t, id)
	if !ok {
		return Element{}, fmt.Errorf("%w: %s %s", ErrElementNotFound, t, id)
	}
	return el.Clone(), nil
}

// Put validates and upserts a copy of the element.
func (m *MemoryStore) Put(ctx context.Context, el Element) error {
	if ctx == nil {
		return ErrNilContext
	}
	if err := el.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.Apply(el.Clone())
}

// Delete removes an element.
func (m *MemoryStore) Delete(ctx context.Context, t ElementType, id string) error {
	if ctx == nil {
		return ErrNilContext
	}
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownElementType, t)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Remove(t, id) {
		return fmt.Errorf("%w: %s %s", ErrElementNotFound, t, id)
	}
	return nil
}

// Export returns a deep copy of the full state.
func (m *MemoryStore) Export(ctx context.Context) (*State, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state.Clone(), nil
}

// Replace swaps the full state for a deep copy of st.
func (m *MemoryStore) Replace(ctx context.Context, st *State) error {
	if ctx == nil {
		return ErrNilContext
	}
	if st == nil {
		return ErrNilState
	}

	replacement := st.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = replacement
	return nil
}

// Count returns per-kind totals.
func (m *MemoryStore) Count(ctx context.Context) (Counts, error) {
	if ctx == nil {
		return Counts{}, ErrNilContext
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state.Counts(), nil
}
