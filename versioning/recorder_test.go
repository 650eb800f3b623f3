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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/chronograph/graph"
)

func createTestRecorder(t *testing.T) *RecordingStore {
	t.Helper()
	return NewRecordingStore(graph.NewMemoryStore())
}

// -----------------------------------------------------------------------------
// Basic Recording Tests
// -----------------------------------------------------------------------------

func TestRecordingStoreBasics(t *testing.T) {
	ctx := context.Background()

	t.Run("put of a new element records a create", func(t *testing.T) {
		rec := createTestRecorder(t)
		require.NoError(t, rec.Put(ctx, testEntity("e-1", "fresh", nil)))

		deltas := rec.Deltas()
		require.Len(t, deltas, 1)
		assert.Equal(t, ChangeCreate, deltas[0].ChangeType)
		assert.Equal(t, "e-1", deltas[0].ElementID)
		assert.Empty(t, deltas[0].OldValue)
	})

	t.Run("put of an existing element records an update with the prior value", func(t *testing.T) {
		rec := NewRecordingStore(graph.NewMemoryStoreFromState(seedState(t)))
		require.NoError(t, rec.Put(ctx, testEntity("e-1", "renamed", nil)))

		deltas := rec.Deltas()
		require.Len(t, deltas, 1)
		assert.Equal(t, ChangeUpdate, deltas[0].ChangeType)

		old, err := deltas[0].DecodeOld()
		require.NoError(t, err)
		assert.Equal(t, "seeded", old.Entity.Label)
	})

	t.Run("delete records the removed value", func(t *testing.T) {
		rec := NewRecordingStore(graph.NewMemoryStoreFromState(seedState(t)))
		require.NoError(t, rec.Delete(ctx, graph.ElementTypeEntity, "e-1"))

		deltas := rec.Deltas()
		require.Len(t, deltas, 1)
		assert.Equal(t, ChangeDelete, deltas[0].ChangeType)
		old, err := deltas[0].DecodeOld()
		require.NoError(t, err)
		assert.Equal(t, "seeded", old.Entity.Label)
	})

	t.Run("delete of a missing element fails without recording", func(t *testing.T) {
		rec := createTestRecorder(t)
		err := rec.Delete(ctx, graph.ElementTypeEntity, "ghost")
		assert.ErrorIs(t, err, graph.ErrElementNotFound)
		assert.Zero(t, rec.Len())
	})

	t.Run("content equal put is not a change", func(t *testing.T) {
		rec := NewRecordingStore(graph.NewMemoryStoreFromState(seedState(t)))
		require.NoError(t, rec.Put(ctx, testEntity("e-1", "seeded", nil)))
		assert.Zero(t, rec.Len())
	})

	t.Run("reads pass through and do not record", func(t *testing.T) {
		rec := NewRecordingStore(graph.NewMemoryStoreFromState(seedState(t)))

		el, err := rec.Get(ctx, graph.ElementTypeEntity, "e-1")
		require.NoError(t, err)
		assert.Equal(t, "seeded", el.Entity.Label)

		st, err := rec.Export(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, st.Len())

		counts, err := rec.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, counts.Entities)

		assert.Zero(t, rec.Len())
	})
}

func seedState(t *testing.T) *graph.State {
	t.Helper()
	st := graph.NewState()
	require.NoError(t, st.Apply(testEntity("e-1", "seeded", nil)))
	return st
}

// -----------------------------------------------------------------------------
// Coalescing Tests
// -----------------------------------------------------------------------------

func TestRecordingStoreCoalescing(t *testing.T) {
	ctx := context.Background()

	t.Run("create then update stays a create with the latest value", func(t *testing.T) {
		rec := createTestRecorder(t)
		require.NoError(t, rec.Put(ctx, testEntity("e-1", "v1", nil)))
		require.NoError(t, rec.Put(ctx, testEntity("e-1", "v2", nil)))

		deltas := rec.Deltas()
		require.Len(t, deltas, 1)
		assert.Equal(t, ChangeCreate, deltas[0].ChangeType)
		latest, err := deltas[0].DecodeNew()
		require.NoError(t, err)
		assert.Equal(t, "v2", latest.Entity.Label)
	})

	t.Run("create then delete cancels out", func(t *testing.T) {
		rec := createTestRecorder(t)
		require.NoError(t, rec.Put(ctx, testEntity("e-1", "ephemeral", nil)))
		require.NoError(t, rec.Delete(ctx, graph.ElementTypeEntity, "e-1"))

		assert.Empty(t, rec.Deltas())
	})

	t.Run("update then update keeps the original old value", func(t *testing.T) {
		rec := NewRecordingStore(graph.NewMemoryStoreFromState(seedState(t)))
		require.NoError(t, rec.Put(ctx, testEntity("e-1", "v2", nil)))
		require.NoError(t, rec.Put(ctx, testEntity("e-1", "v3", nil)))

		deltas := rec.Deltas()
		require.Len(t, deltas, 1)
		assert.Equal(t, ChangeUpdate, deltas[0].ChangeType)

		old, err := deltas[0].DecodeOld()
		require.NoError(t, err)
		latest, err := deltas[0].DecodeNew()
		require.NoError(t, err)
		assert.Equal(t, "seeded", old.Entity.Label)
		assert.Equal(t, "v3", latest.Entity.Label)
	})

	t.Run("update then delete becomes a delete of the original", func(t *testing.T) {
		rec := NewRecordingStore(graph.NewMemoryStoreFromState(seedState(t)))
		require.NoError(t, rec.Put(ctx, testEntity("e-1", "doomed", nil)))
		require.NoError(t, rec.Delete(ctx, graph.ElementTypeEntity, "e-1"))

		deltas := rec.Deltas()
		require.Len(t, deltas, 1)
		assert.Equal(t, ChangeDelete, deltas[0].ChangeType)
		assert.Empty(t, deltas[0].NewValue)

		old, err := deltas[0].DecodeOld()
		require.NoError(t, err)
		assert.Equal(t, "seeded", old.Entity.Label)
	})

	t.Run("delete then create becomes an update", func(t *testing.T) {
		rec := NewRecordingStore(graph.NewMemoryStoreFromState(seedState(t)))
		require.NoError(t, rec.Delete(ctx, graph.ElementTypeEntity, "e-1"))
		require.NoError(t, rec.Put(ctx, testEntity("e-1", "reborn", nil)))

		deltas := rec.Deltas()
		require.Len(t, deltas, 1)
		assert.Equal(t, ChangeUpdate, deltas[0].ChangeType)

		old, err := deltas[0].DecodeOld()
		require.NoError(t, err)
		latest, err := deltas[0].DecodeNew()
		require.NoError(t, err)
		assert.Equal(t, "seeded", old.Entity.Label)
		assert.Equal(t, "reborn", latest.Entity.Label)
	})

	t.Run("element restored to its original content drops the record", func(t *testing.T) {
		rec := NewRecordingStore(graph.NewMemoryStoreFromState(seedState(t)))
		require.NoError(t, rec.Put(ctx, testEntity("e-1", "detour", nil)))
		require.NoError(t, rec.Put(ctx, testEntity("e-1", "seeded", nil)))

		assert.Empty(t, rec.Deltas())
	})

	t.Run("delete then recreate with identical content drops the record", func(t *testing.T) {
		rec := NewRecordingStore(graph.NewMemoryStoreFromState(seedState(t)))
		require.NoError(t, rec.Delete(ctx, graph.ElementTypeEntity, "e-1"))
		require.NoError(t, rec.Put(ctx, testEntity("e-1", "seeded", nil)))

		assert.Empty(t, rec.Deltas())
	})
}

// -----------------------------------------------------------------------------
// Replace Tests
// -----------------------------------------------------------------------------

func TestRecordingStoreReplace(t *testing.T) {
	ctx := context.Background()

	t.Run("replace records the element level difference", func(t *testing.T) {
		rec := NewRecordingStore(graph.NewMemoryStoreFromState(seedState(t)))

		next := graph.NewState()
		require.NoError(t, next.Apply(testEntity("e-1", "replaced", nil)))
		require.NoError(t, next.Apply(testEntity("e-2", "added", nil)))
		require.NoError(t, rec.Replace(ctx, next))

		deltas := rec.Deltas()
		require.Len(t, deltas, 2)

		byID := map[string]ChangeType{}
		for _, d := range deltas {
			byID[d.ElementID] = d.ChangeType
		}
		assert.Equal(t, ChangeUpdate, byID["e-1"])
		assert.Equal(t, ChangeCreate, byID["e-2"])

		// The wrapped store now holds the replacement state.
		st, err := rec.Export(ctx)
		require.NoError(t, err)
		assert.True(t, st.Equal(next))
	})

	t.Run("replace with identical content records nothing", func(t *testing.T) {
		rec := NewRecordingStore(graph.NewMemoryStoreFromState(seedState(t)))
		require.NoError(t, rec.Replace(ctx, seedState(t)))
		assert.Empty(t, rec.Deltas())
	})

	t.Run("replace coalesces with earlier edits", func(t *testing.T) {
		rec := NewRecordingStore(graph.NewMemoryStoreFromState(seedState(t)))
		require.NoError(t, rec.Put(ctx, testEntity("e-1", "edited", nil)))

		// Replacing back to the seeded content undoes the edit.
		require.NoError(t, rec.Replace(ctx, seedState(t)))
		assert.Empty(t, rec.Deltas())
	})

	t.Run("nil state is rejected", func(t *testing.T) {
		rec := createTestRecorder(t)
		assert.ErrorIs(t, rec.Replace(ctx, nil), graph.ErrNilState)
	})
}

// -----------------------------------------------------------------------------
// Ordering Tests
// -----------------------------------------------------------------------------

func TestRecordingStoreFirstTouchOrder(t *testing.T) {
	ctx := context.Background()
	rec := createTestRecorder(t)

	require.NoError(t, rec.Put(ctx, testEntity("e-b", "second alphabetically, first touched", nil)))
	require.NoError(t, rec.Put(ctx, testEntity("e-a", "first alphabetically, second touched", nil)))
	require.NoError(t, rec.Put(ctx, testEntity("e-b", "touched again", nil)))

	deltas := rec.Deltas()
	require.Len(t, deltas, 2)
	assert.Equal(t, "e-b", deltas[0].ElementID)
	assert.Equal(t, "e-a", deltas[1].ElementID)
}

func TestRecordingStoreDeltasAreCopies(t *testing.T) {
	ctx := context.Background()
	rec := createTestRecorder(t)
	require.NoError(t, rec.Put(ctx, testEntity("e-1", "v1", nil)))

	first := rec.Deltas()
	first[0].ChangeType = ChangeDelete

	second := rec.Deltas()
	assert.Equal(t, ChangeCreate, second[0].ChangeType)
}
