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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/chronograph/graph"
)

// -----------------------------------------------------------------------------
// State Diffing Tests
// -----------------------------------------------------------------------------

func TestDiffStates(t *testing.T) {
	t.Run("identical states produce no deltas", func(t *testing.T) {
		st := graph.NewState()
		st.Apply(testEntity("e-1", "same", nil))

		deltas, err := diffStates(st, st.Clone())
		require.NoError(t, err)
		assert.Empty(t, deltas)
	})

	t.Run("added element becomes a create", func(t *testing.T) {
		from := graph.NewState()
		to := graph.NewState()
		to.Apply(testEntity("e-1", "new", nil))

		deltas, err := diffStates(from, to)
		require.NoError(t, err)
		require.Len(t, deltas, 1)
		assert.Equal(t, ChangeCreate, deltas[0].ChangeType)
		assert.Equal(t, "e-1", deltas[0].ElementID)
		assert.Empty(t, deltas[0].OldValue)
		assert.NotEmpty(t, deltas[0].NewValue)
	})

	t.Run("removed element becomes a delete", func(t *testing.T) {
		from := graph.NewState()
		from.Apply(testEntity("e-1", "old", nil))
		to := graph.NewState()

		deltas, err := diffStates(from, to)
		require.NoError(t, err)
		require.Len(t, deltas, 1)
		assert.Equal(t, ChangeDelete, deltas[0].ChangeType)
		assert.NotEmpty(t, deltas[0].OldValue)
		assert.Empty(t, deltas[0].NewValue)
	})

	t.Run("changed element becomes an update", func(t *testing.T) {
		from := graph.NewState()
		from.Apply(testEntity("e-1", "before", nil))
		to := graph.NewState()
		to.Apply(testEntity("e-1", "after", nil))

		deltas, err := diffStates(from, to)
		require.NoError(t, err)
		require.Len(t, deltas, 1)
		assert.Equal(t, ChangeUpdate, deltas[0].ChangeType)

		old, err := deltas[0].DecodeOld()
		require.NoError(t, err)
		assert.Equal(t, "before", old.Entity.Label)
		updated, err := deltas[0].DecodeNew()
		require.NoError(t, err)
		assert.Equal(t, "after", updated.Entity.Label)
	})

	t.Run("timestamp only differences are not changes", func(t *testing.T) {
		from := graph.NewState()
		from.Apply(graph.EntityElement(&graph.Entity{
			ID: "e-1", Kind: "thing", Label: "same", UpdatedAtMilli: 100,
		}))
		to := graph.NewState()
		to.Apply(graph.EntityElement(&graph.Entity{
			ID: "e-1", Kind: "thing", Label: "same", UpdatedAtMilli: 900,
		}))

		deltas, err := diffStates(from, to)
		require.NoError(t, err)
		assert.Empty(t, deltas)
	})

	t.Run("same ID under different types diffs independently", func(t *testing.T) {
		from := graph.NewState()
		from.Apply(testEntity("x-1", "entity form", nil))
		to := graph.NewState()
		to.Apply(graph.AxiomElement(&graph.Axiom{
			ID: "x-1", Name: "rule", Expression: "true",
		}))

		deltas, err := diffStates(from, to)
		require.NoError(t, err)
		require.Len(t, deltas, 2)

		byType := map[graph.ElementType]ChangeType{}
		for _, d := range deltas {
			byType[d.ElementType] = d.ChangeType
		}
		assert.Equal(t, ChangeCreate, byType[graph.ElementTypeAxiom])
		assert.Equal(t, ChangeDelete, byType[graph.ElementTypeEntity])
	})

	t.Run("deterministic ordering", func(t *testing.T) {
		from := graph.NewState()
		to := graph.NewState()
		for _, id := range []string{"e-3", "e-1", "e-2"} {
			to.Apply(testEntity(id, id, nil))
		}
		to.Apply(graph.RelationshipElement(&graph.Relationship{
			ID: "r-1", SourceID: "e-1", TargetID: "e-2", Label: "l",
		}))

		first, err := diffStates(from, to)
		require.NoError(t, err)
		second, err := diffStates(from, to)
		require.NoError(t, err)

		require.Equal(t, len(first), len(second))
		for i := range first {
			assert.Equal(t, first[i].ElementID, second[i].ElementID)
			assert.Equal(t, first[i].ElementType, second[i].ElementType)
		}
		// Entities sort before relationships in canonical order.
		assert.Equal(t, "e-1", first[0].ElementID)
		assert.Equal(t, graph.ElementTypeRelationship, first[3].ElementType)
	})

	t.Run("nil states are rejected", func(t *testing.T) {
		_, err := diffStates(nil, graph.NewState())
		assert.ErrorIs(t, err, graph.ErrNilState)
		_, err = diffStates(graph.NewState(), nil)
		assert.ErrorIs(t, err, graph.ErrNilState)
	})
}

// -----------------------------------------------------------------------------
// Delta Replay Tests
// -----------------------------------------------------------------------------

func TestApplyDeltas(t *testing.T) {
	from := graph.NewState()
	from.Apply(testEntity("e-1", "keep", nil))
	from.Apply(testEntity("e-2", "mutate", nil))
	from.Apply(testEntity("e-3", "drop", nil))

	to := graph.NewState()
	to.Apply(testEntity("e-1", "keep", nil))
	to.Apply(testEntity("e-2", "mutated", nil))
	to.Apply(testEntity("e-4", "added", nil))

	deltas, err := diffStates(from, to)
	require.NoError(t, err)

	replayed := from.Clone()
	require.NoError(t, applyDeltas(replayed, deltas))
	assert.True(t, replayed.Equal(to))
	assert.Equal(t, to.Checksum(), replayed.Checksum())
}

func TestApplyDeltasReverse(t *testing.T) {
	from := graph.NewState()
	from.Apply(testEntity("e-1", "v1", nil))
	from.Apply(graph.ClaimElement(&graph.Claim{
		ID: "c-1", SubjectID: "e-1", Predicate: "p", Confidence: 0.5,
	}))

	to := graph.NewState()
	to.Apply(testEntity("e-1", "v2", nil))
	to.Apply(testEntity("e-2", "born in v2", nil))

	deltas, err := diffStates(from, to)
	require.NoError(t, err)

	// Forward then reverse must land exactly back on the origin state.
	st := from.Clone()
	require.NoError(t, applyDeltas(st, deltas))
	require.True(t, st.Equal(to))
	require.NoError(t, applyDeltasReverse(st, deltas))
	assert.True(t, st.Equal(from))
	assert.Equal(t, from.Checksum(), st.Checksum())
}

func TestApplyDeltaUnknownChangeType(t *testing.T) {
	st := graph.NewState()
	err := applyDelta(st, &Delta{ChangeType: "upsert", ElementID: "e-1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown change type")
}

// -----------------------------------------------------------------------------
// Delta Stats Tests
// -----------------------------------------------------------------------------

func TestStatsForDeltas(t *testing.T) {
	deltas := []*Delta{
		{ElementType: graph.ElementTypeEntity, ChangeType: ChangeCreate},
		{ElementType: graph.ElementTypeEntity, ChangeType: ChangeUpdate},
		{ElementType: graph.ElementTypeRelationship, ChangeType: ChangeDelete},
		{ElementType: graph.ElementTypeAxiom, ChangeType: ChangeCreate},
	}

	stats := statsForDeltas(deltas)
	assert.Equal(t, 1, stats.EntitiesCreated)
	assert.Equal(t, 1, stats.EntitiesModified)
	assert.Equal(t, 1, stats.RelationshipsDeleted)
	assert.Equal(t, 1, stats.AxiomsCreated)
	assert.Equal(t, 4, stats.Total())
}
