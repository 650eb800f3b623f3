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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestState returns a small state with one element of each kind.
func buildTestState(t *testing.T) *State {
	t.Helper()

	st := NewState()
	require.NoError(t, st.Apply(EntityElement(&Entity{
		ID: "e1", Kind: "person", Label: "Ada",
		Properties: map[string]PropertyValue{"born": NumberValue(1815)},
	})))
	require.NoError(t, st.Apply(EntityElement(&Entity{
		ID: "e2", Kind: "machine", Label: "Analytical Engine",
	})))
	require.NoError(t, st.Apply(RelationshipElement(&Relationship{
		ID: "r1", SourceID: "e1", TargetID: "e2", Label: "programmed",
	})))
	require.NoError(t, st.Apply(ClaimElement(&Claim{
		ID: "c1", SubjectID: "e1", Predicate: "profession",
		Value: StringValue("mathematician"), Confidence: 0.95,
	})))
	require.NoError(t, st.Apply(AxiomElement(&Axiom{
		ID: "a1", Name: "sym", Expression: "knows(x,y) => knows(y,x)", Enabled: true,
	})))
	return st
}

func TestStateApplyAndLookup(t *testing.T) {
	st := buildTestState(t)

	el, ok := st.Lookup(ElementTypeEntity, "e1")
	require.True(t, ok)
	assert.Equal(t, "Ada", el.Entity.Label)

	_, ok = st.Lookup(ElementTypeEntity, "missing")
	assert.False(t, ok)

	assert.Equal(t, Counts{Entities: 2, Relationships: 1, Claims: 1, Axioms: 1}, st.Counts())
	assert.Equal(t, 5, st.Len())
}

func TestStateApplyRejectsInvalid(t *testing.T) {
	st := NewState()

	err := st.Apply(EntityElement(&Entity{ID: ""}))

	assert.ErrorIs(t, err, ErrInvalidElement)
	assert.Equal(t, 0, st.Len())
}

func TestStateRemove(t *testing.T) {
	st := buildTestState(t)

	assert.True(t, st.Remove(ElementTypeClaim, "c1"))
	assert.False(t, st.Remove(ElementTypeClaim, "c1"))

	_, ok := st.Lookup(ElementTypeClaim, "c1")
	assert.False(t, ok)
}

func TestStateCloneIsolation(t *testing.T) {
	original := buildTestState(t)
	clone := original.Clone()

	clone.Entities["e1"].Label = "mutated"
	clone.Entities["e1"].Properties["born"] = NumberValue(0)
	clone.Remove(ElementTypeAxiom, "a1")

	assert.Equal(t, "Ada", original.Entities["e1"].Label)
	assert.Equal(t, NumberValue(1815), original.Entities["e1"].Properties["born"])
	_, ok := original.Lookup(ElementTypeAxiom, "a1")
	assert.True(t, ok)
}

func TestStateElementsCanonicalOrder(t *testing.T) {
	st := buildTestState(t)

	elements := st.Elements()

	require.Len(t, elements, 5)
	// Kind order first, then IDs sorted within each kind.
	assert.Equal(t, "e1", elements[0].ID())
	assert.Equal(t, "e2", elements[1].ID())
	assert.Equal(t, ElementTypeRelationship, elements[2].Type)
	assert.Equal(t, ElementTypeClaim, elements[3].Type)
	assert.Equal(t, ElementTypeAxiom, elements[4].Type)
}

func TestStateChecksumDeterministic(t *testing.T) {
	a := buildTestState(t)
	b := buildTestState(t)

	require.Equal(t, a.Checksum(), b.Checksum())

	// Content changes move the digest.
	b.Entities["e1"].Label = "Grace"
	assert.NotEqual(t, a.Checksum(), b.Checksum())
}

func TestStateChecksumIgnoresInsertionOrder(t *testing.T) {
	a := NewState()
	require.NoError(t, a.Apply(EntityElement(&Entity{ID: "e1", Kind: "person"})))
	require.NoError(t, a.Apply(EntityElement(&Entity{ID: "e2", Kind: "person"})))

	b := NewState()
	require.NoError(t, b.Apply(EntityElement(&Entity{ID: "e2", Kind: "person"})))
	require.NoError(t, b.Apply(EntityElement(&Entity{ID: "e1", Kind: "person"})))

	assert.Equal(t, a.Checksum(), b.Checksum())
}

func TestStateEqual(t *testing.T) {
	a := buildTestState(t)
	b := buildTestState(t)

	require.True(t, a.Equal(b))

	b.Claims["c1"].Confidence = 0.5
	assert.False(t, a.Equal(b))
}
