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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/chronograph/graph"
)

// -----------------------------------------------------------------------------
// Change Stats Tests
// -----------------------------------------------------------------------------

func TestChangeStatsAdd(t *testing.T) {
	var s ChangeStats
	s.Add(graph.ElementTypeEntity, ChangeCreate)
	s.Add(graph.ElementTypeEntity, ChangeCreate)
	s.Add(graph.ElementTypeEntity, ChangeDelete)
	s.Add(graph.ElementTypeRelationship, ChangeUpdate)
	s.Add(graph.ElementTypeClaim, ChangeCreate)
	s.Add(graph.ElementTypeAxiom, ChangeUpdate)

	assert.Equal(t, 2, s.EntitiesCreated)
	assert.Equal(t, 1, s.EntitiesDeleted)
	assert.Equal(t, 1, s.RelationshipsModified)
	assert.Equal(t, 1, s.ClaimsCreated)
	assert.Equal(t, 1, s.AxiomsModified)
	assert.Equal(t, 6, s.Total())
}

func TestChangeStatsMerge(t *testing.T) {
	var a, b ChangeStats
	a.Add(graph.ElementTypeEntity, ChangeCreate)
	a.Add(graph.ElementTypeClaim, ChangeDelete)
	b.Add(graph.ElementTypeEntity, ChangeCreate)
	b.Add(graph.ElementTypeRelationship, ChangeCreate)

	a.Merge(b)
	assert.Equal(t, 2, a.EntitiesCreated)
	assert.Equal(t, 1, a.RelationshipsCreated)
	assert.Equal(t, 1, a.ClaimsDeleted)
	assert.Equal(t, 4, a.Total())
}

// -----------------------------------------------------------------------------
// Version Tests
// -----------------------------------------------------------------------------

func TestVersionIsRoot(t *testing.T) {
	root := Version{ID: "v-1", Seq: 1}
	child := Version{ID: "v-2", Seq: 2, ParentSeq: 1, ParentID: "v-1"}

	assert.True(t, root.IsRoot())
	assert.False(t, child.IsRoot())
}

func TestVersionShortID(t *testing.T) {
	long := Version{ID: "0123456789abcdef"}
	short := Version{ID: "v-1"}

	assert.Equal(t, "01234567", long.ShortID())
	assert.Equal(t, "v-1", short.ShortID())
}

func TestVersionCreatedAt(t *testing.T) {
	v := Version{CreatedAtMilli: 1700000000000}
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), v.CreatedAt())
	assert.Equal(t, time.UTC, v.CreatedAt().Location())
}

// -----------------------------------------------------------------------------
// Delta Tests
// -----------------------------------------------------------------------------

func encodeTestEntity(t *testing.T, id, label string) []byte {
	t.Helper()
	data, err := EncodeElement(testEntity(id, label, nil))
	require.NoError(t, err)
	return data
}

func TestDeltaInvert(t *testing.T) {
	oldPayload := encodeTestEntity(t, "e-1", "before")
	newPayload := encodeTestEntity(t, "e-1", "after")

	t.Run("create inverts to delete", func(t *testing.T) {
		d := Delta{
			ElementType: graph.ElementTypeEntity,
			ElementID:   "e-1",
			ChangeType:  ChangeCreate,
			NewValue:    newPayload,
		}
		inv := d.Invert()
		assert.Equal(t, ChangeDelete, inv.ChangeType)
		assert.Equal(t, newPayload, inv.OldValue)
		assert.Empty(t, inv.NewValue)
	})

	t.Run("delete inverts to create", func(t *testing.T) {
		d := Delta{
			ElementType: graph.ElementTypeEntity,
			ElementID:   "e-1",
			ChangeType:  ChangeDelete,
			OldValue:    oldPayload,
		}
		inv := d.Invert()
		assert.Equal(t, ChangeCreate, inv.ChangeType)
		assert.Equal(t, oldPayload, inv.NewValue)
		assert.Empty(t, inv.OldValue)
	})

	t.Run("update swaps old and new", func(t *testing.T) {
		d := Delta{
			ElementType: graph.ElementTypeEntity,
			ElementID:   "e-1",
			ChangeType:  ChangeUpdate,
			OldValue:    oldPayload,
			NewValue:    newPayload,
		}
		inv := d.Invert()
		assert.Equal(t, ChangeUpdate, inv.ChangeType)
		assert.Equal(t, newPayload, inv.OldValue)
		assert.Equal(t, oldPayload, inv.NewValue)
	})

	t.Run("double inversion restores the original", func(t *testing.T) {
		d := Delta{
			ID:          "d-1",
			ElementType: graph.ElementTypeEntity,
			ElementID:   "e-1",
			ChangeType:  ChangeCreate,
			NewValue:    newPayload,
		}
		inv := d.Invert()
		back := inv.Invert()
		assert.Equal(t, d, back)
	})
}

func TestDeltaValidate(t *testing.T) {
	payload := encodeTestEntity(t, "e-1", "x")

	tests := []struct {
		name    string
		delta   Delta
		wantErr bool
	}{
		{
			name: "valid create",
			delta: Delta{
				ElementType: graph.ElementTypeEntity,
				ElementID:   "e-1",
				ChangeType:  ChangeCreate,
				NewValue:    payload,
			},
		},
		{
			name: "valid update",
			delta: Delta{
				ElementType: graph.ElementTypeEntity,
				ElementID:   "e-1",
				ChangeType:  ChangeUpdate,
				OldValue:    payload,
				NewValue:    payload,
			},
		},
		{
			name: "valid delete",
			delta: Delta{
				ElementType: graph.ElementTypeEntity,
				ElementID:   "e-1",
				ChangeType:  ChangeDelete,
				OldValue:    payload,
			},
		},
		{
			name: "missing element ID",
			delta: Delta{
				ElementType: graph.ElementTypeEntity,
				ChangeType:  ChangeCreate,
				NewValue:    payload,
			},
			wantErr: true,
		},
		{
			name: "unknown element type",
			delta: Delta{
				ElementType: "gadget",
				ElementID:   "e-1",
				ChangeType:  ChangeCreate,
				NewValue:    payload,
			},
			wantErr: true,
		},
		{
			name: "unknown change type",
			delta: Delta{
				ElementType: graph.ElementTypeEntity,
				ElementID:   "e-1",
				ChangeType:  "upsert",
				NewValue:    payload,
			},
			wantErr: true,
		},
		{
			name: "create without new value",
			delta: Delta{
				ElementType: graph.ElementTypeEntity,
				ElementID:   "e-1",
				ChangeType:  ChangeCreate,
			},
			wantErr: true,
		},
		{
			name: "update without old value",
			delta: Delta{
				ElementType: graph.ElementTypeEntity,
				ElementID:   "e-1",
				ChangeType:  ChangeUpdate,
				NewValue:    payload,
			},
			wantErr: true,
		},
		{
			name: "delete without old value",
			delta: Delta{
				ElementType: graph.ElementTypeEntity,
				ElementID:   "e-1",
				ChangeType:  ChangeDelete,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.delta.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrCorruptRecord)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDeltaDecode(t *testing.T) {
	el := testEntity("e-1", "payload", map[string]graph.PropertyValue{
		"n": graph.NumberValue(3),
	})
	payload, err := EncodeElement(el)
	require.NoError(t, err)

	d := Delta{
		ElementType: graph.ElementTypeEntity,
		ElementID:   "e-1",
		ChangeType:  ChangeCreate,
		NewValue:    payload,
	}

	out, err := d.DecodeNew()
	require.NoError(t, err)
	assert.True(t, el.Equal(out))

	// Creates have no old payload and decode to the zero element.
	old, err := d.DecodeOld()
	require.NoError(t, err)
	assert.Equal(t, graph.Element{}, old)
}

// -----------------------------------------------------------------------------
// Snapshot Record Tests
// -----------------------------------------------------------------------------

func TestSnapshotRecordElements(t *testing.T) {
	rec := SnapshotRecord{
		EntityCount:       3,
		RelationshipCount: 2,
		ClaimCount:        1,
		AxiomCount:        1,
	}
	assert.Equal(t, 7, rec.Elements())
}

func TestSnapshotRecordCompressionRatio(t *testing.T) {
	rec := SnapshotRecord{UncompressedBytes: 1000, CompressedBytes: 250}
	assert.InDelta(t, 0.25, rec.CompressionRatio(), 1e-9)

	empty := SnapshotRecord{}
	assert.Zero(t, empty.CompressionRatio())
}

// -----------------------------------------------------------------------------
// Type String Tests
// -----------------------------------------------------------------------------

func TestChangeTypeValid(t *testing.T) {
	assert.True(t, ChangeCreate.Valid())
	assert.True(t, ChangeUpdate.Valid())
	assert.True(t, ChangeDelete.Valid())
	assert.False(t, ChangeType("upsert").Valid())
	assert.Equal(t, "create", ChangeCreate.String())
}
