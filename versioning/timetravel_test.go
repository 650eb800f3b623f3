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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/chronograph/graph"
)

// -----------------------------------------------------------------------------
// Ref Parsing Tests
// -----------------------------------------------------------------------------

func TestParseRef(t *testing.T) {
	rfc := "2023-11-14T12:00:00Z"
	rfcMilli := func() int64 {
		ts, err := time.Parse(time.RFC3339, rfc)
		require.NoError(t, err)
		return ts.UnixMilli()
	}()

	tests := []struct {
		name    string
		ref     Ref
		want    parsedRef
		wantErr bool
	}{
		{
			name: "bare name",
			ref:  "main",
			want: parsedRef{base: "main", atMilli: -1},
		},
		{
			name: "ancestor hops",
			ref:  "main~3",
			want: parsedRef{base: "main", back: 3, atMilli: -1},
		},
		{
			name: "version id with hop",
			ref:  "0123456789abcdef~1",
			want: parsedRef{base: "0123456789abcdef", back: 1, atMilli: -1},
		},
		{
			name: "unix millisecond timestamp",
			ref:  "main@1700000000000",
			want: parsedRef{base: "main", atMilli: 1700000000000},
		},
		{
			name: "rfc3339 timestamp",
			ref:  Ref("main@" + rfc),
			want: parsedRef{base: "main", atMilli: rfcMilli},
		},
		{
			name: "timestamp then hops",
			ref:  "main@1700000000000~2",
			want: parsedRef{base: "main", back: 2, atMilli: 1700000000000},
		},
		{
			name: "surrounding whitespace",
			ref:  "  main  ",
			want: parsedRef{base: "main", atMilli: -1},
		},
		{name: "empty", ref: "", wantErr: true},
		{name: "blank", ref: "   ", wantErr: true},
		{name: "zero hops", ref: "main~0", wantErr: true},
		{name: "non numeric hops", ref: "main~abc", wantErr: true},
		{name: "trailing tilde", ref: "main~", wantErr: true},
		{name: "garbage timestamp", ref: "main@yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRef(tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRef)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// -----------------------------------------------------------------------------
// Resolution Tests
// -----------------------------------------------------------------------------

func TestResolve(t *testing.T) {
	ctx := context.Background()

	var clock atomic.Int64
	clock.Store(1000)
	e := createTestEngineOpts(t, WithClock(clock.Load))

	root, err := e.Resolve(ctx, "main")
	require.NoError(t, err)

	clock.Store(2000)
	v1 := commitPut(t, e, "", testEntity("e-1", "one", nil))
	clock.Store(3000)
	v2 := commitPut(t, e, "", testEntity("e-2", "two", nil))

	t.Run("version id", func(t *testing.T) {
		got, err := e.Resolve(ctx, Ref(v1.ID))
		require.NoError(t, err)
		assert.Equal(t, v1.ID, got.ID)
	})

	t.Run("branch resolves to its head", func(t *testing.T) {
		got, err := e.Resolve(ctx, "main")
		require.NoError(t, err)
		assert.Equal(t, v2.ID, got.ID)
	})

	t.Run("HEAD resolves to the default branch head", func(t *testing.T) {
		got, err := e.Resolve(ctx, "HEAD")
		require.NoError(t, err)
		assert.Equal(t, v2.ID, got.ID)
	})

	t.Run("ancestor hops walk the chain", func(t *testing.T) {
		got, err := e.Resolve(ctx, "main~1")
		require.NoError(t, err)
		assert.Equal(t, v1.ID, got.ID)

		got, err = e.Resolve(ctx, "main~2")
		require.NoError(t, err)
		assert.Equal(t, root.ID, got.ID)

		got, err = e.Resolve(ctx, Ref(v2.ID+"~1"))
		require.NoError(t, err)
		assert.Equal(t, v1.ID, got.ID)
	})

	t.Run("hops past the root fail", func(t *testing.T) {
		_, err := e.Resolve(ctx, "main~99")
		assert.ErrorIs(t, err, ErrInvalidRef)
	})

	t.Run("timestamp picks the newest version at or before it", func(t *testing.T) {
		got, err := e.Resolve(ctx, "main@2500")
		require.NoError(t, err)
		assert.Equal(t, v1.ID, got.ID)

		// Inclusive on the boundary.
		got, err = e.Resolve(ctx, "main@2000")
		require.NoError(t, err)
		assert.Equal(t, v1.ID, got.ID)

		got, err = e.Resolve(ctx, "main@9999")
		require.NoError(t, err)
		assert.Equal(t, v2.ID, got.ID)
	})

	t.Run("timestamp before all history", func(t *testing.T) {
		_, err := e.Resolve(ctx, "main@500")
		assert.ErrorIs(t, err, ErrVersionNotFound)
	})

	t.Run("snapshot name resolves to its version", func(t *testing.T) {
		_, err := e.CreateSnapshot(ctx, Ref(v1.ID), CreateSnapshotOptions{Name: "release-1"})
		require.NoError(t, err)

		got, err := e.Resolve(ctx, "release-1")
		require.NoError(t, err)
		assert.Equal(t, v1.ID, got.ID)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := e.Resolve(ctx, "no-such-thing")
		assert.ErrorIs(t, err, ErrInvalidRef)
	})

	t.Run("empty ref", func(t *testing.T) {
		_, err := e.Resolve(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidRef)
	})
}

// -----------------------------------------------------------------------------
// State Reconstruction Tests
// -----------------------------------------------------------------------------

func TestStateAt(t *testing.T) {
	ctx := context.Background()
	e := createTestEngine(t)

	v1 := commitPut(t, e, "", testEntity("e-1", "one", nil))
	v2 := commitPut(t, e, "",
		testEntity("e-2", "two", nil),
		testEntity("e-1", "one renamed", nil))
	v3 := commitDelete(t, e, "", graph.ElementTypeEntity, "e-1")

	t.Run("each version reconstructs its own state", func(t *testing.T) {
		st, err := e.StateAt(ctx, Ref(v1.ID))
		require.NoError(t, err)
		assert.Equal(t, 1, st.Len())
		assert.Equal(t, "one", st.Entities["e-1"].Label)

		st, err = e.StateAt(ctx, Ref(v2.ID))
		require.NoError(t, err)
		assert.Equal(t, 2, st.Len())
		assert.Equal(t, "one renamed", st.Entities["e-1"].Label)

		st, err = e.StateAt(ctx, Ref(v3.ID))
		require.NoError(t, err)
		assert.Equal(t, 1, st.Len())
		assert.Nil(t, st.Entities["e-1"])
	})

	t.Run("root state is empty", func(t *testing.T) {
		st, err := e.StateAt(ctx, Ref(v3.ID+"~3"))
		require.NoError(t, err)
		assert.Zero(t, st.Len())
	})

	t.Run("returned states are private copies", func(t *testing.T) {
		st, err := e.StateAt(ctx, Ref(v2.ID))
		require.NoError(t, err)
		st.Entities["e-1"].Label = "vandalized"
		st.Remove(graph.ElementTypeEntity, "e-2")

		again, err := e.StateAt(ctx, Ref(v2.ID))
		require.NoError(t, err)
		assert.Equal(t, "one renamed", again.Entities["e-1"].Label)
		assert.Equal(t, 2, again.Len())
	})

	t.Run("snapshot route matches replay route", func(t *testing.T) {
		replayed, err := e.StateAt(ctx, Ref(v2.ID))
		require.NoError(t, err)

		_, err = e.CreateSnapshot(ctx, Ref(v2.ID), CreateSnapshotOptions{})
		require.NoError(t, err)

		snapped, err := e.StateAt(ctx, Ref(v2.ID))
		require.NoError(t, err)
		assert.True(t, replayed.Equal(snapped))
		assert.Equal(t, replayed.Checksum(), snapped.Checksum())
	})
}

func TestStateAtReverseReplay(t *testing.T) {
	ctx := context.Background()
	e := createTestEngine(t)

	// A long chain with a snapshot only at the head: reconstructing a
	// recent ancestor should unwind from the snapshot, and in all cases
	// produce exactly what forward replay from genesis would.
	var versions []*Version
	for i := 0; i < 6; i++ {
		v := commitPut(t, e, "", testEntity("e-counter", labelFor(i), nil))
		versions = append(versions, v)
	}
	head := versions[len(versions)-1]
	_, err := e.CreateSnapshot(ctx, Ref(head.ID), CreateSnapshotOptions{})
	require.NoError(t, err)

	for i, v := range versions {
		st, err := e.StateAt(ctx, Ref(v.ID))
		require.NoError(t, err)
		require.Equal(t, 1, st.Len())
		assert.Equal(t, labelFor(i), st.Entities["e-counter"].Label, "version %d", i)
	}
}

func labelFor(i int) string {
	return "revision-" + string(rune('a'+i))
}

func TestStateCaching(t *testing.T) {
	ctx := context.Background()
	e := createTestEngine(t)

	v1 := commitPut(t, e, "", testEntity("e-1", "one", nil))
	commitPut(t, e, "", testEntity("e-2", "two", nil))

	before := e.resolver.CacheLen()

	// Historical versions are cached after first materialization.
	_, err := e.StateAt(ctx, Ref(v1.ID))
	require.NoError(t, err)
	assert.Equal(t, before+1, e.resolver.CacheLen())

	_, err = e.StateAt(ctx, Ref(v1.ID))
	require.NoError(t, err)
	assert.Equal(t, before+1, e.resolver.CacheLen())

	// Branch heads move on every commit and are never cached.
	headCached := e.resolver.CacheLen()
	_, err = e.StateAt(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, headCached, e.resolver.CacheLen())
}

// -----------------------------------------------------------------------------
// Diff Tests
// -----------------------------------------------------------------------------

func TestResolverDiff(t *testing.T) {
	ctx := context.Background()
	e := createTestEngine(t)

	v1 := commitPut(t, e, "",
		testEntity("e-1", "stays", nil),
		testEntity("e-2", "changes", nil),
		testEntity("e-3", "goes away", nil))

	scope, err := e.Begin(ctx, BeginOptions{})
	require.NoError(t, err)
	require.NoError(t, scope.Store().Put(ctx, testEntity("e-2", "changed", nil)))
	require.NoError(t, scope.Store().Delete(ctx, graph.ElementTypeEntity, "e-3"))
	require.NoError(t, scope.Store().Put(ctx, testEntity("e-4", "brand new", nil)))
	v2, err := scope.Commit(ctx, "reshape")
	require.NoError(t, err)

	t.Run("forward diff", func(t *testing.T) {
		deltas, err := e.Diff(ctx, Ref(v1.ID), Ref(v2.ID))
		require.NoError(t, err)
		require.Len(t, deltas, 3)

		byID := map[string]ChangeType{}
		for _, d := range deltas {
			byID[d.ElementID] = d.ChangeType
		}
		assert.Equal(t, ChangeUpdate, byID["e-2"])
		assert.Equal(t, ChangeDelete, byID["e-3"])
		assert.Equal(t, ChangeCreate, byID["e-4"])
	})

	t.Run("reverse diff flips the change types", func(t *testing.T) {
		deltas, err := e.Diff(ctx, Ref(v2.ID), Ref(v1.ID))
		require.NoError(t, err)
		require.Len(t, deltas, 3)

		byID := map[string]ChangeType{}
		for _, d := range deltas {
			byID[d.ElementID] = d.ChangeType
		}
		assert.Equal(t, ChangeUpdate, byID["e-2"])
		assert.Equal(t, ChangeCreate, byID["e-3"])
		assert.Equal(t, ChangeDelete, byID["e-4"])
	})

	t.Run("same ref diffs empty", func(t *testing.T) {
		deltas, err := e.Diff(ctx, Ref(v2.ID), Ref(v2.ID))
		require.NoError(t, err)
		assert.Empty(t, deltas)
	})

	t.Run("refs work as diff endpoints", func(t *testing.T) {
		deltas, err := e.Diff(ctx, "main~1", "main")
		require.NoError(t, err)
		assert.Len(t, deltas, 3)
	})

	t.Run("unresolvable endpoint", func(t *testing.T) {
		_, err := e.Diff(ctx, "ghost-ref", "main")
		assert.ErrorIs(t, err, ErrInvalidRef)
	})
}
