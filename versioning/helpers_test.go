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
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/chronograph/graph"
)

// quietLogger keeps engine chatter out of test output.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createTestStore(t *testing.T) *BadgerStore {
	t.Helper()

	cfg := EphemeralConfig()
	cfg.Logger = quietLogger()
	s, err := NewBadgerStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTestEngine(t *testing.T, mutate ...func(*Config)) *Engine {
	t.Helper()

	cfg := EphemeralConfig()
	cfg.Logger = quietLogger()
	cfg.SnapshotEvery = 0 // Tests opt in to auto-snapshots explicitly.
	for _, m := range mutate {
		m(&cfg)
	}
	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// createTestEngineOpts opens an engine with explicit options (clock,
// publisher, mirror) on the quiet ephemeral config.
func createTestEngineOpts(t *testing.T, opts ...Option) *Engine {
	t.Helper()

	cfg := EphemeralConfig()
	cfg.Logger = quietLogger()
	cfg.SnapshotEvery = 0
	e, err := Open(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func testEntity(id, label string, props map[string]graph.PropertyValue) graph.Element {
	return graph.EntityElement(&graph.Entity{
		ID:         id,
		Kind:       "thing",
		Label:      label,
		Properties: props,
	})
}

// commitPut commits a batch of upserts on a branch and returns the version.
func commitPut(t *testing.T, e *Engine, branch string, els ...graph.Element) *Version {
	t.Helper()

	ctx := context.Background()
	scope, err := e.Begin(ctx, BeginOptions{Branch: branch, Actor: "test"})
	require.NoError(t, err)
	for _, el := range els {
		require.NoError(t, scope.Store().Put(ctx, el))
	}
	v, err := scope.Commit(ctx, "test change")
	require.NoError(t, err)
	return v
}

// commitDelete commits a single element removal on a branch.
func commitDelete(t *testing.T, e *Engine, branch string, elType graph.ElementType, id string) *Version {
	t.Helper()

	ctx := context.Background()
	scope, err := e.Begin(ctx, BeginOptions{Branch: branch, Actor: "test"})
	require.NoError(t, err)
	require.NoError(t, scope.Store().Delete(ctx, elType, id))
	v, err := scope.Commit(ctx, "test delete")
	require.NoError(t, err)
	return v
}
