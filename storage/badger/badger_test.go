// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpenEphemeral verifies in-memory database creation works.
func TestOpenEphemeral(t *testing.T) {
	db, err := OpenEphemeral()
	require.NoError(t, err)
	defer db.Close()

	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("key"), []byte("value"))
	})
	require.NoError(t, err)

	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("key"))
		require.NoError(t, err)

		return item.Value(func(val []byte) error {
			assert.Equal(t, []byte("value"), val)
			return nil
		})
	})
	require.NoError(t, err)
}

// TestOpenAtPersistsAcrossReopen verifies data survives close and reopen.
func TestOpenAtPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := OpenAt(dir)
	require.NoError(t, err)

	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("persistent-key"), []byte("persistent-value"))
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := OpenAt(dir)
	require.NoError(t, err)
	defer db2.Close()

	err = db2.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("persistent-key"))
		require.NoError(t, err)

		return item.Value(func(val []byte) error {
			assert.Equal(t, []byte("persistent-value"), val)
			return nil
		})
	})
	require.NoError(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"persistent without path", Config{}, "path is required"},
		{"in-memory read-only", Config{InMemory: true, ReadOnly: true}, "cannot be read-only"},
		{"ratio out of range", Config{InMemory: true, GCDiscardRatio: 1.5}, "discard ratio"},
		{"valid ephemeral", EphemeralConfig(), ""},
		{"valid default", DefaultConfig("/tmp/x"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDefaultConfigDurability(t *testing.T) {
	cfg := DefaultConfig("/tmp/ledger")

	assert.True(t, cfg.SyncWrites)
	assert.False(t, cfg.InMemory)
	assert.Equal(t, 10*time.Minute, cfg.GCInterval)

	eph := EphemeralConfig()
	assert.True(t, eph.InMemory)
	assert.False(t, eph.SyncWrites)
	assert.Zero(t, eph.GCInterval)
}

func TestWithTxnHelpers(t *testing.T) {
	db, err := OpenEphemeral()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	err = db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte("txn-key"), []byte("txn-value"))
	})
	require.NoError(t, err)

	err = db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("txn-key"))
		require.NoError(t, err)

		return item.Value(func(val []byte) error {
			assert.Equal(t, []byte("txn-value"), val)
			return nil
		})
	})
	require.NoError(t, err)
}

func TestWithTxnHonorsCancelledContext(t *testing.T) {
	db, err := OpenEphemeral()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = db.WithTxn(ctx, func(txn *badger.Txn) error {
		t.Fatal("transaction body should not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithTxnRollsBackOnError(t *testing.T) {
	db, err := OpenEphemeral()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	failure := assert.AnError
	err = db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte("doomed"), []byte("x")); err != nil {
			return err
		}
		return failure
	})
	require.ErrorIs(t, err, failure)

	err = db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("doomed"))
		assert.ErrorIs(t, err, badger.ErrKeyNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestCloseIsIdempotentWithGC(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.GCInterval = 50 * time.Millisecond

	db, err := Open(cfg)
	require.NoError(t, err)

	// Let the GC loop tick at least once before shutdown.
	time.Sleep(120 * time.Millisecond)

	require.NoError(t, db.Close())
}
