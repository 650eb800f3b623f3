// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger provides factory functions and configuration for the
// BadgerDB instance backing the version ledger.
//
// Everything the engine persists lives in one embedded database: version
// records, delta records, branch pointers and snapshot payloads. Commit
// atomicity comes from Badger transactions, so the ledger never needs a
// separate write-ahead log.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
// This package follows Apache 2.0 guidelines for attribution and usage.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the ledger database.
type Config struct {
	// Path is the directory for database files.
	// Required unless InMemory is true.
	Path string

	// InMemory keeps all data in RAM with no disk persistence.
	// Useful for tests and throwaway engines.
	InMemory bool

	// ReadOnly opens the database for inspection without taking the
	// write lock. Mutating operations will fail.
	ReadOnly bool

	// SyncWrites forces an fsync on every commit. Durable but slower;
	// leave enabled for production ledgers.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables the GC runner.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before a
	// value log file is rewritten.
	GCDiscardRatio float64
}

// DefaultConfig returns durable defaults for a production ledger.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// EphemeralConfig returns an in-memory configuration for tests.
func EphemeralConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
	}
}

// Validate checks the configuration for contradictions.
func (c Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("path is required for a persistent database")
	}
	if c.InMemory && c.ReadOnly {
		return errors.New("in-memory databases cannot be read-only")
	}
	if c.GCDiscardRatio < 0 || c.GCDiscardRatio > 1 {
		return errors.New("gc discard ratio must be between 0 and 1")
	}
	return nil
}

// slogAdapter bridges slog.Logger to BadgerDB's Logger interface.
// Badger terminates its messages with a newline; strip it so slog
// output stays single-line.
type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSuffix(fmt.Sprintf(format, args...), "\n"))
}

func (l *slogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSuffix(fmt.Sprintf(format, args...), "\n"))
}

func (l *slogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSuffix(fmt.Sprintf(format, args...), "\n"))
}

func (l *slogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSuffix(fmt.Sprintf(format, args...), "\n"))
}

// DB wraps the BadgerDB instance with lifecycle management.
type DB struct {
	*badger.DB
	gc       *gcRunner
	path     string
	inMemory bool
}

// Open opens the ledger database described by cfg.
//
// Description:
//
//	Opens BadgerDB at the configured path (creating the directory when
//	missing) or in memory, applies the logging bridge, and starts the
//	periodic value log GC when configured.
//
// Outputs:
//
//	*DB - The managed database. Caller must call Close() when done.
//	error - Non-nil if cfg is invalid or the database cannot be opened.
//
// Thread Safety: The returned *DB is safe for concurrent use.
func Open(cfg Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithReadOnly(cfg.ReadOnly)
	// The ledger is append-only at the record level; one version per key.
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&slogAdapter{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	wrapped := &DB{
		DB:       db,
		path:     cfg.Path,
		inMemory: cfg.InMemory,
	}

	if cfg.GCInterval > 0 && !cfg.InMemory && !cfg.ReadOnly {
		wrapped.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		wrapped.gc.start()
	}

	return wrapped, nil
}

// OpenAt opens a persistent ledger with durable defaults at path.
func OpenAt(path string) (*DB, error) {
	return Open(DefaultConfig(path))
}

// OpenEphemeral opens an in-memory ledger for testing.
func OpenEphemeral() (*DB, error) {
	return Open(EphemeralConfig())
}

// Close stops garbage collection and closes the database.
// Safe to call multiple times.
func (d *DB) Close() error {
	if d.gc != nil {
		d.gc.stop()
	}
	return d.DB.Close()
}

// Path returns the database directory, or "" for in-memory databases.
func (d *DB) Path() string {
	return d.path
}

// InMemory reports whether this database lives only in RAM.
func (d *DB) InMemory() bool {
	return d.inMemory
}

// WithTxn executes fn inside a read-write transaction.
//
// Description:
//
//	Opens a read-write transaction, runs fn, and commits when fn
//	returns nil. The transaction is discarded on error. Badger uses
//	serializable snapshot isolation: a conflicting concurrent commit
//	surfaces as badger.ErrConflict from this function, which callers
//	map to their own concurrency errors.
//
// Thread Safety: Safe for concurrent use.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.DB.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}

	return txn.Commit()
}

// WithReadTxn executes fn inside a read-only transaction.
//
// Thread Safety: Safe for concurrent use.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.DB.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}

// gcRunner triggers periodic value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (r *gcRunner) start() {
	go r.run()
}

// stop halts GC and waits for the loop to exit. Idempotent.
func (r *gcRunner) stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.collect()
		}
	}
}

func (r *gcRunner) collect() {
	// RunValueLogGC returns ErrNoRewrite when there was nothing to reclaim.
	err := r.db.RunValueLogGC(r.ratio)
	switch {
	case err == nil:
		if r.logger != nil {
			r.logger.Debug("badger value log GC completed")
		}
	case errors.Is(err, badger.ErrNoRewrite):
		// Nothing to do.
	default:
		if r.logger != nil {
			r.logger.Warn("badger value log GC error", "error", err)
		}
	}
}
