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
	"log/slog"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/chronograph/storage/badger"
	dgbadger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var storeTracer = otel.Tracer("chronograph.store")

// -----------------------------------------------------------------------------
// Key Schema
// -----------------------------------------------------------------------------

// The ledger lives in a single BadgerDB keyspace:
//
//	v:id:{versionID}                   -> version record
//	v:seq:{seq:016d}                   -> version ID
//	v:branch:{branch}:{seq:016d}       -> version ID
//	v:time:{branch}:{ms:020d}:{verID}  -> version ID
//	d:{versionID}:{idx:06d}            -> delta record
//	b:{name}                           -> branch record
//	s:meta:{snapshotID}                -> snapshot record
//	s:data:{snapshotID}                -> compressed state payload
//	s:ver:{versionID}                  -> snapshot ID
//
// Branch names cannot contain ':' (see ValidateBranchName), so the
// composite keys parse unambiguously.

func versionKey(id string) []byte {
	return []byte("v:id:" + id)
}

func versionSeqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("v:seq:%016d", seq))
}

func branchSeqPrefix(branch string) []byte {
	return []byte(fmt.Sprintf("v:branch:%s:", branch))
}

func branchSeqKey(branch string, seq uint64) []byte {
	return []byte(fmt.Sprintf("v:branch:%s:%016d", branch, seq))
}

func timePrefix(branch string) []byte {
	return []byte(fmt.Sprintf("v:time:%s:", branch))
}

func timeKey(branch string, ms int64, versionID string) []byte {
	return []byte(fmt.Sprintf("v:time:%s:%020d:%s", branch, ms, versionID))
}

func deltaPrefix(versionID string) []byte {
	return []byte("d:" + versionID + ":")
}

func deltaKey(versionID string, idx int) []byte {
	return []byte(fmt.Sprintf("d:%s:%06d", versionID, idx))
}

func branchKey(name string) []byte {
	return []byte("b:" + name)
}

func snapshotMetaKey(id string) []byte {
	return []byte("s:meta:" + id)
}

func snapshotDataKey(id string) []byte {
	return []byte("s:data:" + id)
}

func snapshotVersionKey(versionID string) []byte {
	return []byte("s:ver:" + versionID)
}

// seekPastPrefix returns a key that sorts after every key with the prefix.
func seekPastPrefix(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
}

// -----------------------------------------------------------------------------
// BadgerStore
// -----------------------------------------------------------------------------

// BadgerStore implements VersionStore on an embedded BadgerDB.
//
// Description:
//
//	All records are framed with CRC32 checksums (see codec.go). Commit
//	atomicity comes from Badger transactions: a version, its deltas, its
//	index entries and the branch head move land in one transaction or
//	not at all. Concurrent commits to the same branch both read and
//	write the branch key, so Badger's SSI conflict detection serializes
//	them; the loser surfaces as ErrConcurrentHeadConflict.
//
// Sequence numbers are assigned from an in-memory counter initialized by
// scanning the v:seq index at open. A failed commit burns its number, so
// the index may have gaps; chains are linked by ParentSeq, never by
// adjacency.
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger

	seq    atomic.Uint64
	closed atomic.Bool
}

// NewBadgerStore opens (or creates) a ledger per the configuration.
//
// Inputs:
//   - cfg: Engine configuration. Must pass Validate().
//
// Outputs:
//   - *BadgerStore: Ready-to-use ledger.
//   - error: Non-nil if BadgerDB initialization fails.
func NewBadgerStore(cfg Config) (*BadgerStore, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var dbCfg badger.Config
	if cfg.InMemory {
		dbCfg = badger.EphemeralConfig()
	} else {
		dbCfg = badger.DefaultConfig(filepath.Join(cfg.DataDir, "ledger"))
		dbCfg.SyncWrites = cfg.SyncWrites
	}
	dbCfg.Logger = cfg.Logger

	db, err := badger.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		logger: cfg.Logger.With(slog.String("component", "version_store")),
	}

	if err := s.initSeq(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sequence counter: %w", err)
	}

	s.logger.Info("version store opened",
		slog.String("path", db.Path()),
		slog.Bool("in_memory", db.InMemory()),
		slog.Uint64("last_seq", s.seq.Load()))

	return s, nil
}

// initSeq scans the v:seq index for the highest assigned sequence number.
func (s *BadgerStore) initSeq() error {
	prefix := []byte("v:seq:")
	var maxSeq uint64

	err := s.db.WithReadTxn(context.Background(), func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(seekPastPrefix(prefix))
		if it.ValidForPrefix(prefix) {
			key := it.Item().Key()
			var seq uint64
			if _, err := fmt.Sscanf(string(key[len(prefix):]), "%016d", &seq); err == nil {
				maxSeq = seq
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.seq.Store(maxSeq)
	return nil
}

// Close releases storage resources. Idempotent.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// checkUsable validates ctx and open state shared by every operation.
func (s *BadgerStore) checkUsable(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return nil
}

// -----------------------------------------------------------------------------
// Version Writes
// -----------------------------------------------------------------------------

// PutVersion atomically appends a version, its deltas, and the head move.
func (s *BadgerStore) PutVersion(ctx context.Context, version *Version, deltas []*Delta, expectedHead string) error {
	if err := s.checkUsable(ctx); err != nil {
		return err
	}
	if version == nil {
		return errors.New("version must not be nil")
	}
	if version.ID == "" {
		return errors.New("version ID must not be empty")
	}
	if version.Branch == "" {
		return ErrBranchNotFound
	}
	if version.CreatedAtMilli == 0 {
		version.CreatedAtMilli = time.Now().UTC().UnixMilli()
	}

	ctx, span := storeTracer.Start(ctx, "store.PutVersion",
		trace.WithAttributes(
			attribute.String("branch", version.Branch),
			attribute.String("version_id", version.ID),
			attribute.Int("delta_count", len(deltas)),
		),
	)
	defer span.End()

	for i, d := range deltas {
		d.VersionID = version.ID
		d.Seq = i
		if d.CreatedAtMilli == 0 {
			d.CreatedAtMilli = version.CreatedAtMilli
		}
		if err := d.Validate(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("delta %d: %w", i, err)
		}
	}

	seq := s.seq.Add(1)
	version.Seq = seq

	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		branch, err := getBranchTxn(txn, version.Branch)
		if err != nil {
			return err
		}
		if branch.HeadID != expectedHead {
			return fmt.Errorf("%w: expected %q, head is %q",
				ErrConcurrentHeadConflict, expectedHead, branch.HeadID)
		}

		if version.ParentID != "" {
			parent, err := getVersionTxn(txn, version.ParentID)
			if err != nil {
				if errors.Is(err, ErrVersionNotFound) {
					return fmt.Errorf("%w: %s", ErrParentNotFound, version.ParentID)
				}
				return err
			}
			version.ParentSeq = parent.Seq
		} else {
			version.ParentSeq = 0
		}

		rec, err := encodeRecord(version)
		if err != nil {
			return err
		}
		if err := txn.Set(versionKey(version.ID), rec); err != nil {
			return err
		}
		if err := txn.Set(versionSeqKey(seq), []byte(version.ID)); err != nil {
			return err
		}
		if err := txn.Set(branchSeqKey(version.Branch, seq), []byte(version.ID)); err != nil {
			return err
		}
		if err := txn.Set(timeKey(version.Branch, version.CreatedAtMilli, version.ID), []byte(version.ID)); err != nil {
			return err
		}

		for _, d := range deltas {
			drec, err := encodeRecord(d)
			if err != nil {
				return err
			}
			if err := txn.Set(deltaKey(version.ID, d.Seq), drec); err != nil {
				return err
			}
		}

		branch.HeadID = version.ID
		brec, err := encodeRecord(branch)
		if err != nil {
			return err
		}
		return txn.Set(branchKey(version.Branch), brec)
	})

	if err != nil {
		if errors.Is(err, dgbadger.ErrConflict) {
			err = fmt.Errorf("%w: transaction conflict on branch %q", ErrConcurrentHeadConflict, version.Branch)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "put version failed")
		return err
	}

	span.SetAttributes(attribute.Int64("seq", int64(seq)))
	s.logger.Debug("version appended",
		slog.String("version_id", version.ID),
		slog.String("branch", version.Branch),
		slog.Uint64("seq", seq),
		slog.Int("deltas", len(deltas)))

	return nil
}

// -----------------------------------------------------------------------------
// Version Reads
// -----------------------------------------------------------------------------

// getVersionTxn reads and decodes a version record inside a transaction.
func getVersionTxn(txn *dgbadger.Txn, id string) (*Version, error) {
	item, err := txn.Get(versionKey(id))
	if err != nil {
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, id)
		}
		return nil, err
	}

	var v Version
	err = item.Value(func(val []byte) error {
		return decodeRecord(val, &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// getVersionBySeqTxn resolves a sequence number to a version record.
func getVersionBySeqTxn(txn *dgbadger.Txn, seq uint64) (*Version, error) {
	item, err := txn.Get(versionSeqKey(seq))
	if err != nil {
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: seq %d", ErrVersionNotFound, seq)
		}
		return nil, err
	}

	var id string
	if err := item.Value(func(val []byte) error {
		id = string(val)
		return nil
	}); err != nil {
		return nil, err
	}
	return getVersionTxn(txn, id)
}

// GetVersion returns a version record by ID.
func (s *BadgerStore) GetVersion(ctx context.Context, id string) (*Version, error) {
	if err := s.checkUsable(ctx); err != nil {
		return nil, err
	}

	var v *Version
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		var err error
		v, err = getVersionTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// GetVersionBySeq returns a version record by ledger sequence number.
func (s *BadgerStore) GetVersionBySeq(ctx context.Context, seq uint64) (*Version, error) {
	if err := s.checkUsable(ctx); err != nil {
		return nil, err
	}

	var v *Version
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		var err error
		v, err = getVersionBySeqTxn(txn, seq)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// GetDeltas returns a version's deltas in application order.
func (s *BadgerStore) GetDeltas(ctx context.Context, versionID string) ([]*Delta, error) {
	if err := s.checkUsable(ctx); err != nil {
		return nil, err
	}

	// Verify the version exists so a missing version and a delta-less
	// version are distinguishable.
	var deltas []*Delta
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		if _, err := getVersionTxn(txn, versionID); err != nil {
			return err
		}

		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		prefix := deltaPrefix(versionID)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var d Delta
			err := it.Item().Value(func(val []byte) error {
				return decodeRecord(val, &d)
			})
			if err != nil {
				return err
			}
			deltas = append(deltas, &d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deltas, nil
}

// ListVersions returns versions on a branch, newest first.
func (s *BadgerStore) ListVersions(ctx context.Context, branch string, limit, offset int) ([]*Version, error) {
	if err := s.checkUsable(ctx); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	var versions []*Version
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		if _, err := getBranchTxn(txn, branch); err != nil {
			return err
		}

		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true
		prefix := branchSeqPrefix(branch)

		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := 0
		for it.Seek(seekPastPrefix(prefix)); it.ValidForPrefix(prefix); it.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			if limit > 0 && len(versions) >= limit {
				break
			}

			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			v, err := getVersionTxn(txn, id)
			if err != nil {
				return err
			}
			versions = append(versions, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// GetVersionsByTimeRange returns versions created within [from, to], oldest first.
func (s *BadgerStore) GetVersionsByTimeRange(ctx context.Context, branch string, fromMilli, toMilli int64) ([]*Version, error) {
	if err := s.checkUsable(ctx); err != nil {
		return nil, err
	}
	if fromMilli > toMilli {
		return nil, fmt.Errorf("invalid time range: from %d after to %d", fromMilli, toMilli)
	}

	var versions []*Version
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		if _, err := getBranchTxn(txn, branch); err != nil {
			return err
		}

		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		prefix := timePrefix(branch)
		start := []byte(fmt.Sprintf("v:time:%s:%020d:", branch, fromMilli))

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			var ms int64
			if _, err := fmt.Sscanf(string(key[len(prefix):len(prefix)+20]), "%020d", &ms); err != nil {
				continue
			}
			if ms > toMilli {
				break
			}

			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			v, err := getVersionTxn(txn, id)
			if err != nil {
				return err
			}
			versions = append(versions, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// GetChain walks parent links from versionID towards the root.
func (s *BadgerStore) GetChain(ctx context.Context, versionID string, limit int) ([]*Version, error) {
	if err := s.checkUsable(ctx); err != nil {
		return nil, err
	}

	var chain []*Version
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		v, err := getVersionTxn(txn, versionID)
		if err != nil {
			return err
		}

		for {
			chain = append(chain, v)
			if v.IsRoot() || (limit > 0 && len(chain) >= limit) {
				return nil
			}
			v, err = getVersionBySeqTxn(txn, v.ParentSeq)
			if err != nil {
				return err
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// LatestVersion returns the version at the branch head.
func (s *BadgerStore) LatestVersion(ctx context.Context, branch string) (*Version, error) {
	if err := s.checkUsable(ctx); err != nil {
		return nil, err
	}

	var v *Version
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		b, err := getBranchTxn(txn, branch)
		if err != nil {
			return err
		}
		if b.HeadID == "" {
			return fmt.Errorf("%w: branch %q has no commits", ErrVersionNotFound, branch)
		}
		v, err = getVersionTxn(txn, b.HeadID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// -----------------------------------------------------------------------------
// Branches
// -----------------------------------------------------------------------------

// getBranchTxn reads and decodes a branch record inside a transaction.
func getBranchTxn(txn *dgbadger.Txn, name string) (*Branch, error) {
	item, err := txn.Get(branchKey(name))
	if err != nil {
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, name)
		}
		return nil, err
	}

	var b Branch
	err = item.Value(func(val []byte) error {
		return decodeRecord(val, &b)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// PutBranch creates a branch record.
func (s *BadgerStore) PutBranch(ctx context.Context, b *Branch) error {
	if err := s.checkUsable(ctx); err != nil {
		return err
	}
	if b == nil {
		return errors.New("branch must not be nil")
	}
	if err := ValidateBranchName(b.Name); err != nil {
		return err
	}
	if b.CreatedAtMilli == 0 {
		b.CreatedAtMilli = time.Now().UTC().UnixMilli()
	}

	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		_, err := txn.Get(branchKey(b.Name))
		if err == nil {
			return fmt.Errorf("%w: %s", ErrBranchExists, b.Name)
		}
		if !errors.Is(err, dgbadger.ErrKeyNotFound) {
			return err
		}

		rec, err := encodeRecord(b)
		if err != nil {
			return err
		}
		return txn.Set(branchKey(b.Name), rec)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("branch created", slog.String("branch", b.Name), slog.String("head", b.HeadID))
	return nil
}

// GetBranch returns a branch record by name.
func (s *BadgerStore) GetBranch(ctx context.Context, name string) (*Branch, error) {
	if err := s.checkUsable(ctx); err != nil {
		return nil, err
	}

	var b *Branch
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		var err error
		b, err = getBranchTxn(txn, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBranches returns all branch records sorted by name.
func (s *BadgerStore) ListBranches(ctx context.Context) ([]*Branch, error) {
	if err := s.checkUsable(ctx); err != nil {
		return nil, err
	}

	var branches []*Branch
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		prefix := []byte("b:")

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var b Branch
			err := it.Item().Value(func(val []byte) error {
				return decodeRecord(val, &b)
			})
			if err != nil {
				return err
			}
			branches = append(branches, &b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Keys are byte-sorted already; keep the contract explicit.
	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

// UpdateBranch rewrites branch metadata, preserving the stored head.
func (s *BadgerStore) UpdateBranch(ctx context.Context, b *Branch) error {
	if err := s.checkUsable(ctx); err != nil {
		return err
	}
	if b == nil {
		return errors.New("branch must not be nil")
	}

	return s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		stored, err := getBranchTxn(txn, b.Name)
		if err != nil {
			return err
		}

		updated := *b
		updated.HeadID = stored.HeadID

		rec, err := encodeRecord(&updated)
		if err != nil {
			return err
		}
		return txn.Set(branchKey(b.Name), rec)
	})
}

// UpdateBranchHead moves a branch head with compare-and-swap semantics.
func (s *BadgerStore) UpdateBranchHead(ctx context.Context, name, expectedHead, newHead string) error {
	if err := s.checkUsable(ctx); err != nil {
		return err
	}

	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		b, err := getBranchTxn(txn, name)
		if err != nil {
			return err
		}
		if b.HeadID != expectedHead {
			return fmt.Errorf("%w: expected %q, head is %q", ErrConcurrentHeadConflict, expectedHead, b.HeadID)
		}
		if newHead != "" {
			if _, err := getVersionTxn(txn, newHead); err != nil {
				return err
			}
		}

		b.HeadID = newHead
		rec, err := encodeRecord(b)
		if err != nil {
			return err
		}
		return txn.Set(branchKey(name), rec)
	})
	if err != nil {
		if errors.Is(err, dgbadger.ErrConflict) {
			return fmt.Errorf("%w: transaction conflict on branch %q", ErrConcurrentHeadConflict, name)
		}
		return err
	}

	s.logger.Debug("branch head moved",
		slog.String("branch", name),
		slog.String("from", expectedHead),
		slog.String("to", newHead))
	return nil
}

// DeleteBranch removes a branch pointer.
func (s *BadgerStore) DeleteBranch(ctx context.Context, name string) error {
	if err := s.checkUsable(ctx); err != nil {
		return err
	}

	return s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		if _, err := getBranchTxn(txn, name); err != nil {
			return err
		}
		return txn.Delete(branchKey(name))
	})
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

// PutSnapshot stores a snapshot record and its compressed payload.
func (s *BadgerStore) PutSnapshot(ctx context.Context, rec *SnapshotRecord, payload []byte) error {
	if err := s.checkUsable(ctx); err != nil {
		return err
	}
	if rec == nil {
		return errors.New("snapshot record must not be nil")
	}
	if rec.ID == "" || rec.VersionID == "" {
		return errors.New("snapshot ID and version ID must not be empty")
	}
	if len(payload) == 0 {
		return errors.New("snapshot payload must not be empty")
	}

	return s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		if _, err := getVersionTxn(txn, rec.VersionID); err != nil {
			return err
		}

		mrec, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		if err := txn.Set(snapshotMetaKey(rec.ID), mrec); err != nil {
			return err
		}
		if err := txn.Set(snapshotDataKey(rec.ID), payload); err != nil {
			return err
		}
		return txn.Set(snapshotVersionKey(rec.VersionID), []byte(rec.ID))
	})
}

// getSnapshotTxn reads and decodes a snapshot record inside a transaction.
func getSnapshotTxn(txn *dgbadger.Txn, id string) (*SnapshotRecord, error) {
	item, err := txn.Get(snapshotMetaKey(id))
	if err != nil {
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		}
		return nil, err
	}

	var rec SnapshotRecord
	err = item.Value(func(val []byte) error {
		return decodeRecord(val, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetSnapshot returns a snapshot record by ID.
func (s *BadgerStore) GetSnapshot(ctx context.Context, id string) (*SnapshotRecord, error) {
	if err := s.checkUsable(ctx); err != nil {
		return nil, err
	}

	var rec *SnapshotRecord
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		var err error
		rec, err = getSnapshotTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetSnapshotByVersion returns the snapshot anchored at a version.
func (s *BadgerStore) GetSnapshotByVersion(ctx context.Context, versionID string) (*SnapshotRecord, error) {
	if err := s.checkUsable(ctx); err != nil {
		return nil, err
	}

	var rec *SnapshotRecord
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(snapshotVersionKey(versionID))
		if err != nil {
			if errors.Is(err, dgbadger.ErrKeyNotFound) {
				return fmt.Errorf("%w: version %s", ErrSnapshotNotFound, versionID)
			}
			return err
		}

		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}
		rec, err = getSnapshotTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetSnapshotData returns the compressed payload for a snapshot.
func (s *BadgerStore) GetSnapshotData(ctx context.Context, id string) ([]byte, error) {
	if err := s.checkUsable(ctx); err != nil {
		return nil, err
	}

	var payload []byte
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(snapshotDataKey(id))
		if err != nil {
			if errors.Is(err, dgbadger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
			}
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// ListSnapshots returns snapshot records, newest first.
func (s *BadgerStore) ListSnapshots(ctx context.Context, includeDeleted bool) ([]*SnapshotRecord, error) {
	if err := s.checkUsable(ctx); err != nil {
		return nil, err
	}

	var recs []*SnapshotRecord
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		prefix := []byte("s:meta:")

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec SnapshotRecord
			err := it.Item().Value(func(val []byte) error {
				return decodeRecord(val, &rec)
			})
			if err != nil {
				return err
			}
			if rec.Deleted && !includeDeleted {
				continue
			}
			recs = append(recs, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAtMilli > recs[j].CreatedAtMilli })
	return recs, nil
}

// UpdateSnapshot rewrites a snapshot record, leaving the payload untouched.
func (s *BadgerStore) UpdateSnapshot(ctx context.Context, rec *SnapshotRecord) error {
	if err := s.checkUsable(ctx); err != nil {
		return err
	}
	if rec == nil {
		return errors.New("snapshot record must not be nil")
	}

	return s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		if _, err := getSnapshotTxn(txn, rec.ID); err != nil {
			return err
		}
		mrec, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		return txn.Set(snapshotMetaKey(rec.ID), mrec)
	})
}

// DeleteSnapshot removes a snapshot record and its payload for good.
func (s *BadgerStore) DeleteSnapshot(ctx context.Context, id string) error {
	if err := s.checkUsable(ctx); err != nil {
		return err
	}

	return s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		rec, err := getSnapshotTxn(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(snapshotMetaKey(id)); err != nil {
			return err
		}
		if err := txn.Delete(snapshotDataKey(id)); err != nil {
			return err
		}

		// The version index may already point at a replacement snapshot;
		// only remove it while it still points here.
		item, err := txn.Get(snapshotVersionKey(rec.VersionID))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var current string
		if err := item.Value(func(val []byte) error {
			current = string(val)
			return nil
		}); err != nil {
			return err
		}
		if current != id {
			return nil
		}
		return txn.Delete(snapshotVersionKey(rec.VersionID))
	})
}

// -----------------------------------------------------------------------------
// Retention
// -----------------------------------------------------------------------------

// purgeBatchSize bounds keys deleted per transaction to stay clear of
// Badger's transaction size limit.
const purgeBatchSize = 500

// PurgeVersionsBefore removes versions on a branch below seq.
func (s *BadgerStore) PurgeVersionsBefore(ctx context.Context, branch string, seq uint64) (int, error) {
	if err := s.checkUsable(ctx); err != nil {
		return 0, err
	}

	ctx, span := storeTracer.Start(ctx, "store.PurgeVersionsBefore",
		trace.WithAttributes(
			attribute.String("branch", branch),
			attribute.Int64("before_seq", int64(seq)),
		),
	)
	defer span.End()

	// Collect doomed versions and guard branch heads first, in one
	// consistent read view.
	type doomed struct {
		version *Version
		keys    [][]byte
	}
	var victims []doomed

	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		if _, err := getBranchTxn(txn, branch); err != nil {
			return err
		}

		// Any branch head below the cutoff blocks the purge: heads must
		// stay reconstructible from their own delta chains.
		headSeqs := map[string]uint64{}
		{
			opts := dgbadger.DefaultIteratorOptions
			opts.PrefetchValues = true
			prefix := []byte("b:")
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				var b Branch
				if err := it.Item().Value(func(val []byte) error {
					return decodeRecord(val, &b)
				}); err != nil {
					return err
				}
				if b.HeadID == "" {
					continue
				}
				hv, err := getVersionTxn(txn, b.HeadID)
				if err != nil {
					return err
				}
				headSeqs[b.Name] = hv.Seq
			}
		}

		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		prefix := branchSeqPrefix(branch)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			var vseq uint64
			if _, err := fmt.Sscanf(string(key[len(prefix):]), "%016d", &vseq); err != nil {
				continue
			}
			if vseq >= seq {
				break
			}

			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}

			for _, headSeq := range headSeqs {
				if vseq == headSeq {
					return fmt.Errorf("%w: version %s at seq %d", ErrRetentionInvariantViolation, id, vseq)
				}
			}

			v, err := getVersionTxn(txn, id)
			if err != nil {
				return err
			}

			keys := [][]byte{
				versionKey(id),
				versionSeqKey(vseq),
				append([]byte{}, key...),
				timeKey(branch, v.CreatedAtMilli, id),
			}

			dopts := dgbadger.DefaultIteratorOptions
			dopts.PrefetchValues = false
			dprefix := deltaPrefix(id)
			dit := txn.NewIterator(dopts)
			for dit.Seek(dprefix); dit.ValidForPrefix(dprefix); dit.Next() {
				keys = append(keys, dit.Item().KeyCopy(nil))
			}
			dit.Close()

			victims = append(victims, doomed{version: v, keys: keys})
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "purge scan failed")
		return 0, err
	}

	if len(victims) == 0 {
		return 0, nil
	}

	// Delete in bounded batches.
	var pending [][]byte
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		batch := pending
		pending = nil
		return s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
			for _, k := range batch {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
	}

	for _, victim := range victims {
		for _, k := range victim.keys {
			pending = append(pending, k)
			if len(pending) >= purgeBatchSize {
				if err := flush(); err != nil {
					span.RecordError(err)
					return 0, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		span.RecordError(err)
		return 0, err
	}

	versionsPurged.Add(float64(len(victims)))
	span.SetAttributes(attribute.Int("purged", len(victims)))
	s.logger.Info("history purged",
		slog.String("branch", branch),
		slog.Uint64("before_seq", seq),
		slog.Int("versions", len(victims)))

	return len(victims), nil
}

// -----------------------------------------------------------------------------
// Stats
// -----------------------------------------------------------------------------

// Stats returns ledger-wide counters.
func (s *BadgerStore) Stats(ctx context.Context) (LedgerStats, error) {
	var stats LedgerStats
	if err := s.checkUsable(ctx); err != nil {
		return stats, err
	}

	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		countPrefix := func(prefix []byte) (int64, error) {
			opts := dgbadger.DefaultIteratorOptions
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			defer it.Close()

			var n int64
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				n++
			}
			return n, nil
		}

		var err error
		if stats.Versions, err = countPrefix([]byte("v:id:")); err != nil {
			return err
		}
		if stats.Deltas, err = countPrefix([]byte("d:")); err != nil {
			return err
		}
		if stats.Snapshots, err = countPrefix([]byte("s:meta:")); err != nil {
			return err
		}
		if stats.Branches, err = countPrefix([]byte("b:")); err != nil {
			return err
		}

		// Oldest and newest surviving versions come off the seq index ends.
		prefix := []byte("v:seq:")
		fwd := dgbadger.DefaultIteratorOptions
		fwd.PrefetchValues = true
		it := txn.NewIterator(fwd)
		it.Seek(prefix)
		if it.ValidForPrefix(prefix) {
			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				it.Close()
				return err
			}
			if v, err := getVersionTxn(txn, id); err == nil {
				stats.OldestVersionMilli = v.CreatedAtMilli
			}
		}
		it.Close()

		rev := dgbadger.DefaultIteratorOptions
		rev.PrefetchValues = true
		rev.Reverse = true
		rit := txn.NewIterator(rev)
		defer rit.Close()
		rit.Seek(seekPastPrefix(prefix))
		if rit.ValidForPrefix(prefix) {
			var id string
			if err := rit.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			if v, err := getVersionTxn(txn, id); err == nil {
				stats.NewestVersionMilli = v.CreatedAtMilli
			}
		}
		return nil
	})
	if err != nil {
		return LedgerStats{}, err
	}
	return stats, nil
}
