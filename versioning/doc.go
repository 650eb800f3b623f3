// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package versioning provides git-like version control for knowledge
// graphs: an append-only version ledger, element-level change capture,
// branches, three-way merge, snapshots, and time-travel reconstruction.
//
// # Architecture Overview
//
// The engine layers read and maintenance paths over one append-only
// ledger. Mutations flow through explicit scopes; reads resolve refs and
// materialize historical states on demand.
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                          APPLICATION                             │
//	│      Begin → mutate scope store → Commit        StateAt(ref)     │
//	└───────────────┬──────────────────────────────────────┬───────────┘
//	                │                                      │
//	                ▼                                      ▼
//	┌───────────────────────────┐          ┌───────────────────────────┐
//	│       Change Tracker      │          │    Time-Travel Resolver   │
//	│  RecordingStore coalesces │          │  ref grammar, LRU cache,  │
//	│  per-element deltas, one  │          │  snapshot + forward or    │
//	│  atomic version per commit│          │  reverse delta replay     │
//	└─────────────┬─────────────┘          └─────────────┬─────────────┘
//	              │         ┌──────────────────┐         │
//	              │         │  Branch Manager  │         │
//	              │         │  Merge Engine    │         │
//	              │         │  Snapshot Manager│         │
//	              │         └────────┬─────────┘         │
//	              ▼                  ▼                   ▼
//	┌──────────────────────────────────────────────────────────────────┐
//	│                 Version Store (BadgerDB ledger)                  │
//	│   versions · seq/branch/time indexes · deltas · snapshots ·      │
//	│   branch heads — append-only, CRC-framed records                 │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Core Concepts
//
// ## Version
//
// A version is one atomic commit: metadata plus the element deltas that
// transform its parent's state into its own. Versions are immutable once
// written and linked by a ledger sequence number, never by pointers into
// mutable structures. History is append-only; even compaction only
// removes whole versions from the old end, under snapshot protection.
//
// ## Scope
//
// All mutation happens inside a scope handle returned by Begin. The
// scope's store records every Put, Delete and Replace as a coalesced
// element delta (create+delete collapses to nothing, update+update to
// one update, and so on). Commit writes one version guarded by a head
// compare-and-swap: if another commit moved the branch head first, the
// loser gets ErrConcurrentHeadConflict and re-begins from the new head.
// Nothing is stashed in goroutine-local state; scopes are plain values.
//
// ## Ref
//
// Refs name points in history: a version ID, a branch name, a snapshot
// name, HEAD, ancestor hops (main~3), or a timestamp (main@2025-06-01T00:00:00Z).
// The resolver turns refs into versions and versions into full states,
// choosing the cheapest reconstruction route: an exact snapshot, forward
// replay from a snapshotted ancestor, reverse replay from a snapshotted
// descendant, or genesis replay. Closed versions cache in a bounded LRU;
// branch heads are never cached.
//
// ## Branch & Merge
//
// A branch is a movable head pointer; creating one copies nothing.
// Merging finds the deepest common ancestor and three-way diffs at
// element and property granularity: one-sided changes auto-apply,
// identical changes collapse, and the rest classify as UpdateUpdate,
// DeleteUpdate, AddAdd or TypeChange conflicts. A conflicted merge is a
// normal result value carrying the conflict list, not an error.
//
// ## Snapshot
//
// A snapshot is a gzip-compressed, checksummed full state anchored at a
// version. Snapshots accelerate reconstruction, survive compaction as
// replay bases, and can be restored — a restore is an ordinary commit
// whose deltas replace the current state, so it carries the same
// concurrency guarantees as any commit.
//
// # Thread Safety
//
// Reads are lock-free against the append-only ledger and safe at any
// concurrency. Writes that advance a branch head (commit, restore,
// merge) serialize per branch through optimistic concurrency; collisions
// surface as ErrConcurrentHeadConflict and are retried by the caller. A
// scope is single-writer and must not be shared across goroutines. All
// public operations accept context.Context and respect cancellation.
//
// # Observability
//
// Every operation logs through slog, records spans through OpenTelemetry
// tracers, and feeds Prometheus counters and histograms (commit
// outcomes, replay strategy and step counts, snapshot sizes, merge
// statuses). Events (version created, branches merged, snapshot
// lifecycle) publish through an injected events.Publisher.
//
// # Usage Example
//
//	cfg := versioning.DefaultConfig("/var/lib/chronograph")
//	engine, err := versioning.Open(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	// Commit a change.
//	scope, err := engine.Begin(ctx, versioning.BeginOptions{Actor: "ingest"})
//	if err != nil {
//	    return err
//	}
//	if err := scope.Store().Put(ctx, graph.EntityElement(&graph.Entity{
//	    ID: "acme", Kind: "organization", Label: "ACME Corp",
//	})); err != nil {
//	    return err
//	}
//	version, err := scope.Commit(ctx, "add ACME")
//	if err != nil {
//	    return fmt.Errorf("commit: %w", err)
//	}
//
//	// Read the graph as of an hour ago.
//	state, err := engine.StateAt(ctx, versioning.Ref("main@"+hourAgo))
package versioning
