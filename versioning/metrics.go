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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the versioning engine. Labels are kept to small
// fixed vocabularies (outcomes, strategies); branch names and version IDs
// are deliberately excluded to bound cardinality.
var (
	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronograph_commits_total",
		Help: "Commit attempts by outcome",
	}, []string{"outcome"}) // outcome: committed|conflict|empty|error

	commitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chronograph_commit_duration_seconds",
		Help:    "Duration of commit operations",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	deltasPerCommit = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chronograph_deltas_per_commit",
		Help:    "Number of element deltas recorded per commit",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	})

	snapshotDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chronograph_snapshot_duration_seconds",
		Help:    "Duration of snapshot operations",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"operation"}) // operation: create|restore|materialize|verify

	snapshotCompressedBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chronograph_snapshot_compressed_bytes",
		Help:    "Compressed size of created snapshots",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})

	resolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chronograph_resolve_duration_seconds",
		Help:    "Duration of state resolution by replay strategy",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{"strategy"}) // strategy: cache|snapshot|forward|reverse|genesis

	resolveReplaySteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chronograph_resolve_replay_steps",
		Help:    "Versions replayed to materialize a resolved state",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})

	stateCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chronograph_state_cache_hits_total",
		Help: "Resolved-state cache hits",
	})

	stateCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chronograph_state_cache_misses_total",
		Help: "Resolved-state cache misses",
	})

	mergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronograph_merges_total",
		Help: "Merge attempts by resulting status",
	}, []string{"status"}) // status: success|conflict|fast_forward|nothing_to_merge|error

	mergeConflicts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chronograph_merge_conflicts",
		Help:    "Conflicts detected per merge attempt",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})

	versionsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chronograph_versions_purged_total",
		Help: "Versions removed by history compaction",
	})
)
