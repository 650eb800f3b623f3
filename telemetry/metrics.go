// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for chronograph tooling.
//
// Description:
//
//	Provides counters, histograms, and gauges for mirror synchronization,
//	CLI command execution, and ledger size. All metrics use the
//	"chronograph_" prefix for consistent naming. The versioning engine
//	records its own operation-level metrics (commits, resolves, merges)
//	directly with Prometheus; the instruments here cover the surfaces
//	around the engine.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- Mirror Metrics ---

	// MirrorSyncsTotal counts mirror synchronization attempts by status.
	MirrorSyncsTotal metric.Int64Counter

	// MirrorSyncDuration records mirror synchronization duration in seconds.
	MirrorSyncDuration metric.Float64Histogram

	// MirrorElementsTotal counts elements written to the mirror.
	MirrorElementsTotal metric.Int64Counter

	// --- Command Metrics ---

	// CommandsTotal counts CLI command executions by command and status.
	CommandsTotal metric.Int64Counter

	// CommandDuration records CLI command duration in seconds.
	CommandDuration metric.Float64Histogram

	// --- Ledger Gauges ---

	// LedgerVersions tracks the total number of versions in the ledger.
	LedgerVersions metric.Int64ObservableGauge

	// LedgerDeltas tracks the total number of element deltas in the ledger.
	LedgerDeltas metric.Int64ObservableGauge

	// LedgerSnapshots tracks the number of live snapshots in the ledger.
	LedgerSnapshots metric.Int64ObservableGauge

	// LedgerBranches tracks the number of branches in the ledger.
	LedgerBranches metric.Int64ObservableGauge

	// --- Error Metrics ---

	// ErrorsTotal counts errors by component.
	ErrorsTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
//
// Description:
//
//	Registers all pre-defined metrics with the provided meter.
//	Returns an error if any metric registration fails. The ledger
//	gauges are observable and require a separate RegisterLedgerStats
//	call to start reporting.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance with all counters and histograms initialized.
//	error - Non-nil if metric registration fails.
//
// Example:
//
//	meter := otel.Meter("chronograph")
//	metrics, err := telemetry.NewMetrics(meter)
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	metrics.MirrorSyncsTotal.Add(ctx, 1, ...)
//
// Thread Safety: Safe for concurrent use after creation.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	// --- Mirror Metrics ---
	m.MirrorSyncsTotal, err = meter.Int64Counter(
		"chronograph_mirror_syncs_total",
		metric.WithDescription("Mirror synchronization attempts"),
		metric.WithUnit("{sync}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create mirror_syncs_total: %w", err)
	}

	m.MirrorSyncDuration, err = meter.Float64Histogram(
		"chronograph_mirror_sync_duration_seconds",
		metric.WithDescription("Mirror synchronization duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("create mirror_sync_duration: %w", err)
	}

	m.MirrorElementsTotal, err = meter.Int64Counter(
		"chronograph_mirror_elements_total",
		metric.WithDescription("Elements written to the mirror"),
		metric.WithUnit("{element}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create mirror_elements_total: %w", err)
	}

	// --- Command Metrics ---
	m.CommandsTotal, err = meter.Int64Counter(
		"chronograph_commands_total",
		metric.WithDescription("CLI command executions"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create commands_total: %w", err)
	}

	m.CommandDuration, err = meter.Float64Histogram(
		"chronograph_command_duration_seconds",
		metric.WithDescription("CLI command duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("create command_duration: %w", err)
	}

	// Note: the ledger gauges require a callback registration, handled by
	// RegisterLedgerStats.

	// --- Error Metrics ---
	m.ErrorsTotal, err = meter.Int64Counter(
		"chronograph_errors_total",
		metric.WithDescription("Errors by component"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	return m, nil
}

// RegisterLedgerStats registers a callback for the ledger size gauges.
//
// Description:
//
//	Sets up observable gauges that report the current number of versions,
//	element deltas, snapshots, and branches in the ledger. The callback is
//	invoked each time metrics are scraped, so statsFunc should be cheap;
//	the versioning engine's Stats method reads counters from the store
//	indexes rather than scanning history.
//
// Inputs:
//
//	meter - The OTel meter to use for registration.
//	statsFunc - A function that returns the current ledger totals.
//
// Outputs:
//
//	metric.Registration - Registration handle for cleanup.
//	error - Non-nil if registration fails.
//
// Example:
//
//	reg, err := metrics.RegisterLedgerStats(meter, func() (int64, int64, int64, int64) {
//	    st, err := engine.Stats(context.Background())
//	    if err != nil {
//	        return 0, 0, 0, 0
//	    }
//	    return st.Versions, st.Deltas, st.Snapshots, st.Branches
//	})
func (m *Metrics) RegisterLedgerStats(meter metric.Meter, statsFunc func() (versions, deltas, snapshots, branches int64)) (metric.Registration, error) {
	var err error
	m.LedgerVersions, err = meter.Int64ObservableGauge(
		"chronograph_ledger_versions",
		metric.WithDescription("Total versions in the ledger"),
		metric.WithUnit("{version}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ledger_versions: %w", err)
	}

	m.LedgerDeltas, err = meter.Int64ObservableGauge(
		"chronograph_ledger_deltas",
		metric.WithDescription("Total element deltas in the ledger"),
		metric.WithUnit("{delta}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ledger_deltas: %w", err)
	}

	m.LedgerSnapshots, err = meter.Int64ObservableGauge(
		"chronograph_ledger_snapshots",
		metric.WithDescription("Live snapshots in the ledger"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ledger_snapshots: %w", err)
	}

	m.LedgerBranches, err = meter.Int64ObservableGauge(
		"chronograph_ledger_branches",
		metric.WithDescription("Branches in the ledger"),
		metric.WithUnit("{branch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ledger_branches: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		versions, deltas, snapshots, branches := statsFunc()
		o.ObserveInt64(m.LedgerVersions, versions)
		o.ObserveInt64(m.LedgerDeltas, deltas)
		o.ObserveInt64(m.LedgerSnapshots, snapshots)
		o.ObserveInt64(m.LedgerBranches, branches)
		return nil
	}, m.LedgerVersions, m.LedgerDeltas, m.LedgerSnapshots, m.LedgerBranches)
}
