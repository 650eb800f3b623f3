// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the version ledger over HTTP.
//
// The surface is read-only: it resolves refs, lists history, reconstructs
// state summaries and reports branch and snapshot metadata. Mutations
// (commits, merges, snapshot restores) stay with the library API and the
// chronoctl CLI, so a serving process never races its own writers.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/chronograph/versioning"
)

// ServiceVersion is the ledger API version.
const ServiceVersion = "0.1.0"

// Handlers contains the HTTP handlers for the ledger API.
type Handlers struct {
	engine *versioning.Engine
	logger *slog.Logger
}

// NewHandlers creates handlers backed by the given engine.
func NewHandlers(engine *versioning.Engine) *Handlers {
	return &Handlers{
		engine: engine,
		logger: slog.Default(),
	}
}

// WithLogger sets the structured logger for request logging.
func (h *Handlers) WithLogger(logger *slog.Logger) *Handlers {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// HandleHealth handles GET /v1/ledger/health.
//
// Description:
//
//	Returns the health status of the service. Always returns 200 if running.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	status := "healthy"
	if h.engine.MirrorStale() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:  status,
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /v1/ledger/ready.
//
// Description:
//
//	Returns the readiness status of the service. Performs a real ledger
//	read, so a wedged store reports not ready.
//
// Response:
//
//	200 OK: ReadyResponse (Ready=true)
//	503 Service Unavailable: ReadyResponse (Ready=false)
func (h *Handlers) HandleReady(c *gin.Context) {
	stats, err := h.engine.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ReadyResponse{Ready: false})
		return
	}

	c.JSON(http.StatusOK, ReadyResponse{
		Ready:         true,
		DefaultBranch: h.engine.DefaultBranch(),
		Versions:      stats.Versions,
		MirrorStale:   h.engine.MirrorStale(),
	})
}

// HandleStats handles GET /v1/ledger/stats.
//
// Description:
//
//	Returns ledger record counts and the commit time bounds.
//
// Response:
//
//	200 OK: StatsResponse
//	500 Internal Server Error: Store error
func (h *Handlers) HandleStats(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleStats")

	stats, err := h.engine.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, newStatsResponse(stats, h.engine.DefaultBranch(), h.engine.MirrorStale()))
}

// HandleListVersions handles GET /v1/ledger/versions.
//
// Description:
//
//	Returns one branch's commit log, newest first.
//
// Query Parameters:
//
//	branch: Branch to list (optional, default: the default branch)
//	limit: Maximum number of results (optional, default 50)
//	offset: Versions to skip from the newest end (optional)
//
// Response:
//
//	200 OK: VersionsResponse
//	404 Not Found: Branch not found
func (h *Handlers) HandleListVersions(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleListVersions")

	var req ListVersionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query parameters",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if req.Branch == "" {
		req.Branch = h.engine.DefaultBranch()
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}

	versions, err := h.engine.ListVersions(c.Request.Context(), req.Branch, req.Limit, req.Offset)
	if err != nil {
		h.respondError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, VersionsResponse{
		Branch:   req.Branch,
		Count:    len(versions),
		Versions: newVersionInfos(versions),
	})
}

// HandleGetVersion handles GET /v1/ledger/versions/:id.
//
// Description:
//
//	Returns one version's metadata by exact ID.
//
// Path Parameters:
//
//	id: Version ID (required)
//
// Response:
//
//	200 OK: VersionInfo
//	404 Not Found: Version not found
func (h *Handlers) HandleGetVersion(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleGetVersion")

	v, err := h.engine.GetVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, newVersionInfo(v))
}

// HandleGetDeltas handles GET /v1/ledger/versions/:id/deltas.
//
// Description:
//
//	Returns one version's element deltas in application order.
//
// Path Parameters:
//
//	id: Version ID (required)
//
// Query Parameters:
//
//	payloads: Include decoded element payloads (optional, default false)
//
// Response:
//
//	200 OK: DeltasResponse
//	404 Not Found: Version not found
func (h *Handlers) HandleGetDeltas(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleGetDeltas")

	var req DeltasRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query parameters",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	// Distinguish "no deltas" from "no such version".
	v, err := h.engine.GetVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, logger, err)
		return
	}

	deltas, err := h.engine.GetDeltas(c.Request.Context(), v.ID)
	if err != nil {
		h.respondError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, DeltasResponse{
		VersionID: v.ID,
		Count:     len(deltas),
		Deltas:    newDeltaInfos(deltas, req.Payloads),
	})
}

// HandleHistory handles GET /v1/ledger/history.
//
// Description:
//
//	Walks parent links back from the version a ref names, newest first.
//	Unlike the versions listing this follows the commit chain, so after
//	a fast-forward it includes versions committed on the merged branch.
//
// Query Parameters:
//
//	ref: Version reference to walk back from (required)
//	limit: Maximum number of results (optional, default 50)
//
// Response:
//
//	200 OK: HistoryResponse
//	400 Bad Request: Invalid ref
//	404 Not Found: Ref does not resolve
func (h *Handlers) HandleHistory(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleHistory")

	var req HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query parameters: ref is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}

	versions, err := h.engine.History(c.Request.Context(), versioning.Ref(req.Ref), req.Limit)
	if err != nil {
		h.respondError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Ref:      req.Ref,
		Count:    len(versions),
		Versions: newVersionInfos(versions),
	})
}

// HandleResolve handles GET /v1/ledger/resolve.
//
// Description:
//
//	Resolves a version reference (version ID, branch, snapshot name,
//	~N ancestor, or branch@timestamp) to the version it names.
//
// Query Parameters:
//
//	ref: Version reference (required)
//
// Response:
//
//	200 OK: VersionInfo
//	400 Bad Request: Invalid ref
//	404 Not Found: Ref does not resolve
func (h *Handlers) HandleResolve(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleResolve")

	var req ResolveRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query parameters: ref is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	v, err := h.engine.Resolve(c.Request.Context(), versioning.Ref(req.Ref))
	if err != nil {
		h.respondError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, newVersionInfo(v))
}

// HandleState handles GET /v1/ledger/state.
//
// Description:
//
//	Reconstructs the full graph state at a ref and returns its element
//	counts and canonical checksum. The element set itself is not
//	included; bulk extraction goes through the CLI export command.
//
// Query Parameters:
//
//	ref: Version reference (required)
//
// Response:
//
//	200 OK: StateResponse
//	400 Bad Request: Invalid ref
//	404 Not Found: Ref does not resolve, or history was compacted away
func (h *Handlers) HandleState(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleState")

	var req StateRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query parameters: ref is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	ctx := c.Request.Context()
	v, err := h.engine.Resolve(ctx, versioning.Ref(req.Ref))
	if err != nil {
		h.respondError(c, logger, err)
		return
	}
	state, err := h.engine.StateAt(ctx, versioning.Ref(v.ID))
	if err != nil {
		h.respondError(c, logger, err)
		return
	}

	counts := state.Counts()
	logger.Info("Reconstructed state", "ref", req.Ref, "version_id", v.ID, "elements", counts.Total())

	c.JSON(http.StatusOK, StateResponse{
		Ref:           req.Ref,
		VersionID:     v.ID,
		Entities:      counts.Entities,
		Relationships: counts.Relationships,
		Claims:        counts.Claims,
		Axioms:        counts.Axioms,
		Total:         counts.Total(),
		Checksum:      state.Checksum(),
	})
}

// HandleDiff handles GET /v1/ledger/diff.
//
// Description:
//
//	Returns the element deltas that transform the state at one ref into
//	the state at another.
//
// Query Parameters:
//
//	from: Version reference for the starting state (required)
//	to: Version reference for the ending state (required)
//	payloads: Include decoded element payloads (optional, default false)
//
// Response:
//
//	200 OK: DiffResponse
//	400 Bad Request: Invalid ref
//	404 Not Found: A ref does not resolve
func (h *Handlers) HandleDiff(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleDiff")

	var req DiffRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query parameters: from and to are required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	ctx := c.Request.Context()
	from, err := h.engine.Resolve(ctx, versioning.Ref(req.From))
	if err != nil {
		h.respondError(c, logger, err)
		return
	}
	to, err := h.engine.Resolve(ctx, versioning.Ref(req.To))
	if err != nil {
		h.respondError(c, logger, err)
		return
	}

	deltas, err := h.engine.Diff(ctx, versioning.Ref(from.ID), versioning.Ref(to.ID))
	if err != nil {
		h.respondError(c, logger, err)
		return
	}

	logger.Info("Computed diff", "from", from.ShortID(), "to", to.ShortID(), "deltas", len(deltas))

	c.JSON(http.StatusOK, DiffResponse{
		From:          req.From,
		To:            req.To,
		FromVersionID: from.ID,
		ToVersionID:   to.ID,
		Count:         len(deltas),
		Deltas:        newDeltaInfos(deltas, req.Payloads),
	})
}

// HandleListBranches handles GET /v1/ledger/branches.
//
// Description:
//
//	Returns all branches sorted by name. Archived branches are hidden
//	unless requested.
//
// Query Parameters:
//
//	archived: Include archived branches (optional, default false)
//
// Response:
//
//	200 OK: BranchesResponse
func (h *Handlers) HandleListBranches(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleListBranches")

	var req ListBranchesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query parameters",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	branches, err := h.engine.Branches().List(c.Request.Context())
	if err != nil {
		h.respondError(c, logger, err)
		return
	}

	infos := make([]BranchInfo, 0, len(branches))
	for _, b := range branches {
		if b.Archived && !req.Archived {
			continue
		}
		infos = append(infos, newBranchInfo(b))
	}

	c.JSON(http.StatusOK, BranchesResponse{
		Count:    len(infos),
		Branches: infos,
	})
}

// HandleGetBranch handles GET /v1/ledger/branch.
//
// Description:
//
//	Returns one branch by name. The name is a query parameter because
//	branch names may contain slashes.
//
// Query Parameters:
//
//	name: Branch name (required)
//
// Response:
//
//	200 OK: BranchInfo
//	404 Not Found: Branch not found
func (h *Handlers) HandleGetBranch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleGetBranch")

	var req GetBranchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query parameters: name is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	b, err := h.engine.Branches().Get(c.Request.Context(), req.Name)
	if err != nil {
		h.respondError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, newBranchInfo(b))
}

// HandleCompareBranches handles GET /v1/ledger/branches/compare.
//
// Description:
//
//	Reports how far two branches have diverged: versions on A that B
//	lacks, the reverse, and their common ancestor.
//
// Query Parameters:
//
//	a: First branch name (required)
//	b: Second branch name (required)
//
// Response:
//
//	200 OK: ComparisonInfo
//	404 Not Found: Branch not found
func (h *Handlers) HandleCompareBranches(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleCompareBranches")

	var req CompareBranchesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query parameters: a and b are required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	cmp, err := h.engine.Branches().Compare(c.Request.Context(), req.A, req.B)
	if err != nil {
		h.respondError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, ComparisonInfo{
		A:                cmp.A,
		B:                cmp.B,
		Ahead:            cmp.Ahead,
		Behind:           cmp.Behind,
		CommonAncestorID: cmp.CommonAncestorID,
	})
}

// HandleListSnapshots handles GET /v1/ledger/snapshots.
//
// Description:
//
//	Returns snapshot metadata, newest first. Soft-deleted snapshots are
//	hidden unless requested.
//
// Query Parameters:
//
//	deleted: Include soft-deleted snapshots (optional, default false)
//
// Response:
//
//	200 OK: SnapshotsResponse
func (h *Handlers) HandleListSnapshots(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleListSnapshots")

	var req ListSnapshotsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid query parameters",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	snapshots, err := h.engine.Snapshots().List(c.Request.Context(), req.Deleted)
	if err != nil {
		h.respondError(c, logger, err)
		return
	}

	infos := make([]SnapshotInfo, 0, len(snapshots))
	for _, s := range snapshots {
		infos = append(infos, newSnapshotInfo(s))
	}

	c.JSON(http.StatusOK, SnapshotsResponse{
		Count:     len(infos),
		Snapshots: infos,
	})
}

// HandleGetSnapshot handles GET /v1/ledger/snapshots/:id.
//
// Description:
//
//	Returns one snapshot's metadata by ID.
//
// Path Parameters:
//
//	id: Snapshot ID (required)
//
// Response:
//
//	200 OK: SnapshotInfo
//	404 Not Found: Snapshot not found
func (h *Handlers) HandleGetSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleGetSnapshot")

	s, err := h.engine.Snapshots().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, newSnapshotInfo(s))
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// respondError maps ledger errors onto HTTP statuses. Not-found sentinels
// become 404, bad references 400, corruption and everything else 500.
func (h *Handlers) respondError(c *gin.Context, logger *slog.Logger, err error) {
	statusCode := http.StatusInternalServerError
	errCode := "INTERNAL"

	switch {
	case errors.Is(err, versioning.ErrVersionNotFound):
		statusCode = http.StatusNotFound
		errCode = "VERSION_NOT_FOUND"
	case errors.Is(err, versioning.ErrBranchNotFound):
		statusCode = http.StatusNotFound
		errCode = "BRANCH_NOT_FOUND"
	case errors.Is(err, versioning.ErrSnapshotNotFound):
		statusCode = http.StatusNotFound
		errCode = "SNAPSHOT_NOT_FOUND"
	case errors.Is(err, versioning.ErrStateUnreachable):
		statusCode = http.StatusNotFound
		errCode = "STATE_UNREACHABLE"
	case errors.Is(err, versioning.ErrInvalidRef):
		statusCode = http.StatusBadRequest
		errCode = "INVALID_REF"
	case errors.Is(err, versioning.ErrCorruptRecord):
		errCode = "CORRUPT_RECORD"
	case errors.Is(err, versioning.ErrSnapshotCorrupted):
		errCode = "SNAPSHOT_CORRUPTED"
	}

	if statusCode >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	} else {
		logger.Warn("Request rejected", "error", err, "status", statusCode)
	}

	c.JSON(statusCode, ErrorResponse{
		Error: err.Error(),
		Code:  errCode,
	})
}

func newStatsResponse(stats versioning.LedgerStats, defaultBranch string, mirrorStale bool) StatsResponse {
	resp := StatsResponse{
		Versions:      stats.Versions,
		Deltas:        stats.Deltas,
		Snapshots:     stats.Snapshots,
		Branches:      stats.Branches,
		DefaultBranch: defaultBranch,
		MirrorStale:   mirrorStale,
	}
	if stats.OldestVersionMilli > 0 {
		resp.OldestVersion = formatMilli(stats.OldestVersionMilli)
	}
	if stats.NewestVersionMilli > 0 {
		resp.NewestVersion = formatMilli(stats.NewestVersionMilli)
	}
	return resp
}

// getOrCreateRequestID returns the X-Request-ID header, generating one when
// absent, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
