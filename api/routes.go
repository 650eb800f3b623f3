// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all ledger API routes with the router.
//
// Description:
//
//	Registers all /v1/ledger/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	GET /v1/ledger/versions - List one branch's commit log
//	GET /v1/ledger/versions/:id - Get a version by ID
//	GET /v1/ledger/versions/:id/deltas - Get a version's element deltas
//	GET /v1/ledger/history - Walk parent links back from a ref
//	GET /v1/ledger/resolve - Resolve a ref to a version
//	GET /v1/ledger/state - Reconstruct a state summary at a ref
//	GET /v1/ledger/diff - Deltas between two refs
//	GET /v1/ledger/branches - List branches
//	GET /v1/ledger/branches/compare - Compare two branches
//	GET /v1/ledger/branch - Get a branch by name
//	GET /v1/ledger/snapshots - List snapshots
//	GET /v1/ledger/snapshots/:id - Get a snapshot by ID
//	GET /v1/ledger/stats - Ledger record counts
//	GET /v1/ledger/health - Health check
//	GET /v1/ledger/ready - Readiness check
//
// Example:
//
//	engine, _ := versioning.Open(ctx, cfg)
//	handlers := api.NewHandlers(engine)
//
//	v1 := router.Group("/v1")
//	api.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	ledger := rg.Group("/ledger")
	{
		// Version log
		ledger.GET("/versions", handlers.HandleListVersions)
		ledger.GET("/versions/:id", handlers.HandleGetVersion)
		ledger.GET("/versions/:id/deltas", handlers.HandleGetDeltas)
		ledger.GET("/history", handlers.HandleHistory)

		// Time travel
		ledger.GET("/resolve", handlers.HandleResolve)
		ledger.GET("/state", handlers.HandleState)
		ledger.GET("/diff", handlers.HandleDiff)

		// Branches
		ledger.GET("/branches", handlers.HandleListBranches)
		ledger.GET("/branches/compare", handlers.HandleCompareBranches)
		ledger.GET("/branch", handlers.HandleGetBranch)

		// Snapshots
		ledger.GET("/snapshots", handlers.HandleListSnapshots)
		ledger.GET("/snapshots/:id", handlers.HandleGetSnapshot)

		// Introspection
		ledger.GET("/stats", handlers.HandleStats)

		// Health checks
		ledger.GET("/health", handlers.HandleHealth)
		ledger.GET("/ready", handlers.HandleReady)
	}
}
