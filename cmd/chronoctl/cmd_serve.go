// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/chronograph/api"
	"github.com/AleutianAI/chronograph/events"
	"github.com/AleutianAI/chronograph/graph/weaviategraph"
	"github.com/AleutianAI/chronograph/telemetry"
	"github.com/AleutianAI/chronograph/versioning"
)

// shutdownGrace bounds how long a stopping server waits for in-flight
// requests.
const shutdownGrace = 10 * time.Second

// =============================================================================
// SERVE COMMAND
// =============================================================================

// runServe is the CLI handler for the "chronoctl serve" command.
//
// Serves the read-only ledger API plus /metrics until SIGINT or SIGTERM.
// The serving process is the only writer-free consumer of the ledger, so
// commits continue through the CLI or library while it runs.
func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()

	logger := appLogger.Slog()

	if serveTelemetry {
		telemetryCfg := telemetry.DefaultConfig()
		telemetryCfg.ServiceName = "chronograph-ledger"
		telemetryCfg.AllowDegraded = true
		shutdown, err := telemetry.Init(ctx, telemetryCfg)
		if err != nil {
			fail("Failed to initialize telemetry", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("Telemetry shutdown failed", "error", err)
			}
		}()
	}

	// Subscribers see commits, merges and snapshot lifecycle as they happen.
	emitter := events.NewEmitter()
	emitter.Subscribe(func(event *events.Event) {
		logger.Debug("ledger event", "type", event.Type, "data", event.Data)
	})

	opts := []versioning.Option{versioning.WithPublisher(emitter)}

	if serveMirrorURL != "" {
		mirror, err := weaviategraph.New(ctx, weaviategraph.Config{
			URL:     serveMirrorURL,
			GraphID: serveMirrorGraph,
			Logger:  logger,
		})
		if err != nil {
			fail("Failed to connect Weaviate mirror", err)
		}
		opts = append(opts, versioning.WithLiveStore(mirror))
		logger.Info("Mirroring default branch head to Weaviate", "url", serveMirrorURL, "graph_id", serveMirrorGraph)
	}

	engine := mustOpenEngine(ctx, opts...)
	defer engine.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chronograph-ledger"))

	handlers := api.NewHandlers(engine).WithLogger(logger)
	v1 := router.Group("/v1")
	api.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         serveAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving ledger API", "addr", serveAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down ledger API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fail("Server shutdown failed", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fail("Server failed", err)
		}
	}
}

// =============================================================================
// SERVE-METRICS COMMAND
// =============================================================================

// runServeMetrics serves only the Prometheus /metrics endpoint.
//
// The engine stays open while serving so its collectors keep reporting;
// use this for scrape-only sidecars where the full API is not wanted.
func runServeMetrics(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()

	logger := appLogger.Slog()

	engine := mustOpenEngine(ctx)
	defer engine.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := engine.Stats(r.Context()); err != nil {
			http.Error(w, "ledger unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:        metricsAddr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", "addr", metricsAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fail("Server shutdown failed", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fail("Server failed", err)
		}
	}
}
