/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics for the catalog service.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memorix_api_requests_total",
		Help: "Total API requests by method, endpoint and status code.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memorix_api_request_duration_seconds",
		Help:    "API request latency by method, endpoint and status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memorix_api_active_connections",
		Help: "Number of in-flight API requests.",
	})

	// Scan metrics.
	ScanRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memorix_scan_runs_total",
		Help: "Completed scan runs by storage type and outcome.",
	}, []string{"storage_type", "outcome"})

	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memorix_scan_duration_seconds",
		Help:    "End to end scan duration by storage type.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"storage_type"})

	ScanObjectsSeen = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memorix_scan_objects_seen_total",
		Help: "Media objects discovered during walks by storage type.",
	}, []string{"storage_type"})

	ScanFilesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memorix_scan_files_processed_total",
		Help: "Files processed during scans by action (added, updated, removed, unchanged).",
	}, []string{"action"})

	ArtifactFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memorix_artifact_failures_total",
		Help: "Derived artifact generation failures by kind (thumbnail, blurhash, exif, ffprobe).",
	}, []string{"kind"})

	// Database metrics.
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memorix_db_query_duration_seconds",
		Help:    "Database operation latency by operation and table.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memorix_db_errors_total",
		Help: "Database errors by operation.",
	}, []string{"operation"})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
