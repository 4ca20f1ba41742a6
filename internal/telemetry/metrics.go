/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics and OpenTelemetry
// tracing for the screen agent.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reconciler metrics
	ReconcilePassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advero_reconcile_passes_total",
		Help: "Reconciliation passes per screen.",
	}, []string{"screen_id", "trigger"})

	ReconcileErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advero_reconcile_errors_total",
		Help: "Failed reconciliation passes per screen.",
	}, []string{"screen_id"})

	PlaylistVersionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advero_playlist_versions_total",
		Help: "Published playlist versions per screen.",
	}, []string{"screen_id"})

	PlaylistItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "advero_playlist_items",
		Help: "Eligible items in the current playlist per screen.",
	}, []string{"screen_id"})

	// Playback metrics
	PlaybackTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advero_playback_transitions_total",
		Help: "Playback state machine transitions per screen.",
	}, []string{"screen_id", "state"})

	ItemsPlayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advero_items_played_total",
		Help: "Completed playbacks per screen and item kind.",
	}, []string{"screen_id", "kind"})

	ExpiredSkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advero_expired_skips_total",
		Help: "Items skipped at dequeue because their expiration had passed.",
	}, []string{"screen_id"})

	StatusWriteFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advero_status_write_failures_total",
		Help: "Failed best-effort mark-as-playing store writes.",
	}, []string{"screen_id"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "advero_sessions_active",
		Help: "Screen sessions currently hosted by this agent.",
	})

	// Preloader metrics
	PreloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "advero_preloads_total",
		Help: "Preload attempts.",
	})

	PreloadFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "advero_preload_failures_total",
		Help: "Preload attempts that failed (swallowed).",
	})

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advero_api_requests_total",
		Help: "API requests by method, endpoint, and status code.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "advero_api_request_duration_seconds",
		Help:    "API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "advero_api_active_connections",
		Help: "In-flight API requests.",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "advero_api_websocket_connections",
		Help: "Open event stream websocket connections.",
	})

	// Database metrics
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "advero_db_query_duration_seconds",
		Help:    "Database operation latency by operation and table.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advero_db_errors_total",
		Help: "Database errors by operation and kind.",
	}, []string{"operation", "kind"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "advero_db_connections_active",
		Help: "Open database connections.",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
