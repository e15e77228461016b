// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

// Package metrics defines the Prometheus instrumentation for FleetLens:
// ingest throughput, telemetry clamping, encoder latency, broadcast health,
// and websocket connection gauges. All metrics are registered via promauto
// and exposed at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion

	HeartbeatsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetlens_heartbeats_ingested_total",
			Help: "Total heartbeats persisted",
		},
	)

	TelemetryFieldsClamped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetlens_telemetry_fields_clamped_total",
			Help: "Telemetry fields coerced or clamped into their domain",
		},
		[]string{"field"},
	)

	IdleAlertsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetlens_idle_alerts_created_total",
			Help: "Idle alerts created from heartbeats",
		},
	)

	RecordingsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetlens_recordings_stored_total",
			Help: "Recording rows created, by ingest source",
		},
		[]string{"source"}, // "upload" or "frames"
	)

	// Encoding

	EncodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetlens_encode_duration_seconds",
			Help:    "Duration of frame-batch video encodes",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	EncodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetlens_encode_failures_total",
			Help: "Failed frame-batch encodes, by reason",
		},
		[]string{"reason"}, // "no_frames", "encoder_missing", "encoder_error", "timeout"
	)

	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetlens_frames_dropped_total",
			Help: "Corrupt frames skipped during batch decode",
		},
	)

	ThumbnailFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetlens_thumbnail_failures_total",
			Help: "Best-effort thumbnail extractions that failed",
		},
	)

	// Device identity

	EnrollmentsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetlens_enrollments_completed_total",
			Help: "Device enrollments completed",
		},
	)

	TokenRenewals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetlens_device_token_renewals_total",
			Help: "Device tokens replaced by opportunistic renewal",
		},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetlens_auth_failures_total",
			Help: "Rejected credentials, by kind",
		},
		[]string{"kind"}, // "device_token", "enrollment_token", "admin"
	)

	// Broadcast hub

	HubPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetlens_hub_publishes_total",
			Help: "Events published to the broadcast hub, by event type",
		},
		[]string{"event"},
	)

	HubPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetlens_hub_publish_failures_total",
			Help: "Broadcast publishes swallowed after failure",
		},
	)

	// Gateway

	WebsocketConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetlens_websocket_connections",
			Help: "Active websocket connections, by class",
		},
		[]string{"class"}, // "monitoring", "detail", "agent", "viewer"
	)

	FramesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetlens_frames_relayed_total",
			Help: "Live-stream frames relayed from agents to viewers",
		},
	)

	// HTTP

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetlens_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveHTTPRequest records one HTTP request observation.
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
