// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

// Package api provides HTTP routing using Chi router. Three caller
// populations share the surface: device agents (token-authenticated ingest
// and streaming), the admin dashboard (JWT-authenticated queries and
// websockets), and infrastructure probes (health, metrics).
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetlens/fleetlens/internal/blob"
	"github.com/fleetlens/fleetlens/internal/gateway"
	"github.com/fleetlens/fleetlens/internal/identity"
	"github.com/fleetlens/fleetlens/internal/recording"
	"github.com/fleetlens/fleetlens/internal/store"
	"github.com/fleetlens/fleetlens/internal/telemetry"
)

// Config holds the API layer settings.
type Config struct {
	// AdminSecret verifies admin bearer tokens minted by the surrounding
	// CRM (HS256).
	AdminSecret string

	// MaxUploadBytes caps a single recording upload.
	MaxUploadBytes int64

	// CORSAllowedOrigins lists the dashboard origins permitted to call the
	// API cross-origin. Empty means any origin.
	CORSAllowedOrigins []string
}

// Router wires handlers to the services.
type Router struct {
	cfg       Config
	db        *store.DB
	blobs     blob.ContentStore
	identity  *identity.Service
	telemetry *telemetry.Service
	recording *recording.Service
	gateway   *gateway.Gateway
	validate  *validator.Validate
}

// NewRouter creates the API router.
func NewRouter(cfg Config, db *store.DB, blobs blob.ContentStore, ids *identity.Service, tel *telemetry.Service, rec *recording.Service, gw *gateway.Gateway) *Router {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 256 << 20
	}
	return &Router{
		cfg:       cfg,
		db:        db,
		blobs:     blobs,
		identity:  ids,
		telemetry: tel,
		recording: rec,
		gateway:   gw,
		validate:  validator.New(),
	}
}

// Routes assembles the full HTTP handler.
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(observeRequests)

	// Infrastructure probes: permissive rate limit, no auth.
	r.Route("/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/live", rt.HealthLive)
		r.Get("/ready", rt.HealthReady)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	allowedOrigins := rt.cfg.CORSAllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
		r.Use(securityHeaders)

		// Enrollment: strict limits, completion is the unauthenticated
		// brute-force surface.
		r.Route("/enroll", func(r chi.Router) {
			r.With(rt.adminAuth, httprate.LimitByIP(60, time.Minute)).
				Post("/request", rt.EnrollRequest)
			r.With(httprate.LimitByIP(10, time.Minute)).
				Post("/complete", rt.EnrollComplete)
		})

		// Agent ingest: device-token auth.
		r.Route("/ingest", func(r chi.Router) {
			r.Use(rt.deviceAuth)
			r.With(httprate.LimitByIP(300, time.Minute)).
				Post("/heartbeat", rt.IngestHeartbeat)
			r.With(httprate.LimitByIP(60, time.Minute)).
				Post("/recording", rt.IngestRecording)
		})
		r.With(rt.deviceAuth, httprate.LimitByIP(60, time.Minute)).
			Post("/recording/encode-frames", rt.EncodeFrames)
		r.With(rt.deviceAuth).Get("/agent/context", rt.AgentContext)

		// Websockets: credentials ride the query string because browser
		// websocket clients cannot set headers.
		r.Route("/ws", func(r chi.Router) {
			r.With(rt.adminAuth).Get("/monitoring", rt.gateway.HandleMonitoring)
			r.With(rt.adminAuth).Get("/devices/{deviceID}", rt.gateway.HandleDevice)
			r.With(rt.adminAuth).Get("/devices/{deviceID}/view", rt.ViewerStream)
			r.With(rt.deviceAuth).Get("/devices/{deviceID}/stream", rt.AgentStream)
		})
	})

	return r
}
