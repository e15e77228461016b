// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package api

import (
	"net/http"
	"time"

	"github.com/fleetlens/fleetlens/internal/models"
)

// HealthLive reports process liveness. It never touches dependencies.
func (rt *Router) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady reports readiness: the metadata store and the blob store must
// both answer.
func (rt *Router) HealthReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok", "blob": "ok"}
	healthy := true

	if err := rt.db.Ping(r.Context()); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if _, err := rt.blobs.Has(r.Context(), "healthcheck"); err != nil {
		checks["blob"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, checks)
}

// agentContext is everything an agent needs to run: its identity, the user
// it is bound to (null while unbound), its current monitoring
// configuration, and the server clock for skew detection.
type agentContext struct {
	Device     *models.Device          `json:"device"`
	User       *models.UserSnapshot    `json:"user"`
	Monitoring models.MonitoringConfig `json:"monitoring"`
	ServerTime time.Time               `json:"server_time"`
}

// AgentContext returns the authenticated device's runtime context. Agents
// call it on startup and after configuration-change hints.
func (rt *Router) AgentContext(w http.ResponseWriter, r *http.Request) {
	device := deviceFromContext(r.Context())
	var user *models.UserSnapshot
	if device.BoundUser.ID != "" {
		bound := device.BoundUser
		user = &bound
	}
	respondJSON(w, http.StatusOK, agentContext{
		Device:     device,
		User:       user,
		Monitoring: device.Monitoring,
		ServerTime: time.Now().UTC(),
	})
}
