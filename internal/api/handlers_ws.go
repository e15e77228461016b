// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AgentStream upgrades the device agent's live-stream connection. The
// device token has already been authenticated; the path device must match
// the token's device, so one agent cannot publish into another's stream.
func (rt *Router) AgentStream(w http.ResponseWriter, r *http.Request) {
	device := deviceFromContext(r.Context())
	if chi.URLParam(r, "deviceID") != device.ID {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "token does not belong to this device", nil)
		return
	}
	rt.gateway.ServeAgentStream(w, r, device)
}

// ViewerStream upgrades an admin's live-stream viewing connection.
func (rt *Router) ViewerStream(w http.ResponseWriter, r *http.Request) {
	rt.gateway.HandleViewer(w, r, chi.URLParam(r, "deviceID"))
}
