// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package api

import (
	"net/http"

	"github.com/fleetlens/fleetlens/internal/identity"
	"github.com/fleetlens/fleetlens/internal/models"
)

// enrollRequestBody is the admin's side of enrollment. os and hostname are
// advisory; the binding values arrive with the agent at completion.
type enrollRequestBody struct {
	OS       string `json:"os"`
	Hostname string `json:"hostname"`
}

// EnrollRequest issues a short-lived enrollment token for the calling
// admin's organization. The token is handed to the agent installer out of
// band.
func (rt *Router) EnrollRequest(w http.ResponseWriter, r *http.Request) {
	admin := adminFromContext(r.Context())
	if admin == nil {
		respondError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "authentication required", nil)
		return
	}

	var body enrollRequestBody
	if !decodeJSON(w, r, &body) {
		return
	}

	user := models.UserSnapshot{ID: admin.UserID, Name: admin.Name, Role: admin.Role}
	grant, err := rt.identity.RequestEnrollment(r.Context(), user, admin.OrgID, body.OS, body.Hostname)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, grant)
}

// EnrollComplete exchanges a valid enrollment token for the device identity
// and its first device token. The plaintext device token appears only in
// this response.
func (rt *Router) EnrollComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EnrollmentToken string `json:"enrollment_token" validate:"required"`
		OS              string `json:"os" validate:"required"`
		Hostname        string `json:"hostname" validate:"required"`
		AgentVersion    string `json:"agent_version" validate:"required"`
		IP              string `json:"ip"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := rt.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	result, err := rt.identity.CompleteEnrollment(r.Context(), identity.CompleteEnrollmentRequest{
		EnrollmentToken: req.EnrollmentToken,
		OS:              req.OS,
		Hostname:        req.Hostname,
		AgentVersion:    req.AgentVersion,
		IPAddress:       req.IP,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}
