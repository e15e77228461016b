// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/fleetlens/fleetlens/internal/identity"
	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/recording"
	"github.com/fleetlens/fleetlens/internal/store"
)

// apiResponse is the envelope every JSON endpoint returns.
type apiResponse struct {
	Status    string    `json:"status"`
	Data      any       `json:"data,omitempty"`
	Error     *apiError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondJSON sends a success envelope.
func respondJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, &apiResponse{
		Status:    "ok",
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// respondError sends an error envelope. The message is client-safe; err is
// only logged.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Err(err).Str("code", code).Int("status", status).Msg("api error")
	}
	writeEnvelope(w, status, &apiResponse{
		Status:    "error",
		Error:     &apiError{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
}

func writeEnvelope(w http.ResponseWriter, status int, resp *apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error().Err(err).Msg("response marshal failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("response write failed")
	}
}

// respondServiceError maps service-layer sentinel errors to HTTP statuses.
// Unrecognized errors become opaque 500s.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrTokenExpired):
		respondError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "credential has expired", nil)
	case errors.Is(err, identity.ErrAuthenticationFailed):
		respondError(w, http.StatusUnauthorized, "AUTH_FAILED", "authentication failed", nil)
	case errors.Is(err, identity.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "USER_NOT_FOUND", "signed user no longer exists", nil)
	case errors.Is(err, recording.ErrValidationFailed):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, recording.ErrEncoderUnavailable):
		respondError(w, http.StatusServiceUnavailable, "ENCODER_UNAVAILABLE", "video encoder is not available", err)
	case errors.Is(err, recording.ErrEncodingFailed):
		respondError(w, http.StatusUnprocessableEntity, "ENCODING_FAILED", err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL", "internal error", err)
	}
}

// decodeJSON decodes a request body, rejecting unknown top-level garbage
// gently: unknown fields are ignored, malformed JSON is a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_JSON", "request body is not valid JSON", nil)
		return false
	}
	return true
}
