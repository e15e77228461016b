// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/fleetlens/fleetlens/internal/identity"
	"github.com/fleetlens/fleetlens/internal/models"
	"github.com/fleetlens/fleetlens/internal/recording"
)

// heartbeatResponse is the ingest acknowledgement. RenewedToken is present
// only when this heartbeat triggered an opportunistic token renewal; the
// agent must atomically replace its stored credential.
type heartbeatResponse struct {
	DeviceID     string                  `json:"device_id"`
	Status       models.DeviceStatus     `json:"status"`
	Monitoring   models.MonitoringConfig `json:"monitoring"`
	RenewedToken *identity.IssuedToken   `json:"renewed_token,omitempty"`
}

// IngestHeartbeat accepts one telemetry heartbeat from an authenticated
// device. Malformed numeric fields never fail the request; they are
// sanitized to safe defaults.
func (rt *Router) IngestHeartbeat(w http.ResponseWriter, r *http.Request) {
	device := deviceFromContext(r.Context())

	var payload models.HeartbeatPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	result, err := rt.telemetry.Ingest(r.Context(), device, &payload)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, heartbeatResponse{
		DeviceID:     device.ID,
		Status:       device.Status,
		Monitoring:   device.Monitoring,
		RenewedToken: result.RenewedToken,
	})
}

// IngestRecording accepts a device-encoded video segment as multipart form
// data: a "video" file part plus start_time, end_time, duration_seconds and
// the optional idle-period fields.
func (rt *Router) IngestRecording(w http.ResponseWriter, r *http.Request) {
	device := deviceFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "upload exceeds the size limit", nil)
			return
		}
		respondError(w, http.StatusBadRequest, "BAD_MULTIPART", "request is not valid multipart form data", nil)
		return
	}

	file, _, err := r.FormFile("video")
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "missing video part", nil)
		return
	}
	defer func() { _ = file.Close() }()

	video, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_UPLOAD", "could not read video part", err)
		return
	}

	meta, ok := uploadMetadataFromForm(w, r)
	if !ok {
		return
	}

	rec, err := rt.recording.IngestVideo(r.Context(), device, video, meta)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

// uploadMetadataFromForm reads the upload's accompanying form fields:
// start_time, end_time, duration_seconds, and the optional is_idle_period
// and idle_start_offset. A "metadata" JSON part is accepted as an
// alternative carrier for the same fields.
func uploadMetadataFromForm(w http.ResponseWriter, r *http.Request) (recording.UploadMetadata, bool) {
	var meta recording.UploadMetadata
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "metadata part is not valid JSON", nil)
			return meta, false
		}
	}

	if v := r.FormValue("start_time"); v != "" {
		meta.SegmentStart = v
	}
	if v := r.FormValue("end_time"); v != "" {
		meta.SegmentEnd = v
	}
	if v := r.FormValue("duration_seconds"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "duration_seconds is not a number", nil)
			return meta, false
		}
		meta.DurationSeconds = f
	}
	if v := r.FormValue("is_idle_period"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "is_idle_period is not a boolean", nil)
			return meta, false
		}
		meta.IsIdlePeriod = b
	}
	if v := r.FormValue("idle_start_offset"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "idle_start_offset is not a number", nil)
			return meta, false
		}
		meta.IdleStartOffset = f
	}
	return meta, true
}

// encodeFramesRequest is a raw frame batch for server-side encoding.
type encodeFramesRequest struct {
	Frames   []string              `json:"frames"`
	Metadata models.EncodeMetadata `json:"metadata"`
}

// EncodeFrames encodes a batch of base64 JPEG frames into a stored video
// segment.
func (rt *Router) EncodeFrames(w http.ResponseWriter, r *http.Request) {
	device := deviceFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	var req encodeFramesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Frames) == 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "frames must not be empty", nil)
		return
	}

	result, err := rt.recording.EncodeSegment(r.Context(), device, req.Frames, req.Metadata)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}
