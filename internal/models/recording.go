// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package models

import (
	"time"
)

// Recording is immutable metadata for one finished video segment. The blob
// and thumbnail live in the content store; BlobKey is a pure function of the
// encoded bytes, so re-ingesting identical content resolves to the same key.
type Recording struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`
	OrgID    string `json:"org_id"`

	ContentHash string `json:"content_hash"`
	BlobKey     string `json:"blob_key"`

	// ThumbKey is empty when thumbnail extraction failed; that is a logged
	// degradation, never an ingest failure.
	ThumbKey string `json:"thumb_key,omitempty"`

	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds float64   `json:"duration_seconds"`

	IsIdlePeriod    bool    `json:"is_idle_period"`
	IdleStartOffset float64 `json:"idle_start_offset"`

	User UserSnapshot `json:"user"`

	CreatedAt time.Time `json:"created_at"`
}

// EncodeMetadata describes a raw frame batch submitted for server-side
// encoding. All fields except the idle markers are required.
type EncodeMetadata struct {
	SegmentStart    string  `json:"segment_start" validate:"required"`
	SegmentEnd      string  `json:"segment_end" validate:"required"`
	SegmentIndex    *int    `json:"segment_index" validate:"required"`
	SegmentID       string  `json:"segment_id" validate:"required"`
	Date            string  `json:"date" validate:"required"`
	DurationSeconds float64 `json:"duration_seconds" validate:"required"`

	IsIdlePeriod    bool    `json:"is_idle_period,omitempty"`
	IdleStartOffset float64 `json:"idle_start_offset,omitempty"`
}
