// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package models

import (
	"time"
)

// HeartbeatPayload is the raw telemetry sample an agent submits. Fields are
// declared as any/loosely typed where agents in the field have historically
// sent strings, negatives, or garbage; the telemetry service coerces and
// clamps everything before persistence.
type HeartbeatPayload struct {
	CPUPercent    any `json:"cpu"`
	MemoryPercent any `json:"mem"`

	ActiveWindow string `json:"active_window"`
	IsLocked     bool   `json:"is_locked"`
	IPAddress    string `json:"ip,omitempty"`

	KeystrokeCount  any  `json:"keystroke_count,omitempty"`
	MouseClickCount any  `json:"mouse_click_count,omitempty"`
	KeystrokeRate   any  `json:"keystroke_rate,omitempty"`
	MouseClickRate  any  `json:"mouse_click_rate,omitempty"`
	ProductivityPct any  `json:"productivity_score,omitempty"`
	ActiveMinutes   any  `json:"active_minutes,omitempty"`
	IdleMinutes     any  `json:"idle_minutes,omitempty"`
	IdleAlert       bool `json:"idle_alert,omitempty"`

	// TopApplications maps application name to foreground minutes.
	TopApplications map[string]any `json:"top_applications,omitempty"`
}

// Heartbeat is an immutable, append-only telemetry sample. Every numeric
// field has already been clamped to its domain by the telemetry service.
type Heartbeat struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`

	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`

	ActiveWindow string `json:"active_window"`
	IsLocked     bool   `json:"is_locked"`

	KeystrokeCount  int64   `json:"keystroke_count"`
	MouseClickCount int64   `json:"mouse_click_count"`
	KeystrokeRate   float64 `json:"keystroke_rate"`
	MouseClickRate  float64 `json:"mouse_click_rate"`
	ProductivityPct float64 `json:"productivity_score"`
	ActiveMinutes   float64 `json:"active_minutes"`
	IdleMinutes     float64 `json:"idle_minutes"`
	IdleAlert       bool    `json:"idle_alert"`

	// TopApplications maps application name to foreground minutes, bounded
	// to ten entries with keys of at most a hundred characters.
	TopApplications map[string]float64 `json:"top_applications,omitempty"`

	User UserSnapshot `json:"user"`

	CreatedAt time.Time `json:"created_at"`
}
