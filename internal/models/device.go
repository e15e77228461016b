// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package models

import (
	"time"
)

// DeviceStatus is the derived liveness state of a monitored endpoint.
type DeviceStatus string

const (
	// StatusOnline means the device heartbeated recently and is unlocked.
	StatusOnline DeviceStatus = "ONLINE"

	// StatusIdle means the device heartbeated recently but reports a locked
	// or idle session.
	StatusIdle DeviceStatus = "IDLE"

	// StatusOffline means no heartbeat has arrived within the offline window.
	StatusOffline DeviceStatus = "OFFLINE"
)

// UserSnapshot is a by-value copy of the user bound to a device at write
// time. Heartbeats and recordings embed this snapshot rather than joining
// against a live user table, so rebinding a device to a different user never
// retroactively alters historical records.
type UserSnapshot struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// MonitoringConfig holds per-device agent configuration. It is returned from
// the agent context endpoint so agents self-configure their capture cadence.
type MonitoringConfig struct {
	HeartbeatIntervalSeconds int  `json:"heartbeat_interval_seconds"`
	RecordingSegmentSeconds  int  `json:"recording_segment_seconds"`
	ScreenCaptureEnabled     bool `json:"screen_capture_enabled"`
	LiveStreamEnabled        bool `json:"live_stream_enabled"`
	IdleThresholdMinutes     int  `json:"idle_threshold_minutes"`
}

// DefaultMonitoringConfig returns the configuration assigned to newly
// enrolled devices.
func DefaultMonitoringConfig() MonitoringConfig {
	return MonitoringConfig{
		HeartbeatIntervalSeconds: 60,
		RecordingSegmentSeconds:  300,
		ScreenCaptureEnabled:     true,
		LiveStreamEnabled:        false,
		IdleThresholdMinutes:     10,
	}
}

// Device represents a monitored endpoint running an agent.
//
// The user binding (BoundUser) is weak and denormalized: it captures the
// id/name/role of the current user by value. It may be rebound by
// administrative action; historical heartbeats and recordings keep their own
// snapshots.
type Device struct {
	ID           string       `json:"id"`
	OrgID        string       `json:"org_id"`
	Hostname     string       `json:"hostname"`
	OS           string       `json:"os"`
	AgentVersion string       `json:"agent_version"`
	BoundUser    UserSnapshot `json:"bound_user"`

	Status        DeviceStatus `json:"status"`
	LastHeartbeat *time.Time   `json:"last_heartbeat,omitempty"`
	IPAddress     string       `json:"ip_address,omitempty"`

	Monitoring MonitoringConfig `json:"monitoring"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveStatus derives the status a reader should display at instant
// now. The stored status is authoritative only while heartbeats are fresh;
// once the last heartbeat is older than offlineAfter the device reads as
// OFFLINE. Writers never store OFFLINE, readers derive it.
func (d *Device) EffectiveStatus(now time.Time, offlineAfter time.Duration) DeviceStatus {
	if d.LastHeartbeat == nil || now.Sub(*d.LastHeartbeat) > offlineAfter {
		return StatusOffline
	}
	return d.Status
}

// DeviceToken is the single active credential a device presents on every
// telemetry, recording, and streaming call. Renewal replaces the row; a
// device never holds more than one active token.
type DeviceToken struct {
	DeviceID string `json:"device_id"`

	// TokenHash is the SHA-256 digest of the plaintext token. The plaintext
	// is returned to the agent exactly once, at issuance.
	TokenHash string `json:"-"`

	ExpiresAt time.Time `json:"expires_at"`
	IssuedAt  time.Time `json:"issued_at"`
}

// IdleAlert records that a heartbeat reported idle time beyond the
// configured threshold. Alerts are resolved by administrative action.
type IdleAlert struct {
	ID          string       `json:"id"`
	DeviceID    string       `json:"device_id"`
	User        UserSnapshot `json:"user"`
	IdleMinutes float64      `json:"idle_minutes"`
	CreatedAt   time.Time    `json:"created_at"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`
}
