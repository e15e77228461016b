// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package models

// Event types published on the broadcast hub and relayed to websocket
// clients.
const (
	EventHeartbeatUpdate = "heartbeat_update"
	EventRecordingUpdate = "recording_update"
	EventIdleAlert       = "idle_alert"
	EventFrame           = "frame"
)

// Event is the envelope carried on every hub topic. Data is kept as an
// opaque interface so the gateway can forward events without knowing their
// shape; relayed live-stream frames must pass through unmodified.
type Event struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// DeviceSnapshot answers the device-detail connection's on-demand "latest
// snapshot" query: current device state plus the most recent heartbeat and
// recording.
type DeviceSnapshot struct {
	Device    *Device    `json:"device"`
	Heartbeat *Heartbeat `json:"heartbeat,omitempty"`
	Recording *Recording `json:"recording,omitempty"`
}
