// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

// Package models defines the data structures shared across FleetLens:
// devices and their tokens, heartbeat telemetry, recordings, idle alerts,
// and the events published on the broadcast hub.
package models
