// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package gateway

import (
	"context"
	"net/http"

	"github.com/fleetlens/fleetlens/internal/hub"
	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/metrics"
	"github.com/fleetlens/fleetlens/internal/models"
)

// ServeAgentStream serves the device agent's live-stream connection. The
// API layer has already authenticated the device token and passes the
// device in; frames from the agent are relayed to the egress topic
// byte-for-byte, and control messages published by viewers flow back to
// the agent. Frames above the relay rate are dropped, not queued, because
// a live stream wants the freshest frame.
func (g *Gateway) ServeAgentStream(w http.ResponseWriter, r *http.Request, device *models.Device) {
	s, ok := g.upgrade(w, r, "agent")
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Viewer control messages (quality hints, stop requests) travel on the
	// ingress topic back to the agent.
	if err := s.forward(ctx, g.hub, hub.DeviceStreamInTopic(device.ID)); err != nil {
		logging.Error().Err(err).Str("device_id", device.ID).Msg("stream control subscribe failed")
		s.close()
		return
	}

	limiter := g.newFrameLimiter()
	outTopic := hub.DeviceStreamOutTopic(device.ID)
	logging.Info().Str("device_id", device.ID).Msg("agent stream connected")

	s.readLoop(func(payload []byte) {
		if !limiter.Allow() {
			metrics.FramesDropped.Inc()
			return
		}
		g.hub.PublishRaw(outTopic, payload)
		metrics.FramesRelayed.Inc()
	})

	logging.Info().Str("device_id", device.ID).Msg("agent stream disconnected")
}

// HandleViewer serves an admin watching one device's live stream: egress
// frames are forwarded to the viewer, and anything the viewer sends is
// published as a control message toward the agent. Multiple viewers may
// watch the same device; each gets every frame.
func (g *Gateway) HandleViewer(w http.ResponseWriter, r *http.Request, deviceID string) {
	s, ok := g.upgrade(w, r, "viewer")
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.forward(ctx, g.hub, hub.DeviceStreamOutTopic(deviceID)); err != nil {
		logging.Error().Err(err).Str("device_id", deviceID).Msg("stream feed subscribe failed")
		s.close()
		return
	}

	inTopic := hub.DeviceStreamInTopic(deviceID)
	s.readLoop(func(payload []byte) {
		g.hub.PublishRaw(inTopic, payload)
	})
}
