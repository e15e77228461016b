// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package gateway

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/fleetlens/fleetlens/internal/hub"
	"github.com/fleetlens/fleetlens/internal/logging"
)

// command is the envelope for client-to-server messages on the admin
// connection classes.
type command struct {
	Action   string `json:"action"`
	DeviceID string `json:"device_id,omitempty"`
}

var pongPayload = []byte(`{"type":"pong"}`)

// HandleMonitoring serves the dashboard connection: the global monitoring
// feed, plus per-device feeds the client joins and leaves dynamically.
// Admin authentication has already happened in the API layer.
func (g *Gateway) HandleMonitoring(w http.ResponseWriter, r *http.Request) {
	s, ok := g.upgrade(w, r, "monitoring")
	if !ok {
		return
	}

	// The request context dies with the HTTP handler once the connection
	// is hijacked, so subscriptions hang off their own context tied to the
	// connection's lifetime.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.forward(ctx, g.hub, hub.TopicMonitoring); err != nil {
		logging.Error().Err(err).Msg("monitoring feed subscribe failed")
		s.close()
		return
	}

	// joined maps device IDs to the cancel funcs of their feed
	// subscriptions. Only the read loop touches it.
	joined := make(map[string]context.CancelFunc)

	s.readLoop(func(payload []byte) {
		var cmd command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			logging.Debug().Err(err).Msg("unreadable monitoring command")
			return
		}

		switch cmd.Action {
		case "ping":
			s.enqueue(pongPayload)

		case "join":
			if cmd.DeviceID == "" {
				return
			}
			if _, already := joined[cmd.DeviceID]; already {
				return
			}
			feedCtx, feedCancel := context.WithCancel(ctx)
			if err := s.forward(feedCtx, g.hub, hub.DeviceTopic(cmd.DeviceID)); err != nil {
				feedCancel()
				logging.Error().Err(err).Str("device_id", cmd.DeviceID).Msg("device feed subscribe failed")
				return
			}
			joined[cmd.DeviceID] = feedCancel

		case "leave":
			if feedCancel, present := joined[cmd.DeviceID]; present {
				feedCancel()
				delete(joined, cmd.DeviceID)
			}

		default:
			logging.Debug().Str("action", cmd.Action).Msg("unknown monitoring command")
		}
	})
}
