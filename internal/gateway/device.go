// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/fleetlens/fleetlens/internal/hub"
	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/models"
	"github.com/fleetlens/fleetlens/internal/store"
)

// HandleDevice serves the device-detail connection: one device's event feed
// plus an on-demand latest-state snapshot. A snapshot is pushed on connect
// so the page renders before the first live event arrives.
func (g *Gateway) HandleDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	s, ok := g.upgrade(w, r, "detail")
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.forward(ctx, g.hub, hub.DeviceTopic(deviceID)); err != nil {
		logging.Error().Err(err).Str("device_id", deviceID).Msg("device feed subscribe failed")
		s.close()
		return
	}

	g.sendSnapshot(ctx, s, deviceID)

	s.readLoop(func(payload []byte) {
		var cmd command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return
		}
		switch cmd.Action {
		case "ping":
			s.enqueue(pongPayload)
		case "snapshot":
			g.sendSnapshot(ctx, s, deviceID)
		}
	})
}

// sendSnapshot queries the device's latest persisted state and queues it on
// the session. Missing heartbeats or recordings are simply absent fields; a
// missing device yields an empty snapshot rather than an error, because the
// feed subscription is already live and the device may enroll later.
func (g *Gateway) sendSnapshot(ctx context.Context, s *session, deviceID string) {
	snapshot := models.DeviceSnapshot{}

	device, err := g.db.GetDevice(ctx, deviceID)
	switch {
	case err == nil:
		device.Status = device.EffectiveStatus(time.Now(), g.cfg.OfflineAfter)
		snapshot.Device = device
	case errors.Is(err, store.ErrNotFound):
	default:
		logging.Error().Err(err).Str("device_id", deviceID).Msg("snapshot device query failed")
		return
	}

	if hb, err := g.db.LatestHeartbeat(ctx, deviceID); err == nil {
		snapshot.Heartbeat = hb
	} else if !errors.Is(err, store.ErrNotFound) {
		logging.Error().Err(err).Str("device_id", deviceID).Msg("snapshot heartbeat query failed")
	}

	if rec, err := g.db.LatestRecording(ctx, deviceID); err == nil {
		snapshot.Recording = rec
	} else if !errors.Is(err, store.ErrNotFound) {
		logging.Error().Err(err).Str("device_id", deviceID).Msg("snapshot recording query failed")
	}

	payload, err := json.Marshal(models.Event{Type: "snapshot", DeviceID: deviceID, Data: snapshot})
	if err != nil {
		logging.Error().Err(err).Msg("snapshot marshal failed")
		return
	}
	s.enqueue(payload)
}
