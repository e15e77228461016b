// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

// Package gateway holds the websocket endpoints that connect browsers and
// device agents to the broadcast hub. Four connection classes exist:
//
//   - monitoring: admin dashboard, global event feed plus dynamic
//     per-device subscriptions
//   - detail: admin device page, one device's feed plus snapshot queries
//   - agent: device agent pushing live-stream frames
//   - viewer: admin watching one device's live stream
//
// Authentication happens before the upgrade, in the API layer. The gateway
// only moves bytes between connections and hub topics.
package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/fleetlens/fleetlens/internal/hub"
	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/metrics"
	"github.com/fleetlens/fleetlens/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB; a JPEG frame at stream quality fits
)

// Config holds gateway tunables.
type Config struct {
	// FramesPerSecond caps the rate at which one agent's frames are
	// relayed; excess frames are dropped, never buffered.
	FramesPerSecond float64

	// FrameBurst is the relay limiter's burst allowance.
	FrameBurst int

	// OfflineAfter is the reader-side staleness window for deriving
	// OFFLINE status in snapshot replies.
	OfflineAfter time.Duration
}

// Gateway serves the websocket endpoints.
type Gateway struct {
	hub *hub.Hub
	db  *store.DB
	cfg Config

	upgrader websocket.Upgrader
}

// New creates the gateway.
func New(h *hub.Hub, db *store.DB, cfg Config) *Gateway {
	if cfg.FramesPerSecond <= 0 {
		cfg.FramesPerSecond = 30
	}
	if cfg.FrameBurst <= 0 {
		cfg.FrameBurst = 60
	}
	if cfg.OfflineAfter <= 0 {
		cfg.OfflineAfter = 5 * time.Minute
	}
	return &Gateway{
		hub: h,
		db:  db,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Credentials are checked before the upgrade; the dashboard is
			// served from a separate origin in development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// upgrade performs the websocket handshake and wraps the connection for the
// named class. It replies over HTTP on failure, so callers just return.
func (g *Gateway) upgrade(w http.ResponseWriter, r *http.Request, class string) (*session, bool) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Str("class", class).Msg("websocket upgrade failed")
		return nil, false
	}
	metrics.WebsocketConnections.WithLabelValues(class).Inc()
	return newSession(conn, class), true
}

// newFrameLimiter returns the per-agent relay throttle.
func (g *Gateway) newFrameLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(g.cfg.FramesPerSecond), g.cfg.FrameBurst)
}
