// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetlens/fleetlens/internal/hub"
	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/metrics"
)

// session wraps one websocket connection with a buffered outbound queue and
// the standard write pump. Sends are fire-and-forget: when the queue is
// full the payload is dropped, because a slow dashboard must never back up
// into the hub.
type session struct {
	conn  *websocket.Conn
	class string
	send  chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(conn *websocket.Conn, class string) *session {
	s := &session{
		conn:  conn,
		class: class,
		send:  make(chan []byte, 256),
		done:  make(chan struct{}),
	}
	go s.writePump()
	return s
}

// close tears the session down exactly once.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
		metrics.WebsocketConnections.WithLabelValues(s.class).Dec()
	})
}

// enqueue queues payload for delivery, dropping it when the client cannot
// keep up.
func (s *session) enqueue(payload []byte) {
	select {
	case s.send <- payload:
	case <-s.done:
	default:
		logging.Debug().Str("class", s.class).Msg("slow websocket client, dropping payload")
	}
}

// writePump drains the send queue and keeps the connection alive with
// pings, mirroring gorilla's recommended single-writer layout.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case payload := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			return
		}
	}
}

// readLoop configures read limits and deadlines and invokes handle for each
// inbound message until the peer goes away. It blocks; callers run it as
// the connection's final act.
func (s *session) readLoop(handle func(payload []byte)) {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Str("class", s.class).Msg("websocket closed unexpectedly")
			}
			return
		}
		if handle != nil {
			handle(payload)
		}
	}
}

// forward copies hub messages onto the session until the subscription's
// context ends. Each payload is already the wire form; it is passed through
// untouched.
func (s *session) forward(ctx context.Context, h *hub.Hub, topic string) error {
	ch, err := h.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	go func() {
		for msg := range ch {
			s.enqueue(msg.Payload)
			msg.Ack()
		}
	}()
	return nil
}
