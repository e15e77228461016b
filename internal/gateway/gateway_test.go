// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/fleetlens/fleetlens/internal/hub"
	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/models"
	"github.com/fleetlens/fleetlens/internal/store"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

func setupGateway(t *testing.T) (*Gateway, *hub.Hub, *store.DB) {
	t.Helper()
	db, err := store.Open(store.Config{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	h := hub.New()
	t.Cleanup(func() { _ = h.Close() })

	return New(h, db, Config{}), h, db
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read websocket message: %v", err)
	}
	var event models.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return event
}

func TestMonitoringReceivesGlobalFeed(t *testing.T) {
	g, h, _ := setupGateway(t)
	server := httptest.NewServer(http.HandlerFunc(g.HandleMonitoring))
	t.Cleanup(server.Close)

	conn := dial(t, server)
	time.Sleep(50 * time.Millisecond) // let the subscription attach

	h.Publish(hub.TopicMonitoring, models.Event{Type: models.EventHeartbeatUpdate, DeviceID: "dev-1"})

	event := readEvent(t, conn)
	if event.Type != models.EventHeartbeatUpdate || event.DeviceID != "dev-1" {
		t.Errorf("received %+v, want heartbeat_update for dev-1", event)
	}
}

func TestMonitoringPing(t *testing.T) {
	g, _, _ := setupGateway(t)
	server := httptest.NewServer(http.HandlerFunc(g.HandleMonitoring))
	t.Cleanup(server.Close)

	conn := dial(t, server)
	if err := conn.WriteJSON(map[string]string{"action": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	event := readEvent(t, conn)
	if event.Type != "pong" {
		t.Errorf("ping reply type = %s, want pong", event.Type)
	}
}

func TestMonitoringJoinAndLeaveDeviceFeed(t *testing.T) {
	g, h, _ := setupGateway(t)
	server := httptest.NewServer(http.HandlerFunc(g.HandleMonitoring))
	t.Cleanup(server.Close)

	conn := dial(t, server)
	if err := conn.WriteJSON(map[string]string{"action": "join", "device_id": "dev-1"}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	h.Publish(hub.DeviceTopic("dev-1"), models.Event{Type: models.EventIdleAlert, DeviceID: "dev-1"})

	event := readEvent(t, conn)
	if event.Type != models.EventIdleAlert {
		t.Errorf("joined feed event type = %s, want idle_alert", event.Type)
	}

	if err := conn.WriteJSON(map[string]string{"action": "leave", "device_id": "dev-1"}); err != nil {
		t.Fatalf("write leave: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	h.Publish(hub.DeviceTopic("dev-1"), models.Event{Type: models.EventIdleAlert, DeviceID: "dev-1"})

	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("left feed should deliver nothing")
	}
}

func TestDeviceDetailSendsSnapshotOnConnect(t *testing.T) {
	g, _, db := setupGateway(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	device, err := db.FindOrCreateDevice(context.Background(), &models.Device{
		ID:         "dev-1",
		OrgID:      "org-1",
		Hostname:   "wkst-01",
		BoundUser:  models.UserSnapshot{ID: "user-1", Name: "Dana", Role: "admin"},
		Status:     models.StatusOnline,
		Monitoring: models.DefaultMonitoringConfig(),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("create device: %v", err)
	}

	// Route through chi so the handler sees the deviceID path parameter.
	router := chi.NewRouter()
	router.Get("/ws/devices/{deviceID}", g.HandleDevice)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/devices/" + device.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	event := readEvent(t, conn)
	if event.Type != "snapshot" {
		t.Fatalf("first event type = %s, want snapshot", event.Type)
	}
	if event.DeviceID != device.ID {
		t.Errorf("snapshot device = %s, want %s", event.DeviceID, device.ID)
	}
}

func TestStreamRelayPassesFramesThrough(t *testing.T) {
	g, _, _ := setupGateway(t)

	device := &models.Device{ID: "dev-1", OrgID: "org-1"}
	agentServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.ServeAgentStream(w, r, device)
	}))
	t.Cleanup(agentServer.Close)
	viewerServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.HandleViewer(w, r, "dev-1")
	}))
	t.Cleanup(viewerServer.Close)

	viewer := dial(t, viewerServer)
	agent := dial(t, agentServer)
	time.Sleep(50 * time.Millisecond)

	frame := []byte(`{"type":"frame","data":"ZnJhbWUtYnl0ZXM="}`)
	if err := agent.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("agent write: %v", err)
	}

	_ = viewer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := viewer.ReadMessage()
	if err != nil {
		t.Fatalf("viewer read: %v", err)
	}
	if string(payload) != string(frame) {
		t.Errorf("relayed frame = %s, want unmodified %s", payload, frame)
	}
}
