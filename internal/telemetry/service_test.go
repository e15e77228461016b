// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fleetlens/fleetlens/internal/hub"
	"github.com/fleetlens/fleetlens/internal/identity"
	"github.com/fleetlens/fleetlens/internal/models"
	"github.com/fleetlens/fleetlens/internal/store"
)

// captureBroadcaster records published events for assertions.
type captureBroadcaster struct {
	mu     sync.Mutex
	events map[string][]models.Event
}

func newCaptureBroadcaster() *captureBroadcaster {
	return &captureBroadcaster{events: make(map[string][]models.Event)}
}

func (b *captureBroadcaster) Publish(topic string, event models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[topic] = append(b.events[topic], event)
}

func (b *captureBroadcaster) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events[topic])
}

func setupIngest(t *testing.T) (*Service, *store.DB, *captureBroadcaster, *models.Device) {
	t.Helper()
	db, err := store.Open(store.Config{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	directory := identity.StaticDirectory{
		"user-1": {ID: "user-1", Name: "Dana", Role: "admin"},
	}
	ids, err := identity.NewService(db, directory, identity.Config{
		EnrollmentSecret: "0123456789abcdef0123456789abcdef",
	}, nil)
	if err != nil {
		t.Fatalf("create identity service: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	candidate := &models.Device{
		ID:         "dev-1",
		OrgID:      "org-1",
		Hostname:   "wkst-01",
		OS:         "linux",
		BoundUser:  models.UserSnapshot{ID: "user-1", Name: "Dana", Role: "admin"},
		Status:     models.StatusOffline,
		Monitoring: models.DefaultMonitoringConfig(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	device, err := db.FindOrCreateDevice(context.Background(), candidate)
	if err != nil {
		t.Fatalf("create device: %v", err)
	}

	broadcaster := newCaptureBroadcaster()
	svc := NewService(db, ids, broadcaster, nil, func() time.Time { return now })
	return svc, db, broadcaster, device
}

func TestIngestPersistsAndBroadcasts(t *testing.T) {
	svc, db, broadcaster, device := setupIngest(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, device, &models.HeartbeatPayload{
		CPUPercent:   150.0,
		ActiveWindow: "editor",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	hb, err := db.LatestHeartbeat(ctx, device.ID)
	if err != nil {
		t.Fatalf("latest heartbeat: %v", err)
	}
	if hb.CPUPercent != 100 {
		t.Errorf("persisted CPUPercent = %v, want clamped 100", hb.CPUPercent)
	}
	if hb.User.ID != "user-1" {
		t.Errorf("heartbeat user snapshot = %s, want user-1", hb.User.ID)
	}

	if got := broadcaster.count(hub.TopicMonitoring); got != 1 {
		t.Errorf("monitoring topic events = %d, want 1", got)
	}
	if got := broadcaster.count(hub.DeviceTopic(device.ID)); got != 1 {
		t.Errorf("device topic events = %d, want 1", got)
	}
}

func TestIngestDerivesStatus(t *testing.T) {
	tests := []struct {
		name   string
		locked bool
		want   models.DeviceStatus
	}{
		{"unlocked heartbeat is online", false, models.StatusOnline},
		{"locked heartbeat is idle", true, models.StatusIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db, _, device := setupIngest(t)
			ctx := context.Background()

			if _, err := svc.Ingest(ctx, device, &models.HeartbeatPayload{IsLocked: tt.locked}); err != nil {
				t.Fatalf("ingest: %v", err)
			}

			stored, err := db.GetDevice(ctx, device.ID)
			if err != nil {
				t.Fatalf("get device: %v", err)
			}
			if stored.Status != tt.want {
				t.Errorf("status = %s, want %s", stored.Status, tt.want)
			}
			if stored.LastHeartbeat == nil {
				t.Error("last heartbeat should be set")
			}
		})
	}
}

func TestIngestRaisesIdleAlert(t *testing.T) {
	svc, db, broadcaster, device := setupIngest(t)
	ctx := context.Background()

	threshold := float64(device.Monitoring.IdleThresholdMinutes)
	if _, err := svc.Ingest(ctx, device, &models.HeartbeatPayload{IdleMinutes: threshold + 5}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	alerts, err := db.ListOpenIdleAlerts(ctx, device.ID)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("open alerts = %d, want 1", len(alerts))
	}
	if alerts[0].IdleMinutes != threshold+5 {
		t.Errorf("alert idle minutes = %v, want %v", alerts[0].IdleMinutes, threshold+5)
	}

	// Device feed carries both the heartbeat and the alert.
	if got := broadcaster.count(hub.DeviceTopic(device.ID)); got != 2 {
		t.Errorf("device topic events = %d, want 2", got)
	}
}

func TestIngestBelowThresholdNoAlert(t *testing.T) {
	svc, db, _, device := setupIngest(t)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, device, &models.HeartbeatPayload{IdleMinutes: 1.0}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	alerts, err := db.ListOpenIdleAlerts(ctx, device.ID)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("open alerts = %d, want 0", len(alerts))
	}
}

func TestIngestExplicitIdleFlag(t *testing.T) {
	svc, db, _, device := setupIngest(t)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, device, &models.HeartbeatPayload{IdleAlert: true, IdleMinutes: 2.0}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	alerts, err := db.ListOpenIdleAlerts(ctx, device.ID)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Errorf("open alerts = %d, want 1 for an explicit idle flag", len(alerts))
	}
}
