// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{})
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testDevice(id, userID, hostname string) *models.Device {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Device{
		ID:           id,
		OrgID:        "org-1",
		Hostname:     hostname,
		OS:           "linux",
		AgentVersion: "1.4.0",
		BoundUser:    models.UserSnapshot{ID: userID, Name: "Dana", Role: "admin"},
		Status:       models.StatusOffline,
		Monitoring:   models.DefaultMonitoringConfig(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestFindOrCreateDeviceConverges(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, err := db.FindOrCreateDevice(ctx, testDevice("dev-a", "user-1", "wkst-01"))
	if err != nil {
		t.Fatalf("first find-or-create: %v", err)
	}

	// Same (user, hostname) with a different candidate ID resolves to the
	// existing row.
	second, err := db.FindOrCreateDevice(ctx, testDevice("dev-b", "user-1", "wkst-01"))
	if err != nil {
		t.Fatalf("second find-or-create: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("duplicate enrollment created device %s, want %s", second.ID, first.ID)
	}

	// A different hostname is a different device.
	other, err := db.FindOrCreateDevice(ctx, testDevice("dev-c", "user-1", "wkst-02"))
	if err != nil {
		t.Fatalf("third find-or-create: %v", err)
	}
	if other.ID == first.ID {
		t.Error("distinct hostname should create a distinct device")
	}
}

func TestDeviceLivenessUpdate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	device, err := db.FindOrCreateDevice(ctx, testDevice("dev-a", "user-1", "wkst-01"))
	if err != nil {
		t.Fatalf("create device: %v", err)
	}

	beat := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	if err := db.UpdateDeviceLiveness(ctx, device.ID, models.StatusOnline, beat, "10.0.0.9"); err != nil {
		t.Fatalf("update liveness: %v", err)
	}

	stored, err := db.GetDevice(ctx, device.ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if stored.Status != models.StatusOnline {
		t.Errorf("status = %s, want ONLINE", stored.Status)
	}
	if stored.LastHeartbeat == nil || !stored.LastHeartbeat.Equal(beat) {
		t.Errorf("last heartbeat = %v, want %v", stored.LastHeartbeat, beat)
	}
	if stored.IPAddress != "10.0.0.9" {
		t.Errorf("ip = %s, want 10.0.0.9", stored.IPAddress)
	}
}

func TestGetDeviceMissing(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetDevice(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeviceTokenLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	device, err := db.FindOrCreateDevice(ctx, testDevice("dev-a", "user-1", "wkst-01"))
	if err != nil {
		t.Fatalf("create device: %v", err)
	}

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := &models.DeviceToken{
		DeviceID:  device.ID,
		TokenHash: "hash-one",
		IssuedAt:  issued,
		ExpiresAt: issued.Add(14 * 24 * time.Hour),
	}
	if err := db.ReplaceDeviceToken(ctx, first); err != nil {
		t.Fatalf("insert token: %v", err)
	}

	got, err := db.GetDeviceTokenByHash(ctx, "hash-one")
	if err != nil {
		t.Fatalf("lookup by hash: %v", err)
	}
	if got.DeviceID != device.ID {
		t.Errorf("token device = %s, want %s", got.DeviceID, device.ID)
	}

	// Replacement removes the old credential: one active token per device.
	second := &models.DeviceToken{
		DeviceID:  device.ID,
		TokenHash: "hash-two",
		IssuedAt:  issued.Add(time.Hour),
		ExpiresAt: issued.Add(15 * 24 * time.Hour),
	}
	if err := db.ReplaceDeviceToken(ctx, second); err != nil {
		t.Fatalf("replace token: %v", err)
	}
	if _, err := db.GetDeviceTokenByHash(ctx, "hash-one"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old hash lookup err = %v, want ErrNotFound", err)
	}
	if _, err := db.GetDeviceTokenByHash(ctx, "hash-two"); err != nil {
		t.Errorf("new hash lookup: %v", err)
	}
}

func TestDeleteExpiredTokens(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deviceA, _ := db.FindOrCreateDevice(ctx, testDevice("dev-a", "user-1", "wkst-01"))
	deviceB, _ := db.FindOrCreateDevice(ctx, testDevice("dev-b", "user-2", "wkst-02"))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = db.ReplaceDeviceToken(ctx, &models.DeviceToken{
		DeviceID: deviceA.ID, TokenHash: "stale", IssuedAt: now.Add(-20 * 24 * time.Hour), ExpiresAt: now.Add(-6 * 24 * time.Hour),
	})
	_ = db.ReplaceDeviceToken(ctx, &models.DeviceToken{
		DeviceID: deviceB.ID, TokenHash: "fresh", IssuedAt: now, ExpiresAt: now.Add(14 * 24 * time.Hour),
	})

	deleted, err := db.DeleteExpiredTokens(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := db.GetDeviceTokenByHash(ctx, "stale"); !errors.Is(err, ErrNotFound) {
		t.Error("stale token should be gone")
	}
	if _, err := db.GetDeviceTokenByHash(ctx, "fresh"); err != nil {
		t.Errorf("fresh token should survive: %v", err)
	}
}

func TestHeartbeatInsertAndLatest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	device, _ := db.FindOrCreateDevice(ctx, testDevice("dev-a", "user-1", "wkst-01"))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		hb := &models.Heartbeat{
			ID:              string(rune('a' + i)),
			DeviceID:        device.ID,
			CPUPercent:      float64(10 * (i + 1)),
			ActiveWindow:    "editor",
			TopApplications: map[string]float64{"editor": 12.5},
			User:            device.BoundUser,
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.InsertHeartbeat(ctx, hb); err != nil {
			t.Fatalf("insert heartbeat %d: %v", i, err)
		}
	}

	latest, err := db.LatestHeartbeat(ctx, device.ID)
	if err != nil {
		t.Fatalf("latest heartbeat: %v", err)
	}
	if latest.CPUPercent != 30 {
		t.Errorf("latest CPUPercent = %v, want 30 (newest sample)", latest.CPUPercent)
	}
	if latest.TopApplications["editor"] != 12.5 {
		t.Errorf("top applications did not survive the round trip: %v", latest.TopApplications)
	}
}

func TestRecordingInsertAndQueries(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	device, _ := db.FindOrCreateDevice(ctx, testDevice("dev-a", "user-1", "wkst-01"))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		rec := &models.Recording{
			ID:              string(rune('a' + i)),
			DeviceID:        device.ID,
			OrgID:           "org-1",
			ContentHash:     "hash",
			BlobKey:         "org-1/dev-a/2026-03-01/hash.mp4",
			StartedAt:       base.Add(time.Duration(i) * 5 * time.Minute),
			EndedAt:         base.Add(time.Duration(i+1) * 5 * time.Minute),
			DurationSeconds: 300,
			User:            device.BoundUser,
			CreatedAt:       base.Add(time.Duration(i) * 5 * time.Minute),
		}
		if err := db.InsertRecording(ctx, rec); err != nil {
			t.Fatalf("insert recording %d: %v", i, err)
		}
	}

	latest, err := db.LatestRecording(ctx, device.ID)
	if err != nil {
		t.Fatalf("latest recording: %v", err)
	}
	if latest.ID != "b" {
		t.Errorf("latest recording = %s, want b", latest.ID)
	}

	list, err := db.ListRecordings(ctx, device.ID, 10)
	if err != nil {
		t.Fatalf("list recordings: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("recordings = %d, want 2", len(list))
	}
}

func TestIdleAlertResolve(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	device, _ := db.FindOrCreateDevice(ctx, testDevice("dev-a", "user-1", "wkst-01"))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	alert := &models.IdleAlert{
		ID:          "alert-1",
		DeviceID:    device.ID,
		User:        device.BoundUser,
		IdleMinutes: 42,
		CreatedAt:   now,
	}
	if err := db.InsertIdleAlert(ctx, alert); err != nil {
		t.Fatalf("insert alert: %v", err)
	}

	open, err := db.ListOpenIdleAlerts(ctx, device.ID)
	if err != nil || len(open) != 1 {
		t.Fatalf("open alerts = %d, %v; want 1, nil", len(open), err)
	}

	if err := db.ResolveIdleAlert(ctx, "alert-1", now.Add(time.Hour)); err != nil {
		t.Fatalf("resolve alert: %v", err)
	}
	open, err = db.ListOpenIdleAlerts(ctx, device.ID)
	if err != nil || len(open) != 0 {
		t.Errorf("open alerts after resolve = %d, %v; want 0, nil", len(open), err)
	}

	if err := db.ResolveIdleAlert(ctx, "missing", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("resolving a missing alert: err = %v, want ErrNotFound", err)
	}
}
