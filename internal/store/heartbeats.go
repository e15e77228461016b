// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/fleetlens/fleetlens/internal/models"
)

// InsertHeartbeat appends one immutable telemetry sample.
func (db *DB) InsertHeartbeat(ctx context.Context, hb *models.Heartbeat) error {
	topApps := hb.TopApplications
	if topApps == nil {
		topApps = map[string]float64{}
	}
	topAppsJSON, err := json.Marshal(topApps)
	if err != nil {
		return fmt.Errorf("marshal top applications: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO heartbeats (
			id, device_id, cpu_percent, memory_percent, active_window, is_locked,
			keystroke_count, mouse_click_count, keystroke_rate, mouse_click_rate,
			productivity_pct, active_minutes, idle_minutes, idle_alert,
			top_applications, user_id, user_name, user_role, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hb.ID, hb.DeviceID, hb.CPUPercent, hb.MemoryPercent, hb.ActiveWindow, hb.IsLocked,
		hb.KeystrokeCount, hb.MouseClickCount, hb.KeystrokeRate, hb.MouseClickRate,
		hb.ProductivityPct, hb.ActiveMinutes, hb.IdleMinutes, hb.IdleAlert,
		string(topAppsJSON), hb.User.ID, hb.User.Name, hb.User.Role, hb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	return nil
}

// LatestHeartbeat returns the most recent heartbeat for a device, or
// ErrNotFound when the device has never reported.
func (db *DB) LatestHeartbeat(ctx context.Context, deviceID string) (*models.Heartbeat, error) {
	var (
		hb          models.Heartbeat
		topAppsJSON string
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, device_id, cpu_percent, memory_percent, active_window, is_locked,
			keystroke_count, mouse_click_count, keystroke_rate, mouse_click_rate,
			productivity_pct, active_minutes, idle_minutes, idle_alert,
			top_applications, user_id, user_name, user_role, created_at
		FROM heartbeats WHERE device_id = ?
		ORDER BY created_at DESC LIMIT 1`, deviceID).Scan(
		&hb.ID, &hb.DeviceID, &hb.CPUPercent, &hb.MemoryPercent, &hb.ActiveWindow, &hb.IsLocked,
		&hb.KeystrokeCount, &hb.MouseClickCount, &hb.KeystrokeRate, &hb.MouseClickRate,
		&hb.ProductivityPct, &hb.ActiveMinutes, &hb.IdleMinutes, &hb.IdleAlert,
		&topAppsJSON, &hb.User.ID, &hb.User.Name, &hb.User.Role, &hb.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest heartbeat for %s: %w", deviceID, err)
	}
	if err := json.Unmarshal([]byte(topAppsJSON), &hb.TopApplications); err != nil {
		return nil, fmt.Errorf("unmarshal top applications: %w", err)
	}
	return &hb, nil
}
