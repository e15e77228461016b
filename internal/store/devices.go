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
	"time"

	"github.com/fleetlens/fleetlens/internal/models"
)

const deviceColumns = `id, org_id, hostname, os, agent_version,
	user_id, user_name, user_role, status, last_heartbeat, ip_address,
	heartbeat_interval_seconds, recording_segment_seconds,
	screen_capture_enabled, live_stream_enabled, idle_threshold_minutes,
	created_at, updated_at`

// FindOrCreateDevice returns the device bound to (userID, hostname),
// creating it from candidate when no row exists. The insert races safely:
// ON CONFLICT DO NOTHING plus the (user_id, hostname) unique constraint lets
// concurrent duplicate enrollments converge on a single row.
func (db *DB) FindOrCreateDevice(ctx context.Context, candidate *models.Device) (*models.Device, error) {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO devices (
			id, org_id, hostname, os, agent_version,
			user_id, user_name, user_role, status, last_heartbeat, ip_address,
			heartbeat_interval_seconds, recording_segment_seconds,
			screen_capture_enabled, live_stream_enabled, idle_threshold_minutes,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, hostname) DO NOTHING`,
		candidate.ID, candidate.OrgID, candidate.Hostname, candidate.OS, candidate.AgentVersion,
		candidate.BoundUser.ID, candidate.BoundUser.Name, candidate.BoundUser.Role,
		string(candidate.Status), candidate.IPAddress,
		candidate.Monitoring.HeartbeatIntervalSeconds, candidate.Monitoring.RecordingSegmentSeconds,
		candidate.Monitoring.ScreenCaptureEnabled, candidate.Monitoring.LiveStreamEnabled,
		candidate.Monitoring.IdleThresholdMinutes,
		candidate.CreatedAt, candidate.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert device: %w", err)
	}

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE user_id = ? AND hostname = ?`,
		candidate.BoundUser.ID, candidate.Hostname)
	device, err := scanDevice(row)
	if err != nil {
		return nil, fmt.Errorf("select device after upsert: %w", err)
	}
	return device, nil
}

// GetDevice returns a device by ID, or ErrNotFound.
func (db *DB) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	device, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get device %s: %w", id, err)
	}
	return device, nil
}

// UpdateDeviceEnrollment refreshes the agent-reported identity fields on
// re-enrollment of an existing device.
func (db *DB) UpdateDeviceEnrollment(ctx context.Context, id, os, agentVersion, ip string, now time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE devices SET os = ?, agent_version = ?, ip_address = ?, updated_at = ?
		WHERE id = ?`,
		os, agentVersion, ip, now, id)
	if err != nil {
		return fmt.Errorf("update device enrollment %s: %w", id, err)
	}
	return nil
}

// UpdateDeviceLiveness applies the heartbeat-derived state: status, last
// heartbeat timestamp, and reported IP.
func (db *DB) UpdateDeviceLiveness(ctx context.Context, id string, status models.DeviceStatus, lastHeartbeat time.Time, ip string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE devices SET status = ?, last_heartbeat = ?, ip_address = ?, updated_at = ?
		WHERE id = ?`,
		string(status), lastHeartbeat, ip, lastHeartbeat, id)
	if err != nil {
		return fmt.Errorf("update device liveness %s: %w", id, err)
	}
	return nil
}

// ListDevices returns all devices for an organization, newest first.
func (db *DB) ListDevices(ctx context.Context, orgID string) ([]models.Device, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE org_id = ? ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer closeQuietly(rows)

	var devices []models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, *device)
	}
	return devices, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*models.Device, error) {
	var (
		device        models.Device
		status        string
		lastHeartbeat sql.NullTime
	)
	err := s.Scan(
		&device.ID, &device.OrgID, &device.Hostname, &device.OS, &device.AgentVersion,
		&device.BoundUser.ID, &device.BoundUser.Name, &device.BoundUser.Role,
		&status, &lastHeartbeat, &device.IPAddress,
		&device.Monitoring.HeartbeatIntervalSeconds, &device.Monitoring.RecordingSegmentSeconds,
		&device.Monitoring.ScreenCaptureEnabled, &device.Monitoring.LiveStreamEnabled,
		&device.Monitoring.IdleThresholdMinutes,
		&device.CreatedAt, &device.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	device.Status = models.DeviceStatus(status)
	if lastHeartbeat.Valid {
		t := lastHeartbeat.Time
		device.LastHeartbeat = &t
	}
	return &device, nil
}
