// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetlens/fleetlens/internal/models"
)

// InsertIdleAlert records a new unresolved idle alert.
func (db *DB) InsertIdleAlert(ctx context.Context, alert *models.IdleAlert) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO idle_alerts (id, device_id, user_id, user_name, user_role, idle_minutes, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		alert.ID, alert.DeviceID, alert.User.ID, alert.User.Name, alert.User.Role,
		alert.IdleMinutes, alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert idle alert: %w", err)
	}
	return nil
}

// ResolveIdleAlert marks an alert resolved. Resolution is an administrative
// action surfaced through the CRM.
func (db *DB) ResolveIdleAlert(ctx context.Context, id string, resolvedAt time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE idle_alerts SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`,
		resolvedAt, id)
	if err != nil {
		return fmt.Errorf("resolve idle alert %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOpenIdleAlerts returns unresolved alerts for a device, newest first.
func (db *DB) ListOpenIdleAlerts(ctx context.Context, deviceID string) ([]models.IdleAlert, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, device_id, user_id, user_name, user_role, idle_minutes, created_at
		FROM idle_alerts WHERE device_id = ? AND resolved_at IS NULL
		ORDER BY created_at DESC`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list idle alerts: %w", err)
	}
	defer closeQuietly(rows)

	var alerts []models.IdleAlert
	for rows.Next() {
		var alert models.IdleAlert
		if err := rows.Scan(&alert.ID, &alert.DeviceID, &alert.User.ID, &alert.User.Name,
			&alert.User.Role, &alert.IdleMinutes, &alert.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan idle alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}
