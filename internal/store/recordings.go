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

	"github.com/fleetlens/fleetlens/internal/models"
)

const recordingColumns = `id, device_id, org_id, content_hash, blob_key, thumb_key,
	started_at, ended_at, duration_seconds, is_idle_period, idle_start_offset,
	user_id, user_name, user_role, created_at`

// InsertRecording appends one immutable recording row.
func (db *DB) InsertRecording(ctx context.Context, rec *models.Recording) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO recordings (
			id, device_id, org_id, content_hash, blob_key, thumb_key,
			started_at, ended_at, duration_seconds, is_idle_period, idle_start_offset,
			user_id, user_name, user_role, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DeviceID, rec.OrgID, rec.ContentHash, rec.BlobKey, rec.ThumbKey,
		rec.StartedAt, rec.EndedAt, rec.DurationSeconds, rec.IsIdlePeriod, rec.IdleStartOffset,
		rec.User.ID, rec.User.Name, rec.User.Role, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

// LatestRecording returns the most recent recording for a device, or
// ErrNotFound.
func (db *DB) LatestRecording(ctx context.Context, deviceID string) (*models.Recording, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE device_id = ?
		ORDER BY created_at DESC LIMIT 1`, deviceID)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest recording for %s: %w", deviceID, err)
	}
	return rec, nil
}

// ListRecordings returns recordings for a device, newest first, capped at
// limit.
func (db *DB) ListRecordings(ctx context.Context, deviceID string, limit int) ([]models.Recording, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE device_id = ?
		ORDER BY created_at DESC LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer closeQuietly(rows)

	var recs []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func scanRecording(s scanner) (*models.Recording, error) {
	var rec models.Recording
	err := s.Scan(
		&rec.ID, &rec.DeviceID, &rec.OrgID, &rec.ContentHash, &rec.BlobKey, &rec.ThumbKey,
		&rec.StartedAt, &rec.EndedAt, &rec.DurationSeconds, &rec.IsIdlePeriod, &rec.IdleStartOffset,
		&rec.User.ID, &rec.User.Name, &rec.User.Role, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
