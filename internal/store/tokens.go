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
	"io"
	"time"

	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/models"
)

// ReplaceDeviceToken installs token as the device's single active
// credential, discarding any previous one.
func (db *DB) ReplaceDeviceToken(ctx context.Context, token *models.DeviceToken) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin token replace: %w", err)
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM device_tokens WHERE device_id = ?`, token.DeviceID); err != nil {
		return fmt.Errorf("delete previous token: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO device_tokens (device_id, token_hash, issued_at, expires_at) VALUES (?, ?, ?, ?)`,
		token.DeviceID, token.TokenHash, token.IssuedAt, token.ExpiresAt); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit token replace: %w", err)
	}
	return nil
}

// GetDeviceTokenByHash looks up a token row by the SHA-256 digest of the
// presented credential.
func (db *DB) GetDeviceTokenByHash(ctx context.Context, tokenHash string) (*models.DeviceToken, error) {
	var token models.DeviceToken
	err := db.conn.QueryRowContext(ctx,
		`SELECT device_id, token_hash, issued_at, expires_at FROM device_tokens WHERE token_hash = ?`,
		tokenHash).Scan(&token.DeviceID, &token.TokenHash, &token.IssuedAt, &token.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token by hash: %w", err)
	}
	return &token, nil
}

// GetDeviceToken returns the active token for a device, or ErrNotFound.
func (db *DB) GetDeviceToken(ctx context.Context, deviceID string) (*models.DeviceToken, error) {
	var token models.DeviceToken
	err := db.conn.QueryRowContext(ctx,
		`SELECT device_id, token_hash, issued_at, expires_at FROM device_tokens WHERE device_id = ?`,
		deviceID).Scan(&token.DeviceID, &token.TokenHash, &token.IssuedAt, &token.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token for device %s: %w", deviceID, err)
	}
	return &token, nil
}

// DeleteDeviceToken removes the device's token. Missing rows are a no-op.
func (db *DB) DeleteDeviceToken(ctx context.Context, deviceID string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM device_tokens WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("delete token for device %s: %w", deviceID, err)
	}
	return nil
}

// DeleteExpiredTokens removes all tokens past expiry and returns how many
// were deleted. The janitor calls this on its sweep interval.
func (db *DB) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM device_tokens WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil //nolint:nilerr // driver may not report affected rows
	}
	return n, nil
}

func rollbackQuietly(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logging.Warn().Err(err).Msg("transaction rollback failed")
	}
}

func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
