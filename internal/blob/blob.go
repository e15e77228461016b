// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

// Package blob provides the content-addressed store for video segments and
// thumbnails. Keys are derived from the stored bytes, so concurrent writes
// of identical content land on the same key and distinct content never
// collides; overwriting an existing key is always safe.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no blob exists under the requested key.
var ErrNotFound = errors.New("blob not found")

// ContentStore is the blob put/get abstraction shared by the recording and
// encoding services.
type ContentStore interface {
	// Put stores data under key, overwriting any existing value.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the blob stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Has reports whether a blob exists under key.
	Has(ctx context.Context, key string) (bool, error)

	// Delete removes the blob under key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error
}

// HashBytes returns the lowercase hex SHA-256 digest of data. It is the
// single hashing routine for content addressing; both ingest paths must
// resolve identical bytes to identical keys.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VideoKey derives the storage key for an encoded video segment:
// {org}/{device}/{date}/{sha256}.mp4 with date in UTC YYYY-MM-DD.
func VideoKey(orgID, deviceID string, day time.Time, contentHash string) string {
	return fmt.Sprintf("%s/%s/%s/%s.mp4", orgID, deviceID, day.UTC().Format("2006-01-02"), contentHash)
}

// ThumbKey derives the thumbnail key paired with a video key.
func ThumbKey(orgID, deviceID string, day time.Time, contentHash string) string {
	return fmt.Sprintf("%s/%s/%s/%s-thumb.jpg", orgID, deviceID, day.UTC().Format("2006-01-02"), contentHash)
}
