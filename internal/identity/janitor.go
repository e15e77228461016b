// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package identity

import (
	"context"
	"time"

	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/store"
)

// Janitor is a supervised background service that sweeps expired device
// tokens. Expired tokens are also deleted lazily on authentication; the
// sweep covers devices that went dark and never present their token again.
type Janitor struct {
	db       *store.DB
	interval time.Duration
	now      func() time.Time
}

// NewJanitor creates a token janitor. now may be nil for wall-clock time.
func NewJanitor(db *store.DB, interval time.Duration, now func() time.Time) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Janitor{db: db, interval: interval, now: now}
}

// Serve implements suture.Service. It returns ctx.Err() on shutdown.
func (j *Janitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// Sweep runs one janitor pass immediately. Exported for tests.
func (j *Janitor) Sweep(ctx context.Context) {
	j.sweep(ctx)
}

func (j *Janitor) sweep(ctx context.Context) {
	deleted, err := j.db.DeleteExpiredTokens(ctx, j.now())
	if err != nil {
		logging.Warn().Err(err).Msg("expired token sweep failed")
		return
	}
	if deleted > 0 {
		logging.Info().Int64("deleted", deleted).Msg("expired device tokens swept")
	}
}

// String implements fmt.Stringer for supervisor logging.
func (j *Janitor) String() string {
	return "token-janitor"
}
