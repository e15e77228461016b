// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

// Package store persists the relational FleetLens entities (devices, device
// tokens, heartbeats, recordings, idle alerts) in DuckDB.
//
// Schema strategy: all columns are defined in the initial CREATE TABLE
// statements, executed idempotently at startup. Heartbeats and recordings
// are append-only; devices and tokens are mutated in place.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Config holds database settings.
type Config struct {
	// Path is the database file. Empty opens an in-memory database.
	Path      string
	MaxMemory string
	Threads   int
}

// DB wraps the DuckDB connection with the FleetLens schema applied.
type DB struct {
	conn *sql.DB
}

// Open opens the database and ensures the schema exists.
func Open(cfg Config) (*DB, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s", cfg.Path, threads, maxMemory)
	if cfg.Path == "" {
		connStr = ""
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// DuckDB is an embedded single-writer engine; a small pool avoids
	// write contention without starving concurrent readers.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(4)

	db := &DB{conn: conn}
	if err := db.createTables(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return db, nil
}

// Conn exposes the underlying connection for health checks.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping verifies database connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

func tableCreationQueries() []string {
	return []string{
		// Devices. The (user_id, hostname) unique constraint backs the
		// upsert in enrollment so concurrent duplicate enrollments converge
		// on one row.
		`CREATE TABLE IF NOT EXISTS devices (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			hostname TEXT NOT NULL,
			os TEXT NOT NULL,
			agent_version TEXT NOT NULL,
			user_id TEXT NOT NULL,
			user_name TEXT NOT NULL,
			user_role TEXT NOT NULL,
			status TEXT NOT NULL,
			last_heartbeat TIMESTAMP,
			ip_address TEXT NOT NULL DEFAULT '',
			heartbeat_interval_seconds INTEGER NOT NULL,
			recording_segment_seconds INTEGER NOT NULL,
			screen_capture_enabled BOOLEAN NOT NULL,
			live_stream_enabled BOOLEAN NOT NULL,
			idle_threshold_minutes INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, hostname)
		)`,

		// One active token per device: device_id is the primary key, so
		// renewal replaces rather than appends.
		`CREATE TABLE IF NOT EXISTS device_tokens (
			device_id TEXT PRIMARY KEY,
			token_hash TEXT NOT NULL UNIQUE,
			issued_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS heartbeats (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			cpu_percent DOUBLE NOT NULL,
			memory_percent DOUBLE NOT NULL,
			active_window TEXT NOT NULL,
			is_locked BOOLEAN NOT NULL,
			keystroke_count BIGINT NOT NULL,
			mouse_click_count BIGINT NOT NULL,
			keystroke_rate DOUBLE NOT NULL,
			mouse_click_rate DOUBLE NOT NULL,
			productivity_pct DOUBLE NOT NULL,
			active_minutes DOUBLE NOT NULL,
			idle_minutes DOUBLE NOT NULL,
			idle_alert BOOLEAN NOT NULL,
			top_applications TEXT NOT NULL DEFAULT '{}',
			user_id TEXT NOT NULL,
			user_name TEXT NOT NULL,
			user_role TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_heartbeats_device_created
			ON heartbeats (device_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS recordings (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			org_id TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			blob_key TEXT NOT NULL,
			thumb_key TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP NOT NULL,
			duration_seconds DOUBLE NOT NULL,
			is_idle_period BOOLEAN NOT NULL,
			idle_start_offset DOUBLE NOT NULL,
			user_id TEXT NOT NULL,
			user_name TEXT NOT NULL,
			user_role TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_device_created
			ON recordings (device_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS idle_alerts (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			user_name TEXT NOT NULL,
			user_role TEXT NOT NULL,
			idle_minutes DOUBLE NOT NULL,
			created_at TIMESTAMP NOT NULL,
			resolved_at TIMESTAMP
		)`,
	}
}
