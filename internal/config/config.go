// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

// Package config loads FleetLens configuration with layered sources:
// struct defaults, an optional YAML file, and FLEETLENS_-prefixed
// environment variables, in ascending precedence.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the FleetLens server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Blob      BlobConfig      `koanf:"blob"`
	Security  SecurityConfig  `koanf:"security"`
	Encoder   EncoderConfig   `koanf:"encoder"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Stream    StreamConfig    `koanf:"stream"`
	Directory DirectoryConfig `koanf:"directory"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxUploadBytes bounds multipart recording uploads.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// CORSAllowedOrigins lists the dashboard origins allowed to call the
	// API cross-origin. Empty means any origin.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the database file path. Empty means in-memory (tests).
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// BlobConfig holds content store settings.
type BlobConfig struct {
	// Path is the Badger directory for video and thumbnail blobs.
	// Empty means in-memory (tests).
	Path string `koanf:"path"`

	// GCInterval is how often the value-log garbage collector runs.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// SecurityConfig holds credential settings. The enrollment and admin secrets
// are shared with the surrounding CRM, which mints admin bearer tokens.
type SecurityConfig struct {
	// EnrollmentSecret signs enrollment tokens (HS256). Min 32 chars.
	EnrollmentSecret string `koanf:"enrollment_secret"`

	// AdminSecret verifies admin bearer tokens minted by the CRM.
	AdminSecret string `koanf:"admin_secret"`

	EnrollmentTokenTTL time.Duration `koanf:"enrollment_token_ttl"`
	DeviceTokenTTL     time.Duration `koanf:"device_token_ttl"`
	RenewalThreshold   time.Duration `koanf:"renewal_threshold"`

	// JanitorInterval is how often expired device tokens are swept.
	JanitorInterval time.Duration `koanf:"janitor_interval"`
}

// EncoderConfig holds settings for the external ffmpeg invocation.
type EncoderConfig struct {
	// Binary is the encoder executable name or path.
	Binary string `koanf:"binary"`

	// Strategy selects the frame transport: "auto", "pipe", or "tempfile".
	Strategy string `koanf:"strategy"`

	FrameRate int `koanf:"frame_rate"`

	// EncodeTimeout bounds a full frame-batch encode.
	EncodeTimeout time.Duration `koanf:"encode_timeout"`

	// ThumbnailTimeout bounds first-frame thumbnail extraction.
	ThumbnailTimeout time.Duration `koanf:"thumbnail_timeout"`
}

// TelemetryConfig holds heartbeat-derived settings.
type TelemetryConfig struct {
	// OfflineAfter is how long without a heartbeat before a device is
	// considered OFFLINE by readers.
	OfflineAfter time.Duration `koanf:"offline_after"`
}

// StreamConfig holds live-stream relay settings.
type StreamConfig struct {
	// FramesPerSecond caps the relay rate per agent connection.
	FramesPerSecond float64 `koanf:"frames_per_second"`
	FrameBurst      int     `koanf:"frame_burst"`
}

// DirectoryUser is one entry in the static user directory.
type DirectoryUser struct {
	ID   string `koanf:"id"`
	Name string `koanf:"name"`
	Role string `koanf:"role"`
}

// DirectoryConfig lists the users devices may be bound to. Standalone
// deployments declare them here; deployments embedded in a CRM swap the
// directory implementation out at wiring time.
type DirectoryConfig struct {
	Users []DirectoryUser `koanf:"users"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate checks that required settings are present and sane.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if len(c.Security.EnrollmentSecret) < 32 {
		return fmt.Errorf("security.enrollment_secret must be at least 32 characters")
	}
	if len(c.Security.AdminSecret) < 32 {
		return fmt.Errorf("security.admin_secret must be at least 32 characters")
	}
	if c.Security.DeviceTokenTTL <= c.Security.RenewalThreshold {
		return fmt.Errorf("security.device_token_ttl must exceed security.renewal_threshold")
	}
	if c.Encoder.Binary == "" {
		return fmt.Errorf("encoder.binary must not be empty")
	}
	switch c.Encoder.Strategy {
	case "auto", "pipe", "tempfile":
	default:
		return fmt.Errorf("encoder.strategy must be auto, pipe, or tempfile, got %q", c.Encoder.Strategy)
	}
	if c.Encoder.FrameRate <= 0 {
		return fmt.Errorf("encoder.frame_rate must be positive")
	}
	return nil
}

// defaultConfig returns a Config with all defaults applied. These are
// overridden by the config file and then by environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8480,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  256 << 20, // 256MB
		},
		Database: DatabaseConfig{
			Path:      "/data/fleetlens.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Blob: BlobConfig{
			Path:       "/data/blobs",
			GCInterval: 10 * time.Minute,
		},
		Security: SecurityConfig{
			EnrollmentTokenTTL: 900 * time.Second,
			DeviceTokenTTL:     14 * 24 * time.Hour,
			RenewalThreshold:   7 * 24 * time.Hour,
			JanitorInterval:    time.Hour,
		},
		Encoder: EncoderConfig{
			Binary:           "ffmpeg",
			Strategy:         "auto",
			FrameRate:        10,
			EncodeTimeout:    2 * time.Minute,
			ThumbnailTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			OfflineAfter: 5 * time.Minute,
		},
		Stream: StreamConfig{
			FramesPerSecond: 30,
			FrameBurst:      60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
