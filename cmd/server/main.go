// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

// Command server runs the FleetLens backend: device enrollment, telemetry
// ingest, recording storage and encoding, and the realtime websocket
// gateway, all behind one HTTP listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fleetlens/fleetlens/internal/api"
	"github.com/fleetlens/fleetlens/internal/blob"
	"github.com/fleetlens/fleetlens/internal/config"
	"github.com/fleetlens/fleetlens/internal/gateway"
	"github.com/fleetlens/fleetlens/internal/hub"
	"github.com/fleetlens/fleetlens/internal/identity"
	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/models"
	"github.com/fleetlens/fleetlens/internal/recording"
	"github.com/fleetlens/fleetlens/internal/store"
	"github.com/fleetlens/fleetlens/internal/supervisor"
	"github.com/fleetlens/fleetlens/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fleetlens: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logging.Info().Str("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).Msg("fleetlens starting")

	db, err := store.Open(store.Config{
		Path:      cfg.Database.Path,
		MaxMemory: cfg.Database.MaxMemory,
		Threads:   cfg.Database.Threads,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeQuietly("database", db.Close)

	blobs, err := blob.OpenBadger(cfg.Blob.Path)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	defer closeQuietly("blob store", blobs.Close)

	broadcaster := hub.New()
	defer closeQuietly("hub", broadcaster.Close)

	directory := identity.StaticDirectory{}
	for _, u := range cfg.Directory.Users {
		directory[u.ID] = models.UserSnapshot{ID: u.ID, Name: u.Name, Role: u.Role}
	}

	identityService, err := identity.NewService(db, directory, identity.Config{
		EnrollmentSecret:   cfg.Security.EnrollmentSecret,
		EnrollmentTokenTTL: cfg.Security.EnrollmentTokenTTL,
		DeviceTokenTTL:     cfg.Security.DeviceTokenTTL,
		RenewalThreshold:   cfg.Security.RenewalThreshold,
	}, nil)
	if err != nil {
		return fmt.Errorf("create identity service: %w", err)
	}

	telemetryService := telemetry.NewService(db, identityService, broadcaster, nil, nil)

	encoder := recording.NewEncoder(recording.EncoderConfig{
		Binary:    cfg.Encoder.Binary,
		Strategy:  cfg.Encoder.Strategy,
		FrameRate: cfg.Encoder.FrameRate,
		Timeout:   cfg.Encoder.EncodeTimeout,
	})
	recordingService := recording.NewService(db, blobs, broadcaster, encoder, recording.Config{
		EncoderBinary:    cfg.Encoder.Binary,
		ThumbnailTimeout: cfg.Encoder.ThumbnailTimeout,
	}, nil)

	gw := gateway.New(broadcaster, db, gateway.Config{
		FramesPerSecond: cfg.Stream.FramesPerSecond,
		FrameBurst:      cfg.Stream.FrameBurst,
		OfflineAfter:    cfg.Telemetry.OfflineAfter,
	})

	router := api.NewRouter(api.Config{
		AdminSecret:        cfg.Security.AdminSecret,
		MaxUploadBytes:     cfg.Server.MaxUploadBytes,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
	}, db, blobs, identityService, telemetryService, recordingService, gw)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddMaintenanceService(blob.NewGCService(blobs, cfg.Blob.GCInterval))
	tree.AddMaintenanceService(identity.NewJanitor(db, cfg.Security.JanitorInterval, nil))
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	logging.Info().Msg("fleetlens stopped")
	return nil
}

func closeQuietly(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logging.Warn().Err(err).Str("component", name).Msg("close failed")
	}
}
