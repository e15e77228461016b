// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

// Package telemetry ingests heartbeat samples: sanitization, persistence,
// idle alerting, device status derivation, broadcast, and opportunistic
// token renewal.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetlens/fleetlens/internal/hub"
	"github.com/fleetlens/fleetlens/internal/identity"
	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/metrics"
	"github.com/fleetlens/fleetlens/internal/models"
	"github.com/fleetlens/fleetlens/internal/store"
)

// AdminNotifier is the interface boundary to the CRM's notification
// channels. Idle alerts are forwarded there; notification failures degrade
// to a log line.
type AdminNotifier interface {
	NotifyIdleAlert(ctx context.Context, alert *models.IdleAlert) error
}

// LogNotifier is the fallback AdminNotifier when no CRM integration is
// configured.
type LogNotifier struct{}

// NotifyIdleAlert implements AdminNotifier.
func (LogNotifier) NotifyIdleAlert(_ context.Context, alert *models.IdleAlert) error {
	logging.Info().
		Str("alert_id", alert.ID).
		Str("device_id", alert.DeviceID).
		Str("user_id", alert.User.ID).
		Float64("idle_minutes", alert.IdleMinutes).
		Msg("idle alert raised")
	return nil
}

// Service ingests heartbeats for authenticated devices.
type Service struct {
	db          *store.DB
	identity    *identity.Service
	broadcaster hub.Broadcaster
	notifier    AdminNotifier
	now         func() time.Time
}

// NewService creates the telemetry service. notifier and now may be nil for
// the log notifier and wall-clock time.
func NewService(db *store.DB, ids *identity.Service, broadcaster hub.Broadcaster, notifier AdminNotifier, now func() time.Time) *Service {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{db: db, identity: ids, broadcaster: broadcaster, notifier: notifier, now: now}
}

// IngestResult reports a successful ingest. RenewedToken is non-nil only
// when the heartbeat triggered an opportunistic token renewal.
type IngestResult struct {
	RenewedToken *identity.IssuedToken
}

// Ingest persists one heartbeat for an already-authenticated device.
// Authentication happens at the transport boundary before any side effect
// here; sanitization, notification, broadcast, and renewal failures degrade
// without rejecting, while persistence failures reject the request.
func (s *Service) Ingest(ctx context.Context, device *models.Device, payload *models.HeartbeatPayload) (*IngestResult, error) {
	now := s.now()

	hb := sanitize(payload)
	hb.ID = uuid.New().String()
	hb.DeviceID = device.ID
	hb.User = device.BoundUser
	hb.CreatedAt = now

	if err := s.db.InsertHeartbeat(ctx, &hb); err != nil {
		return nil, fmt.Errorf("persist heartbeat: %w", err)
	}
	metrics.HeartbeatsIngested.Inc()

	if s.idleBeyondThreshold(device, &hb) {
		s.raiseIdleAlert(ctx, device, &hb, now)
	}

	status := models.StatusOnline
	if hb.IsLocked {
		status = models.StatusIdle
	}
	ip := payload.IPAddress
	if ip == "" {
		ip = device.IPAddress
	}
	if err := s.db.UpdateDeviceLiveness(ctx, device.ID, status, now, ip); err != nil {
		return nil, fmt.Errorf("update device liveness: %w", err)
	}

	event := models.Event{Type: models.EventHeartbeatUpdate, DeviceID: device.ID, Data: &hb}
	s.broadcaster.Publish(hub.TopicMonitoring, event)
	s.broadcaster.Publish(hub.DeviceTopic(device.ID), event)

	result := &IngestResult{}
	renewed, err := s.identity.RenewIfNearExpiry(ctx, device.ID)
	if err != nil {
		// Renewal is opportunistic; the agent retries on its next beat.
		logging.Warn().Err(err).Str("device_id", device.ID).Msg("token renewal attempt failed")
	} else {
		result.RenewedToken = renewed
	}

	return result, nil
}

// idleBeyondThreshold reports whether the sample should raise an idle
// alert: either the agent flagged it explicitly or the reported idle time
// crosses the device's configured threshold.
func (s *Service) idleBeyondThreshold(device *models.Device, hb *models.Heartbeat) bool {
	if hb.IdleAlert {
		return true
	}
	threshold := float64(device.Monitoring.IdleThresholdMinutes)
	return threshold > 0 && hb.IdleMinutes >= threshold
}

func (s *Service) raiseIdleAlert(ctx context.Context, device *models.Device, hb *models.Heartbeat, now time.Time) {
	alert := &models.IdleAlert{
		ID:          uuid.New().String(),
		DeviceID:    device.ID,
		User:        device.BoundUser,
		IdleMinutes: hb.IdleMinutes,
		CreatedAt:   now,
	}
	if err := s.db.InsertIdleAlert(ctx, alert); err != nil {
		logging.Error().Err(err).Str("device_id", device.ID).Msg("idle alert persist failed")
		return
	}
	metrics.IdleAlertsCreated.Inc()

	if err := s.notifier.NotifyIdleAlert(ctx, alert); err != nil {
		logging.Warn().Err(err).Str("alert_id", alert.ID).Msg("idle alert notification failed")
	}
	s.broadcaster.Publish(hub.DeviceTopic(device.ID),
		models.Event{Type: models.EventIdleAlert, DeviceID: device.ID, Data: alert})
}
