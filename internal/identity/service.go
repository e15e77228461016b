// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

// Package identity manages device identity: enrollment-token issuance and
// verification, device-token issuance, authentication, and sliding renewal.
//
// Device token format: flns_dev_<base64url random secret>. Only the SHA-256
// digest is stored; the plaintext is returned to the agent exactly once per
// issuance.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/metrics"
	"github.com/fleetlens/fleetlens/internal/models"
	"github.com/fleetlens/fleetlens/internal/store"
)

const (
	// deviceTokenPrefix namespaces FleetLens device credentials.
	deviceTokenPrefix = "flns_dev_"

	// deviceTokenSecretLength is the random secret length in bytes.
	deviceTokenSecretLength = 32
)

// UserDirectory resolves the user signed into an enrollment token. It is the
// interface boundary to the surrounding CRM's user service.
type UserDirectory interface {
	LookupUser(ctx context.Context, userID string) (models.UserSnapshot, error)
}

// StaticDirectory is an in-memory UserDirectory, used in tests and
// single-tenant deployments seeded from configuration.
type StaticDirectory map[string]models.UserSnapshot

// LookupUser implements UserDirectory.
func (d StaticDirectory) LookupUser(_ context.Context, userID string) (models.UserSnapshot, error) {
	user, ok := d[userID]
	if !ok {
		return models.UserSnapshot{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return user, nil
}

// Config holds identity service settings.
type Config struct {
	EnrollmentSecret   string
	EnrollmentTokenTTL time.Duration
	DeviceTokenTTL     time.Duration
	RenewalThreshold   time.Duration
}

// Service implements device identity and token lifecycle.
type Service struct {
	db        *store.DB
	directory UserDirectory
	signer    *enrollmentSigner

	deviceTokenTTL   time.Duration
	renewalThreshold time.Duration

	now func() time.Time
}

// NewService creates the identity service. now may be nil for wall-clock
// time; tests inject a fake clock.
func NewService(db *store.DB, directory UserDirectory, cfg Config, now func() time.Time) (*Service, error) {
	if now == nil {
		now = time.Now
	}
	signer, err := newEnrollmentSigner(cfg.EnrollmentSecret, cfg.EnrollmentTokenTTL, now)
	if err != nil {
		return nil, err
	}
	deviceTokenTTL := cfg.DeviceTokenTTL
	if deviceTokenTTL <= 0 {
		deviceTokenTTL = 14 * 24 * time.Hour
	}
	renewalThreshold := cfg.RenewalThreshold
	if renewalThreshold <= 0 {
		renewalThreshold = 7 * 24 * time.Hour
	}
	return &Service{
		db:               db,
		directory:        directory,
		signer:           signer,
		deviceTokenTTL:   deviceTokenTTL,
		renewalThreshold: renewalThreshold,
		now:              now,
	}, nil
}

// EnrollmentGrant is the response to an enrollment request.
type EnrollmentGrant struct {
	Token     string `json:"enrollment_token"`
	ExpiresIn int    `json:"expires_in"`
}

// RequestEnrollment issues a short-lived, stateless enrollment token
// authorizing one device join for the requesting admin's organization. The
// reported os/hostname are advisory and only logged; binding happens at
// completion.
func (s *Service) RequestEnrollment(_ context.Context, user models.UserSnapshot, orgID, os, hostname string) (*EnrollmentGrant, error) {
	token, err := s.signer.Sign(user.ID, orgID)
	if err != nil {
		return nil, err
	}
	logging.Info().
		Str("user_id", user.ID).
		Str("org_id", orgID).
		Str("os", os).
		Str("hostname", hostname).
		Msg("enrollment token issued")
	return &EnrollmentGrant{
		Token:     token,
		ExpiresIn: int(s.signer.ttl.Seconds()),
	}, nil
}

// CompleteEnrollmentRequest carries the agent's side of enrollment.
type CompleteEnrollmentRequest struct {
	EnrollmentToken string `json:"enrollment_token" validate:"required"`
	OS              string `json:"os" validate:"required"`
	Hostname        string `json:"hostname" validate:"required"`
	AgentVersion    string `json:"agent_version" validate:"required"`
	IPAddress       string `json:"ip"`
}

// IssuedToken is a freshly minted device credential. Token is the plaintext,
// shown only here.
type IssuedToken struct {
	Token     string    `json:"device_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EnrollmentResult is the response to a completed enrollment.
type EnrollmentResult struct {
	DeviceID string `json:"device_id"`
	IssuedToken
}

// CompleteEnrollment verifies the enrollment token, resolves the signed
// user, finds or creates the Device for (user, hostname), and issues a
// fresh device token. Concurrent duplicate enrollments for the same
// (user, hostname) converge on one device row via the store's upsert.
func (s *Service) CompleteEnrollment(ctx context.Context, req CompleteEnrollmentRequest) (*EnrollmentResult, error) {
	claims, err := s.signer.Verify(req.EnrollmentToken)
	if err != nil {
		metrics.AuthFailures.WithLabelValues("enrollment_token").Inc()
		return nil, err
	}

	user, err := s.directory.LookupUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve enrolling user: %w", err)
	}

	now := s.now()
	candidate := &models.Device{
		ID:           uuid.New().String(),
		OrgID:        claims.OrgID,
		Hostname:     req.Hostname,
		OS:           req.OS,
		AgentVersion: req.AgentVersion,
		BoundUser:    user,
		Status:       models.StatusOffline,
		IPAddress:    req.IPAddress,
		Monitoring:   models.DefaultMonitoringConfig(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	device, err := s.db.FindOrCreateDevice(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("find or create device: %w", err)
	}
	if err := s.db.UpdateDeviceEnrollment(ctx, device.ID, req.OS, req.AgentVersion, req.IPAddress, now); err != nil {
		return nil, err
	}

	issued, err := s.issueDeviceToken(ctx, device.ID)
	if err != nil {
		return nil, err
	}

	metrics.EnrollmentsCompleted.Inc()
	logging.Info().
		Str("device_id", device.ID).
		Str("user_id", user.ID).
		Str("hostname", req.Hostname).
		Msg("device enrolled")

	return &EnrollmentResult{DeviceID: device.ID, IssuedToken: *issued}, nil
}

// AuthenticateDeviceToken resolves a presented credential to its device.
// Unknown tokens fail with ErrAuthenticationFailed; expired tokens are
// deleted and fail with ErrTokenExpired.
func (s *Service) AuthenticateDeviceToken(ctx context.Context, token string) (*models.Device, error) {
	if token == "" {
		metrics.AuthFailures.WithLabelValues("device_token").Inc()
		return nil, ErrAuthenticationFailed
	}

	row, err := s.db.GetDeviceTokenByHash(ctx, hashDeviceToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.AuthFailures.WithLabelValues("device_token").Inc()
			return nil, ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("device token lookup: %w", err)
	}

	if !row.ExpiresAt.After(s.now()) {
		if err := s.db.DeleteDeviceToken(ctx, row.DeviceID); err != nil {
			logging.Warn().Err(err).Str("device_id", row.DeviceID).
				Msg("failed to delete expired device token")
		}
		metrics.AuthFailures.WithLabelValues("device_token").Inc()
		return nil, ErrTokenExpired
	}

	device, err := s.db.GetDevice(ctx, row.DeviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAuthenticationFailed
		}
		return nil, err
	}
	return device, nil
}

// RenewIfNearExpiry replaces the device's token when it is within the
// renewal threshold and returns the new plaintext credential; outside the
// window it returns (nil, nil). Called opportunistically from the heartbeat
// path; concurrent heartbeats racing on renewal resolve last-write-wins.
func (s *Service) RenewIfNearExpiry(ctx context.Context, deviceID string) (*IssuedToken, error) {
	current, err := s.db.GetDeviceToken(ctx, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if current.ExpiresAt.Sub(s.now()) > s.renewalThreshold {
		return nil, nil
	}

	issued, err := s.issueDeviceToken(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	metrics.TokenRenewals.Inc()
	logging.Info().Str("device_id", deviceID).Time("expires_at", issued.ExpiresAt).
		Msg("device token renewed")
	return issued, nil
}

func (s *Service) issueDeviceToken(ctx context.Context, deviceID string) (*IssuedToken, error) {
	secret := make([]byte, deviceTokenSecretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate device token secret: %w", err)
	}
	plaintext := deviceTokenPrefix + base64.RawURLEncoding.EncodeToString(secret)

	now := s.now()
	row := &models.DeviceToken{
		DeviceID:  deviceID,
		TokenHash: hashDeviceToken(plaintext),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.deviceTokenTTL),
	}
	if err := s.db.ReplaceDeviceToken(ctx, row); err != nil {
		return nil, err
	}
	return &IssuedToken{Token: plaintext, ExpiresAt: row.ExpiresAt}, nil
}

// hashDeviceToken is the at-rest digest for device credentials. SHA-256
// keeps lookup by value possible while the plaintext never touches disk.
func hashDeviceToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
