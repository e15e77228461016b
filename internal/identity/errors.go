// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package identity

import "errors"

var (
	// ErrAuthenticationFailed is returned for missing, malformed, or
	// unknown credentials. Callers must reject before any side effect.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrTokenExpired is returned when a known credential is past expiry.
	// The expired device token row is deleted as part of the failed lookup.
	ErrTokenExpired = errors.New("token expired")

	// ErrUserNotFound is returned when the user signed into an enrollment
	// token cannot be resolved through the directory.
	ErrUserNotFound = errors.New("user not found")
)
