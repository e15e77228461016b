// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package recording

import "errors"

var (
	// ErrValidationFailed is returned for malformed or missing required
	// input (unparseable timestamps, missing metadata keys, empty frame
	// lists). No side effect has occurred when it is returned.
	ErrValidationFailed = errors.New("validation failed")

	// ErrEncodingFailed is returned when a frame batch cannot be encoded:
	// every frame was corrupt, or the encoder exited non-zero or timed
	// out. No partial Recording is ever persisted.
	ErrEncodingFailed = errors.New("encoding failed")

	// ErrEncoderUnavailable is returned when the encoder binary cannot be
	// located on the host. Encode paths return it wrapped together with
	// ErrEncodingFailed so callers matching the broad class still catch it.
	ErrEncoderUnavailable = errors.New("encoder unavailable")
)
