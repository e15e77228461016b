// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package recording

import (
	"bytes"
	"encoding/base64"
	"image/jpeg"

	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/metrics"
)

// decodedFrame is one validated JPEG frame from a batch.
type decodedFrame struct {
	jpegBytes []byte
	width     int
	height    int
}

// decodeFrames decodes a batch of base64 JPEG strings. Individually corrupt
// frames are skipped and logged; the caller decides what an empty result
// means. Frame order is preserved for the survivors.
func decodeFrames(frames []string) []decodedFrame {
	decoded := make([]decodedFrame, 0, len(frames))
	for i, encoded := range frames {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			metrics.FramesDropped.Inc()
			logging.Debug().Int("frame", i).Err(err).Msg("skipping frame with invalid base64")
			continue
		}
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw))
		if err != nil {
			metrics.FramesDropped.Inc()
			logging.Debug().Int("frame", i).Err(err).Msg("skipping corrupt JPEG frame")
			continue
		}
		decoded = append(decoded, decodedFrame{jpegBytes: raw, width: cfg.Width, height: cfg.Height})
	}
	return decoded
}
