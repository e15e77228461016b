// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package recording

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// extractThumbnail pulls the first frame of an encoded video as a JPEG.
// MP4 inputs are not reliably seekable over stdin, so the video is spooled
// to a temporary file first. Callers treat any error as a degradation, not
// an ingest failure.
func extractThumbnail(ctx context.Context, binary string, video []byte, timeout time.Duration) ([]byte, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %q not found", ErrEncoderUnavailable, binary)
	}

	input, err := os.CreateTemp("", "fleetlens-thumb-in-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create thumbnail input: %w", err)
	}
	defer removeQuietly(input.Name())
	if _, err := input.Write(video); err != nil {
		_ = input.Close()
		return nil, fmt.Errorf("spool thumbnail input: %w", err)
	}
	if err := input.Close(); err != nil {
		return nil, fmt.Errorf("spool thumbnail input: %w", err)
	}

	output, err := os.CreateTemp("", "fleetlens-thumb-out-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("create thumbnail output: %w", err)
	}
	outputPath := output.Name()
	_ = output.Close()
	defer removeQuietly(outputPath)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", input.Name(),
		"-frames:v", "1",
		"-q:v", "4",
		"-f", "image2",
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("thumbnail extraction timed out after %s", timeout)
		}
		return nil, fmt.Errorf("thumbnail extraction exited: %w: %s", err, truncateStderr(stderr.Bytes()))
	}

	thumb, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("read thumbnail output: %w", err)
	}
	if len(thumb) == 0 {
		return nil, fmt.Errorf("thumbnail extraction produced no output")
	}
	return thumb, nil
}
