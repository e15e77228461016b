// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/fleetlens/fleetlens/internal/logging"
)

// RawFramesToVideo turns an ordered JPEG frame batch into an encoded MP4.
// Two implementations exist, differing only in how frames reach the
// encoder process (temporary input file vs streamed stdin); both yield a
// byte-compatible container. Selection is a host capability decision made
// once at construction, not a correctness one.
type RawFramesToVideo interface {
	// Encode renders frames at the configured frame rate, scaled to
	// width x height. It fails with ErrEncoderUnavailable when the binary
	// cannot be located and ErrEncodingFailed on non-zero exit or timeout.
	Encode(ctx context.Context, frames [][]byte, width, height int) ([]byte, error)

	// Strategy names the frame transport, for logs.
	Strategy() string
}

// EncoderConfig holds the external encoder invocation settings.
type EncoderConfig struct {
	// Binary is the encoder executable name or absolute path.
	Binary string

	// Strategy is "auto", "pipe", or "tempfile".
	Strategy string

	FrameRate int
	Timeout   time.Duration
}

// NewEncoder selects the frame transport strategy for this host. "auto"
// probes capability: stdin streaming everywhere except Windows, whose
// console pipe handling has historically corrupted large binary streams,
// so it gets the temp-file transport.
func NewEncoder(cfg EncoderConfig) RawFramesToVideo {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}

	strategy := cfg.Strategy
	if strategy == "" || strategy == "auto" {
		if runtime.GOOS == "windows" {
			strategy = "tempfile"
		} else {
			strategy = "pipe"
		}
	}

	logging.Info().Str("binary", cfg.Binary).Str("strategy", strategy).
		Int("frame_rate", cfg.FrameRate).Msg("frame encoder configured")

	if strategy == "tempfile" {
		return &tempFileFrameEncoder{cfg: cfg}
	}
	return &pipeFrameEncoder{cfg: cfg}
}

// pipeFrameEncoder streams concatenated JPEG frames into the encoder's
// stdin while the encoder writes the container to a temporary output file.
type pipeFrameEncoder struct {
	cfg EncoderConfig
}

func (e *pipeFrameEncoder) Strategy() string { return "pipe" }

func (e *pipeFrameEncoder) Encode(ctx context.Context, frames [][]byte, width, height int) ([]byte, error) {
	return runEncoder(ctx, e.cfg, frames, width, height, "pipe:0", framesReader(frames))
}

// tempFileFrameEncoder writes the concatenated JPEG frames to a temporary
// input file first and points the encoder at it.
type tempFileFrameEncoder struct {
	cfg EncoderConfig
}

func (e *tempFileFrameEncoder) Strategy() string { return "tempfile" }

func (e *tempFileFrameEncoder) Encode(ctx context.Context, frames [][]byte, width, height int) ([]byte, error) {
	input, err := os.CreateTemp("", "fleetlens-frames-*.mjpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: create frame spool: %w", ErrEncodingFailed, err)
	}
	defer removeQuietly(input.Name())

	for _, frame := range frames {
		if _, err := input.Write(frame); err != nil {
			_ = input.Close()
			return nil, fmt.Errorf("%w: spool frames: %w", ErrEncodingFailed, err)
		}
	}
	if err := input.Close(); err != nil {
		return nil, fmt.Errorf("%w: spool frames: %w", ErrEncodingFailed, err)
	}

	return runEncoder(ctx, e.cfg, frames, width, height, input.Name(), nil)
}

// framesReader concatenates the frame batch into one MJPEG stream.
func framesReader(frames [][]byte) io.Reader {
	readers := make([]io.Reader, len(frames))
	for i, frame := range frames {
		readers[i] = bytes.NewReader(frame)
	}
	return io.MultiReader(readers...)
}

// runEncoder performs one bounded encoder invocation. The container always
// lands in a temporary output file so both transports produce identical
// bytes; MP4 needs a seekable output for the faststart pass anyway.
func runEncoder(ctx context.Context, cfg EncoderConfig, frames [][]byte, width, height int, input string, stdin io.Reader) ([]byte, error) {
	binary, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %q not found", ErrEncodingFailed, ErrEncoderUnavailable, cfg.Binary)
	}

	output, err := os.CreateTemp("", "fleetlens-encode-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("%w: create output file: %w", ErrEncodingFailed, err)
	}
	outputPath := output.Name()
	_ = output.Close()
	defer removeQuietly(outputPath)

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "image2pipe",
		"-framerate", strconv.Itoa(cfg.FrameRate),
		"-i", input,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		// The batch is nominally homogeneous; scaling to the first frame's
		// dimensions makes stray mismatched frames deterministic instead
		// of a hard failure.
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-movflags", "+faststart",
		"-f", "mp4",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	started := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: encoder timed out after %s", ErrEncodingFailed, cfg.Timeout)
		}
		return nil, fmt.Errorf("%w: encoder exited: %w: %s", ErrEncodingFailed, err, truncateStderr(stderr.Bytes()))
	}

	video, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read encoder output: %w", ErrEncodingFailed, err)
	}
	if len(video) == 0 {
		return nil, fmt.Errorf("%w: encoder produced no output", ErrEncodingFailed)
	}

	logging.Debug().Int("frames", len(frames)).Int("bytes", len(video)).
		Dur("elapsed", time.Since(started)).Msg("frame batch encoded")
	return video, nil
}

func truncateStderr(stderr []byte) string {
	const limit = 512
	if len(stderr) > limit {
		stderr = stderr[len(stderr)-limit:]
	}
	return string(bytes.TrimSpace(stderr))
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn().Err(err).Str("path", path).Msg("temp file cleanup failed")
	}
}
