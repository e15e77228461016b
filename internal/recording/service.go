// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package recording

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fleetlens/fleetlens/internal/blob"
	"github.com/fleetlens/fleetlens/internal/hub"
	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/metrics"
	"github.com/fleetlens/fleetlens/internal/models"
	"github.com/fleetlens/fleetlens/internal/store"
)

// Config holds the recording service settings not owned by the encoder.
type Config struct {
	// EncoderBinary is reused for thumbnail extraction from uploaded video.
	EncoderBinary string

	// ThumbnailTimeout bounds first-frame extraction; a timeout degrades
	// the recording to thumbnail-less rather than failing the ingest.
	ThumbnailTimeout time.Duration
}

// Service stores finished video segments. Two ingest paths converge here:
// device-side encoded uploads and server-side encoding of raw frame
// batches. Both resolve content-addressed keys from the final video bytes,
// persist metadata, and announce the segment on the broadcast hub.
type Service struct {
	db          *store.DB
	blobs       blob.ContentStore
	broadcaster hub.Broadcaster
	encoder     RawFramesToVideo
	validate    *validator.Validate
	cfg         Config
	now         func() time.Time
}

// NewService creates the recording service. now may be nil for wall-clock
// time.
func NewService(db *store.DB, blobs blob.ContentStore, broadcaster hub.Broadcaster, encoder RawFramesToVideo, cfg Config, now func() time.Time) *Service {
	if cfg.EncoderBinary == "" {
		cfg.EncoderBinary = "ffmpeg"
	}
	if cfg.ThumbnailTimeout <= 0 {
		cfg.ThumbnailTimeout = 10 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:          db,
		blobs:       blobs,
		broadcaster: broadcaster,
		encoder:     encoder,
		validate:    validator.New(),
		cfg:         cfg,
		now:         now,
	}
}

// UploadMetadata accompanies a device-encoded video upload.
type UploadMetadata struct {
	SegmentStart    string  `json:"segment_start" validate:"required"`
	SegmentEnd      string  `json:"segment_end" validate:"required"`
	DurationSeconds float64 `json:"duration_seconds" validate:"required"`

	IsIdlePeriod    bool    `json:"is_idle_period,omitempty"`
	IdleStartOffset float64 `json:"idle_start_offset,omitempty"`
}

// IngestVideo stores a video segment the device encoded itself. The
// thumbnail is extracted from the uploaded video on a best-effort basis.
func (s *Service) IngestVideo(ctx context.Context, device *models.Device, video []byte, meta UploadMetadata) (*models.Recording, error) {
	if len(video) == 0 {
		return nil, fmt.Errorf("%w: empty video upload", ErrValidationFailed)
	}
	if err := s.validate.Struct(meta); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	startedAt, err := parseTimestamp(meta.SegmentStart)
	if err != nil {
		return nil, fmt.Errorf("segment_start: %w", err)
	}
	endedAt, err := parseTimestamp(meta.SegmentEnd)
	if err != nil {
		return nil, fmt.Errorf("segment_end: %w", err)
	}

	var thumb []byte
	if thumb, err = extractThumbnail(ctx, s.cfg.EncoderBinary, video, s.cfg.ThumbnailTimeout); err != nil {
		metrics.ThumbnailFailures.Inc()
		logging.Warn().Err(err).Str("device_id", device.ID).Msg("thumbnail extraction failed, storing recording without thumbnail")
		thumb = nil
	}

	rec, err := s.finalizeRecording(ctx, device, video, thumb, segment{
		startedAt:       startedAt,
		endedAt:         endedAt,
		durationSeconds: meta.DurationSeconds,
		isIdlePeriod:    meta.IsIdlePeriod,
		idleStartOffset: meta.IdleStartOffset,
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordingsStored.WithLabelValues("upload").Inc()
	return rec, nil
}

// EncodeResult reports a successful server-side encode.
type EncodeResult struct {
	Recording *models.Recording `json:"recording"`
	BlobKey   string            `json:"blob_key"`
	ThumbKey  string            `json:"thumb_key,omitempty"`
}

// EncodeSegment encodes a raw frame batch into a video segment and stores
// it. Individually corrupt frames are skipped; the encode fails only when
// no frame in the batch decodes, in which case the external encoder is
// never invoked. The thumbnail is the first decoded frame.
func (s *Service) EncodeSegment(ctx context.Context, device *models.Device, frames []string, meta models.EncodeMetadata) (*EncodeResult, error) {
	if err := s.validate.Struct(meta); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	startedAt, err := parseTimestamp(meta.SegmentStart)
	if err != nil {
		return nil, fmt.Errorf("segment_start: %w", err)
	}
	endedAt, err := parseTimestamp(meta.SegmentEnd)
	if err != nil {
		return nil, fmt.Errorf("segment_end: %w", err)
	}

	decoded := decodeFrames(frames)
	if len(decoded) == 0 {
		metrics.EncodeFailures.WithLabelValues("no_frames").Inc()
		return nil, fmt.Errorf("%w: no decodable frames in batch of %d", ErrEncodingFailed, len(frames))
	}
	if dropped := len(frames) - len(decoded); dropped > 0 {
		logging.Warn().Str("device_id", device.ID).Str("segment_id", meta.SegmentID).
			Int("dropped", dropped).Int("kept", len(decoded)).Msg("corrupt frames skipped")
	}

	jpegs := make([][]byte, len(decoded))
	for i, frame := range decoded {
		jpegs[i] = frame.jpegBytes
	}

	started := s.now()
	video, err := s.encoder.Encode(ctx, jpegs, decoded[0].width, decoded[0].height)
	if err != nil {
		metrics.EncodeFailures.WithLabelValues("encoder").Inc()
		return nil, err
	}
	metrics.EncodeDuration.Observe(time.Since(started).Seconds())

	rec, err := s.finalizeRecording(ctx, device, video, decoded[0].jpegBytes, segment{
		startedAt:       startedAt,
		endedAt:         endedAt,
		durationSeconds: meta.DurationSeconds,
		isIdlePeriod:    meta.IsIdlePeriod,
		idleStartOffset: meta.IdleStartOffset,
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordingsStored.WithLabelValues("encode").Inc()
	return &EncodeResult{Recording: rec, BlobKey: rec.BlobKey, ThumbKey: rec.ThumbKey}, nil
}

// segment is the path-independent description finalizeRecording persists.
type segment struct {
	startedAt       time.Time
	endedAt         time.Time
	durationSeconds float64
	isIdlePeriod    bool
	idleStartOffset float64
}

// finalizeRecording is the shared tail of both ingest paths: derive the
// content-addressed keys from the final video bytes, store the blob and the
// optional thumbnail, persist metadata, and announce the segment. A nil
// thumb stores the recording without one.
func (s *Service) finalizeRecording(ctx context.Context, device *models.Device, video, thumb []byte, seg segment) (*models.Recording, error) {
	contentHash := blob.HashBytes(video)
	blobKey := blob.VideoKey(device.OrgID, device.ID, seg.startedAt, contentHash)

	if err := s.blobs.Put(ctx, blobKey, video); err != nil {
		return nil, fmt.Errorf("store video blob: %w", err)
	}

	thumbKey := ""
	if thumb != nil {
		key := blob.ThumbKey(device.OrgID, device.ID, seg.startedAt, contentHash)
		if err := s.blobs.Put(ctx, key, thumb); err != nil {
			metrics.ThumbnailFailures.Inc()
			logging.Warn().Err(err).Str("device_id", device.ID).Msg("thumbnail store failed, keeping recording")
		} else {
			thumbKey = key
		}
	}

	rec := &models.Recording{
		ID:              uuid.NewString(),
		DeviceID:        device.ID,
		OrgID:           device.OrgID,
		ContentHash:     contentHash,
		BlobKey:         blobKey,
		ThumbKey:        thumbKey,
		StartedAt:       seg.startedAt.UTC(),
		EndedAt:         seg.endedAt.UTC(),
		DurationSeconds: seg.durationSeconds,
		IsIdlePeriod:    seg.isIdlePeriod,
		IdleStartOffset: seg.idleStartOffset,
		User:            device.BoundUser,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.db.InsertRecording(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist recording: %w", err)
	}

	event := models.Event{Type: models.EventRecordingUpdate, DeviceID: device.ID, Data: rec}
	s.broadcaster.Publish(hub.TopicMonitoring, event)
	s.broadcaster.Publish(hub.DeviceTopic(device.ID), event)

	logging.Info().Str("device_id", device.ID).Str("blob_key", blobKey).
		Float64("duration_s", seg.durationSeconds).Bool("idle", seg.isIdlePeriod).
		Msg("recording stored")
	return rec, nil
}
