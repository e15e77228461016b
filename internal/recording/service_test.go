// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package recording

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fleetlens/fleetlens/internal/blob"
	"github.com/fleetlens/fleetlens/internal/hub"
	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/models"
	"github.com/fleetlens/fleetlens/internal/store"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// stubEncoder counts invocations and returns canned output.
type stubEncoder struct {
	calls  int
	output []byte
	err    error
}

func (e *stubEncoder) Encode(_ context.Context, _ [][]byte, _, _ int) ([]byte, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.output, nil
}

func (e *stubEncoder) Strategy() string { return "stub" }

type captureBroadcaster struct {
	mu     sync.Mutex
	events map[string][]models.Event
}

func newCaptureBroadcaster() *captureBroadcaster {
	return &captureBroadcaster{events: make(map[string][]models.Event)}
}

func (b *captureBroadcaster) Publish(topic string, event models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[topic] = append(b.events[topic], event)
}

func (b *captureBroadcaster) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events[topic])
}

// validFrame returns a real base64-encoded JPEG.
func validFrame(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture jpeg: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func setupRecording(t *testing.T, encoder RawFramesToVideo) (*Service, *store.DB, blob.ContentStore, *captureBroadcaster, *models.Device) {
	t.Helper()
	db, err := store.Open(store.Config{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	blobs, err := blob.OpenBadger("")
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}
	t.Cleanup(func() { _ = blobs.Close() })

	broadcaster := newCaptureBroadcaster()
	svc := NewService(db, blobs, broadcaster, encoder, Config{
		// A nonexistent binary makes upload-path thumbnail extraction fail
		// fast; that is a degradation, never an ingest failure.
		EncoderBinary:    "fleetlens-no-such-encoder",
		ThumbnailTimeout: time.Second,
	}, func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })

	device := &models.Device{
		ID:        "dev-1",
		OrgID:     "org-1",
		Hostname:  "wkst-01",
		BoundUser: models.UserSnapshot{ID: "user-1", Name: "Dana", Role: "admin"},
	}
	return svc, db, blobs, broadcaster, device
}

func testMetadata() models.EncodeMetadata {
	idx := 0
	return models.EncodeMetadata{
		SegmentStart:    "2026-03-01T11:55:00Z",
		SegmentEnd:      "2026-03-01T12:00:00Z",
		SegmentIndex:    &idx,
		SegmentID:       "seg-001",
		Date:            "2026-03-01",
		DurationSeconds: 300,
	}
}

func TestEncodeSegmentSkipsCorruptFrames(t *testing.T) {
	encoder := &stubEncoder{output: []byte("encoded-video-bytes")}
	svc, db, blobs, broadcaster, device := setupRecording(t, encoder)
	ctx := context.Background()

	frames := []string{
		validFrame(t),
		"%%%not-base64%%%",
		validFrame(t),
		base64.StdEncoding.EncodeToString([]byte("not a jpeg")),
		validFrame(t),
	}

	result, err := svc.EncodeSegment(ctx, device, frames, testMetadata())
	if err != nil {
		t.Fatalf("encode segment: %v", err)
	}
	if encoder.calls != 1 {
		t.Errorf("encoder invocations = %d, want 1", encoder.calls)
	}

	stored, err := blobs.Get(ctx, result.BlobKey)
	if err != nil {
		t.Fatalf("stored video missing: %v", err)
	}
	if !bytes.Equal(stored, encoder.output) {
		t.Error("stored video differs from encoder output")
	}

	// Frame-path thumbnail is the first decoded frame.
	if result.ThumbKey == "" {
		t.Error("expected a thumbnail key")
	}

	rec, err := db.LatestRecording(ctx, device.ID)
	if err != nil {
		t.Fatalf("latest recording: %v", err)
	}
	if rec.ContentHash != blob.HashBytes(encoder.output) {
		t.Error("content hash does not match encoded bytes")
	}

	if got := broadcaster.count(hub.TopicMonitoring); got != 1 {
		t.Errorf("monitoring topic events = %d, want 1", got)
	}
	if got := broadcaster.count(hub.DeviceTopic(device.ID)); got != 1 {
		t.Errorf("device topic events = %d, want 1", got)
	}
}

func TestEncodeSegmentAllFramesCorrupt(t *testing.T) {
	encoder := &stubEncoder{output: []byte("unused")}
	svc, db, _, broadcaster, device := setupRecording(t, encoder)
	ctx := context.Background()

	frames := []string{"%%%", base64.StdEncoding.EncodeToString([]byte("garbage"))}
	_, err := svc.EncodeSegment(ctx, device, frames, testMetadata())
	if !errors.Is(err, ErrEncodingFailed) {
		t.Fatalf("err = %v, want ErrEncodingFailed", err)
	}
	if encoder.calls != 0 {
		t.Errorf("encoder invocations = %d, want 0 when nothing decodes", encoder.calls)
	}
	if _, err := db.LatestRecording(ctx, device.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("no recording should be persisted on encode failure")
	}
	if got := broadcaster.count(hub.TopicMonitoring); got != 0 {
		t.Errorf("monitoring topic events = %d, want 0", got)
	}
}

func TestEncodeSegmentMissingMetadata(t *testing.T) {
	encoder := &stubEncoder{output: []byte("unused")}
	svc, db, _, _, device := setupRecording(t, encoder)
	ctx := context.Background()

	meta := testMetadata()
	meta.SegmentID = ""

	_, err := svc.EncodeSegment(ctx, device, []string{validFrame(t)}, meta)
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("err = %v, want ErrValidationFailed", err)
	}
	if encoder.calls != 0 {
		t.Errorf("encoder invocations = %d, want 0 on validation failure", encoder.calls)
	}
	if _, err := db.LatestRecording(ctx, device.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("validation failure must leave no side effects")
	}
}

func TestEncodeSegmentEncoderFailure(t *testing.T) {
	encoder := &stubEncoder{err: ErrEncodingFailed}
	svc, db, _, _, device := setupRecording(t, encoder)
	ctx := context.Background()

	_, err := svc.EncodeSegment(ctx, device, []string{validFrame(t)}, testMetadata())
	if !errors.Is(err, ErrEncodingFailed) {
		t.Fatalf("err = %v, want ErrEncodingFailed", err)
	}
	if _, err := db.LatestRecording(ctx, device.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("no recording should be persisted when the encoder fails")
	}
}

func TestContentAddressedKeysAreDeterministic(t *testing.T) {
	encoder := &stubEncoder{output: []byte("identical-bytes")}
	svc, _, _, _, device := setupRecording(t, encoder)
	ctx := context.Background()

	first, err := svc.EncodeSegment(ctx, device, []string{validFrame(t)}, testMetadata())
	if err != nil {
		t.Fatalf("first encode: %v", err)
	}
	second, err := svc.EncodeSegment(ctx, device, []string{validFrame(t)}, testMetadata())
	if err != nil {
		t.Fatalf("second encode: %v", err)
	}
	if first.BlobKey != second.BlobKey {
		t.Errorf("identical bytes produced different keys: %s vs %s", first.BlobKey, second.BlobKey)
	}
}

func TestIngestVideoStoresWithoutThumbnail(t *testing.T) {
	svc, db, blobs, _, device := setupRecording(t, &stubEncoder{})
	ctx := context.Background()

	video := []byte("device-encoded-video")
	rec, err := svc.IngestVideo(ctx, device, video, UploadMetadata{
		SegmentStart:    "2026-03-01 11:55:00",
		SegmentEnd:      "2026-03-01 12:00:00",
		DurationSeconds: 300,
	})
	if err != nil {
		t.Fatalf("ingest video: %v", err)
	}

	// The configured encoder binary does not exist, so the thumbnail was
	// skipped while the recording went through.
	if rec.ThumbKey != "" {
		t.Errorf("thumb key = %q, want empty on extraction failure", rec.ThumbKey)
	}
	if _, err := blobs.Get(ctx, rec.BlobKey); err != nil {
		t.Fatalf("stored video missing: %v", err)
	}
	if _, err := db.LatestRecording(ctx, device.ID); err != nil {
		t.Fatalf("recording not persisted: %v", err)
	}
}

func TestIngestVideoRejectsEmptyUpload(t *testing.T) {
	svc, _, _, _, device := setupRecording(t, &stubEncoder{})
	_, err := svc.IngestVideo(context.Background(), device, nil, UploadMetadata{
		SegmentStart:    "2026-03-01T11:55:00Z",
		SegmentEnd:      "2026-03-01T12:00:00Z",
		DurationSeconds: 300,
	})
	if !errors.Is(err, ErrValidationFailed) {
		t.Errorf("err = %v, want ErrValidationFailed", err)
	}
}
