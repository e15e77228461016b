// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fleetlens/fleetlens/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

func TestHashBytesIsPure(t *testing.T) {
	data := []byte("segment bytes")
	first := HashBytes(data)
	second := HashBytes(data)
	if first != second {
		t.Errorf("identical input hashed differently: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(first))
	}
	if HashBytes([]byte("other bytes")) == first {
		t.Error("distinct input should hash differently")
	}
}

func TestKeyDerivation(t *testing.T) {
	day := time.Date(2026, 3, 1, 23, 30, 0, 0, time.FixedZone("UTC+5", 5*3600))
	hash := HashBytes([]byte("v"))

	video := VideoKey("org-1", "dev-1", day, hash)
	want := "org-1/dev-1/2026-03-01/" + hash + ".mp4"
	if video != want {
		t.Errorf("VideoKey = %s, want %s", video, want)
	}

	thumb := ThumbKey("org-1", "dev-1", day, hash)
	wantThumb := "org-1/dev-1/2026-03-01/" + hash + "-thumb.jpg"
	if thumb != wantThumb {
		t.Errorf("ThumbKey = %s, want %s", thumb, wantThumb)
	}
}

func TestKeyDateIsUTC(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC.
	local := time.Date(2026, 3, 1, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600))
	key := VideoKey("org-1", "dev-1", local, "h")
	want := "org-1/dev-1/2026-03-02/h.mp4"
	if key != want {
		t.Errorf("VideoKey = %s, want %s", key, want)
	}
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := OpenBadger("")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	data := []byte("video payload")
	if err := store.Put(ctx, "org/dev/2026-03-01/abc.mp4", data); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "org/dev/2026-03-01/abc.mp4")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("round-tripped bytes differ")
	}

	has, err := store.Has(ctx, "org/dev/2026-03-01/abc.mp4")
	if err != nil || !has {
		t.Errorf("Has = %v, %v; want true, nil", has, err)
	}

	if err := store.Delete(ctx, "org/dev/2026-03-01/abc.mp4"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "org/dev/2026-03-01/abc.mp4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: err = %v, want ErrNotFound", err)
	}
}

func TestBadgerStoreMissingKey(t *testing.T) {
	store, err := OpenBadger("")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get missing: err = %v, want ErrNotFound", err)
	}
	has, err := store.Has(ctx, "missing")
	if err != nil || has {
		t.Errorf("Has(missing) = %v, %v; want false, nil", has, err)
	}
	// Deleting a missing key is a no-op.
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Errorf("delete missing: %v", err)
	}
}

func TestPutOverwriteIsSafe(t *testing.T) {
	store, err := OpenBadger("")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	// Content addressing means an overwrite always carries identical
	// bytes; writing twice must succeed and preserve the value.
	if err := store.Put(ctx, "k", []byte("same")); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := store.Put(ctx, "k", []byte("same")); err != nil {
		t.Fatalf("second put: %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil || !bytes.Equal(got, []byte("same")) {
		t.Errorf("get after overwrite = %q, %v", got, err)
	}
}
