package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUploadLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	upload := Upload{
		ID:       "a1",
		URL:      "/media/a1",
		FileName: "cat.png",
		MimeType: "image/png",
		SHA256:   "abc",
		Backend:  "pebble",
		Uploader: "alice",
		Size:     42,
	}
	if err := store.RecordUpload(ctx, upload); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	if err := store.RecordUpload(ctx, upload); !errors.Is(err, ErrUploadExists) {
		t.Fatalf("expected ErrUploadExists, got %v", err)
	}

	got, err := store.GetUpload(ctx, "a1")
	if err != nil {
		t.Fatalf("GetUpload: %v", err)
	}
	if got.URL != upload.URL || got.FileName != "cat.png" || got.Size != 42 || got.Uploader != "alice" {
		t.Fatalf("unexpected upload: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}

	if _, err := store.GetUpload(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecentUploadsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		err := store.RecordUpload(ctx, Upload{
			ID:        id,
			URL:       "/uploads/" + id,
			Backend:   "disk",
			Size:      int64(i + 1),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordUpload(%s): %v", id, err)
		}
	}

	recent, err := store.RecentUploads(ctx, 2)
	if err != nil {
		t.Fatalf("RecentUploads: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "third" || recent[1].ID != "second" {
		t.Fatalf("unexpected order: %+v", recent)
	}

	count, err := store.CountUploads(ctx)
	if err != nil {
		t.Fatalf("CountUploads: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 uploads, got %d", count)
	}
}

func TestRecordUploadRequiresID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := store.RecordUpload(ctx, Upload{URL: "/x"}); err == nil {
		t.Fatalf("expected error for missing id")
	}
}

func TestBuildDSN(t *testing.T) {
	cases := map[string]string{
		"telechat.db":                      "file:telechat.db?_pragma=busy_timeout=5000&_pragma=journal_mode=WAL",
		"sqlite://file:x?mode=memory":      "file:x?mode=memory&_pragma=busy_timeout=5000&_pragma=journal_mode=WAL",
		"file:/var/lib/telechat/ledger.db": "file:/var/lib/telechat/ledger.db?_pragma=busy_timeout=5000&_pragma=journal_mode=WAL",
	}
	for in, want := range cases {
		if got := buildDSN(in); got != want {
			t.Fatalf("buildDSN(%q) = %q, want %q", in, got, want)
		}
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := "sqlite://file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
