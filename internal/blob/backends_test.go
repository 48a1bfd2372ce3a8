package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestDiskUploadIsReadableAtURL(t *testing.T) {
	dir := t.TempDir()
	disk, err := NewDisk(dir, "/uploads")
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	data := []byte("hello disk")
	stored, err := disk.Upload(context.Background(), Object{Data: data, FileName: "notes.txt", MimeType: "text/plain"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(stored.URL, "/uploads/") || !strings.HasSuffix(stored.URL, ".txt") {
		t.Fatalf("unexpected url %q", stored.URL)
	}
	onDisk, err := os.ReadFile(filepath.Join(dir, path.Base(stored.URL)))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(onDisk) != string(data) {
		t.Fatalf("stored bytes differ: %q", onDisk)
	}
	sum := sha256.Sum256(data)
	if stored.SHA256 != hex.EncodeToString(sum[:]) {
		t.Fatalf("sha mismatch: %s", stored.SHA256)
	}
	if stored.Size != int64(len(data)) || stored.Backend != BackendDisk {
		t.Fatalf("unexpected stored record: %+v", stored)
	}

	again, err := disk.Upload(context.Background(), Object{Data: data, FileName: "notes.txt"})
	if err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	if again.URL == stored.URL {
		t.Fatalf("identical uploads must not collide")
	}
	entries, _ := os.ReadDir(dir)
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".upload-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestPebbleRoundTrip(t *testing.T) {
	store, err := OpenPebble(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("OpenPebble: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	data := []byte("\x89PNG fake image bytes")
	stored, err := store.Upload(ctx, Object{Data: data, FileName: "cat.png", MimeType: "image/png", Uploader: "alice"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if stored.URL != "/media/"+stored.ID {
		t.Fatalf("unexpected url %q", stored.URL)
	}

	blob, err := store.Open(ctx, stored.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(blob.Content)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("blob bytes differ")
	}
	if blob.MimeType != "image/png" || blob.FileName != "cat.png" || blob.Size != int64(len(data)) {
		t.Fatalf("unexpected blob meta: %+v", blob)
	}

	if _, err := store.Open(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
	if _, err := store.Open(ctx, "../meta"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}
}

func TestRemoteUpload(t *testing.T) {
	var gotPreset, gotName string
	var gotData []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotPreset = r.FormValue("upload_preset")
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotName = header.Filename
		gotData, _ = io.ReadAll(file)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"secure_url":"https://cdn.example.com/v1/abc.png","public_id":"abc","bytes":5}`)
	}))
	t.Cleanup(srv.Close)

	remote, err := NewRemote(srv.URL, "telechat", srv.Client())
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	stored, err := remote.Upload(context.Background(), Object{Data: []byte("hello"), FileName: "abc.png", MimeType: "image/png"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if stored.URL != "https://cdn.example.com/v1/abc.png" || stored.ID != "abc" || stored.Backend != BackendRemote {
		t.Fatalf("unexpected stored record: %+v", stored)
	}
	if gotPreset != "telechat" || gotName != "abc.png" || string(gotData) != "hello" {
		t.Fatalf("unexpected request: preset=%q name=%q data=%q", gotPreset, gotName, gotData)
	}
}

func TestRemoteUploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"Upload preset not found"}}`)
	}))
	t.Cleanup(srv.Close)

	remote, err := NewRemote(srv.URL, "missing", srv.Client())
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	_, err = remote.Upload(context.Background(), Object{Data: []byte("x")})
	if StatusOf(err) != http.StatusBadGateway {
		t.Fatalf("expected 502, got %v", err)
	}
	if !strings.Contains(err.Error(), "Upload preset not found") {
		t.Fatalf("expected upstream reason in error, got %q", err.Error())
	}
}

func TestNewRemoteRequiresEndpoint(t *testing.T) {
	if _, err := NewRemote(" ", "", nil); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}
