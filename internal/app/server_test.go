package app

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func startTestServer(t *testing.T, backend string, mutate ...func(*ServerConfig)) (*ServerHandle, ServerConfig) {
	t.Helper()
	cfg := ServerConfig{
		Addr:           "127.0.0.1:0",
		Path:           "/ws",
		PublicDir:      t.TempDir(),
		DataDir:        t.TempDir(),
		Backend:        backend,
		MaxUploadBytes: 1 << 20,
		MaxImageBytes:  1 << 20,
		MessageBurst:   5,
		MessageWindow:  time.Second,
		UploadBurst:    10,
		UploadWindow:   time.Minute,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	handle, err := RunServer(ctx, cfg, zerolog.Nop())
	if err != nil {
		cancel()
		t.Fatalf("run server: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		if err := handle.Wait(); err != nil {
			t.Errorf("wait: %v", err)
		}
	})
	return handle, cfg
}

func TestRunServerServesRoutes(t *testing.T) {
	handle, cfg := startTestServer(t, BackendDisk)
	base := "http://" + handle.Addr()

	if err := os.WriteFile(filepath.Join(cfg.PublicDir, "index.html"), []byte("<h1>telechat</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Get(base + "/index.html")
	if err != nil {
		t.Fatalf("static: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("static status = %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var health map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health["status"] != "ok" {
		t.Fatalf("health = %v", health)
	}

	conn, _, err := websocket.DefaultDialer.Dial(buildWebsocketURL(handle.Addr(), cfg.Path), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join","data":"Alice"}`)); err != nil {
		t.Fatalf("join: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame struct {
		Type string `json:"type"`
	}
	if err := conn.ReadJSON(&frame); err != nil || frame.Type != "self-id" {
		t.Fatalf("first frame %+v, %v", frame, err)
	}
	if online := handle.Relay().Presence().Names(); len(online) != 1 || online[0] != "Alice" {
		t.Fatalf("online = %v", online)
	}
}

func TestRunServerStopClosesSessions(t *testing.T) {
	handle, cfg := startTestServer(t, BackendPebble)

	conn, _, err := websocket.DefaultDialer.Dial(buildWebsocketURL(handle.Addr(), cfg.Path), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := handle.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, "blobs")); err != nil {
		t.Fatalf("pebble dir missing: %v", err)
	}
}

func TestRunServerRejectsBadConfig(t *testing.T) {
	_, err := RunServer(context.Background(), ServerConfig{Backend: "tape", MaxUploadBytes: 1, DataDir: t.TempDir()}, zerolog.Nop())
	if err == nil || !strings.Contains(err.Error(), "tape") {
		t.Fatalf("err = %v", err)
	}
}

func postSpoofedUpload(t *testing.T, base, forwardedFor string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, base+"/upload", strings.NewReader(`{"fileName":"a.txt","data":"aGk="}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestUploadLimitIgnoresForwardedForByDefault(t *testing.T) {
	handle, _ := startTestServer(t, BackendDisk, func(cfg *ServerConfig) { cfg.UploadBurst = 1 })
	base := "http://" + handle.Addr()

	if status := postSpoofedUpload(t, base, "203.0.113.1"); status != http.StatusOK {
		t.Fatalf("first upload status = %d", status)
	}
	if status := postSpoofedUpload(t, base, "203.0.113.2"); status != http.StatusTooManyRequests {
		t.Fatalf("rotated header should not reset the limit, status = %d", status)
	}
}

func TestUploadLimitFollowsTrustedProxy(t *testing.T) {
	handle, _ := startTestServer(t, BackendDisk, func(cfg *ServerConfig) {
		cfg.UploadBurst = 1
		cfg.TrustProxy = true
	})
	base := "http://" + handle.Addr()

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		if status := postSpoofedUpload(t, base, ip); status != http.StatusOK {
			t.Fatalf("upload from %s status = %d", ip, status)
		}
	}
	if status := postSpoofedUpload(t, base, "203.0.113.1"); status != http.StatusTooManyRequests {
		t.Fatalf("repeat client status = %d", status)
	}
}
