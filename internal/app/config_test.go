package app

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Path != "/ws" || cfg.Backend != BackendDisk || cfg.MaxUploadBytes != 10<<20 || cfg.MaxImageBytes != 2<<20 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.MessageWindow != 3*time.Second || cfg.UploadWindow != time.Minute {
		t.Fatalf("unexpected windows %+v", cfg)
	}
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("TELECHAT_ADDR", "127.0.0.1:9999")
	t.Setenv("TELECHAT_BLOB_BACKEND", "pebble")
	t.Setenv("TELECHAT_SEEN_CACHE_SIZE", "128")
	t.Setenv("TELECHAT_MESSAGE_WINDOW", "10s")
	t.Setenv("TELECHAT_LOG_LEVEL", "debug")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9999" || cfg.Backend != BackendPebble || cfg.SeenCacheSize != 128 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.MessageWindow != 10*time.Second || cfg.Log.Level != "debug" {
		t.Fatalf("env not applied: %+v", cfg)
	}

	t.Setenv("TELECHAT_MAX_UPLOAD_BYTES", "lots")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatalf("malformed number should fail")
	}
}

func TestServerConfigValidate(t *testing.T) {
	dataDir := t.TempDir()
	cfg := ServerConfig{Path: "chat", DataDir: dataDir, Backend: BackendDisk, MaxUploadBytes: 1 << 20, MaxImageBytes: 4 << 20}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Path != "/chat" || cfg.DBPath != filepath.Join(dataDir, "telechat.db") || cfg.MaxImageBytes != 1<<20 {
		t.Fatalf("derived fields wrong: %+v", cfg)
	}

	remote := ServerConfig{DataDir: dataDir, Backend: BackendRemote, MaxUploadBytes: 1}
	if err := remote.Validate(); err == nil {
		t.Fatalf("remote backend without endpoint should fail")
	}
	unknown := ServerConfig{DataDir: dataDir, Backend: "s3", MaxUploadBytes: 1}
	if err := unknown.Validate(); err == nil {
		t.Fatalf("unknown backend should fail")
	}
}

func TestNormalizeJoinPath(t *testing.T) {
	cases := map[string]string{"": "/ws", "join": "/join", "/ws": "/ws"}
	for in, want := range cases {
		if got := NormalizeJoinPath(in); got != want {
			t.Fatalf("NormalizeJoinPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "test").Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"component":"test"`) {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := NewLogger(LogConfig{Level: "loud"}, &buf); err == nil {
		t.Fatalf("bad level should fail")
	}
}

func TestBuildWebsocketURL(t *testing.T) {
	if got := buildWebsocketURL("127.0.0.1:4321", "ws"); got != "ws://127.0.0.1:4321/ws" {
		t.Fatalf("url = %q", got)
	}
}
