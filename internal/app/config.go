package app

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BackendDisk   = "disk"
	BackendPebble = "pebble"
	BackendRemote = "remote"
)

// ServerConfig defines how the HTTP/WebSocket relay should run.
type ServerConfig struct {
	Addr      string `env:"TELECHAT_ADDR" envDefault:":8080"`
	Path      string `env:"TELECHAT_PATH" envDefault:"/ws"`
	PublicDir string `env:"TELECHAT_PUBLIC_DIR" envDefault:"public"`
	DataDir   string `env:"TELECHAT_DATA_DIR"`
	DBPath    string `env:"TELECHAT_DB_PATH"`

	Backend        string `env:"TELECHAT_BLOB_BACKEND" envDefault:"disk"`
	MaxUploadBytes int64  `env:"TELECHAT_MAX_UPLOAD_BYTES" envDefault:"10485760"`
	MaxImageBytes  int64  `env:"TELECHAT_MAX_IMAGE_BYTES" envDefault:"2097152"`
	RemoteEndpoint string `env:"TELECHAT_REMOTE_ENDPOINT"`
	RemotePreset   string `env:"TELECHAT_REMOTE_PRESET"`

	SeenCacheSize int           `env:"TELECHAT_SEEN_CACHE_SIZE" envDefault:"0"`
	MessageBurst  int           `env:"TELECHAT_MESSAGE_BURST" envDefault:"5"`
	MessageWindow time.Duration `env:"TELECHAT_MESSAGE_WINDOW" envDefault:"3s"`
	UploadBurst   int           `env:"TELECHAT_UPLOAD_BURST" envDefault:"20"`
	UploadWindow  time.Duration `env:"TELECHAT_UPLOAD_WINDOW" envDefault:"1m"`
	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool `env:"TELECHAT_TRUST_PROXY" envDefault:"false"`

	Log LogConfig
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string `env:"TELECHAT_SERVER" envDefault:"ws://localhost:8080/ws"`
	Username  string `env:"TELECHAT_USER"`
	BrowseDir string `env:"TELECHAT_BROWSE_DIR"`
	LogFile   string `env:"TELECHAT_LOG_FILE"`
}

// LogConfig selects the process logger.
type LogConfig struct {
	Level  string `env:"TELECHAT_LOG_LEVEL" envDefault:"info"`
	Format string `env:"TELECHAT_LOG_FORMAT" envDefault:"auto"`
}

// LoadServerConfig reads the relay settings from the environment.
func LoadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadClientConfig reads the client settings from the environment.
func LoadClientConfig() (ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate fills derived paths and rejects settings the relay cannot run with.
func (cfg *ServerConfig) Validate() error {
	cfg.Path = NormalizeJoinPath(cfg.Path)
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "telechat.db")
	}
	if cfg.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", cfg.MaxUploadBytes)
	}
	if cfg.MaxImageBytes <= 0 || cfg.MaxImageBytes > cfg.MaxUploadBytes {
		cfg.MaxImageBytes = cfg.MaxUploadBytes
	}
	switch cfg.Backend {
	case BackendDisk, BackendPebble:
	case BackendRemote:
		if cfg.RemoteEndpoint == "" {
			return fmt.Errorf("remote backend requires TELECHAT_REMOTE_ENDPOINT")
		}
	default:
		return fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
	return nil
}

// DefaultDataDir returns a per-user directory for the ledger and the pebble store.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "telechat")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Telechat")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Telechat")
		}
		return filepath.Join(home, ".local", "share", "telechat")
	}
	return filepath.Join(".", ".telechat")
}

// NormalizeJoinPath guarantees the websocket join path starts with '/' and
// falls back to /ws when empty.
func NormalizeJoinPath(path string) string {
	if path == "" {
		return "/ws"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
