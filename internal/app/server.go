package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	intrnl "telechat/internal"
	"telechat/internal/blob"
	"telechat/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr    string
	server  *http.Server
	relay   *intrnl.Server
	stopRun context.CancelFunc
	runDone chan struct{}
	closers []io.Closer
	logger  zerolog.Logger
	done    chan struct{}
	err     error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Relay exposes the running relay, mainly for presence and metrics.
func (h *ServerHandle) Relay() *intrnl.Server {
	return h.relay
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
	}
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer opens the blob backend and the upload ledger, builds the router
// and starts serving in the background. Call Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig, logger zerolog.Logger) (*ServerHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	var closers []io.Closer
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}

	ledger, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	closers = append(closers, ledger)
	if err := ledger.Migrate(ctx); err != nil {
		closeAll()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	backend, media, closer, err := openBackend(cfg)
	if err != nil {
		closeAll()
		return nil, err
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	relay, err := intrnl.NewServer(intrnl.ServerOptions{
		Blobs: blob.WithLimits(backend, blob.Limits{
			MaxBytes:      cfg.MaxUploadBytes,
			MaxImageBytes: cfg.MaxImageBytes,
		}),
		Media:          media,
		Ledger:         ledger,
		Logger:         logger.With().Str("component", "relay").Logger(),
		MaxUploadBytes: cfg.MaxUploadBytes,
		UploadBurst:    cfg.UploadBurst,
		UploadWindow:   cfg.UploadWindow,
		Session: intrnl.SessionLimits{
			Burst:  cfg.MessageBurst,
			Window: cfg.MessageWindow,
		},
		SeenCacheSize: cfg.SeenCacheSize,
	})
	if err != nil {
		closeAll()
		return nil, err
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("listen: %w", err)
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	handle := &ServerHandle{
		addr: listener.Addr().String(),
		server: &http.Server{
			Handler:           NewRouter(cfg, relay, logger),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		relay:   relay,
		stopRun: stopRun,
		runDone: make(chan struct{}),
		closers: closers,
		logger:  logger,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(handle.runDone)
		relay.Run(runCtx)
	}()

	go func() {
		if ctx == nil {
			return
		}
		select {
		case <-ctx.Done():
		case <-handle.done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := handle.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	go handle.serve(listener)

	logger.Info().
		Str("addr", handle.addr).
		Str("path", cfg.Path).
		Str("backend", cfg.Backend).
		Str("db", cfg.DBPath).
		Msg("telechat relay listening")
	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	// hijacked websocket connections outlive Shutdown; the room closes them
	h.stopRun()
	<-h.runDone
	for i := len(h.closers) - 1; i >= 0; i-- {
		if cerr := h.closers[i].Close(); cerr != nil {
			h.logger.Error().Err(cerr).Msg("store close")
		}
	}
	h.err = err
}

// openBackend picks the blob store. Backends that do not hand out their own
// URLs are also returned as the media opener.
func openBackend(cfg ServerConfig) (blob.Store, blob.Opener, io.Closer, error) {
	switch cfg.Backend {
	case BackendPebble:
		store, err := blob.OpenPebble(filepath.Join(cfg.DataDir, "blobs"), "/media")
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open pebble: %w", err)
		}
		return store, store, store, nil
	case BackendRemote:
		store, err := blob.NewRemote(cfg.RemoteEndpoint, cfg.RemotePreset, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, nil, nil, nil
	default:
		store, err := blob.NewDisk(filepath.Join(cfg.PublicDir, "uploads"), "/uploads")
		if err != nil {
			return nil, nil, nil, err
		}
		return store, nil, nil, nil
	}
}

// NewRouter mounts the relay endpoints and the static public directory.
func NewRouter(cfg ServerConfig, relay *intrnl.Server, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger.With().Str("component", "http").Logger()))

	r.Get(NormalizeJoinPath(cfg.Path), relay.ServeWS)
	r.Post("/upload", relay.HandleUpload)
	r.Get("/media/{id}", relay.HandleMedia)
	r.Head("/media/{id}", relay.HandleMedia)
	r.Get("/api/uploads", relay.HandleRecentUploads)
	r.Get("/api/uploads/{id}", relay.HandleUploadInfo)
	r.Get("/healthz", relay.HandleHealth)
	r.Get("/metrics", relay.HandleMetrics)
	if cfg.PublicDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads", intrnl.UploadedFiles(filepath.Join(cfg.PublicDir, "uploads"))))
		r.Handle("/*", http.FileServer(http.Dir(cfg.PublicDir)))
	}
	return r
}

// requestLogger logs one line per request. The websocket route is logged
// when the upgrade returns, which is at disconnect.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("elapsed", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
