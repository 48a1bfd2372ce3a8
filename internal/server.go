package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telechat/internal/blob"
	"telechat/internal/storage"
)

const (
	DefaultUploadBurst  = 20
	DefaultUploadWindow = time.Minute
)

// ServerOptions configures the relay. Blobs is required; the rest have
// usable zero values.
type ServerOptions struct {
	Blobs blob.Store
	// Media serves objects for backends that do not hand out their own URLs.
	Media  blob.Opener
	Ledger *storage.Store

	Logger  zerolog.Logger
	Metrics *Metrics

	// MaxUploadBytes caps a decoded upload; the request body may be larger
	// to leave room for base64 and form framing.
	MaxUploadBytes int64
	UploadBurst    int
	UploadWindow   time.Duration
	Session        SessionLimits
	SeenCacheSize  int
}

// Server owns the room and the HTTP side of the relay.
type Server struct {
	room           *Room
	presence       *PresenceRegistry
	blobs          blob.Store
	media          blob.Opener
	ledger         *storage.Store
	metrics        *Metrics
	uploadLimiter  *RateLimiter
	session        SessionLimits
	maxUploadBytes int64
	logger         zerolog.Logger
}

func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	presence := NewPresenceRegistry()
	room, err := NewRoom(RoomOptions{
		Presence:      presence,
		Metrics:       metrics,
		Logger:        opts.Logger,
		SeenCacheSize: opts.SeenCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = blob.DefaultMaxBytes
	}
	window := opts.UploadWindow
	if window <= 0 {
		window = DefaultUploadWindow
	}
	session := opts.Session
	if session.Burst == 0 {
		session.Burst = DefaultMessageBurst
	}
	if session.Window <= 0 {
		session.Window = DefaultMessageWindow
	}
	return &Server{
		room:           room,
		presence:       presence,
		blobs:          opts.Blobs,
		media:          opts.Media,
		ledger:         opts.Ledger,
		metrics:        metrics,
		uploadLimiter:  NewRateLimiter(opts.UploadBurst, window),
		session:        session,
		maxUploadBytes: maxUpload,
		logger:         opts.Logger,
	}, nil
}

// Run drives the room until ctx is cancelled. Sessions still attached are
// closed with a going-away frame on return.
func (s *Server) Run(ctx context.Context) {
	go s.sweepLimiter(ctx)
	s.room.Run(ctx)
}

func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(DefaultUploadWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.uploadLimiter.Sweep()
		}
	}
}

func (s *Server) Presence() *PresenceRegistry {
	return s.presence
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}
