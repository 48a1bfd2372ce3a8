package internal

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"telechat/internal/blob"
	"telechat/internal/storage"
)

type uploadRequest struct {
	FileName string `json:"fileName"`
	Data     string `json:"data"`
	MimeType string `json:"mimeType,omitempty"`
	// Type is the kind the sender intends to post; the stored media type
	// decides the kind reported back.
	Type     string `json:"type,omitempty"`
	Uploader string `json:"uploader,omitempty"`
}

type uploadResponse struct {
	ID       string      `json:"id"`
	URL      string      `json:"url"`
	FileName string      `json:"fileName"`
	MimeType string      `json:"mimeType"`
	Kind     MessageKind `json:"kind"`
	Size     int64       `json:"size"`
}

type recentUploadsResponse struct {
	Total   int64            `json:"total"`
	Uploads []storage.Upload `json:"uploads"`
}

// HandleUpload stores a JSON or multipart upload and returns its URL. Any
// failure is reported only to the requester.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.uploadLimiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many uploads, try again shortly"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestBytes())

	obj, err := s.decodeUpload(r)
	if err != nil {
		s.failUpload(w, err)
		return
	}
	stored, err := s.blobs.Upload(r.Context(), obj)
	if err != nil {
		s.failUpload(w, err)
		return
	}
	s.recordUpload(r.Context(), stored, obj.Uploader)
	s.metrics.IncUpload(stored.Size)
	s.logger.Info().
		Str("id", stored.ID).
		Str("backend", stored.Backend).
		Str("mime", stored.MimeType).
		Int64("size", stored.Size).
		Msg("upload stored")
	writeJSON(w, http.StatusOK, uploadResponse{
		ID:       stored.ID,
		URL:      stored.URL,
		FileName: stored.FileName,
		MimeType: stored.MimeType,
		Kind:     KindForMime(stored.MimeType),
		Size:     stored.Size,
	})
}

func (s *Server) decodeUpload(r *http.Request) (blob.Object, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return decodeMultipartUpload(r, s.maxUploadBytes)
	}
	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		return blob.Object{}, bodyError(err)
	}
	data, dataMime, err := blob.DecodeData(req.Data)
	if err != nil {
		return blob.Object{}, &blob.UploadError{Status: http.StatusBadRequest, Msg: "invalid upload data", Err: err}
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = dataMime
	}
	return blob.Object{
		Data:     data,
		FileName: sanitizeFileName(req.FileName),
		MimeType: mimeType,
		Uploader: sanitizeUploader(req.Uploader),
	}, nil
}

func (s *Server) failUpload(w http.ResponseWriter, err error) {
	status := blob.StatusOf(err)
	s.metrics.IncUploadFailure()
	event := s.logger.Info()
	if status >= http.StatusInternalServerError {
		event = s.logger.Error()
	}
	event.Err(err).Int("status", status).Msg("upload rejected")
	writeError(w, status, err)
}

// recordUpload writes the ledger row. A ledger failure does not fail the
// upload; the object is already fetchable.
func (s *Server) recordUpload(ctx context.Context, stored blob.Stored, uploader string) {
	if s.ledger == nil {
		return
	}
	err := s.ledger.RecordUpload(ctx, storage.Upload{
		ID:        stored.ID,
		URL:       stored.URL,
		FileName:  stored.FileName,
		MimeType:  stored.MimeType,
		SHA256:    stored.SHA256,
		Backend:   stored.Backend,
		Uploader:  uploader,
		Size:      stored.Size,
		CreatedAt: stored.CreatedAt,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("id", stored.ID).Msg("record upload")
	}
}

// maxRequestBytes leaves room for base64 inflation and form framing on top
// of the decoded upload limit.
func (s *Server) maxRequestBytes() int64 {
	return s.maxUploadBytes/3*4 + 1<<20
}

// HandleMedia serves objects held by backends that implement blob.Opener.
func (s *Server) HandleMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.media == nil {
		http.NotFound(w, r)
		return
	}
	object, err := s.media.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error().Err(err).Msg("open media")
		writeError(w, http.StatusInternalServerError, errors.New("media unavailable"))
		return
	}
	setStoredHeaders(w, object.MimeType, object.FileName)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, object.FileName, object.ModTime, object.Content)
}

// UploadedFiles serves the disk backend's directory. The type comes from the
// stored extension and is never sniffed, so only passive media renders
// inline.
func UploadedFiles(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Base(r.URL.Path)
		setStoredHeaders(w, blob.TypeForExtension(path.Ext(name)), name)
		files.ServeHTTP(w, r)
	})
}

func setStoredHeaders(w http.ResponseWriter, mimeType, fileName string) {
	contentType, inline := blob.ServeType(mimeType)
	disposition := "attachment"
	if inline {
		disposition = "inline"
	}
	params := map[string]string{}
	if fileName != "" && fileName != "/" && fileName != "." {
		params["filename"] = fileName
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, params))
}

func (s *Server) HandleUploadInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.ledger == nil {
		http.NotFound(w, r)
		return
	}
	upload, err := s.ledger.GetUpload(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

func (s *Server) HandleRecentUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.ledger == nil {
		writeJSON(w, http.StatusOK, recentUploadsResponse{Uploads: []storage.Upload{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	uploads, err := s.ledger.RecentUploads(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	total, err := s.ledger.CountUploads(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if uploads == nil {
		uploads = []storage.Upload{}
	}
	writeJSON(w, http.StatusOK, recentUploadsResponse{Total: total, Uploads: uploads})
}

func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"online": s.presence.Count(),
	})
}

func (s *Server) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.metrics.Snapshot()
	snapshot["online_sessions"] = s.presence.Count()
	writeJSON(w, http.StatusOK, snapshot)
}

func sanitizeUploader(name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}
	return sanitizeDisplayName(name)
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return &blob.UploadError{Status: http.StatusRequestEntityTooLarge, Msg: "request body too large", Err: blob.ErrTooLarge}
	}
	return &blob.UploadError{Status: http.StatusBadRequest, Msg: "malformed upload request", Err: err}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
