// Package blob stores uploaded media and hands back a URL clients can fetch.
package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrEmpty       = errors.New("blob: empty payload")
	ErrTooLarge    = errors.New("blob: payload too large")
	ErrInvalidData = errors.New("blob: data is neither a data URL nor base64")
	ErrNotFound    = errors.New("blob: not found")
)

// Object is an upload as received from a client.
type Object struct {
	Data     []byte
	FileName string
	MimeType string
	Uploader string
}

// Stored describes an object after a backend accepted it.
type Stored struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	FileName  string    `json:"fileName"`
	MimeType  string    `json:"mimeType"`
	SHA256    string    `json:"sha256"`
	Backend   string    `json:"backend"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Blob is an object read back from a backend the relay serves itself.
type Blob struct {
	Content  io.ReadSeeker
	FileName string
	MimeType string
	Size     int64
	ModTime  time.Time
}

// Store persists an object and returns where it can be fetched. The returned
// URL is fetchable as soon as Upload returns.
type Store interface {
	Upload(ctx context.Context, obj Object) (Stored, error)
}

// Opener is implemented by backends whose objects are served by the relay.
type Opener interface {
	Open(ctx context.Context, id string) (Blob, error)
}

// UploadError carries the HTTP status an upload failure should surface as.
type UploadError struct {
	Status int
	Msg    string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// StatusOf maps an upload error to a response status. Errors that did not
// come from validation are treated as a failing backend.
func StatusOf(err error) int {
	var uploadErr *UploadError
	if errors.As(err, &uploadErr) && uploadErr.Status != 0 {
		return uploadErr.Status
	}
	switch {
	case errors.Is(err, ErrEmpty), errors.Is(err, ErrInvalidData):
		return http.StatusBadRequest
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

// DecodeData accepts a data URL or bare base64 (standard or URL alphabet,
// padded or not) and returns the bytes plus any media type the data URL
// declared.
func DecodeData(data string) ([]byte, string, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, "", ErrEmpty
	}
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		return decodeDataURL(rest)
	}
	raw, err := decodeBase64(data)
	if err != nil {
		return nil, "", err
	}
	return raw, "", nil
}

func decodeDataURL(rest string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: data URL has no payload", ErrInvalidData)
	}
	isBase64 := false
	mediaType := header
	if before, found := strings.CutSuffix(header, ";base64"); found {
		isBase64 = true
		mediaType = before
	}
	if mediaType != "" {
		if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
			mediaType = parsed
		} else {
			mediaType = ""
		}
	}
	if !isBase64 {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		return []byte(decoded), mediaType, nil
	}
	raw, err := decodeBase64(payload)
	if err != nil {
		return nil, "", err
	}
	return raw, mediaType, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	return nil, ErrInvalidData
}

// SniffMime picks the media type for an upload: a valid declared type wins,
// then the file extension, then content sniffing.
func SniffMime(data []byte, declared, fileName string) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		if parsed, _, err := mime.ParseMediaType(declared); err == nil && parsed != "application/octet-stream" {
			return parsed
		}
	}
	if ext := filepath.Ext(fileName); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			if parsed, _, err := mime.ParseMediaType(byExt); err == nil {
				return parsed
			}
		}
	}
	sniffed := http.DetectContentType(data)
	if parsed, _, err := mime.ParseMediaType(sniffed); err == nil {
		return parsed
	}
	return "application/octet-stream"
}

// passiveTypes are the media types a browser renders without running
// anything, mapped to the extension a stored object gets.
var passiveTypes = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/avif":      ".avif",
	"image/bmp":       ".bmp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/ogg":       ".ogv",
	"video/quicktime": ".mov",
	"audio/mpeg":      ".mp3",
	"audio/ogg":       ".ogg",
	"audio/wav":       ".wav",
	"audio/webm":      ".weba",
	"audio/mp4":       ".m4a",
	"audio/aac":       ".aac",
	"audio/flac":      ".flac",
	"text/plain":      ".txt",
	"application/pdf": ".pdf",
}

// ExtensionFor returns the extension a stored object gets. Only passive
// media types keep a meaningful one; everything else is stored as .bin so a
// static file server never hands out markup or script.
func ExtensionFor(mimeType string) string {
	if ext, ok := passiveTypes[baseType(mimeType)]; ok {
		return ext
	}
	return ".bin"
}

// TypeForExtension reverses ExtensionFor. Unknown extensions map to "".
func TypeForExtension(ext string) string {
	ext = strings.ToLower(ext)
	for mimeType, known := range passiveTypes {
		if known == ext {
			return mimeType
		}
	}
	return ""
}

// ServeType is the Content-Type to serve a stored object with and whether it
// may be shown inline. Active or unknown types become a download.
func ServeType(mimeType string) (contentType string, inline bool) {
	base := baseType(mimeType)
	if _, ok := passiveTypes[base]; !ok {
		return "application/octet-stream", false
	}
	if base == "text/plain" {
		return "text/plain; charset=utf-8", true
	}
	return base, true
}

func baseType(mimeType string) string {
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		return parsed
	}
	return ""
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newBlob(data []byte, fileName, mimeType string, modTime time.Time) Blob {
	return Blob{
		Content:  bytes.NewReader(data),
		FileName: fileName,
		MimeType: mimeType,
		Size:     int64(len(data)),
		ModTime:  modTime,
	}
}
