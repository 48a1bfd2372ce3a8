package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const BackendRemote = "remote"

// Remote posts objects to an object-storage upload API (unsigned preset
// uploads) and returns the canonical secure URL the API reports.
type Remote struct {
	endpoint string
	preset   string
	client   *http.Client
	now      func() time.Time
}

type remoteResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Bytes     int64  `json:"bytes"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewRemote(endpoint, preset string, client *http.Client) (*Remote, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("remote blob store: endpoint required")
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Remote{
		endpoint: endpoint,
		preset:   preset,
		client:   client,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *Remote) Upload(ctx context.Context, obj Object) (Stored, error) {
	body, contentType, err := r.encode(obj)
	if err != nil {
		return Stored{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, body)
	if err != nil {
		return Stored{}, fmt.Errorf("build remote upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return Stored{}, &UploadError{Status: http.StatusBadGateway, Msg: "upload failed", Err: err}
	}
	defer resp.Body.Close()

	var decoded remoteResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded)
	if resp.StatusCode >= http.StatusMultipleChoices {
		reason := resp.Status
		if decodeErr == nil && decoded.Error != nil && decoded.Error.Message != "" {
			reason = decoded.Error.Message
		}
		return Stored{}, &UploadError{Status: http.StatusBadGateway, Msg: "upload failed", Err: errors.New(reason)}
	}
	if decodeErr != nil {
		return Stored{}, &UploadError{Status: http.StatusBadGateway, Msg: "upload failed", Err: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if decoded.SecureURL == "" {
		return Stored{}, &UploadError{Status: http.StatusBadGateway, Msg: "upload failed", Err: errors.New("response has no secure_url")}
	}
	id := decoded.PublicID
	if id == "" {
		id = uuid.NewString()
	}
	size := decoded.Bytes
	if size == 0 {
		size = int64(len(obj.Data))
	}
	return Stored{
		ID:        id,
		URL:       decoded.SecureURL,
		FileName:  obj.FileName,
		MimeType:  obj.MimeType,
		SHA256:    digest(obj.Data),
		Backend:   BackendRemote,
		Size:      size,
		CreatedAt: r.now(),
	}, nil
}

func (r *Remote) encode(obj Object) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	name := obj.FileName
	if name == "" {
		name = "upload" + ExtensionFor(obj.MimeType)
	}
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(obj.Data); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if r.preset != "" {
		if err := writer.WriteField("upload_preset", r.preset); err != nil {
			return nil, "", fmt.Errorf("write preset: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
