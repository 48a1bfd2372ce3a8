package internal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"telechat/internal/blob"
)

const uploadTimeout = 60 * time.Second

// uploadResult mirrors the relay's upload response.
type uploadResult struct {
	ID       string      `json:"id"`
	URL      string      `json:"url"`
	FileName string      `json:"fileName"`
	MimeType string      `json:"mimeType"`
	Kind     MessageKind `json:"kind"`
	Size     int64       `json:"size"`
}

// apiUpload reads a local file and posts it as base64 JSON to /upload.
func apiUpload(ctx context.Context, client *http.Client, baseURL, path, uploader string) (uploadResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return uploadResult{}, err
	}
	if info.IsDir() {
		return uploadResult{}, fmt.Errorf("%s is a directory", filepath.Base(path))
	}
	if info.Size() > blob.DefaultMaxBytes {
		return uploadResult{}, fmt.Errorf("file is %s, limit is %s",
			humanize.IBytes(uint64(info.Size())), humanize.IBytes(blob.DefaultMaxBytes))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return uploadResult{}, err
	}
	payload := uploadRequest{
		FileName: filepath.Base(path),
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mime.TypeByExtension(filepath.Ext(path)),
		Uploader: uploader,
	}
	var result uploadResult
	if err := doJSONRequest(ctx, client, http.MethodPost, baseURL+"/upload", payload, &result); err != nil {
		return uploadResult{}, err
	}
	if result.URL == "" {
		return uploadResult{}, fmt.Errorf("server returned no url")
	}
	if result.Kind == "" {
		result.Kind = KindForMime(result.MimeType)
	}
	return result, nil
}

func doJSONRequest(ctx context.Context, client *http.Client, method, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", UserAgent())
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, readResponseError(resp.Body))
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func readResponseError(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"]; ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}

func httpBaseFromJoinURL(wsURL string) (string, error) {
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/"), nil
}

// resolveLocator turns a relay-relative media locator into an absolute URL.
// Data URLs and absolute URLs pass through.
func resolveLocator(httpBase, locator string) string {
	if strings.HasPrefix(locator, "/") && !strings.HasPrefix(locator, "//") {
		return httpBase + locator
	}
	return locator
}
