package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const BackendDisk = "disk"

// Disk writes objects under a directory that the relay serves statically.
type Disk struct {
	dir       string
	urlPrefix string
	now       func() time.Time
}

// NewDisk stores files in dir and builds URLs as urlPrefix/<name>.
func NewDisk(dir, urlPrefix string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{
		dir:       dir,
		urlPrefix: urlPrefix,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (d *Disk) Upload(ctx context.Context, obj Object) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	id := uuid.NewString()
	name := id + ExtensionFor(obj.MimeType)

	tmp, err := os.CreateTemp(d.dir, ".upload-*")
	if err != nil {
		return Stored{}, fmt.Errorf("create temp file: %w", err)
	}
	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), bytes.NewReader(obj.Data))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return Stored{}, fmt.Errorf("write upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return Stored{}, fmt.Errorf("publish upload: %w", err)
	}
	return Stored{
		ID:        id,
		URL:       path.Join(d.urlPrefix, name),
		FileName:  obj.FileName,
		MimeType:  obj.MimeType,
		SHA256:    hex.EncodeToString(hasher.Sum(nil)),
		Backend:   BackendDisk,
		Size:      written,
		CreatedAt: d.now(),
	}, nil
}
