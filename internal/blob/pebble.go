package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble/v2"
	"github.com/google/uuid"
)

const BackendPebble = "pebble"

// Pebble keeps object bytes and metadata in an embedded key-value store and
// serves them back through Open.
type Pebble struct {
	db        *pebble.DB
	urlPrefix string
	now       func() time.Time
}

type pebbleMeta struct {
	FileName  string    `json:"fileName"`
	MimeType  string    `json:"mimeType"`
	SHA256    string    `json:"sha256"`
	Uploader  string    `json:"uploader,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// OpenPebble opens (or creates) the store at dir. URLs are urlPrefix/<id>.
func OpenPebble(dir, urlPrefix string) (*Pebble, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pebble dir: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}
	return &Pebble{
		db:        db,
		urlPrefix: urlPrefix,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func blobKey(id string) []byte { return []byte("blob/" + id) }
func metaKey(id string) []byte { return []byte("meta/" + id) }

func (p *Pebble) Upload(ctx context.Context, obj Object) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	id := uuid.NewString()
	meta := pebbleMeta{
		FileName:  obj.FileName,
		MimeType:  obj.MimeType,
		SHA256:    digest(obj.Data),
		Uploader:  obj.Uploader,
		Size:      int64(len(obj.Data)),
		CreatedAt: p.now(),
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return Stored{}, fmt.Errorf("marshal blob meta: %w", err)
	}

	batch := p.db.NewBatch()
	defer func() { _ = batch.Close() }()
	if err := batch.Set(blobKey(id), obj.Data, nil); err != nil {
		return Stored{}, fmt.Errorf("stage blob: %w", err)
	}
	if err := batch.Set(metaKey(id), encoded, nil); err != nil {
		return Stored{}, fmt.Errorf("stage blob meta: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return Stored{}, fmt.Errorf("commit blob: %w", err)
	}
	return Stored{
		ID:        id,
		URL:       path.Join(p.urlPrefix, id),
		FileName:  meta.FileName,
		MimeType:  meta.MimeType,
		SHA256:    meta.SHA256,
		Backend:   BackendPebble,
		Size:      meta.Size,
		CreatedAt: meta.CreatedAt,
	}, nil
}

func (p *Pebble) Open(ctx context.Context, id string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return Blob{}, ErrNotFound
	}
	rawMeta, err := p.get(metaKey(id))
	if err != nil {
		return Blob{}, err
	}
	var meta pebbleMeta
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		return Blob{}, fmt.Errorf("decode blob meta: %w", err)
	}
	data, err := p.get(blobKey(id))
	if err != nil {
		return Blob{}, err
	}
	return newBlob(data, meta.FileName, meta.MimeType, meta.CreatedAt), nil
}

// get copies the value out, since pebble only guarantees it until the
// closer runs.
func (p *Pebble) get(key []byte) ([]byte, error) {
	value, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (p *Pebble) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
