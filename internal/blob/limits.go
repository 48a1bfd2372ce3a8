package blob

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	DefaultMaxBytes      = 10 << 20
	DefaultMaxImageBytes = 2 << 20
)

// Limits is the size policy applied before a backend sees an upload.
type Limits struct {
	MaxBytes      int64
	MaxImageBytes int64
}

func DefaultLimits() Limits {
	return Limits{MaxBytes: DefaultMaxBytes, MaxImageBytes: DefaultMaxImageBytes}
}

// Check rejects empty objects and objects over the overall or image limit.
// A non-positive limit is not enforced.
func (l Limits) Check(obj Object) error {
	size := int64(len(obj.Data))
	if size == 0 {
		return &UploadError{Status: http.StatusBadRequest, Msg: "empty upload", Err: ErrEmpty}
	}
	if l.MaxBytes > 0 && size > l.MaxBytes {
		return &UploadError{
			Status: http.StatusRequestEntityTooLarge,
			Msg:    fmt.Sprintf("file exceeds %s limit", humanize.IBytes(uint64(l.MaxBytes))),
			Err:    ErrTooLarge,
		}
	}
	if l.MaxImageBytes > 0 && strings.HasPrefix(obj.MimeType, "image/") && size > l.MaxImageBytes {
		return &UploadError{
			Status: http.StatusRequestEntityTooLarge,
			Msg:    fmt.Sprintf("image exceeds %s limit", humanize.IBytes(uint64(l.MaxImageBytes))),
			Err:    ErrTooLarge,
		}
	}
	return nil
}

// Limited normalises the media type of each object and enforces Limits
// before handing it to the wrapped store.
type Limited struct {
	next   Store
	limits Limits
}

func WithLimits(next Store, limits Limits) *Limited {
	return &Limited{next: next, limits: limits}
}

func (l *Limited) Upload(ctx context.Context, obj Object) (Stored, error) {
	obj.MimeType = SniffMime(obj.Data, obj.MimeType, obj.FileName)
	if err := l.limits.Check(obj); err != nil {
		return Stored{}, err
	}
	return l.next.Upload(ctx, obj)
}
