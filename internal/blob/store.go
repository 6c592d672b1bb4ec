package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Store is the blob store boundary. Keys are relative to the configured bucket.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	EnsureBucket(ctx context.Context) error
	Ping(ctx context.Context) error
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename strips directories and replaces characters outside
// [A-Za-z0-9._-] with '_'.
func SanitizeFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" {
		base = ""
	}
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "payload"
	}
	if len(base) > 128 {
		base = base[len(base)-128:]
	}
	return base
}

// NewKey returns a key unique per submission: <businessId>/<uuid>-<filename>.
func NewKey(businessID, filename string) string {
	return fmt.Sprintf("%s/%s-%s", businessID, uuid.NewString(), SanitizeFilename(filename))
}
