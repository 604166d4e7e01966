// Package objstore provides the document/asset object-storage client:
// upload by key, signed read URLs with a TTL, and delete by key, against
// an S3-compatible endpoint or an in-memory store for tests.
package objstore

import (
	"context"
	"io"
	"time"
)

// ObjectStore is the interface route handlers use to move document and
// asset bytes. Keys are opaque to the store; callers own the naming
// scheme (e.g. "documents/<timestamp>-<filename>").
type ObjectStore interface {
	// Upload stores the object under key. size is the number of bytes
	// that will be read from r.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// SignedURL returns a time-limited read URL for the object.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
