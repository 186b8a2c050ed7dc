// Package storage defines the blob store abstraction used to mirror finished
// artifacts outside the download directory (Google Cloud Storage or a second
// local directory).
package storage

import (
	"context"
	"io"
)

// BlobStore writes and prunes mirrored artifact objects.
type BlobStore interface {
	// PutObject uploads r under path and returns a URI for the stored object.
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
	// DeletePrefix removes every object under prefix and reports how many went.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}
