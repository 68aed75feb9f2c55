// Package storage defines where diagnostic artifacts are written.
package storage

import (
	"context"
	"io"
)

// BlobStore persists an artifact and returns a URI that locates it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}
