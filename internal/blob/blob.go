// Package blob stores uploaded file content addressed by key. The key
// is assigned at upload time and recorded on the document row.
package blob

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

// Store is the content storage surface the upload and pipeline paths
// depend on.
type Store interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
