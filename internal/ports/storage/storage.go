package storage

import (
	"context"
)

// ObjectStore is content-addressed object storage. PutIfAbsent never
// overwrites: it reports created=false when the key already exists.
type ObjectStore interface {
	PutIfAbsent(ctx context.Context, key string, data []byte, contentType string) (created bool, err error)
	// Get returns the whole object, or errs.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}
