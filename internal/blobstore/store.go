package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no object exists at the requested key.
var ErrNotFound = errors.New("blobstore: object not found")

// Object is a stored blob together with the metadata recorded at write time.
type Object struct {
	Key         string
	Data        []byte
	ContentType string
	Size        int64
	Metadata    map[string]string
}

// ObjectInfo describes a stored blob without its payload.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// PutOptions carries the write-time attributes of an object.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Store is the object storage contract the rest of the service depends on.
// Keys are opaque strings; namespacing by prefix (reference_image/,
// generations/) is a caller convention, not enforced here. Individual calls
// are atomic; there are no cross-call transactions.
type Store interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Get(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error
	Delete(ctx context.Context, key string) error
}
