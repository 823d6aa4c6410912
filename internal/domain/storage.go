package domain

import (
	"context"
	"time"
)

type ObjectInfo struct {
	Name       string
	Size       int64
	ModifiedAt time.Time
}

// ObjectStore is implemented by every storage backend. A Delete key that ends
// in "/" removes every object under that prefix.
type ObjectStore interface {
	Put(ctx context.Context, bucket, localPath, remoteKey string) error
	Get(ctx context.Context, bucket, remoteKey, localPath string) error
	Delete(ctx context.Context, bucket, remoteKeyOrPrefix string) error
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}

// StoreResolver selects the ObjectStore for a cloud service name.
type StoreResolver interface {
	Resolve(service string) (ObjectStore, error)
}
