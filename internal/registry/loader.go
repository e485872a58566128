package registry

import (
	"context"
	"fmt"

	"github.com/nebula-labs/nebula/internal/bundle"
	"github.com/nebula-labs/nebula/internal/metrics"
	"github.com/nebula-labs/nebula/internal/storage"
)

// IndexSource provides the local index the registry resolves against.
// *syncer.Engine satisfies it.
type IndexSource interface {
	Snapshot() *bundle.Index
}

// Loader turns a local index entry into a runtime resource.
type Loader interface {
	Load(ctx context.Context, entry bundle.IndexEntry) (any, error)
	Release(id string, resource any) error
}

// Payload is the resource produced by StorageLoader.
type Payload struct {
	ID       string
	Version  int
	Data     []byte
	Manifest []byte
}

// StorageLoader reads bundle payloads through a storage backend.
type StorageLoader struct {
	backend storage.Backend
	metrics *metrics.Metrics
}

// NewStorageLoader returns a loader reading from backend. m may be nil.
func NewStorageLoader(backend storage.Backend, m *metrics.Metrics) *StorageLoader {
	return &StorageLoader{backend: backend, metrics: m}
}

// Load reads the payload and, when recorded, the manifest of entry.
func (l *StorageLoader) Load(ctx context.Context, entry bundle.IndexEntry) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.metrics.StorageRead()

	data, err := l.backend.Read(entry.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("loading payload of %s: %w", entry.ID, err)
	}
	p := &Payload{ID: entry.ID, Version: entry.Version, Data: data}
	if entry.ManifestPath != "" {
		if p.Manifest, err = l.backend.Read(entry.ManifestPath); err != nil {
			return nil, fmt.Errorf("loading manifest of %s: %w", entry.ID, err)
		}
	}
	return p, nil
}

// Release drops nothing; payloads are plain memory.
func (l *StorageLoader) Release(id string, resource any) error {
	return nil
}
