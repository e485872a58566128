package index

import (
	"context"
	"fmt"

	"github.com/nebula-labs/nebula/internal/bundle"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Store loads and saves the durable copy of the index.
type Store interface {
	// Load returns the persisted index, or an empty index on first run.
	Load(ctx context.Context) (*bundle.Index, error)
	// Save durably replaces the persisted index. On error the previously
	// persisted index is left intact.
	Save(ctx context.Context, idx *bundle.Index) error
}

// Open returns the store named by backend, rooted at dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", BackendJSON:
		return NewFileStore(dir), nil
	case BackendSQLite:
		return OpenSQLite(dir)
	default:
		return nil, fmt.Errorf("unknown index backend %q (want %s or %s)", backend, BackendJSON, BackendSQLite)
	}
}

// Close releases resources held by s, if any.
func Close(s Store) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
