package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nebula-labs/nebula/internal/bundle"
	"github.com/nebula-labs/nebula/internal/platform"
)

const indexFileName = "index.json"

// FileStore keeps the index in <dir>/index.json.
type FileStore struct {
	path string
}

// NewFileStore returns a store for <dir>/index.json. The file is created on
// the first Save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, indexFileName)}
}

// Path returns the index file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (*bundle.Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return bundle.NewIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}

	var idx bundle.Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parsing index %s: %w", s.path, err)
	}
	if idx.Entries == nil {
		idx.Entries = []bundle.IndexEntry{}
	}
	return &idx, nil
}

func (s *FileStore) Save(ctx context.Context, idx *bundle.Index) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling index: %w", err)
	}
	if err := platform.WriteFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}
