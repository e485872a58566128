package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nebula-labs/nebula/internal/bundle"
)

// catalogNames lists the documents DirClient looks for, in priority order.
var catalogNames = []string{"catalog.yaml", "catalog.yml", "catalog.json"}

// DirClient serves a catalog from a local directory such as a mirror or a
// build output. Payload locators are paths relative to the directory.
type DirClient struct {
	dir string
}

// NewDirClient returns a client for the catalog in dir.
func NewDirClient(dir string) *DirClient {
	return &DirClient{dir: dir}
}

// Dir returns the catalog directory.
func (d *DirClient) Dir() string {
	return d.dir
}

func (d *DirClient) FetchCatalog(ctx context.Context) (*Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, name := range catalogNames {
		data, err := os.ReadFile(filepath.Join(d.dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", bundle.ErrCatalogUnavailable, name, err)
		}
		return Decode(data)
	}
	return nil, fmt.Errorf("%w: no catalog document in %s", bundle.ErrCatalogUnavailable, d.dir)
}

func (d *DirClient) FetchPayload(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !filepath.IsLocal(filepath.FromSlash(locator)) {
		return nil, fmt.Errorf("locator %q escapes the catalog directory", locator)
	}
	data, err := os.ReadFile(filepath.Join(d.dir, filepath.FromSlash(locator)))
	if err != nil {
		return nil, fmt.Errorf("reading payload %s: %w", locator, err)
	}
	return data, nil
}
