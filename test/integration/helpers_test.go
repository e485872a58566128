//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/nebula-labs/nebula/internal/bundle"
	"github.com/nebula-labs/nebula/internal/catalog"
	"github.com/nebula-labs/nebula/internal/index"
	"github.com/nebula-labs/nebula/internal/storage"
	"github.com/nebula-labs/nebula/internal/syncer"
)

// testEnv holds paths to isolated test directories.
type testEnv struct {
	HomeDir    string // NEBULA_HOME, holds the index
	StorageDir string // payload storage root
}

// setupTestEnv creates isolated temp directories and sets environment variables
// so all operations are sandboxed. The env vars are restored after the test.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		HomeDir:    t.TempDir(),
		StorageDir: t.TempDir(),
	}
	t.Setenv("NEBULA_HOME", env.HomeDir)
	return env
}

// origin is an HTTP catalog server whose content can be changed between
// requests.
type origin struct {
	mu       sync.Mutex
	catalog  catalog.Catalog
	payloads map[string]string
	requests map[string]int
	server   *httptest.Server
}

func newOrigin(t *testing.T) *origin {
	t.Helper()
	o := &origin{
		catalog: catalog.Catalog{
			FormatVersion: "1.0.0",
			Origin:        catalog.Origin{ID: "e2e", Name: "E2E Origin"},
		},
		payloads: make(map[string]string),
		requests: make(map[string]int),
	}
	o.server = httptest.NewServer(http.HandlerFunc(o.serve))
	t.Cleanup(o.server.Close)
	return o
}

func (o *origin) serve(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	defer o.mu.Unlock()

	name := strings.TrimPrefix(r.URL.Path, "/")
	o.requests[name]++
	if name == catalog.CatalogFile {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(o.catalog)
		return
	}
	body, ok := o.payloads[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write([]byte(body))
}

// publish replaces the offered bundles. Each bundle's payload is served at
// payloads/<id>-<hash>.bin with the given content.
func (o *origin) publish(bundles ...testBundle) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.catalog.Bundles = []bundle.Descriptor{}
	for _, b := range bundles {
		loc := "payloads/" + b.id + "-" + b.hash + ".bin"
		o.payloads[loc] = b.content
		o.catalog.Bundles = append(o.catalog.Bundles, bundle.Descriptor{
			ID:             b.id,
			Version:        b.version,
			ContentHash:    b.hash,
			Dependencies:   b.deps,
			PayloadLocator: loc,
			UpdatedAt:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		})
	}
}

func (o *origin) requestCount(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requests[name]
}

type testBundle struct {
	id      string
	version int
	hash    string
	content string
	deps    []string
}

// openEngine wires an engine against the origin, the way the CLI does.
func openEngine(t *testing.T, env *testEnv, o *origin, backend string) *syncer.Engine {
	t.Helper()

	store, err := index.Open(backend, env.HomeDir)
	if err != nil {
		t.Fatalf("index.Open(%s): %v", backend, err)
	}
	t.Cleanup(func() { _ = index.Close(store) })

	payloads, err := storage.NewFileBackend(env.StorageDir)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	client, err := catalog.Open(o.server.URL, catalog.WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}

	e := syncer.New(client, store, payloads,
		syncer.WithLogger(zaptest.NewLogger(t)),
		syncer.WithConcurrency(2),
	)
	if err := e.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return e
}

// assertFileExists fails the test if the file does not exist.
func assertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist: %s (error: %v)", path, err)
	}
}

// assertFileNotExists fails the test if the file exists.
func assertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("expected file to not exist: %s", path)
	}
}

// assertFileContent fails the test if the file content differs from want.
func assertFileContent(t *testing.T, path, want string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Errorf("reading %s: %v", path, err)
		return
	}
	if string(data) != want {
		t.Errorf("%s = %q, want %q", filepath.Base(path), data, want)
	}
}
