package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebula-labs/nebula/internal/bundle"
)

const testCatalog = `formatVersion: "1.2.0"
origin:
  id: local
  name: Local Mirror
bundles:
  - id: fonts
    version: 1
    contentHash: f1
    payloadLocator: payloads/fonts.bin
  - id: theme
    displayName: Dark Theme
    version: 2
    contentHash: t1
    dependencies: [fonts]
    payloadLocator: payloads/theme.bin
    notes: High contrast colors
  - id: app
    version: 5
    contentHash: a1
    dependencies: [theme]
    payloadLocator: payloads/app.bin
    manifestLocator: payloads/app.manifest
`

// setupHome points the CLI at a fresh home directory and a directory origin
// serving testCatalog.
func setupHome(t *testing.T) (home, origin string) {
	t.Helper()
	home = t.TempDir()
	origin = t.TempDir()
	t.Setenv("NEBULA_HOME", home)
	t.Setenv("NEBULA_ORIGIN_URL", origin)
	t.Setenv("NEBULA_LOGGING_LEVEL", "error")

	files := map[string]string{
		"catalog.yaml":          testCatalog,
		"payloads/fonts.bin":    "fonts payload",
		"payloads/theme.bin":    "theme payload",
		"payloads/app.bin":      "app payload",
		"payloads/app.manifest": `{"entry":"main"}`,
	}
	for name, content := range files {
		path := filepath.Join(origin, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return home, origin
}

// run executes the root command with args and returns its combined output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags() {
	fetchJSON = false
	syncPrune = false
	syncOnly = nil
	listJSON = false
	treeRemote = false
	loadAllowMissing = false
	clearYes = false
	searchJSON = false
	searchMetaFilter = ""
	initSkipSync = false
	doctorFix = false
	doctorCheckOrigin = false
	versionShort = false
	versionJSON = false
}

func TestFetchBeforeSync(t *testing.T) {
	setupHome(t)

	out, err := run(t, "fetch", "--json")
	require.NoError(t, err)

	var report reportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, []string{"app", "fonts", "theme"}, report.RemoteOnly)
	assert.Empty(t, report.Stale)
}

func TestSyncListTreeLoad(t *testing.T) {
	setupHome(t)

	out, err := run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Synced 3, failed 0")

	out, err = run(t, "list", "--json")
	require.NoError(t, err)
	var entries []listEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 3)
	ids := []string{entries[0].ID, entries[1].ID, entries[2].ID}
	assert.ElementsMatch(t, []string{"app", "fonts", "theme"}, ids)

	out, err = run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "from Local Mirror")

	out, err = run(t, "tree", "app")
	require.NoError(t, err)
	assert.Equal(t, "app\n └── theme\n     └── fonts\n", out)

	out, err = run(t, "load", "app")
	require.NoError(t, err)
	assert.Contains(t, out, "fonts")
	assert.Contains(t, out, "[theme]")

	out, err = run(t, "fetch")
	require.NoError(t, err)
	assert.Contains(t, out, "Everything is up to date.")
}

func TestSyncOnly(t *testing.T) {
	setupHome(t)

	_, err := run(t, "sync", "--only", "theme")
	require.NoError(t, err)

	out, err := run(t, "list", "--json")
	require.NoError(t, err)
	var entries []listEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "fonts", entries[0].ID)
	assert.Equal(t, "theme", entries[1].ID)

	_, err = run(t, "sync", "--only", "ghost")
	assert.ErrorIs(t, err, bundle.ErrUnknownBundle)
}

func TestSyncReportsFailedDownload(t *testing.T) {
	_, origin := setupHome(t)
	require.NoError(t, os.Remove(filepath.Join(origin, "payloads", "fonts.bin")))

	out, err := run(t, "sync")
	assert.ErrorIs(t, err, bundle.ErrPayloadDownload)
	assert.Contains(t, out, "[FAIL] fonts")
}

func TestEvictAndClear(t *testing.T) {
	setupHome(t)
	_, err := run(t, "sync")
	require.NoError(t, err)

	out, err := run(t, "evict", "theme")
	require.NoError(t, err)
	assert.Contains(t, out, "Evicted theme")

	_, err = run(t, "evict", "theme")
	assert.ErrorIs(t, err, bundle.ErrNotLocal)

	out, err = run(t, "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")

	out, err = run(t, "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 bundles.")
}

func TestLoadNotLocal(t *testing.T) {
	setupHome(t)

	_, err := run(t, "load", "ghost")
	assert.ErrorIs(t, err, bundle.ErrNotLocal)
}

func TestSearch(t *testing.T) {
	setupHome(t)

	out, err := run(t, "search", "contrast", "--json")
	require.NoError(t, err)
	var entries []searchEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "theme", entries[0].ID)
	assert.Equal(t, "remote", entries[0].Status)

	out, err = run(t, "search", "nothing-here")
	require.NoError(t, err)
	assert.Contains(t, out, `No bundles found matching "nothing-here"`)
}

func TestDoctor(t *testing.T) {
	home, _ := setupHome(t)
	_, err := run(t, "sync")
	require.NoError(t, err)

	out, err := run(t, "doctor", "--check-origin")
	require.NoError(t, err)
	assert.Contains(t, out, "No problems found.")

	require.NoError(t, os.Remove(filepath.Join(home, "bundles", "fonts", "payload-f1")))
	out, err = run(t, "doctor")
	assert.Error(t, err)
	assert.Contains(t, out, "[MISS] fonts")

	out, err = run(t, "doctor", "--fix")
	require.NoError(t, err)
	assert.Contains(t, out, "[FIX ] Evicted fonts")
}

func TestInitRunsInitialSync(t *testing.T) {
	setupHome(t)

	out, err := run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Synced 3")

	out, err = run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "3 bundles already present.")
}

func TestConfigSetGet(t *testing.T) {
	home, _ := setupHome(t)

	_, err := run(t, "config", "set", "sync.concurrency", "3")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, "config.yaml"))

	out, err := run(t, "config", "get", "sync.concurrency")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	_, err = run(t, "config", "set", "no.such.key", "x")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	buildVersion = "1.2.3"
	out, err := run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)
}

func TestDaemonSyncsAndStops(t *testing.T) {
	setupHome(t)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	a, err := newApp(ctx)
	require.NoError(t, err)
	defer a.Close()
	a.cfg.Metrics.Addr = "127.0.0.1:0"
	a.cfg.Sync.Interval = 20 * time.Millisecond

	require.NoError(t, runDaemon(ctx, a))
	assert.Equal(t, 3, a.engine.Snapshot().Len())
}
