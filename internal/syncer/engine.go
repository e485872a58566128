package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nebula-labs/nebula/internal/bundle"
	"github.com/nebula-labs/nebula/internal/catalog"
	"github.com/nebula-labs/nebula/internal/diff"
	"github.com/nebula-labs/nebula/internal/graph"
	"github.com/nebula-labs/nebula/internal/index"
	"github.com/nebula-labs/nebula/internal/metrics"
	"github.com/nebula-labs/nebula/internal/storage"
)

// Engine synchronizes the local index with a catalog origin.
type Engine struct {
	client      catalog.Client
	store       index.Store
	payloads    storage.Backend
	logger      *zap.Logger
	metrics     *metrics.Metrics
	concurrency int
	now         func() time.Time

	mu          sync.RWMutex
	local       *bundle.Index
	remote      *catalog.Catalog
	remoteGraph *graph.Graph

	// persistMu serializes clone, save and swap of the index.
	persistMu sync.Mutex
	ids       *keyedMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards all output.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithConcurrency bounds parallel syncs within a SyncAll phase. Values
// below 1 are treated as 1.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.concurrency = n
	}
}

// WithClock replaces time.Now for SyncedAt and LastSync stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine. Call Open before use to load the persisted index.
func New(client catalog.Client, store index.Store, payloads storage.Backend, opts ...Option) *Engine {
	e := &Engine{
		client:      client,
		store:       store,
		payloads:    payloads,
		logger:      zap.NewNop(),
		concurrency: 1,
		now:         time.Now,
		local:       bundle.NewIndex(),
		ids:         newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open loads the persisted index. A store with nothing persisted yields an
// empty index.
func (e *Engine) Open(ctx context.Context) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	idx, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading index: %w", err)
	}
	e.mu.Lock()
	e.local = idx
	e.mu.Unlock()

	e.logger.Info("Index loaded", zap.Int("bundles", idx.Len()))
	return nil
}

// Init opens the index and, when it is empty, performs an initial fetch and
// full sync. The returned summary is nil when no initial sync was needed.
func (e *Engine) Init(ctx context.Context) (*Summary, error) {
	if err := e.Open(ctx); err != nil {
		return nil, err
	}
	if e.Snapshot().Len() > 0 {
		return nil, nil
	}

	e.logger.Info("Index is empty, running initial sync")
	report, err := e.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return e.SyncAll(ctx, report), nil
}

// Snapshot returns a deep copy of the in-memory index.
func (e *Engine) Snapshot() *bundle.Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.local.Clone()
}

// Entry returns the local entry for id.
func (e *Engine) Entry(id string) (bundle.IndexEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.local.Get(id)
	if !ok {
		return bundle.IndexEntry{}, false
	}
	return entry, true
}

// Remote returns the catalog from the last successful Fetch, or nil.
func (e *Engine) Remote() *catalog.Catalog {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.remote
}

// Graph returns the dependency graph of the last fetched catalog, or of the
// local index when nothing has been fetched.
func (e *Engine) Graph() (*graph.Graph, error) {
	e.mu.RLock()
	g := e.remoteGraph
	e.mu.RUnlock()
	if g != nil {
		return g, nil
	}
	return graph.FromIndex(e.Snapshot().Entries)
}

// Fetch retrieves the catalog and compares it against the index. It never
// touches storage or the index. On failure the previous catalog snapshot is
// kept.
func (e *Engine) Fetch(ctx context.Context) (*diff.Report, error) {
	start := time.Now()
	cat, err := e.client.FetchCatalog(ctx)
	e.metrics.ObserveFetch(err, time.Since(start))
	if err != nil {
		if !errors.Is(err, bundle.ErrCatalogUnavailable) && !errors.Is(err, catalog.ErrInvalidCatalog) {
			err = fmt.Errorf("%w: %w", bundle.ErrCatalogUnavailable, err)
		}
		e.logger.Warn("Catalog fetch failed", zap.Error(err))
		return nil, err
	}

	g, err := graph.Build(cat.Bundles)
	if err != nil {
		e.logger.Error("Catalog rejected", zap.Error(err))
		return nil, fmt.Errorf("validating catalog dependencies: %w", err)
	}
	for _, d := range g.Dangling() {
		e.logger.Warn("Dangling dependency in catalog",
			zap.String("bundle_id", d.From),
			zap.String("missing", d.Missing),
		)
	}

	report := diff.Compare(e.Snapshot().Entries, cat.Bundles)
	for _, id := range report.Orphaned {
		e.logger.Warn("Local bundle no longer offered by origin", zap.String("bundle_id", id))
	}

	e.mu.Lock()
	e.remote = cat
	e.remoteGraph = g
	e.mu.Unlock()

	e.logger.Info("Catalog fetched",
		zap.String("origin", cat.Origin.ID),
		zap.Int("bundles", len(cat.Bundles)),
		zap.Int("up_to_date", len(report.UpToDate)),
		zap.Int("stale", len(report.Stale)),
		zap.Int("remote_only", len(report.RemoteOnly)),
		zap.Int("orphaned", len(report.Orphaned)),
	)
	return report, nil
}

// SyncOne downloads d and the dependencies it needs, dependencies first.
// Up-to-date dependencies are skipped. A dependency that is missing from the
// catalog or fails to download is logged and d is still synced. The returned
// error concerns d alone.
func (e *Engine) SyncOne(ctx context.Context, d bundle.Descriptor) error {
	_, err := e.syncOne(ctx, d, nil)
	return err
}

func (e *Engine) syncOne(ctx context.Context, d bundle.Descriptor, b *batch) (bool, error) {
	plan, err := e.plan(d)
	if err != nil {
		return false, err
	}

	for _, dep := range plan[:len(plan)-1] {
		if b != nil && b.synced(dep.ID) {
			continue
		}
		if _, err := e.install(ctx, dep, b); err != nil {
			e.logger.Warn("Dependency sync failed",
				zap.String("bundle_id", d.ID),
				zap.String("dependency", dep.ID),
				zap.Error(err),
			)
		}
	}
	return e.install(ctx, d, b)
}

// plan returns d's closure as descriptors, dependencies first and d last,
// resolved against the last catalog snapshot with d taking precedence.
func (e *Engine) plan(d bundle.Descriptor) ([]bundle.Descriptor, error) {
	var snapshot []bundle.Descriptor
	if remote := e.Remote(); remote != nil {
		snapshot = remote.Bundles
	}

	descs := make([]bundle.Descriptor, 0, len(snapshot)+1)
	byID := make(map[string]bundle.Descriptor, len(snapshot)+1)
	replaced := false
	for _, s := range snapshot {
		if s.ID == d.ID {
			s = d
			replaced = true
		}
		descs = append(descs, s)
		byID[s.ID] = s
	}
	if !replaced {
		descs = append(descs, d)
		byID[d.ID] = d
	}

	g, err := graph.Build(descs)
	if err != nil {
		return nil, fmt.Errorf("resolving dependencies of %s: %w", d.ID, err)
	}
	for _, m := range g.MissingFrom(d.ID) {
		e.logger.Warn("Dependency missing from catalog",
			zap.String("bundle_id", m.From),
			zap.String("missing", m.Missing),
		)
	}

	closure, err := g.Closure(d.ID)
	if err != nil {
		return nil, err
	}
	plan := make([]bundle.Descriptor, len(closure))
	for i, id := range closure {
		plan[i] = byID[id]
	}
	return plan, nil
}

// install brings one bundle up to date. It reports false when the local copy
// already matched. Payloads are fully downloaded before anything is written.
func (e *Engine) install(ctx context.Context, d bundle.Descriptor, b *batch) (bool, error) {
	unlock := e.ids.Lock(d.ID)
	defer unlock()

	if entry, ok := e.Entry(d.ID); ok && entry.ContentHash == d.ContentHash {
		return false, nil
	}

	log := e.logger.With(zap.String("bundle_id", d.ID), zap.Int("version", d.Version))
	log.Debug("Downloading bundle")

	payload, err := e.client.FetchPayload(ctx, d.PayloadLocator)
	if err != nil {
		return false, &bundle.PayloadDownloadError{ID: d.ID, Cause: err}
	}
	var manifest []byte
	if d.ManifestLocator != "" {
		manifest, err = e.client.FetchPayload(ctx, d.ManifestLocator)
		if err != nil {
			return false, &bundle.PayloadDownloadError{ID: d.ID, Cause: fmt.Errorf("manifest: %w", err)}
		}
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	// New files go next to the ones the index points to. They replace them
	// only once the index entry naming them is persisted.
	var manifestPath string
	if manifest != nil {
		if manifestPath, err = e.payloads.WriteManifest(d.ID, d.ContentHash, manifest); err != nil {
			return false, fmt.Errorf("storing manifest for %s: %w", d.ID, err)
		}
	}
	payloadPath, err := e.payloads.Write(d.ID, d.ContentHash, payload)
	if err != nil {
		e.discard(log, manifestPath)
		return false, fmt.Errorf("storing payload for %s: %w", d.ID, err)
	}
	e.metrics.AddSyncBytes(len(payload) + len(manifest))

	entry := bundle.EntryFromDescriptor(d, payloadPath, manifestPath, e.now())
	origin := e.origin()
	err = e.commit(ctx, func(idx *bundle.Index) {
		idx.Upsert(entry)
		if origin.ID != "" || origin.Name != "" {
			idx.Meta.OriginID = origin.ID
			idx.Meta.OriginName = origin.Name
		}
	})
	if err != nil {
		e.discard(log, payloadPath, manifestPath)
		return false, err
	}
	if err := e.payloads.Retain(d.ID, payloadPath, manifestPath); err != nil {
		log.Warn("Removing superseded files failed", zap.Error(err))
	}

	if b != nil {
		b.mark(d.ID)
	}
	log.Info("Bundle synced", zap.Int("bytes", len(payload)))
	return true, nil
}

// discard removes files written for a sync that did not commit.
func (e *Engine) discard(log *zap.Logger, paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := e.payloads.Discard(path); err != nil {
			log.Warn("Removing uncommitted file failed", zap.String("path", path), zap.Error(err))
		}
	}
}

func (e *Engine) origin() catalog.Origin {
	if remote := e.Remote(); remote != nil {
		return remote.Origin
	}
	return catalog.Origin{}
}

// commit applies mutate to a copy of the index, persists the copy, and only
// then makes it the in-memory index.
func (e *Engine) commit(ctx context.Context, mutate func(*bundle.Index)) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	next := e.Snapshot()
	mutate(next)
	if err := e.store.Save(ctx, next); err != nil {
		return fmt.Errorf("persisting index: %w", err)
	}

	e.mu.Lock()
	e.local = next
	e.mu.Unlock()
	return nil
}
