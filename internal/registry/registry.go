package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nebula-labs/nebula/internal/bundle"
	"github.com/nebula-labs/nebula/internal/graph"
	"github.com/nebula-labs/nebula/internal/metrics"
)

// Handle is a loaded bundle. Every Load of the same live id returns the same
// *Handle.
type Handle struct {
	ID          string
	Version     int
	ContentHash string
	Resource    any
}

// slot is the table entry of a live bundle. refCount counts explicit loads
// plus live direct dependents.
type slot struct {
	handle     *Handle
	refCount   int
	explicit   int
	deps       []string
	dependents map[string]struct{}
}

// read is a resource read outside the lock. Loads that coalesce on the same
// read share one *read; the first to install or discard it claims it, so a
// resource is installed at most once and released at most once. claimed is
// guarded by Registry.mu.
type read struct {
	resource any
	claimed  bool
}

// Registry is the runtime table of loaded bundles.
type Registry struct {
	source       IndexSource
	loader       Loader
	logger       *zap.Logger
	metrics      *metrics.Metrics
	allowMissing bool

	mu   sync.Mutex
	live map[string]*slot

	loads singleflight.Group // keyed by requested root
	reads singleflight.Group // keyed by bundle id
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. The default discards all output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithMissingDependencies makes Load skip dependencies that are not in the
// local index instead of failing.
func WithMissingDependencies(allow bool) Option {
	return func(r *Registry) {
		r.allowMissing = allow
	}
}

// New creates an empty registry resolving bundles against source.
func New(source IndexSource, loader Loader, opts ...Option) *Registry {
	r := &Registry{
		source: source,
		loader: loader,
		logger: zap.NewNop(),
		live:   make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load returns the handle for id, loading id and its dependency closure when
// id is not live. Each successful call adds one reference that a matching
// Unload releases.
//
// A bundle missing from the local index fails with *bundle.NotLocalError. A
// dependency missing from the local index fails with
// *bundle.MissingDependencyError unless WithMissingDependencies is set.
func (r *Registry) Load(ctx context.Context, id string) (*Handle, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r.mu.Lock()
		if s, ok := r.live[id]; ok {
			s.refCount++
			s.explicit++
			r.mu.Unlock()
			r.metrics.Load(metrics.ResultHit)
			return s.handle, nil
		}
		r.mu.Unlock()

		v, err, _ := r.loads.Do(id, func() (any, error) {
			return r.loadClosure(ctx, id)
		})
		if err != nil {
			r.metrics.Load(metrics.ResultError)
			return nil, err
		}
		h := v.(*Handle)

		r.mu.Lock()
		s, ok := r.live[id]
		if ok && s.handle == h {
			s.refCount++
			s.explicit++
			r.metrics.SetLoaded(len(r.live))
			r.mu.Unlock()
			r.metrics.Load(metrics.ResultMiss)
			return h, nil
		}
		r.mu.Unlock()
		// Released by a dependent's unload before this caller took its
		// reference.
		r.logger.Debug("Bundle released during load, retrying", zap.String("bundle_id", id))
	}
}

// loadClosure makes every member of id's closure live and returns id's handle
// without adding an explicit reference.
func (r *Registry) loadClosure(ctx context.Context, id string) (*Handle, error) {
	snap := r.source.Snapshot()
	if _, ok := snap.Get(id); !ok {
		return nil, &bundle.NotLocalError{ID: id}
	}

	g, err := graph.FromIndex(snap.Entries)
	if err != nil {
		return nil, fmt.Errorf("resolving dependencies of %s: %w", id, err)
	}
	for _, m := range g.MissingFrom(id) {
		if !r.allowMissing {
			return nil, &bundle.MissingDependencyError{ID: m.From, DepID: m.Missing}
		}
		r.logger.Warn("Dependency not available locally",
			zap.String("bundle_id", m.From),
			zap.String("missing", m.Missing),
		)
	}
	order, err := g.Closure(id)
	if err != nil {
		return nil, err
	}

	reads := make(map[string]*read)
	for {
		if err := r.readMissing(ctx, snap, order, reads); err != nil {
			r.discard(reads)
			return nil, err
		}

		r.mu.Lock()
		if !r.ready(order, reads) {
			// A member was unloaded, or its shared read was taken by
			// another load, between the read pass and now.
			r.mu.Unlock()
			continue
		}
		for _, cid := range order {
			if _, ok := r.live[cid]; ok {
				continue
			}
			entry, _ := snap.Get(cid)
			rd := reads[cid]
			rd.claimed = true
			r.install(entry, g.Deps(cid), rd.resource)
			delete(reads, cid)
		}
		h := r.live[id].handle
		r.mu.Unlock()

		r.discard(reads)
		r.logger.Info("Bundle loaded", zap.String("bundle_id", id), zap.Strings("closure", order))
		return h, nil
	}
}

// readMissing reads every closure member that is neither live nor already
// read. Reads of the same id by concurrent loads are coalesced.
func (r *Registry) readMissing(ctx context.Context, snap *bundle.Index, order []string, reads map[string]*read) error {
	for _, cid := range order {
		if _, ok := reads[cid]; ok || r.IsLoaded(cid) {
			continue
		}
		entry, _ := snap.Get(cid)
		v, err, _ := r.reads.Do(cid, func() (any, error) {
			res, err := r.loader.Load(ctx, entry)
			if err != nil {
				return nil, err
			}
			return &read{resource: res}, nil
		})
		if err != nil {
			return err
		}
		reads[cid] = v.(*read)
	}
	return nil
}

// ready reports whether every member is live or has an unclaimed read. Reads
// claimed by another load are dropped so the next pass reads them again. r.mu
// must be held.
func (r *Registry) ready(order []string, reads map[string]*read) bool {
	ok := true
	for _, cid := range order {
		if _, live := r.live[cid]; live {
			continue
		}
		rd, found := reads[cid]
		if found && rd.claimed {
			delete(reads, cid)
			found = false
		}
		if !found {
			ok = false
		}
	}
	return ok
}

// install adds a live slot for entry and references its live direct
// dependencies. r.mu must be held.
func (r *Registry) install(entry bundle.IndexEntry, deps []string, resource any) {
	s := &slot{
		handle: &Handle{
			ID:          entry.ID,
			Version:     entry.Version,
			ContentHash: entry.ContentHash,
			Resource:    resource,
		},
		dependents: make(map[string]struct{}),
	}
	for _, dep := range deps {
		d, ok := r.live[dep]
		if !ok {
			continue
		}
		d.refCount++
		d.dependents[entry.ID] = struct{}{}
		s.deps = append(s.deps, dep)
	}
	r.live[entry.ID] = s
}

// discard releases resources that were read but never installed. A read
// shared with another load is released by whichever load claims it first.
func (r *Registry) discard(reads map[string]*read) {
	r.mu.Lock()
	unused := make(map[string]*read, len(reads))
	for id, rd := range reads {
		if rd.claimed {
			continue
		}
		rd.claimed = true
		unused[id] = rd
	}
	r.mu.Unlock()

	for id, rd := range unused {
		if err := r.loader.Release(id, rd.resource); err != nil {
			r.logger.Warn("Releasing unused resource failed", zap.String("bundle_id", id), zap.Error(err))
		}
	}
}

// Unload drops one reference taken by Load. When id's count reaches zero its
// resource is released and its direct dependencies are unreferenced in
// reverse order, cascading. The local index is never touched.
//
// Unloading an id with no live handle fails with *bundle.NotLoadedError. An id
// held only by its dependents fails with bundle.ErrStillRequired.
func (r *Registry) Unload(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	s, ok := r.live[id]
	if !ok || s.refCount == 0 {
		r.mu.Unlock()
		return &bundle.NotLoadedError{ID: id}
	}
	if s.explicit == 0 {
		dependents := sortedKeys(s.dependents)
		r.mu.Unlock()
		return fmt.Errorf("unloading %s (required by %v): %w", id, dependents, bundle.ErrStillRequired)
	}
	s.explicit--
	released := r.unref(id, nil)
	loaded := len(r.live)
	r.mu.Unlock()

	var errs []error
	for _, rs := range released {
		if err := r.loader.Release(rs.handle.ID, rs.handle.Resource); err != nil {
			errs = append(errs, fmt.Errorf("releasing %s: %w", rs.handle.ID, err))
		}
	}
	r.metrics.Unloaded(len(released))
	r.metrics.SetLoaded(loaded)

	if len(released) > 0 {
		ids := make([]string, len(released))
		for i, rs := range released {
			ids[i] = rs.handle.ID
		}
		r.logger.Info("Bundles unloaded", zap.String("bundle_id", id), zap.Strings("released", ids))
	}
	return errors.Join(errs...)
}

// unref drops one reference to id and appends every slot that left the table.
// r.mu must be held.
func (r *Registry) unref(id string, out []*slot) []*slot {
	s := r.live[id]
	s.refCount--
	if s.refCount > 0 {
		return out
	}
	delete(r.live, id)
	out = append(out, s)
	for _, dep := range slices.Backward(s.deps) {
		d, ok := r.live[dep]
		if !ok {
			continue
		}
		delete(d.dependents, id)
		out = r.unref(dep, out)
	}
	return out
}

// RefCount returns the reference count of id, zero when not live.
func (r *Registry) RefCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.live[id]; ok {
		return s.refCount
	}
	return 0
}

// Dependents returns the sorted ids of live bundles that depend on id.
func (r *Registry) Dependents(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.live[id]; ok {
		return sortedKeys(s.dependents)
	}
	return nil
}

// Loaded returns the sorted ids of all live bundles.
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.live))
	for id := range r.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsLoaded reports whether id has a live handle.
func (r *Registry) IsLoaded(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[id]
	return ok
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
