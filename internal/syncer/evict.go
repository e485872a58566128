package syncer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nebula-labs/nebula/internal/bundle"
	"github.com/nebula-labs/nebula/internal/diff"
)

// Evict removes id from the index and then deletes its stored files. The
// index is persisted first, so a crash never leaves an entry without a
// payload.
func (e *Engine) Evict(ctx context.Context, id string) error {
	unlock := e.ids.Lock(id)
	defer unlock()

	if _, ok := e.Entry(id); !ok {
		return &bundle.NotLocalError{ID: id}
	}
	if err := e.commit(ctx, func(idx *bundle.Index) {
		idx.Remove(id)
	}); err != nil {
		return err
	}
	if err := e.payloads.Remove(id); err != nil {
		return fmt.Errorf("removing files of %s: %w", id, err)
	}
	e.logger.Info("Bundle evicted", zap.String("bundle_id", id))
	return nil
}

// Prune evicts every bundle the report lists as orphaned and returns the ids
// it removed.
func (e *Engine) Prune(ctx context.Context, report *diff.Report) ([]string, error) {
	var (
		removed []string
		errs    []error
	)
	for _, id := range report.Orphaned {
		err := e.Evict(ctx, id)
		switch {
		case err == nil:
			removed = append(removed, id)
		case errors.Is(err, bundle.ErrNotLocal):
			// Already gone.
		default:
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

// Clear evicts every local bundle and persists an empty index.
func (e *Engine) Clear(ctx context.Context) error {
	ids := e.Snapshot().IDs()

	if err := e.commit(ctx, func(idx *bundle.Index) {
		idx.Entries = []bundle.IndexEntry{}
	}); err != nil {
		return err
	}

	var errs []error
	for _, id := range ids {
		unlock := e.ids.Lock(id)
		if err := e.payloads.Remove(id); err != nil {
			errs = append(errs, fmt.Errorf("removing files of %s: %w", id, err))
		}
		unlock()
	}
	e.logger.Info("Index cleared", zap.Int("bundles", len(ids)))
	return errors.Join(errs...)
}
