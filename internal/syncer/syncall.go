package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/nebula-labs/nebula/internal/bundle"
	"github.com/nebula-labs/nebula/internal/diff"
	"github.com/nebula-labs/nebula/internal/metrics"
)

// Status is the result of syncing one bundle in a batch.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Outcome records what happened to one bundle id.
type Outcome struct {
	ID     string
	Status Status
	Reason string
	Err    error
}

// Summary describes one SyncAll run.
type Summary struct {
	RunID     uuid.UUID
	StartedAt time.Time
	Duration  time.Duration
	Outcomes  []Outcome

	// CheckpointErr is set when the final index checkpoint failed.
	CheckpointErr error
}

// Succeeded returns the number of bundles synced.
func (s *Summary) Succeeded() int { return s.count(StatusSuccess) }

// Failed returns the number of bundles that failed.
func (s *Summary) Failed() int { return s.count(StatusFailed) }

// Skipped returns the number of bundles skipped.
func (s *Summary) Skipped() int { return s.count(StatusSkipped) }

func (s *Summary) count(status Status) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Outcome returns the outcome for id.
func (s *Summary) Outcome(id string) (Outcome, bool) {
	for _, o := range s.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return Outcome{}, false
}

// Err joins every failure of the run, or returns nil.
func (s *Summary) Err() error {
	var errs []error
	for _, o := range s.Outcomes {
		if o.Status == StatusFailed {
			errs = append(errs, fmt.Errorf("%s: %w", o.ID, o.Err))
		}
	}
	if s.CheckpointErr != nil {
		errs = append(errs, s.CheckpointErr)
	}
	return errors.Join(errs...)
}

// batch tracks bundles synced during one SyncAll run, including those synced
// as another bundle's dependency.
type batch struct {
	mu   sync.Mutex
	done map[string]bool
}

func newBatch() *batch {
	return &batch{done: make(map[string]bool)}
}

func (b *batch) mark(id string) {
	b.mu.Lock()
	b.done[id] = true
	b.mu.Unlock()
}

func (b *batch) synced(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done[id]
}

// SyncAll syncs every stale bundle of report, then every remote-only bundle.
// The second phase starts only after the first has finished. A failure is
// recorded in the summary and never stops other bundles. The index is
// checkpointed with a new LastSync stamp at the end.
func (e *Engine) SyncAll(ctx context.Context, report *diff.Report) *Summary {
	start := time.Now()
	s := &Summary{
		RunID:     uuid.New(),
		StartedAt: e.now(),
	}
	log := e.logger.With(zap.String("run_id", s.RunID.String()))
	log.Info("Sync started",
		zap.Int("stale", len(report.Stale)),
		zap.Int("remote_only", len(report.RemoteOnly)),
		zap.Int("concurrency", e.concurrency),
	)

	b := newBatch()
	for _, phase := range [][]string{report.Stale, report.RemoteOnly} {
		s.Outcomes = append(s.Outcomes, e.runPhase(ctx, report, phase, b)...)
	}

	if err := e.commit(ctx, func(idx *bundle.Index) {
		idx.Meta.LastSync = e.now()
	}); err != nil {
		s.CheckpointErr = err
		log.Error("Index checkpoint failed", zap.Error(err))
	}

	s.Duration = time.Since(start)
	log.Info("Sync finished",
		zap.Int("succeeded", s.Succeeded()),
		zap.Int("failed", s.Failed()),
		zap.Int("skipped", s.Skipped()),
		zap.Duration("duration", s.Duration),
	)
	return s
}

func (e *Engine) runPhase(ctx context.Context, report *diff.Report, ids []string, b *batch) []Outcome {
	outcomes := make([]Outcome, len(ids))
	sem := semaphore.NewWeighted(int64(e.concurrency))
	var wg sync.WaitGroup

	for i, id := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = Outcome{ID: id, Status: StatusFailed, Reason: err.Error(), Err: err}
			e.metrics.SyncOutcome(metrics.OutcomeFailed)
			continue
		}
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = e.syncEntry(ctx, report, id, b)
		}(i, id)
	}
	wg.Wait()
	return outcomes
}

func (e *Engine) syncEntry(ctx context.Context, report *diff.Report, id string, b *batch) Outcome {
	o := e.resolveEntry(ctx, report, id, b)
	switch o.Status {
	case StatusSuccess:
		e.metrics.SyncOutcome(metrics.OutcomeSuccess)
	case StatusFailed:
		e.metrics.SyncOutcome(metrics.OutcomeFailed)
		e.logger.Warn("Bundle sync failed", zap.String("bundle_id", id), zap.Error(o.Err))
	case StatusSkipped:
		e.metrics.SyncOutcome(metrics.OutcomeSkipped)
		e.logger.Debug("Bundle skipped", zap.String("bundle_id", id), zap.String("reason", o.Reason))
	}
	return o
}

func (e *Engine) resolveEntry(ctx context.Context, report *diff.Report, id string, b *batch) Outcome {
	d, ok := report.Descriptor(id)
	if !ok {
		return Outcome{ID: id, Status: StatusSkipped, Reason: "not in catalog snapshot"}
	}
	if b.synced(id) {
		if entry, ok := e.Entry(id); ok && entry.ContentHash == d.ContentHash {
			return Outcome{ID: id, Status: StatusSkipped, Reason: "synced earlier in this run as a dependency"}
		}
	}

	synced, err := e.syncOne(ctx, d, b)
	if err != nil {
		return Outcome{ID: id, Status: StatusFailed, Reason: err.Error(), Err: err}
	}
	if !synced {
		return Outcome{ID: id, Status: StatusSkipped, Reason: "already up to date"}
	}
	return Outcome{ID: id, Status: StatusSuccess}
}
