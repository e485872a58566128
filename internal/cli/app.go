package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/nebula-labs/nebula/internal/catalog"
	"github.com/nebula-labs/nebula/internal/config"
	"github.com/nebula-labs/nebula/internal/index"
	"github.com/nebula-labs/nebula/internal/logging"
	"github.com/nebula-labs/nebula/internal/metrics"
	"github.com/nebula-labs/nebula/internal/registry"
	"github.com/nebula-labs/nebula/internal/storage"
	"github.com/nebula-labs/nebula/internal/syncer"
)

// app holds the components a command works with, built from the decoded
// configuration.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    index.Store
	backend  *storage.FileBackend
	client   catalog.Client
	engine   *syncer.Engine
}

// newApp loads configuration and wires the engine. The index is loaded from
// the store before newApp returns.
func newApp(ctx context.Context) (*app, error) {
	config.Load()
	cfg, err := config.Decode()
	if err != nil {
		return nil, err
	}
	if err := config.EnsureDir(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	backend, err := storage.NewFileBackend(cfg.Storage.Root)
	if err != nil {
		return nil, err
	}
	store, err := index.Open(cfg.Storage.IndexBackend, config.Dir())
	if err != nil {
		return nil, err
	}
	client, err := catalog.Open(cfg.Origin.URL,
		catalog.WithTimeout(cfg.Origin.Timeout),
		catalog.WithUserAgent(cfg.Origin.UserAgent),
	)
	if err != nil {
		_ = index.Close(store)
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  m,
		store:    store,
		backend:  backend,
		client:   client,
	}
	a.engine = syncer.New(client, store, backend,
		syncer.WithLogger(logger),
		syncer.WithMetrics(m),
		syncer.WithConcurrency(cfg.Sync.Concurrency),
	)
	if err := a.engine.Open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// newRegistry returns a bundle registry reading payloads from local storage.
func (a *app) newRegistry(opts ...registry.Option) *registry.Registry {
	opts = append([]registry.Option{
		registry.WithLogger(a.logger),
		registry.WithMetrics(a.metrics),
	}, opts...)
	return registry.New(a.engine, registry.NewStorageLoader(a.backend, a.metrics), opts...)
}

// Close releases the index store and flushes the logger.
func (a *app) Close() error {
	err := index.Close(a.store)
	_ = a.logger.Sync()
	if err != nil {
		return fmt.Errorf("closing index: %w", err)
	}
	return nil
}

// withApp runs fn with a freshly built app and closes it afterwards.
func withApp(ctx context.Context, fn func(a *app) error) (err error) {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	return fn(a)
}
