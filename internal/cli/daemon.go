package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nebula-labs/nebula/internal/server"
)

func init() {
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Keep bundles in sync continuously",
	Long: `Run the initial sync when no bundles are present, then fetch and sync every
sync.interval. Prometheus metrics and health endpoints are served on
metrics.addr. Stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return withApp(ctx, func(a *app) error {
			return runDaemon(ctx, a)
		})
	},
}

func runDaemon(ctx context.Context, a *app) error {
	var ready atomic.Bool
	status := server.New(server.Config{
		Addr:     a.cfg.Metrics.Addr,
		Gatherer: a.registry,
		Ready: func() error {
			if !ready.Load() {
				return errors.New("initial sync not finished")
			}
			return nil
		},
	}, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return status.Serve(gctx)
	})
	g.Go(func() error {
		if _, err := a.engine.Init(gctx); err != nil {
			// The origin may be down at startup; the loop retries.
			a.logger.Warn("Initial sync failed", zap.Error(err))
		}
		ready.Store(true)
		return syncLoop(gctx, a)
	})

	a.logger.Info("Daemon started",
		zap.String("origin", a.cfg.Origin.URL),
		zap.Duration("interval", a.cfg.Sync.Interval),
	)
	err := g.Wait()
	if ctx.Err() != nil {
		// Shutdown requested.
		err = nil
	}
	a.logger.Info("Daemon stopped")
	return err
}

func syncLoop(ctx context.Context, a *app) error {
	ticker := time.NewTicker(a.cfg.Sync.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		report, err := a.engine.Fetch(ctx)
		if err != nil {
			continue
		}
		summary := a.engine.SyncAll(ctx, report)
		if err := summary.Err(); err != nil {
			a.logger.Warn("Sync run had failures", zap.Error(err))
		}
		if a.cfg.Sync.PruneOrphans && len(report.Orphaned) > 0 {
			if _, err := a.engine.Prune(ctx, report); err != nil {
				a.logger.Error("Prune failed", zap.Error(err))
			}
		}
	}
}
