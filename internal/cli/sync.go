package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nebula-labs/nebula/internal/bundle"
	"github.com/nebula-labs/nebula/internal/syncer"
)

var (
	syncPrune bool
	syncOnly  []string
)

func init() {
	syncCmd.Flags().BoolVar(&syncPrune, "prune", false, "Evict local bundles the origin no longer offers (default from sync.prune_orphans)")
	syncCmd.Flags().StringSliceVar(&syncOnly, "only", nil, "Sync only the given bundle ids and their dependencies")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download new and updated bundles",
	Long: `Fetch the remote catalog and download every stale or new bundle,
dependencies first. Failures of individual bundles are reported without
stopping the others.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			prune := a.cfg.Sync.PruneOrphans
			if cmd.Flags().Changed("prune") {
				prune = syncPrune
			}
			if len(syncOnly) > 0 {
				return syncSelected(cmd.Context(), cmd.OutOrStdout(), a, syncOnly)
			}
			return runSync(cmd.Context(), cmd.OutOrStdout(), a, prune)
		})
	},
}

// runSync performs one fetch and full sync, optionally pruning orphans.
func runSync(ctx context.Context, w io.Writer, a *app, prune bool) error {
	report, err := a.engine.Fetch(ctx)
	if err != nil {
		return err
	}
	summary := a.engine.SyncAll(ctx, report)
	printSummary(w, summary)

	if prune && len(report.Orphaned) > 0 {
		removed, err := a.engine.Prune(ctx, report)
		for _, id := range removed {
			fmt.Fprintf(w, "Evicted %s\n", id)
		}
		if err != nil {
			a.logger.Error("Prune failed", zap.Error(err))
			return errors.Join(summary.Err(), err)
		}
	}
	return summary.Err()
}

func syncSelected(ctx context.Context, w io.Writer, a *app, ids []string) error {
	report, err := a.engine.Fetch(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		d, ok := report.Descriptor(id)
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", id, bundle.ErrUnknownBundle))
			continue
		}
		if err := a.engine.SyncOne(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			fmt.Fprintf(w, "  [FAIL] %s: %v\n", id, err)
			continue
		}
		fmt.Fprintf(w, "  [ OK ] %s (version %d)\n", id, d.Version)
	}
	return errors.Join(errs...)
}

func printSummary(w io.Writer, s *syncer.Summary) {
	for _, o := range s.Outcomes {
		switch o.Status {
		case syncer.StatusSuccess:
			fmt.Fprintf(w, "  [ OK ] %s\n", o.ID)
		case syncer.StatusFailed:
			fmt.Fprintf(w, "  [FAIL] %s: %s\n", o.ID, o.Reason)
		case syncer.StatusSkipped:
			fmt.Fprintf(w, "  [SKIP] %s: %s\n", o.ID, o.Reason)
		}
	}
	fmt.Fprintf(w, "Synced %d, failed %d, skipped %d in %s.\n",
		s.Succeeded(), s.Failed(), s.Skipped(), s.Duration.Round(time.Millisecond))
}
