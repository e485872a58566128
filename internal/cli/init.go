package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nebula-labs/nebula/internal/branding"
	"github.com/nebula-labs/nebula/internal/config"
)

var initSkipSync bool

func init() {
	initCmd.Flags().BoolVar(&initSkipSync, "no-sync", false, "Only write configuration, do not run the initial sync")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize " + branding.DisplayName(),
	Long: `Create the configuration directory, remember the catalog origin when
--origin is given, and run the initial sync when no bundles are present.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.EnsureDir(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Initializing %s at %s\n", branding.DisplayName(), config.Dir())

		if origin, _ := cmd.Flags().GetString("origin"); origin != "" {
			config.Load()
			if err := config.Set("origin.url", origin); err != nil {
				return fmt.Errorf("saving origin: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Origin set to %s\n", origin)
		}
		if initSkipSync {
			return nil
		}

		return withApp(cmd.Context(), func(a *app) error {
			summary, err := a.engine.Init(cmd.Context())
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Initial sync failed: %v\n", err)
				fmt.Fprintf(cmd.OutOrStdout(), "Run '%s sync' later to retry.\n", branding.CLIName())
				return err
			}
			if summary == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%d bundles already present.\n", a.engine.Snapshot().Len())
				return nil
			}
			printSummary(cmd.OutOrStdout(), summary)
			return summary.Err()
		})
	},
}
