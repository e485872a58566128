package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nebula-labs/nebula/internal/registry"
)

var loadAllowMissing bool

func init() {
	loadCmd.Flags().BoolVar(&loadAllowMissing, "allow-missing", false, "Skip dependencies that are not synced locally")
	rootCmd.AddCommand(loadCmd)
}

var loadCmd = &cobra.Command{
	Use:   "load <id>...",
	Short: "Load local bundles and their dependencies",
	Long: `Load each bundle and its dependency closure from local storage, report what
was loaded, and unload everything again. Use it to verify that synced bundles
are complete and readable.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			reg := a.newRegistry(registry.WithMissingDependencies(loadAllowMissing))

			var loaded []string
			for _, id := range args {
				if _, err := reg.Load(cmd.Context(), id); err != nil {
					return errors.Join(fmt.Errorf("loading %s: %w", id, err), unloadAll(cmd, reg, loaded))
				}
				loaded = append(loaded, id)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tVERSION\tBYTES\tREFS\tREQUIRED BY")
			for _, id := range reg.Loaded() {
				h, err := reg.Load(cmd.Context(), id)
				if err != nil {
					return err
				}
				size := 0
				if p, ok := h.Resource.(*registry.Payload); ok {
					size = len(p.Data)
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%v\n", id, h.Version, size, reg.RefCount(id)-1, reg.Dependents(id))
				if err := reg.Unload(cmd.Context(), id); err != nil {
					return err
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}
			return unloadAll(cmd, reg, loaded)
		})
	},
}

func unloadAll(cmd *cobra.Command, reg *registry.Registry, ids []string) error {
	var errs []error
	for i := len(ids) - 1; i >= 0; i-- {
		if err := reg.Unload(cmd.Context(), ids[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
