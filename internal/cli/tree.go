package cli

import (
	"github.com/spf13/cobra"

	"github.com/nebula-labs/nebula/internal/graph"
)

var treeRemote bool

func init() {
	treeCmd.Flags().BoolVar(&treeRemote, "remote", false, "Resolve against the remote catalog instead of the local index")
	rootCmd.AddCommand(treeCmd)
}

var treeCmd = &cobra.Command{
	Use:   "tree <id>",
	Short: "Show a bundle's dependency tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if treeRemote {
				if _, err := a.engine.Fetch(cmd.Context()); err != nil {
					return err
				}
			}
			g, err := a.engine.Graph()
			if err != nil {
				return err
			}
			root, err := g.Tree(args[0])
			if err != nil {
				return err
			}
			graph.PrintTree(cmd.OutOrStdout(), root)
			return nil
		})
	},
}
