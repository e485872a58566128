package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nebula-labs/nebula/internal/bundle"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local bundles",
	Long:  `List every bundle recorded in the local index.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

// listEntry represents a local bundle for display.
type listEntry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Version      int       `json:"version"`
	ContentHash  string    `json:"contentHash"`
	Dependencies []string  `json:"dependencies,omitempty"`
	SyncedAt     time.Time `json:"syncedAt"`
}

func runList(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		idx := a.engine.Snapshot()
		if idx.Len() == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No bundles synced yet.")
			return nil
		}

		entries := make([]listEntry, 0, idx.Len())
		for _, e := range idx.Entries {
			entries = append(entries, toListEntry(e))
		}
		if listJSON {
			out, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling list: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tVERSION\tHASH\tDEPENDENCIES\tSYNCED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n", e.ID, e.Version, shortHash(e.ContentHash), len(e.Dependencies), e.SyncedAt.Format(time.DateTime))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if origin := idx.Meta.OriginName; origin != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d bundles from %s, last sync %s\n", idx.Len(), origin, idx.Meta.LastSync.Format(time.DateTime))
		}
		return nil
	})
}

func toListEntry(e bundle.IndexEntry) listEntry {
	return listEntry{
		ID:           e.ID,
		Name:         e.DisplayName,
		Version:      e.Version,
		ContentHash:  e.ContentHash,
		Dependencies: e.Dependencies,
		SyncedAt:     e.SyncedAt,
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
