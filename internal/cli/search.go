package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nebula-labs/nebula/internal/bundle"
)

var (
	searchMetaFilter string
	searchJSON       bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the remote catalog",
	Long: `Search the bundles offered by the remote catalog.

The query matches against bundle ids, display names and release notes
(case-insensitive substring). Use --meta key=value to filter by metadata.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchMetaFilter, "meta", "", "Filter by metadata (key=value)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(searchCmd)
}

// searchEntry represents a catalog bundle for display.
type searchEntry struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Version int    `json:"version"`
	Status  string `json:"status"`
	Notes   string `json:"notes,omitempty"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := ""
	if len(args) > 0 {
		query = args[0]
	}
	metaKey, metaValue, hasMeta := strings.Cut(searchMetaFilter, "=")
	if searchMetaFilter != "" && !hasMeta {
		return fmt.Errorf("--meta must be key=value, got %q", searchMetaFilter)
	}

	return withApp(cmd.Context(), func(a *app) error {
		report, err := a.engine.Fetch(cmd.Context())
		if err != nil {
			return err
		}

		var entries []searchEntry
		for _, d := range report.Remote {
			if !matchesSearch(d, query, metaKey, metaValue) {
				continue
			}
			entries = append(entries, searchEntry{
				ID:      d.ID,
				Name:    d.DisplayName,
				Version: d.Version,
				Status:  localStatus(a, d),
				Notes:   d.Notes,
			})
		}

		if len(entries) == 0 {
			msg := "No bundles found"
			if query != "" {
				msg += fmt.Sprintf(" matching %q", query)
			}
			if searchMetaFilter != "" {
				msg += fmt.Sprintf(" with --meta=%s", searchMetaFilter)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		}

		if searchJSON {
			out, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling search results: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tVERSION\tSTATUS")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.ID, e.Name, e.Version, e.Status)
		}
		return w.Flush()
	})
}

func localStatus(a *app, d bundle.Descriptor) string {
	entry, ok := a.engine.Entry(d.ID)
	switch {
	case !ok:
		return "remote"
	case entry.ContentHash == d.ContentHash:
		return "synced"
	default:
		return "stale"
	}
}

// matchesSearch reports whether d matches the query and the optional metadata
// filter. An empty query matches everything.
func matchesSearch(d bundle.Descriptor, query, metaKey, metaValue string) bool {
	if metaKey != "" && d.Metadata[metaKey] != metaValue {
		return false
	}
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	for _, field := range []string{d.ID, d.DisplayName, d.Notes} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
