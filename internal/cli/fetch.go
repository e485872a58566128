package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nebula-labs/nebula/internal/diff"
)

var fetchJSON bool

func init() {
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "Output the comparison report as JSON")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Compare the remote catalog with local bundles",
	Long: `Fetch the remote catalog and report which bundles are up to date, stale,
only available remotely, or no longer offered. Nothing is downloaded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			report, err := a.engine.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			if fetchJSON {
				return printReportJSON(cmd.OutOrStdout(), report)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		})
	},
}

type reportJSON struct {
	UpToDate   []string `json:"upToDate"`
	Stale      []string `json:"stale"`
	RemoteOnly []string `json:"remoteOnly"`
	Orphaned   []string `json:"orphaned"`
}

func printReportJSON(w io.Writer, r *diff.Report) error {
	out, err := json.MarshalIndent(reportJSON{
		UpToDate:   r.UpToDate,
		Stale:      r.Stale,
		RemoteOnly: r.RemoteOnly,
		Orphaned:   r.Orphaned,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	fmt.Fprintln(w, string(out))
	return nil
}

func printReport(w io.Writer, r *diff.Report) {
	fmt.Fprintf(w, "Up to date:  %d\n", len(r.UpToDate))
	printIDs(w, "Stale", r.Stale)
	printIDs(w, "Remote only", r.RemoteOnly)
	printIDs(w, "Orphaned", r.Orphaned)
	if r.Pending() == 0 {
		fmt.Fprintln(w, "Everything is up to date.")
	}
}

func printIDs(w io.Writer, label string, ids []string) {
	fmt.Fprintf(w, "%-12s %d\n", label+":", len(ids))
	for _, id := range ids {
		fmt.Fprintf(w, "  - %s\n", id)
	}
}
