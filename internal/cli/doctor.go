package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nebula-labs/nebula/internal/bundle"
	"github.com/nebula-labs/nebula/internal/config"
	"github.com/nebula-labs/nebula/internal/graph"
	"github.com/nebula-labs/nebula/internal/platform"
)

const storageDirPerm os.FileMode = 0755

var (
	doctorFix         bool
	doctorCheckOrigin bool
)

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Repair permissions and evict bundles whose files are missing")
	doctorCmd.Flags().BoolVar(&doctorCheckOrigin, "check-origin", false, "Also contact the catalog origin")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the local bundle store",
	Long: `Run diagnostic checks on the configuration, the storage directory, the
local index and the files every index entry points to.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			w := cmd.OutOrStdout()
			problems := checkConfig(w)
			problems += checkStorageDir(w, a.cfg.Storage.Root, doctorFix)
			problems += checkEntries(cmd, a, doctorFix)
			problems += checkLocalGraph(w, a)
			if doctorCheckOrigin {
				problems += checkOrigin(cmd, a)
			}
			if problems > 0 {
				return fmt.Errorf("%d problem(s) found", problems)
			}
			fmt.Fprintln(w, "No problems found.")
			return nil
		})
	},
}

func checkConfig(w io.Writer) int {
	fmt.Fprintln(w, "Config check:")
	path := config.FilePath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(w, "  [INFO] %s does not exist, using defaults\n", path)
		return 0
	}
	fmt.Fprintf(w, "  [ OK ] %s is valid\n", path)
	return 0
}

func checkStorageDir(w io.Writer, root string, fix bool) int {
	fmt.Fprintln(w, "Storage check:")
	info, err := os.Stat(root)
	if err != nil {
		fmt.Fprintf(w, "  [FAIL] %s: %v\n", root, err)
		return 1
	}
	actual := info.Mode().Perm()
	if actual&0700 != 0700 {
		fmt.Fprintf(w, "  [WARN] %s has permissions %o (expected %o)\n", root, actual, storageDirPerm)
		if !fix {
			return 1
		}
		if err := platform.Chmod(root, storageDirPerm); err != nil {
			fmt.Fprintf(w, "  [FAIL] Could not fix permissions on %s: %v\n", root, err)
			return 1
		}
		fmt.Fprintf(w, "  [FIX ] Fixed permissions on %s to %o\n", root, storageDirPerm)
		return 0
	}
	fmt.Fprintf(w, "  [ OK ] %s (permissions %o)\n", root, actual)
	return 0
}

func checkEntries(cmd *cobra.Command, a *app, fix bool) int {
	w := cmd.OutOrStdout()
	idx := a.engine.Snapshot()
	fmt.Fprintf(w, "Index check (%s backend, %d bundles):\n", a.cfg.Storage.IndexBackend, idx.Len())

	problems := 0
	for _, e := range idx.Entries {
		missing := missingFiles(e)
		if len(missing) == 0 {
			continue
		}
		for _, path := range missing {
			fmt.Fprintf(w, "  [MISS] %s: %s\n", e.ID, path)
		}
		if !fix {
			problems++
			continue
		}
		if err := a.engine.Evict(cmd.Context(), e.ID); err != nil {
			fmt.Fprintf(w, "  [FAIL] Could not evict %s: %v\n", e.ID, err)
			problems++
			continue
		}
		fmt.Fprintf(w, "  [FIX ] Evicted %s; run sync to download it again\n", e.ID)
	}
	if problems == 0 {
		fmt.Fprintln(w, "  [ OK ] every entry has its files")
	}
	return problems
}

func missingFiles(e bundle.IndexEntry) []string {
	var missing []string
	for _, path := range []string{e.StoragePath, e.ManifestPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}
	if e.StoragePath == "" {
		missing = append(missing, "(no payload path recorded)")
	}
	return missing
}

func checkLocalGraph(w io.Writer, a *app) int {
	fmt.Fprintln(w, "Dependency check:")
	g, err := graph.FromIndex(a.engine.Snapshot().Entries)
	if err != nil {
		fmt.Fprintf(w, "  [FAIL] %v\n", err)
		return 1
	}
	dangling := g.Dangling()
	for _, d := range dangling {
		fmt.Fprintf(w, "  [WARN] %s depends on %s, which is not synced\n", d.From, d.Missing)
	}
	if len(dangling) == 0 {
		fmt.Fprintln(w, "  [ OK ] all dependencies are synced")
	}
	return 0
}

func checkOrigin(cmd *cobra.Command, a *app) int {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Origin check:")
	report, err := a.engine.Fetch(cmd.Context())
	if err != nil {
		if errors.Is(err, bundle.ErrCatalogUnavailable) {
			fmt.Fprintf(w, "  [FAIL] %s is unreachable: %v\n", a.cfg.Origin.URL, err)
		} else {
			fmt.Fprintf(w, "  [FAIL] %s: %v\n", a.cfg.Origin.URL, err)
		}
		return 1
	}
	fmt.Fprintf(w, "  [ OK ] %s offers %d bundles, %d pending\n", a.cfg.Origin.URL, len(report.Remote), report.Pending())
	return 0
}
