package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// BuildInfo contains build-time information
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

var buildInfo BuildInfo

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bmad-sync",
	Short: "Synchronize BMAD markdown content with a remote issue tracker",
	Long: `bmad-sync keeps a BMAD project's markdown epics and stories (plus its
sprint-status file) in sync with a remote issue tracker reached through
an external CLI.

It scans local content for changes, maps BMAD states onto the
tracker's vocabulary, plans the minimal set of create/update
operations, detects and resolves conflicts between local and remote
edits, and applies the result transactionally with automatic rollback
on failure.

Single project:
  bmad-sync sync --config ./bmad-sync.yaml --dry-run
  bmad-sync sync --config ./bmad-sync.yaml

Across many projects:
  bmad-sync portfolio sync --config ./portfolio.yaml`,
	Version: buildInfo.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(info BuildInfo) error {
	buildInfo = info
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date)
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
}
