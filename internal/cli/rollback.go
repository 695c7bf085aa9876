package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback [label]",
	Short: "Restore state from a pre-sync snapshot",
	Long: `Restores the State Store's documents (numbering registry, hierarchy
map, conflict queue, sync report) from a snapshot taken before a sync
applied. With no argument, restores the most recent snapshot.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().String("config", "bmad-sync.yaml", "path to the project config file")
	rollbackCmd.Flags().String("mapping", "mapping.yaml", "path to the state mapping config")
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	mappingPath, _ := cmd.Flags().GetString("mapping")

	rt, err := BuildRuntime(configPath, mappingPath, "", "linear")
	if err != nil {
		return err
	}

	label := ""
	if len(args) == 1 {
		label = args[0]
	} else {
		latest, ok, err := rt.Store.LatestSnapshot()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no snapshots found")
		}
		label = latest
	}

	if err := rt.Store.Restore(label); err != nil {
		return fmt.Errorf("failed to restore snapshot %s: %w", label, err)
	}

	fmt.Printf("restored state from snapshot %s\n", label)
	return nil
}
