package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check project config, hierarchy, and tracker connectivity",
	Long: `Loads the project config (which itself validates required fields and
numeric bounds), checks the persisted hierarchy map for orphaned
parent/child references, and probes the tracker CLI for reachability
and capabilities.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().String("config", "bmad-sync.yaml", "path to the project config file")
	validateCmd.Flags().String("mapping", "mapping.yaml", "path to the state mapping config")
	validateCmd.Flags().String("tracker-bin", "linear", "tracker CLI binary name or path")
	validateCmd.Flags().Bool("skip-tracker", false, "skip the tracker connectivity probe")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	mappingPath, _ := cmd.Flags().GetString("mapping")
	trackerBin, _ := cmd.Flags().GetString("tracker-bin")
	skipTracker, _ := cmd.Flags().GetBool("skip-tracker")

	rt, err := BuildRuntime(configPath, mappingPath, "", trackerBin)
	if err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	fmt.Println("config: ok")

	if err := rt.Hierarchy.Validate(); err != nil {
		return fmt.Errorf("hierarchy invalid: %w", err)
	}
	fmt.Println("hierarchy: ok")

	if skipTracker {
		return nil
	}

	health := rt.Tracker.Healthcheck(context.Background())
	if health.Err != nil {
		return fmt.Errorf("tracker healthcheck failed: %w", health.Err)
	}
	fmt.Printf("tracker: ok (authenticated as %s, capabilities: %+v)\n", health.User, health.Capabilities)
	return nil
}
