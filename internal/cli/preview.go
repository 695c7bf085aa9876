package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chambrid/bmad-sync/pkg/sync"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show what a sync would do without writing a report or applying",
	Long: `Plans the same operations 'sync' would, but prints them without
persisting the content index, writing a sync report, or touching the
tracker. Unlike 'sync --dry-run', preview leaves no trace in the state
directory, so a subsequent sync still sees the same diff.`,
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().String("config", "bmad-sync.yaml", "path to the project config file")
	previewCmd.Flags().String("mapping", "mapping.yaml", "path to the state mapping config")
	previewCmd.Flags().IntSlice("epic", nil, "restrict preview to these epic numbers")
	previewCmd.Flags().String("key-pattern", "", "restrict preview to content keys matching this glob")
	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	mappingPath, _ := cmd.Flags().GetString("mapping")
	epicFilter, _ := cmd.Flags().GetIntSlice("epic")
	keyPattern, _ := cmd.Flags().GetString("key-pattern")

	rt, err := BuildRuntime(configPath, mappingPath, "", "linear")
	if err != nil {
		return err
	}

	plan, _, err := planSync(rt, sync.PlanOptions{EpicFilter: epicFilter, KeyPattern: keyPattern})
	if err != nil {
		return err
	}

	if plan.Summary.Total == 0 {
		fmt.Println("nothing to sync")
		return nil
	}

	for _, op := range plan.Operations {
		target := op.IssueID
		if target == "" {
			target = "(new)"
		}
		fmt.Printf("%-6s %-8s %-30s %-10s state=%s\n", op.Action, op.ContentType, op.ContentKey, target, op.MappedState)
	}
	for _, w := range plan.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	fmt.Printf("%d create, %d update (%d total)\n", plan.Summary.Create, plan.Summary.Update, plan.Summary.Total)
	return nil
}
