package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/chambrid/bmad-sync/pkg/conflict"
	"github.com/chambrid/bmad-sync/pkg/discovery"
	"github.com/chambrid/bmad-sync/pkg/history"
	"github.com/chambrid/bmad-sync/pkg/report"
	"github.com/chambrid/bmad-sync/pkg/scan"
	"github.com/chambrid/bmad-sync/pkg/store"
	"github.com/chambrid/bmad-sync/pkg/sync"
)

const contentIndexDoc = "content_index"

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Discover local BMAD content changes and sync them to the tracker",
	Long: `Scans the BMAD project for new or modified epics and stories, plans the
minimal set of tracker create/update operations needed to bring the
tracker in line with local truth, writes a sync report, and (unless
--dry-run is set) applies the plan through the tracker CLI.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("config", "bmad-sync.yaml", "path to the project config file")
	syncCmd.Flags().String("mapping", "mapping.yaml", "path to the state mapping config")
	syncCmd.Flags().String("mapping-overlay", "", "path to an optional state mapping overlay")
	syncCmd.Flags().String("tracker-bin", "linear", "tracker CLI binary name or path")
	syncCmd.Flags().Bool("dry-run", false, "plan and report, but do not apply")
	syncCmd.Flags().Bool("create-only", false, "only apply create operations")
	syncCmd.Flags().Bool("update-only", false, "only apply update operations")
	syncCmd.Flags().IntSlice("epic", nil, "restrict sync to these epic numbers")
	syncCmd.Flags().String("key-pattern", "", "restrict sync to content keys matching this glob")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	mappingPath, _ := cmd.Flags().GetString("mapping")
	overlayPath, _ := cmd.Flags().GetString("mapping-overlay")
	trackerBin, _ := cmd.Flags().GetString("tracker-bin")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	createOnly, _ := cmd.Flags().GetBool("create-only")
	updateOnly, _ := cmd.Flags().GetBool("update-only")
	epicFilter, _ := cmd.Flags().GetIntSlice("epic")
	keyPattern, _ := cmd.Flags().GetString("key-pattern")

	rt, err := BuildRuntime(configPath, mappingPath, overlayPath, trackerBin)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	plan, idx, err := planSync(rt, sync.PlanOptions{
		CreateOnly: createOnly,
		UpdateOnly: updateOnly,
		EpicFilter: epicFilter,
		KeyPattern: keyPattern,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Plan: %d create, %d update (%d total)\n", plan.Summary.Create, plan.Summary.Update, plan.Summary.Total)
	for _, w := range plan.Warnings {
		fmt.Printf("warning: %s\n", w)
	}

	if err := sync.WriteReport(rt.Store, plan, time.Now()); err != nil {
		return fmt.Errorf("failed to write sync report: %w", err)
	}

	// The content index baseline is only advanced at the end of a real
	// sync (below): a dry-run that moved it would make the next real
	// sync see no changes.
	if dryRun {
		fmt.Println("dry-run: no operations applied")
		return nil
	}

	syncState, err := rt.Store.LoadSyncState()
	if err != nil {
		return fmt.Errorf("failed to load sync state: %w", err)
	}
	lastSync := time.Time{}
	if syncState.LastSync != nil {
		lastSync = *syncState.LastSync
	}

	now := time.Now()
	detected, safeOps, err := sync.DetectConflicts(context.Background(), rt.FS, plan.Operations, rt.Tracker, rt.Mapper, lastSync, now)
	if err != nil {
		return fmt.Errorf("failed to check for remote conflicts: %w", err)
	}
	if len(detected) > 0 {
		queue, err := conflict.LoadQueue(rt.Store)
		if err != nil {
			return err
		}
		for _, c := range detected {
			queue.Append(c)
			fmt.Printf("conflict detected for %s (local=%s remote=%s), queued for 'conflicts resolve'\n", c.ContentKey, c.LocalState, c.RemoteState)
		}
		if err := conflict.SaveQueue(rt.Store, queue); err != nil {
			return err
		}
	}
	plan.Operations = safeOps
	plan.Summary.Total = len(safeOps)

	if len(safeOps) == 0 {
		// No operation touched any file, so the scanned index still
		// matches disk and becomes the next run's baseline as-is.
		if err := rt.Store.Save(contentIndexDoc, idx); err != nil {
			return fmt.Errorf("failed to persist content index: %w", err)
		}
		fmt.Println("nothing to sync")
		return nil
	}

	applier := &sync.Applier{
		FS:               rt.FS,
		Root:             rt.Config.Project.BMADRoot,
		SprintStatusPath: filepath.Join(rt.Config.ResolvedStoriesDir(), "sprint-status.yaml"),
		Tracker:          rt.Tracker,
		Store:            rt.Store,
		Registry:         rt.Registry,
		Hierarchy:        rt.Hierarchy,
	}

	results, err := applier.Apply(context.Background(), plan)
	if err != nil {
		return fmt.Errorf("sync apply failed, state rolled back: %w", err)
	}

	if err := rt.SaveState(); err != nil {
		return fmt.Errorf("failed to persist numbering/hierarchy state: %w", err)
	}

	// Apply renamed files and inserted markers, so the pre-apply scan no
	// longer matches disk. Re-scan and atomically replace the baseline
	// with what apply left behind; a second run then diffs clean.
	finalIdx, _, err := discovery.Build(rt.FS, rt.Config.Project.BMADRoot, idx, now)
	if err != nil {
		return fmt.Errorf("failed to rescan BMAD content after apply: %w", err)
	}
	if err := rt.Store.Save(contentIndexDoc, finalIdx); err != nil {
		return fmt.Errorf("failed to persist content index: %w", err)
	}

	hist, err := history.Load(rt.Store)
	if err != nil {
		return fmt.Errorf("failed to load state history: %w", err)
	}

	for _, r := range results {
		fmt.Printf("%s %s -> %s\n", r.Operation.Action, r.Operation.ContentKey, r.IssueID)
		outcome := "applied"
		if r.Error != nil {
			outcome = r.Error.Error()
		}
		syncState.AppendOperation(store.OperationRecord{
			ID:         r.IssueID,
			Action:     string(r.Operation.Action),
			ContentKey: r.Operation.ContentKey,
			Outcome:    outcome,
			Timestamp:  now,
		})
		if r.Error == nil && r.Operation.LocalState != "" {
			hist.Append(r.Operation.ContentKey, history.StateChange{
				To:          r.Operation.LocalState,
				Timestamp:   now,
				Source:      history.SourceLocal,
				Operation:   string(r.Operation.Action),
				ContentType: string(r.Operation.ContentType),
			})
		}
	}

	hist.Prune(rt.Mapper.RetentionDays(), now)
	if err := history.Save(rt.Store, hist); err != nil {
		return fmt.Errorf("failed to persist state history: %w", err)
	}

	syncState.MarkSynced(now)
	if err := rt.Store.SaveSyncState(syncState); err != nil {
		return fmt.Errorf("failed to persist sync state: %w", err)
	}
	return nil
}

// planSync loads the previous content index (if any), rebuilds it from
// the current filesystem state, and plans operations for every changed
// key.
func planSync(rt *Runtime, opts sync.PlanOptions) (*sync.Plan, *discovery.Index, error) {
	var previous *discovery.Index
	if rt.Store.Exists(contentIndexDoc) {
		previous = &discovery.Index{}
		if err := rt.Store.Load(contentIndexDoc, previous); err != nil {
			return nil, nil, fmt.Errorf("failed to load content index: %w", err)
		}
	}

	idx, warnings, err := discovery.Build(rt.FS, rt.Config.Project.BMADRoot, previous, time.Now())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan BMAD content: %w", err)
	}
	for _, w := range warnings {
		fmt.Printf("scan warning: %s: %s\n", w.Path, w.Message)
	}

	status, err := scan.ParseSprintStatus(rt.FS, filepath.Join(rt.Config.ResolvedStoriesDir(), "sprint-status.yaml"))
	if err != nil {
		status = nil
	}

	planner := &sync.Planner{
		Mapper:   rt.Mapper,
		Registry: rt.Registry,
		Team:     rt.Config.Linear.TeamName,
		Project:  rt.Config.Linear.ProjectName,
	}

	plan, err := planner.Build(idx, status, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to plan sync operations: %w", err)
	}
	return plan, idx, nil
}

// exportReportCmd re-emits the last persisted sync report as CSV, for
// the presentation-layer export path original_source's exporter.py
// covered (spec's Non-goal excludes report *rendering*, not the
// underlying report itself).
var exportReportCmd = &cobra.Command{
	Use:   "export-report",
	Short: "Export the last sync report as CSV",
	RunE:  runExportReport,
}

func init() {
	exportReportCmd.Flags().String("config", "bmad-sync.yaml", "path to the project config file")
	exportReportCmd.Flags().String("mapping", "mapping.yaml", "path to the state mapping config")
	rootCmd.AddCommand(exportReportCmd)
}

func runExportReport(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	mappingPath, _ := cmd.Flags().GetString("mapping")

	rt, err := BuildRuntime(configPath, mappingPath, "", "linear")
	if err != nil {
		return err
	}

	rep, err := sync.LoadReport(rt.Store)
	if err != nil {
		return err
	}
	if rep == nil {
		return fmt.Errorf("no sync report found, run 'sync' first")
	}
	return report.WriteCSV(cmd.OutOrStdout(), rep)
}
