package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chambrid/bmad-sync/pkg/conflict"
	"github.com/chambrid/bmad-sync/pkg/history"
	"github.com/chambrid/bmad-sync/pkg/mapping"
)

// mapperAdapter narrows pkg/mapping.Mapper's context-aware
// RemoteToLocal down to pkg/conflict.RemoteMapper's single-argument
// shape, since conflict resolution never needs context disambiguation
// (it already knows both sides' raw states).
type mapperAdapter struct {
	mapper *mapping.Mapper
	ct     mapping.ContentType
}

func (a mapperAdapter) RemoteToLocal(state string) (string, error) {
	return a.mapper.RemoteToLocal(state, a.ct, nil)
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Inspect and resolve pending state conflicts",
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending conflicts",
	RunE:  runConflictsList,
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Resolve a pending conflict",
	Args:  cobra.ExactArgs(1),
	RunE:  runConflictsResolve,
}

func init() {
	conflictsListCmd.Flags().String("config", "bmad-sync.yaml", "path to the project config file")
	conflictsListCmd.Flags().String("mapping", "mapping.yaml", "path to the state mapping config")

	conflictsResolveCmd.Flags().String("config", "bmad-sync.yaml", "path to the project config file")
	conflictsResolveCmd.Flags().String("mapping", "mapping.yaml", "path to the state mapping config")
	conflictsResolveCmd.Flags().String("strategy", "", "force a strategy (keep-local, keep-remote, recent-wins) instead of running the automated pipeline")
	conflictsResolveCmd.Flags().Bool("three-way", false, "pick the strategy by three-way merge against the state history ancestor")

	conflictsCmd.AddCommand(conflictsListCmd, conflictsResolveCmd)
	rootCmd.AddCommand(conflictsCmd)
}

func runConflictsList(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	mappingPath, _ := cmd.Flags().GetString("mapping")

	rt, err := BuildRuntime(configPath, mappingPath, "", "linear")
	if err != nil {
		return err
	}

	queue, err := conflict.LoadQueue(rt.Store)
	if err != nil {
		return err
	}
	if len(queue.Conflicts) == 0 {
		fmt.Println("no pending conflicts")
		return nil
	}
	for _, c := range queue.Conflicts {
		fmt.Printf("%s\t%s\tlocal=%s remote=%s (detected %s)\n", c.ID, c.ContentKey, c.LocalState, c.RemoteState, c.DetectedAt.Format(time.RFC3339))
	}
	return nil
}

func runConflictsResolve(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	mappingPath, _ := cmd.Flags().GetString("mapping")
	forcedStrategy, _ := cmd.Flags().GetString("strategy")
	threeWay, _ := cmd.Flags().GetBool("three-way")

	rt, err := BuildRuntime(configPath, mappingPath, "", "linear")
	if err != nil {
		return err
	}

	queue, err := conflict.LoadQueue(rt.Store)
	if err != nil {
		return err
	}

	var target *conflict.StateConflict
	for i := range queue.Conflicts {
		if queue.Conflicts[i].ID == args[0] {
			target = &queue.Conflicts[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no pending conflict with id %s", args[0])
	}

	adapter := mapperAdapter{mapper: rt.Mapper, ct: contentTypeFor(target.Type)}

	var (
		strategy   conflict.StrategyKind
		afterState string
		auto       bool
		confidence float64
	)

	switch {
	case forcedStrategy != "":
		strategy = conflict.StrategyKind(forcedStrategy)
	case threeWay:
		mappedRemote, merr := adapter.RemoteToLocal(target.RemoteState)
		if merr != nil {
			return merr
		}
		hist, herr := history.Load(rt.Store)
		if herr != nil {
			return herr
		}
		rec := conflict.ThreeWayMerge(target.ContentKey, target.LocalState, mappedRemote, hist)
		strategy = rec.Strategy
		confidence = rec.Confidence
		auto = true
		if rec.HasAncestor {
			fmt.Printf("three-way ancestor: %s\n", rec.Ancestor)
		}
	default:
		pipeline, perr := buildPipeline(rt, mappingPath)
		if perr != nil {
			return perr
		}
		outcome := pipeline.Resolve(conflict.Features{
			LocalState:    target.LocalState,
			RemoteState:   target.RemoteState,
			LocalAgeHours: time.Since(target.LocalUpdated).Hours(),
			ContentKey:    target.ContentKey,
		})
		if !outcome.Resolved {
			return fmt.Errorf("automated pipeline could not resolve %s, pass --strategy to resolve manually", target.ID)
		}
		strategy = outcome.Strategy
		confidence = outcome.Confidence
		auto = true
	}

	switch strategy {
	case conflict.KeepLocal:
		afterState, _ = conflict.ResolveKeepLocal(*target)
	case conflict.KeepRemote:
		afterState, _, err = conflict.ResolveKeepRemote(*target, adapter)
	case conflict.RecentWins:
		afterState, _, err = conflict.ResolveRecentWins(*target, adapter)
	default:
		return fmt.Errorf("strategy %q cannot be applied here, resolve by hand", strategy)
	}
	if err != nil {
		return err
	}

	now := time.Now()
	queue.Remove(target.ID)
	if err := conflict.SaveQueue(rt.Store, queue); err != nil {
		return err
	}

	resolutions, err := conflict.LoadResolutionHistory(rt.Store)
	if err != nil {
		return err
	}
	resolutions.Append(conflict.ResolutionRecord{
		ID:           target.ID,
		ConflictID:   target.ID,
		Strategy:     strategy,
		BeforeLocal:  target.LocalState,
		BeforeRemote: target.RemoteState,
		AfterState:   afterState,
		ResolvedAt:   now,
		By:           resolvedBy(auto),
		Auto:         auto,
		Confidence:   confidence,
	})
	if err := conflict.SaveResolutionHistory(rt.Store, resolutions); err != nil {
		return err
	}

	metrics, err := conflict.LoadMetrics(rt.Store)
	if err != nil {
		return err
	}
	metrics.Record(conflict.EffectivenessRecord{Auto: auto, Confidence: confidence, Strategy: strategy})
	if err := conflict.SaveMetrics(rt.Store, metrics); err != nil {
		return err
	}

	hist, err := history.Load(rt.Store)
	if err != nil {
		return err
	}
	source := history.SourceLocal
	if strategy == conflict.KeepRemote {
		source = history.SourceRemote
	}
	hist.Append(target.ContentKey, history.StateChange{
		From:        target.LocalState,
		To:          afterState,
		Timestamp:   now,
		Source:      source,
		Operation:   "conflict-resolution",
		ContentType: target.Type,
	})
	hist.Prune(rt.Mapper.RetentionDays(), now)
	if err := history.Save(rt.Store, hist); err != nil {
		return err
	}

	fmt.Printf("resolved %s (%s) -> %s\n", target.ID, strategy, afterState)
	return nil
}

// buildPipeline assembles the automated resolution pipeline: custom
// rules from the mapping file's auto_resolution section, a frequency
// suggester trained on this project's resolution history, and the
// built-in pattern fallback.
func buildPipeline(rt *Runtime, mappingPath string) (*conflict.Pipeline, error) {
	var rules []conflict.Rule
	var threshold float64
	if raw, err := os.ReadFile(mappingPath); err == nil {
		rules, threshold, err = conflict.ParseRules(raw)
		if err != nil {
			return nil, err
		}
	}

	suggester := conflict.NewFrequencyTable()
	resHist, err := conflict.LoadResolutionHistory(rt.Store)
	if err != nil {
		return nil, err
	}
	suggester.Train(resHist.Records, func(r conflict.ResolutionRecord) conflict.Features {
		return conflict.Features{LocalState: r.BeforeLocal, RemoteState: r.BeforeRemote}
	})

	return &conflict.Pipeline{
		Rules:     conflict.NewEngine(rules),
		Suggester: suggester,
		Threshold: threshold,
	}, nil
}

func resolvedBy(auto bool) string {
	if auto {
		return "pipeline"
	}
	return "operator"
}

func contentTypeFor(contentType string) mapping.ContentType {
	if contentType == string(mapping.Epic) {
		return mapping.Epic
	}
	return mapping.Story
}
