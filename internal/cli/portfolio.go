package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chambrid/bmad-sync/pkg/config"
	"github.com/chambrid/bmad-sync/pkg/conflict"
	"github.com/chambrid/bmad-sync/pkg/discovery"
	"github.com/chambrid/bmad-sync/pkg/portfolio"
	"github.com/chambrid/bmad-sync/pkg/store"
	"github.com/chambrid/bmad-sync/pkg/sync"
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Run and schedule sync across many BMAD projects",
}

var portfolioSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync every project in a portfolio concurrently",
	RunE:  runPortfolioSync,
}

var portfolioScheduleCmd = &cobra.Command{
	Use:   "schedule <project-key> <cron-expr>",
	Short: "Add or replace a project's recurring sync schedule in the user's crontab",
	Args:  cobra.ExactArgs(2),
	RunE:  runPortfolioSchedule,
}

var portfolioUnscheduleCmd = &cobra.Command{
	Use:   "unschedule <project-key>",
	Short: "Remove a project's recurring sync schedule from the user's crontab",
	Args:  cobra.ExactArgs(1),
	RunE:  runPortfolioUnschedule,
}

var portfolioInitCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Create a new portfolio config file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPortfolioInit,
}

var portfolioRegisterCmd = &cobra.Command{
	Use:   "register <project-key> <path>",
	Short: "Register a project in the portfolio",
	Args:  cobra.ExactArgs(2),
	RunE:  runPortfolioRegister,
}

var portfolioListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects and, with --discover, unregistered candidates",
	RunE:  runPortfolioList,
}

var portfolioMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Show each enabled project's last sync and pending conflicts",
	RunE:  runPortfolioMonitor,
}

func init() {
	portfolioSyncCmd.Flags().String("config", "portfolio.yaml", "path to the portfolio config file")
	portfolioSyncCmd.Flags().Bool("dry-run", false, "plan and report per project, but do not apply")

	portfolioScheduleCmd.Flags().String("config", "portfolio.yaml", "path to the portfolio config file")
	portfolioScheduleCmd.Flags().String("binary", "bmad-sync", "path to this binary, used in the rendered crontab command")
	portfolioUnscheduleCmd.Flags().String("config", "portfolio.yaml", "path to the portfolio config file")

	portfolioInitCmd.Flags().String("config", "portfolio.yaml", "path to write the portfolio config file")
	portfolioRegisterCmd.Flags().String("config", "portfolio.yaml", "path to the portfolio config file")
	portfolioRegisterCmd.Flags().String("name", "", "human-readable project name")
	portfolioListCmd.Flags().String("config", "portfolio.yaml", "path to the portfolio config file")
	portfolioListCmd.Flags().Bool("discover", false, "also scan discovery search paths for unregistered projects")
	portfolioMonitorCmd.Flags().String("config", "portfolio.yaml", "path to the portfolio config file")

	portfolioCmd.AddCommand(portfolioSyncCmd, portfolioScheduleCmd, portfolioUnscheduleCmd,
		portfolioInitCmd, portfolioRegisterCmd, portfolioListCmd, portfolioMonitorCmd)
	rootCmd.AddCommand(portfolioCmd)
}

func runPortfolioInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	cfg := &portfolio.Config{
		Portfolio:  portfolio.Meta{Name: args[0], Version: "1", Created: time.Now().UTC()},
		MaxWorkers: portfolio.DefaultMaxWorkers,
		Defaults:   portfolio.ProjectSettings{Config: "bmad-sync.yaml"},
		Discovery:  portfolio.Discovery{ExcludeDirs: []string{".git", "node_modules", "vendor"}},
	}
	if err := portfolio.SaveConfig(configPath, cfg); err != nil {
		return err
	}
	fmt.Printf("initialised portfolio %q in %s\n", args[0], configPath)
	return nil
}

func runPortfolioRegister(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	name, _ := cmd.Flags().GetString("name")
	key, path := args[0], args[1]

	cfg, err := portfolio.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load portfolio config: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("project path %s is not accessible: %w", path, err)
	}
	if err := cfg.Register(key, path, name, time.Now().UTC()); err != nil {
		return err
	}
	if err := portfolio.SaveConfig(configPath, cfg); err != nil {
		return err
	}
	fmt.Printf("registered %s -> %s\n", key, path)
	return nil
}

func runPortfolioList(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	discover, _ := cmd.Flags().GetBool("discover")

	cfg, err := portfolio.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load portfolio config: %w", err)
	}

	keys := make([]string, 0, len(cfg.Projects))
	for k := range cfg.Projects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		p := cfg.Projects[key]
		enabled := "enabled"
		if !p.IsEnabled() {
			enabled = "disabled"
		}
		fmt.Printf("%-20s %-10s %s\n", key, enabled, p.Path)
	}

	if discover {
		found, err := cfg.Discover()
		if err != nil {
			return err
		}
		candidates := make([]string, 0, len(found))
		for k := range found {
			candidates = append(candidates, k)
		}
		sort.Strings(candidates)
		for _, key := range candidates {
			fmt.Printf("%-20s %-10s %s\n", key, "unregistered", found[key])
		}
	}
	return nil
}

func runPortfolioMonitor(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := portfolio.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load portfolio config: %w", err)
	}

	enabled := cfg.EnabledProjects()
	keys := make([]string, 0, len(enabled))
	for k := range enabled {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		settings := enabled[key]
		projectConfigPath := settings.Config
		if settings.Path != "" && !filepath.IsAbs(projectConfigPath) {
			projectConfigPath = filepath.Join(settings.Path, projectConfigPath)
		}

		pc, err := config.NewLoader().Load(projectConfigPath)
		if err != nil {
			fmt.Printf("%-20s config error: %v\n", key, err)
			continue
		}
		st, err := store.New(filepath.Join(pc.Project.BMADRoot, stateDirName))
		if err != nil {
			fmt.Printf("%-20s state error: %v\n", key, err)
			continue
		}

		state, err := st.LoadSyncState()
		if err != nil {
			fmt.Printf("%-20s state error: %v\n", key, err)
			continue
		}
		lastSync := "never"
		if state.LastSync != nil {
			lastSync = state.LastSync.Format(time.RFC3339)
		}

		queue, err := conflict.LoadQueue(st)
		if err != nil {
			fmt.Printf("%-20s conflict queue error: %v\n", key, err)
			continue
		}

		fmt.Printf("%-20s last_sync=%s operations=%d errors=%d conflicts=%d\n",
			key, lastSync, len(state.Operations), len(state.Errors), len(queue.Conflicts))
	}
	return nil
}

func runPortfolioSync(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := portfolio.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load portfolio config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	executor := portfolio.NewExecutor(cfg, nil)
	results, err := executor.Run(context.Background(), cfg, projectRunFunc(dryRun))
	if err != nil {
		return err
	}

	var failed int
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
			failed++
		}
		fmt.Printf("%-20s planned=%d applied=%d failed=%d (%s) [%s]\n",
			r.Project, r.OperationsPlanned, r.OperationsApplied, r.OperationsFailed, r.Duration.Round(time.Millisecond), status)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d projects failed to sync", failed, len(results))
	}
	return nil
}

// projectRunFunc replays the same plan/apply pipeline runSync uses for
// a single project, wrapped as a portfolio.RunFunc: each project gets
// its own Runtime built from its own config file, so projects never
// share a State Store, registry, or hierarchy.
func projectRunFunc(dryRun bool) portfolio.RunFunc {
	return func(ctx context.Context, project string, settings portfolio.ProjectSettings) (portfolio.ProjectResult, error) {
		start := time.Now()
		result := portfolio.ProjectResult{Project: project}

		configPath := settings.Config
		if settings.Path != "" && !filepath.IsAbs(configPath) {
			configPath = filepath.Join(settings.Path, configPath)
		}

		rt, err := BuildRuntime(configPath, filepath.Join(filepath.Dir(configPath), "mapping.yaml"), "", "linear")
		if err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		plan, idx, err := planSync(rt, sync.PlanOptions{})
		if err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		result.OperationsPlanned = plan.Summary.Total

		if dryRun {
			result.Duration = time.Since(start)
			return result, nil
		}
		if plan.Summary.Total == 0 {
			if err := rt.Store.Save(contentIndexDoc, idx); err != nil {
				result.Duration = time.Since(start)
				return result, err
			}
			result.Duration = time.Since(start)
			return result, nil
		}

		syncState, err := rt.Store.LoadSyncState()
		if err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		lastSync := time.Time{}
		if syncState.LastSync != nil {
			lastSync = *syncState.LastSync
		}

		now := time.Now()
		detected, safeOps, err := sync.DetectConflicts(ctx, rt.FS, plan.Operations, rt.Tracker, rt.Mapper, lastSync, now)
		if err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		result.Conflicts = len(detected)
		if len(detected) > 0 {
			queue, qerr := conflict.LoadQueue(rt.Store)
			if qerr != nil {
				result.Duration = time.Since(start)
				return result, qerr
			}
			for _, c := range detected {
				queue.Append(c)
			}
			if qerr := conflict.SaveQueue(rt.Store, queue); qerr != nil {
				result.Duration = time.Since(start)
				return result, qerr
			}
		}
		plan.Operations = safeOps
		plan.Summary.Total = len(safeOps)

		if len(safeOps) == 0 {
			if err := rt.Store.Save(contentIndexDoc, idx); err != nil {
				result.Duration = time.Since(start)
				return result, err
			}
			result.Duration = time.Since(start)
			return result, nil
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

		applyResults, err := applier.Apply(ctx, plan)
		if err != nil {
			result.OperationsFailed = plan.Summary.Total
			result.Duration = time.Since(start)
			return result, err
		}
		result.OperationsApplied = len(applyResults)

		if err := rt.SaveState(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		// Replace the index baseline with a post-apply re-scan, so the
		// renamed files and inserted markers don't read as changes next
		// run (same as runSync).
		finalIdx, _, err := discovery.Build(rt.FS, rt.Config.Project.BMADRoot, idx, now)
		if err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		if err := rt.Store.Save(contentIndexDoc, finalIdx); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		syncState.MarkSynced(now)
		if err := rt.Store.SaveSyncState(syncState); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		result.Duration = time.Since(start)
		return result, nil
	}
}

func runPortfolioSchedule(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	binary, _ := cmd.Flags().GetString("binary")
	projectKey, expr := args[0], args[1]

	cfg, err := portfolio.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load portfolio config: %w", err)
	}
	settings, ok := cfg.Projects[projectKey]
	if !ok {
		return fmt.Errorf("unknown project %q in %s", projectKey, configPath)
	}
	if err := portfolio.ValidateSchedule(expr); err != nil {
		return err
	}

	if cfg.Schedules == nil {
		cfg.Schedules = make(map[string]string)
	}
	cfg.Schedules[projectKey] = expr
	if err := portfolio.SaveConfig(configPath, cfg); err != nil {
		return err
	}

	command := fmt.Sprintf("%s sync --config %s", binary, filepath.Join(settings.Path, settings.Config))
	return rewriteCrontab(func(crontab string) string {
		return portfolio.UpsertSchedule(crontab, projectKey, expr, command)
	})
}

func runPortfolioUnschedule(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	projectKey := args[0]

	if cfg, err := portfolio.LoadConfig(configPath); err == nil && cfg.Schedules[projectKey] != "" {
		delete(cfg.Schedules, projectKey)
		if err := portfolio.SaveConfig(configPath, cfg); err != nil {
			return err
		}
	}

	return rewriteCrontab(func(crontab string) string {
		return portfolio.RemoveSchedule(crontab, projectKey)
	})
}

// rewriteCrontab reads the current user's crontab via `crontab -l`,
// applies fn, and installs the result via `crontab -`. A missing
// crontab (exit status 1 with no output) is treated as an empty one.
func rewriteCrontab(fn func(string) string) error {
	current, err := readCrontab()
	if err != nil {
		return err
	}

	rewritten := fn(current)

	c := exec.Command("crontab", "-")
	c.Stdin = strings.NewReader(rewritten)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}

func readCrontab() (string, error) {
	out, err := exec.Command("crontab", "-l").Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return "", nil
		}
		return "", err
	}
	return string(out), nil
}
