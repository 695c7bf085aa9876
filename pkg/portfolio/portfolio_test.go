package portfolio

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "portfolio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_MergesDefaultsIntoProjects(t *testing.T) {
	path := writeConfig(t, `
max_workers: 2
defaults:
  config: config.yaml
projects:
  alpha:
    path: ./alpha
  beta:
    path: ./beta
    config: beta-config.yaml
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxWorkers)
	assert.Equal(t, "config.yaml", cfg.Projects["alpha"].Config)
	assert.Equal(t, "beta-config.yaml", cfg.Projects["beta"].Config, "explicit project value must win over default")
}

func TestLoadConfig_DefaultsMaxWorkers(t *testing.T) {
	path := writeConfig(t, "projects:\n  alpha:\n    path: ./alpha\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxWorkers, cfg.MaxWorkers)
}

func TestExecutor_Run_BoundsConcurrencyAndCollectsResults(t *testing.T) {
	cfg := &Config{
		MaxWorkers: 2,
		Projects: map[string]ProjectSettings{
			"alpha": {Path: "./alpha"},
			"beta":  {Path: "./beta"},
			"gamma": {Path: "./gamma"},
		},
	}

	var inFlight, maxInFlight int32
	run := func(ctx context.Context, project string, settings ProjectSettings) (ProjectResult, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return ProjectResult{OperationsApplied: 1}, nil
	}

	reg := prometheus.NewRegistry()
	executor := NewExecutor(cfg, NewMetrics(reg))
	results, err := executor.Run(context.Background(), cfg, run)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.LessOrEqual(t, int(maxInFlight), 2)

	for _, r := range results {
		assert.Equal(t, 1, r.OperationsApplied)
	}
}

func TestExecutor_Run_CarriesPerProjectErrorsWithoutAbortingSiblings(t *testing.T) {
	cfg := &Config{
		MaxWorkers: 4,
		Projects: map[string]ProjectSettings{
			"alpha": {Path: "./alpha"},
			"beta":  {Path: "./beta"},
		},
	}

	run := func(ctx context.Context, project string, settings ProjectSettings) (ProjectResult, error) {
		if project == "alpha" {
			return ProjectResult{}, assertErr
		}
		return ProjectResult{OperationsApplied: 1}, nil
	}

	reg := prometheus.NewRegistry()
	executor := NewExecutor(cfg, NewMetrics(reg))
	results, err := executor.Run(context.Background(), cfg, run)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byProject := map[string]ProjectResult{}
	for _, r := range results {
		byProject[r.Project] = r
	}
	assert.Error(t, byProject["alpha"].Err)
	assert.NoError(t, byProject["beta"].Err)
}

var assertErr = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func boolPtr(b bool) *bool { return &b }

func TestLoadConfig_PortfolioMetaAndSchedules(t *testing.T) {
	path := writeConfig(t, `
portfolio:
  name: all-the-things
  version: "1"
projects:
  alpha:
    path: ./alpha
schedules:
  alpha: "0 9 * * *"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "all-the-things", cfg.Portfolio.Name)
	assert.Equal(t, "0 9 * * *", cfg.Schedules["alpha"])
}

func TestEnabledProjects_FiltersDisabled(t *testing.T) {
	cfg := &Config{
		Projects: map[string]ProjectSettings{
			"alpha": {Path: "./alpha"},
			"beta":  {Path: "./beta", Enabled: boolPtr(false)},
		},
	}
	enabled := cfg.EnabledProjects()
	require.Len(t, enabled, 1)
	_, ok := enabled["alpha"]
	assert.True(t, ok)
}

func TestExecutor_Run_SkipsDisabledProjects(t *testing.T) {
	cfg := &Config{
		MaxWorkers: 2,
		Projects: map[string]ProjectSettings{
			"alpha": {Path: "./alpha"},
			"beta":  {Path: "./beta", Enabled: boolPtr(false)},
		},
	}

	var ran []string
	var mu sync.Mutex
	run := func(ctx context.Context, project string, settings ProjectSettings) (ProjectResult, error) {
		mu.Lock()
		ran = append(ran, project)
		mu.Unlock()
		return ProjectResult{}, nil
	}

	executor := NewExecutor(cfg, nil)
	results, err := executor.Run(context.Background(), cfg, run)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"alpha"}, ran)
}

func TestRegister_RejectsDuplicateKeys(t *testing.T) {
	cfg := &Config{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, cfg.Register("alpha", "./alpha", "Alpha", now))
	assert.Error(t, cfg.Register("alpha", "./elsewhere", "Alpha Again", now))
	assert.Equal(t, now, cfg.Projects["alpha"].Registered)
}

func TestValidate_RequiresProjectPathsOnDisk(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Projects: map[string]ProjectSettings{
			"alpha": {Path: dir},
		},
	}
	require.NoError(t, cfg.Validate())

	cfg.Projects["beta"] = ProjectSettings{Path: filepath.Join(dir, "missing")}
	assert.Error(t, cfg.Validate())
}

func TestDiscover_FindsUnregisteredProjects(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "proj-a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "proj-b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "dep"), 0o755))
	for _, dir := range []string{"proj-a", "proj-b", filepath.Join("node_modules", "dep")} {
		require.NoError(t, os.WriteFile(filepath.Join(root, dir, "bmad-sync.yaml"), []byte("project: {}\n"), 0o644))
	}

	cfg := &Config{
		Projects: map[string]ProjectSettings{
			"proj-a": {Path: filepath.Join(root, "proj-a")},
		},
		Discovery: Discovery{
			Enabled:     true,
			SearchPaths: []string{root},
			ExcludeDirs: []string{"node_modules"},
		},
	}

	found, err := cfg.Discover()
	require.NoError(t, err)
	require.Len(t, found, 1, "registered and excluded projects must not reappear")
	assert.Equal(t, filepath.Join(root, "proj-b"), found["proj-b"])
}

func TestSaveConfig_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portfolio.yaml")

	cfg := &Config{
		Portfolio:  Meta{Name: "p", Version: "1"},
		MaxWorkers: 2,
		Projects: map[string]ProjectSettings{
			"alpha": {Path: "./alpha", Name: "Alpha"},
		},
		Schedules: map[string]string{"alpha": "0 9 * * *"},
	}
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "p", loaded.Portfolio.Name)
	assert.Equal(t, "Alpha", loaded.Projects["alpha"].Name)
	assert.Equal(t, "0 9 * * *", loaded.Schedules["alpha"])
}

func TestValidateSchedule(t *testing.T) {
	require.NoError(t, ValidateSchedule("0 9 * * *"))
	assert.Error(t, ValidateSchedule("not a schedule"))
}

func TestUpsertAndRemoveSchedule_Idempotent(t *testing.T) {
	crontab := "# unrelated\n0 0 * * * /usr/bin/true\n"

	updated := UpsertSchedule(crontab, "alpha", "0 9 * * *", "bmad-sync sync --project alpha")
	assert.Contains(t, updated, "# bmad-sync:alpha")
	assert.Contains(t, updated, "0 9 * * * bmad-sync sync --project alpha")
	assert.Contains(t, updated, "# unrelated")

	removed := RemoveSchedule(updated, "alpha")
	assert.NotContains(t, removed, "# bmad-sync:alpha")
	assert.Contains(t, removed, "# unrelated")

	// removing twice is a no-op
	assert.Equal(t, removed, RemoveSchedule(removed, "alpha"))
}
