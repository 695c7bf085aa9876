package portfolio

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// ProjectResult is one project's sync outcome, aggregated by Run.
type ProjectResult struct {
	Project           string
	OperationsPlanned int
	OperationsApplied int
	OperationsFailed  int
	Conflicts         int
	Duration          time.Duration
	Err               error
}

// RunFunc performs one project's sync pipeline. Implementations should
// check ctx between operations so cancellation takes effect at the next
// safe boundary rather than mid-operation (spec §4.8).
type RunFunc func(ctx context.Context, project string, settings ProjectSettings) (ProjectResult, error)

// Metrics holds the Prometheus collectors the executor updates as each
// project completes, labelled by project key so `portfolio monitor` has
// concrete series to scrape. Dashboards/rendering stay out of scope
// (spec §1 Non-goal); emitting the metrics themselves does not.
type Metrics struct {
	OperationsApplied *prometheus.CounterVec
	OperationsFailed  *prometheus.CounterVec
	Conflicts         *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
	ProjectsInFlight  prometheus.Gauge
}

// NewMetrics constructs and registers a Metrics set against reg. Pass
// prometheus.NewRegistry() in tests to avoid polluting the default
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bmad_sync_portfolio_operations_applied_total",
			Help: "Tracker operations successfully applied, by project.",
		}, []string{"project"}),
		OperationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bmad_sync_portfolio_operations_failed_total",
			Help: "Tracker operations that failed to apply, by project.",
		}, []string{"project"}),
		Conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bmad_sync_portfolio_conflicts_total",
			Help: "State conflicts detected during sync, by project.",
		}, []string{"project"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "bmad_sync_portfolio_run_duration_seconds",
			Help: "Wall-clock duration of a project's sync run.",
		}, []string{"project"}),
		ProjectsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bmad_sync_portfolio_projects_in_flight",
			Help: "Number of projects currently syncing.",
		}),
	}
	reg.MustRegister(m.OperationsApplied, m.OperationsFailed, m.Conflicts, m.RunDuration, m.ProjectsInFlight)
	return m
}

// Progress is the portfolio-wide counters `portfolio monitor` reads,
// safe for concurrent access from worker goroutines.
type Progress struct {
	mu         sync.Mutex
	completed  int
	inProgress int
	total      int
	results    map[string]ProjectResult
}

func newProgress(total int) *Progress {
	return &Progress{total: total, results: make(map[string]ProjectResult, total)}
}

func (p *Progress) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inProgress++
}

func (p *Progress) record(r ProjectResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
	p.inProgress--
	p.results[r.Project] = r
}

// Snapshot returns the current completed/in-progress/total counts and a
// copy of every result recorded so far.
func (p *Progress) Snapshot() (completed, inProgress, total int, results []ProjectResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ProjectResult, 0, len(p.results))
	for _, r := range p.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Project < out[j].Project })
	return p.completed, p.inProgress, p.total, out
}

// Executor runs RunFunc across a portfolio's enabled projects with
// bounded concurrency. OnStart/OnComplete, when set, are invoked from
// worker goroutines as each project begins and finishes. A non-zero
// ProjectTimeout bounds each project's run; the RunFunc observes the
// expired context at its next operation boundary.
type Executor struct {
	MaxWorkers     int
	ProjectTimeout time.Duration
	Metrics        *Metrics
	OnStart        func(project string)
	OnComplete     func(result ProjectResult)
}

// NewExecutor builds an Executor from cfg, defaulting MaxWorkers when
// unset.
func NewExecutor(cfg *Config, metrics *Metrics) *Executor {
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = DefaultMaxWorkers
	}
	return &Executor{MaxWorkers: workers, Metrics: metrics}
}

// Run executes run once per enabled project in cfg, at most
// e.MaxWorkers at a time, via golang.org/x/sync/errgroup with a bounded
// semaphore. Operations within a single project run strictly serially
// (that guarantee lives in run itself, e.g. *sync.Applier); Run only
// bounds cross-project parallelism. It returns every project's result
// (even after some fail) and the *Progress tracker used during the
// run. Run does not itself stop on a project's failure — all launched
// projects complete; ctx cancellation is the caller's mechanism for an
// early stop.
func (e *Executor) Run(ctx context.Context, cfg *Config, run RunFunc) ([]ProjectResult, error) {
	projects := cfg.EnabledProjects()
	progress := newProgress(len(projects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.MaxWorkers)

	keys := make([]string, 0, len(projects))
	for k := range projects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		key := key
		settings := projects[key]
		g.Go(func() error {
			// After cancellation, projects not yet started are recorded
			// with the cancellation error and never run.
			if err := gctx.Err(); err != nil {
				progress.start()
				progress.record(ProjectResult{Project: key, Err: err})
				return nil
			}
			if e.Metrics != nil {
				e.Metrics.ProjectsInFlight.Inc()
				defer e.Metrics.ProjectsInFlight.Dec()
			}
			progress.start()
			if e.OnStart != nil {
				e.OnStart(key)
			}

			runCtx := gctx
			if e.ProjectTimeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(gctx, e.ProjectTimeout)
				defer cancel()
			}

			start := time.Now()
			result, err := run(runCtx, key, settings)
			result.Project = key
			if result.Duration == 0 {
				result.Duration = time.Since(start)
			}
			if err != nil && result.Err == nil {
				result.Err = err
			}

			if e.Metrics != nil {
				e.Metrics.OperationsApplied.WithLabelValues(key).Add(float64(result.OperationsApplied))
				e.Metrics.OperationsFailed.WithLabelValues(key).Add(float64(result.OperationsFailed))
				e.Metrics.Conflicts.WithLabelValues(key).Add(float64(result.Conflicts))
				e.Metrics.RunDuration.WithLabelValues(key).Observe(result.Duration.Seconds())
			}

			progress.record(result)
			if e.OnComplete != nil {
				e.OnComplete(result)
			}
			// A single project's error never aborts its siblings; it is
			// carried in the result instead of returned here; only ctx
			// cancellation keeps the remaining projects from running.
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	_, _, _, results := progress.Snapshot()
	return results, nil
}
