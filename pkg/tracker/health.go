package tracker

import "context"

// HealthReport is a read-only snapshot of the tracker CLI's install,
// auth, and capability status, grounded in original_source's health.py:
// it is exposed as a standalone probe the portfolio executor can call
// before a run to fail fast, rather than discovering a broken CLI mid-sync.
type HealthReport struct {
	Installed    bool
	Authenticated bool
	User         string
	Capabilities Capabilities
	Err          error
}

// Healthcheck runs the capability probe plus an authentication check
// (`user me`) and reports overall status without mutating any state.
func (w *Wrapper) Healthcheck(ctx context.Context) *HealthReport {
	report := &HealthReport{}

	caps, err := w.Probe(ctx)
	if err != nil {
		report.Err = err
		return report
	}
	report.Installed = true
	report.Capabilities = caps

	user, err := w.WhoAmI(ctx)
	if err != nil {
		report.Err = err
		return report
	}
	report.Authenticated = true
	report.User = user
	return report
}
