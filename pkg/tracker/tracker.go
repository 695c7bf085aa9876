// Package tracker wraps an external issue-tracker CLI binary: invoking
// it as a subprocess with argument lists (no shell), classifying and
// retrying transient failures, memoising capability probes, and parsing
// JSON output, per spec §4.5.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
)

// Defaults per spec §4.5.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1 * time.Second
	DefaultTimeout    = 30 * time.Second
)

var transientRe = regexp.MustCompile(`(?i)(rate limit|timeout|network)`)

// Result is the parsed output of one CLI invocation.
type Result struct {
	JSON json.RawMessage
	Raw  string
}

// TrackerError is a tagged error for CLI invocation failures. Transient
// distinguishes a retried-and-exhausted failure from a permanent
// (non-retryable) one.
type TrackerError struct {
	Transient bool
	Message   string
	Err       error
	Remediation string
}

func (e *TrackerError) Error() string { return "tracker: " + e.Message }
func (e *TrackerError) Unwrap() error { return e.Err }

// Runner executes a command and returns its stdout/stderr/exit status;
// abstracted so tests can stub process execution.
type Runner interface {
	Run(ctx context.Context, bin string, args []string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner runs the binary via os/exec.CommandContext.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, bin string, args []string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return stdout.String(), stderr.String(), -1, err
	}
	return stdout.String(), stderr.String(), exitCode, nil
}

// Capabilities records which optional CLI flags the installed binary
// supports, probed lazily from `--help` output.
type Capabilities struct {
	SupportsLabels   bool
	SupportsParentID bool
	Probed           bool
	HelpOutput       string
}

// Wrapper invokes the external tracker CLI with retry, timeout, and
// capability-probing behaviour.
type Wrapper struct {
	Binary     string
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
	Runner     Runner
	Log        logr.Logger

	capsOnce sync.Once
	caps     Capabilities
	capsErr  error
}

// New builds a Wrapper with spec-default retry/timeout settings.
func New(binary string, log logr.Logger) *Wrapper {
	return &Wrapper{
		Binary:     binary,
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		Timeout:    DefaultTimeout,
		Runner:     ExecRunner{},
		Log:        log,
	}
}

// Invoke runs the CLI with args, retrying transient failures up to
// MaxRetries times with backoff base*2^k, and parses stdout as JSON
// (falling back to {"output": raw} when it isn't valid JSON).
func (w *Wrapper) Invoke(ctx context.Context, args ...string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout())
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.baseDelay()
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	withMax := backoff.WithMaxRetries(bo, uint64(w.maxRetries()))
	withCtx := backoff.WithContext(withMax, ctx)

	var lastResult *Result
	var permanentErr error
	attempts := 0

	err := backoff.Retry(func() error {
		attempts++
		stdout, stderr, exitCode, runErr := w.Runner.Run(ctx, w.Binary, args)
		if runErr != nil {
			permanentErr = &TrackerError{Message: "failed to execute tracker CLI", Err: runErr}
			return backoff.Permanent(permanentErr)
		}
		if exitCode != 0 {
			combined := stdout + "\n" + stderr
			if transientRe.MatchString(combined) {
				if w.Log.GetSink() != nil {
					w.Log.V(1).Info("tracker CLI transient failure, retrying", "attempt", attempts, "exitCode", exitCode)
				}
				return &TrackerError{Transient: true, Message: "transient tracker CLI failure", Err: errFromOutput(combined)}
			}
			permanentErr = &TrackerError{Message: "tracker CLI exited non-zero", Err: errFromOutput(combined)}
			return backoff.Permanent(permanentErr)
		}
		lastResult = parseResult(stdout)
		return nil
	}, withCtx)

	if err != nil {
		if permanentErr != nil {
			return nil, permanentErr
		}
		return nil, err
	}
	return lastResult, nil
}

func parseResult(stdout string) *Result {
	trimmed := strings.TrimSpace(stdout)
	if json.Valid([]byte(trimmed)) {
		return &Result{JSON: json.RawMessage(trimmed), Raw: stdout}
	}
	wrapped, _ := json.Marshal(map[string]string{"output": trimmed})
	return &Result{JSON: wrapped, Raw: stdout}
}

func (w *Wrapper) maxRetries() int {
	if w.MaxRetries > 0 {
		return w.MaxRetries
	}
	return DefaultMaxRetries
}

func (w *Wrapper) baseDelay() time.Duration {
	if w.BaseDelay > 0 {
		return w.BaseDelay
	}
	return DefaultBaseDelay
}

func (w *Wrapper) timeout() time.Duration {
	if w.Timeout > 0 {
		return w.Timeout
	}
	return DefaultTimeout
}

// Probe memoises a `--help` invocation and decides feature support by
// substring matching its output. Probing happens at most once per
// Wrapper instance (sync.Once-guarded), per spec §4.5/§9.
func (w *Wrapper) Probe(ctx context.Context) (Capabilities, error) {
	w.capsOnce.Do(func() {
		stdout, _, exitCode, err := w.Runner.Run(ctx, w.Binary, []string{"--help"})
		if err != nil {
			w.capsErr = &TrackerError{Message: "failed to probe tracker CLI capabilities", Err: err,
				Remediation: "verify the tracker CLI binary is installed and on PATH"}
			return
		}
		if exitCode != 0 {
			w.capsErr = &TrackerError{Message: "tracker CLI --help exited non-zero",
				Remediation: "verify the tracker CLI binary is a supported version"}
			return
		}
		w.caps = Capabilities{
			SupportsLabels:   strings.Contains(stdout, "--label"),
			SupportsParentID: strings.Contains(stdout, "--parent"),
			Probed:           true,
			HelpOutput:       stdout,
		}
	})
	return w.caps, w.capsErr
}

func errFromOutput(s string) error {
	return &outputError{s: strings.TrimSpace(s)}
}

type outputError struct{ s string }

func (e *outputError) Error() string { return e.s }
