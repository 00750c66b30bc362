// Package engine drives the daily pipeline. Its entry point is Tick:
// a short, serialized pass over the declared steps that decides what
// may start now. Running jobs are offloaded to workers; a completion
// updates the journal and requests an immediate re-tick through the
// wake channel.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dayrun-org/dayrun/internal/backoff"
	"github.com/dayrun-org/dayrun/internal/clockwin"
	"github.com/dayrun-org/dayrun/internal/config"
	"github.com/dayrun-org/dayrun/internal/hygiene"
	"github.com/dayrun-org/dayrun/internal/journal"
	"github.com/dayrun-org/dayrun/internal/logger"
	"github.com/dayrun-org/dayrun/internal/logger/tag"
	"github.com/dayrun-org/dayrun/internal/notify"
	"github.com/dayrun-org/dayrun/internal/paths"
	"github.com/dayrun-org/dayrun/internal/probe"
	"github.com/dayrun-org/dayrun/internal/runner"
)

// retry backoff between attempts within a window.
const (
	retryInitialInterval = 30 * time.Second
	retryJitterFraction  = 0.1
)

// Engine composes the clock, probe, runner, journal, hygiene and
// notifier into the per-tick scheduling decision.
type Engine struct {
	cfg      *config.Config
	paths    *paths.Paths
	store    *journal.Store
	runner   *runner.Runner
	probe    *probe.Probe
	cleaner  *hygiene.Cleaner
	notifier *notify.Notifier
	clock    func() time.Time

	policy backoff.RetryPolicy

	mu      sync.Mutex
	running map[string]struct{}
	retryAt map[string]time.Time

	wake chan struct{}
	wg   sync.WaitGroup
}

// New wires an Engine. The clock is injectable for tests; nil means
// time.Now.
func New(cfg *config.Config, p *paths.Paths, store *journal.Store, run *runner.Runner, prb *probe.Probe, cleaner *hygiene.Cleaner, notifier *notify.Notifier, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	policy := backoff.NewExponentialBackoffPolicy(retryInitialInterval)
	policy.JitterFraction = retryJitterFraction
	return &Engine{
		cfg:      cfg,
		paths:    p,
		store:    store,
		runner:   run,
		probe:    prb,
		cleaner:  cleaner,
		notifier: notifier,
		clock:    clock,
		policy:   policy,
		running:  make(map[string]struct{}),
		retryAt:  make(map[string]time.Time),
		wake:     make(chan struct{}, 1),
	}
}

// Wake signals that a completed run wants an immediate re-tick.
func (e *Engine) Wake() <-chan struct{} {
	return e.wake
}

// WaitIdle blocks until all in-flight workers have finished. Called
// during shutdown after the context has been cancelled.
func (e *Engine) WaitIdle() {
	e.wg.Wait()
}

// RunningCount returns the number of in-flight steps.
func (e *Engine) RunningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}

// Recover adopts steps left Running by a previous incarnation: each is
// marked Failed with reason "orphaned", then returned to Pending when
// it still has attempts left so the normal retry path picks it up.
func (e *Engine) Recover(ctx context.Context, now time.Time) error {
	orphaned, err := e.store.AdoptOrphans(ctx, now)
	if err != nil {
		return err
	}
	for _, name := range orphaned {
		step := e.stepByName(name)
		if step == nil {
			continue
		}
		st, ok := e.store.StepState(name)
		if !ok || st.AttemptsToday >= e.maxAttempts(step) {
			continue
		}
		out := journal.Outcome{ExitCode: -1, Error: "orphaned"}
		if err := e.store.MarkRetry(ctx, name, out, now); err != nil {
			return err
		}
		logger.Info(ctx, "Orphaned step will be retried", tag.Step(name))
	}
	return nil
}

// Tick is the scheduling pass. Steps are visited in declared order;
// the skip cascade is applied before eligibility so downstream steps
// of a failed dependency settle even outside their windows.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.cfg.Steps {
		step := &e.cfg.Steps[i]

		if _, busy := e.running[step.Name]; busy {
			continue
		}
		st, ok := e.store.StepState(step.Name)
		if !ok {
			continue
		}
		if st.State != journal.StatePending {
			continue
		}

		if failedDep := e.failedDependency(step); failedDep != "" {
			reason := fmt.Sprintf("dependency %s did not complete", failedDep)
			if err := e.store.MarkSkipped(ctx, step.Name, reason); err == nil {
				logger.Info(ctx, "Step skipped",
					tag.Step(step.Name), tag.Dependency(failedDep))
			}
			continue
		}
		if !e.dependenciesDone(step) {
			continue
		}

		if !e.eligibleNow(ctx, step, &st, now) {
			continue
		}
		if t, held := e.retryAt[step.Name]; held && now.Before(t) {
			continue
		}
		if len(e.running) >= e.cfg.GlobalParallelism {
			logger.Debug(ctx, "Parallelism cap reached, deferring",
				tag.Step(step.Name), tag.Count(len(e.running)))
			continue
		}

		e.start(ctx, step, now)
	}
}

// eligibleNow applies the per-kind timing rule. It may mark the step
// Skipped or Failed as a side effect when its opportunity has passed.
func (e *Engine) eligibleNow(ctx context.Context, step *config.Step, st *journal.StepState, now time.Time) bool {
	switch step.Kind {
	case config.KindWindowed:
		switch clockwin.Evaluate(step, now) {
		case clockwin.InWindow:
			return true
		case clockwin.NotYet:
			return false
		case clockwin.NotToday:
			_ = e.store.MarkSkipped(ctx, step.Name, "not scheduled today")
			return false
		case clockwin.Missed:
			if step.CatchUp {
				return true
			}
			e.settleMissed(ctx, step, st, now)
			return false
		default:
			return false
		}

	case config.KindUnconditional:
		if !step.RunsOn(now.Weekday()) {
			_ = e.store.MarkSkipped(ctx, step.Name, "not scheduled today")
			return false
		}
		moment, ok := step.MomentToday(now)
		if !ok {
			return false
		}
		return !now.Before(moment)

	case config.KindGated:
		return step.RunsOn(now.Weekday())

	default:
		return false
	}
}

// settleMissed finalizes a windowed step whose windows have all passed
// without catch-up: never attempted means Skipped, otherwise the last
// failure becomes final.
func (e *Engine) settleMissed(ctx context.Context, step *config.Step, st *journal.StepState, now time.Time) {
	if st.AttemptsToday == 0 {
		if err := e.store.MarkSkipped(ctx, step.Name, "window missed"); err == nil {
			logger.Info(ctx, "Step skipped, window missed", tag.Step(step.Name))
		}
		return
	}
	code := -1
	if st.LastExitCode != nil {
		code = *st.LastExitCode
	}
	out := journal.Outcome{
		ExitCode:        code,
		KilledOnTimeout: st.KilledOnTimeout,
		Error:           "retry window closed",
	}
	if err := e.store.MarkFailed(ctx, step.Name, out, now); err == nil {
		e.notifyFailed(ctx, step, st.AttemptsToday, "retry window closed")
	}
}

// start transitions the step to Running and hands it to a worker.
// Caller holds e.mu.
func (e *Engine) start(ctx context.Context, step *config.Step, now time.Time) {
	attempt, err := e.store.MarkStarted(ctx, step.Name, now)
	if err != nil {
		// Journal write failed; the step is still Pending and the next
		// tick retries the transition.
		return
	}
	delete(e.retryAt, step.Name)
	e.running[step.Name] = struct{}{}

	logger.Info(ctx, "Step starting",
		tag.Step(step.Name), tag.Attempt(attempt), tag.State(string(journal.StateRunning)))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.execute(ctx, step, attempt)
		e.requestWake()
	}()
}

// execute runs the step's work off the tick path and records the
// outcome.
func (e *Engine) execute(ctx context.Context, step *config.Step, attempt int) {
	var (
		result runner.Result
		runErr error
	)
	if step.Action == config.ActionHygiene {
		report, err := e.cleaner.Sweep(ctx, "step "+step.Name)
		switch {
		case err != nil:
			// Nothing was swept; the step must not look successful.
			runErr = err
			result.ExitCode = 1
		case len(report.Survivors) > 0:
			runErr = fmt.Errorf("%d matching processes survived kill", len(report.Survivors))
			result.ExitCode = 1
		}
	} else {
		result, runErr = e.runner.Run(ctx, step, attempt)
	}
	e.complete(ctx, step, attempt, result, runErr)
}

// complete applies the run outcome to the journal: artifact-check
// demotion, retry-or-fail decision, and completion alerts.
func (e *Engine) complete(ctx context.Context, step *config.Step, attempt int, result runner.Result, runErr error) {
	now := e.clock()

	e.mu.Lock()
	delete(e.running, step.Name)
	e.mu.Unlock()

	out := journal.Outcome{
		ExitCode:        result.ExitCode,
		KilledOnTimeout: result.KilledOnTimeout,
		RunID:           result.RunID,
	}

	failure := ""
	switch {
	case runErr != nil:
		failure = runErr.Error()
	case result.KilledOnTimeout:
		failure = fmt.Sprintf("timed out after %s", step.Timeout)
	case result.ExitCode != 0:
		failure = fmt.Sprintf("exited with code %d: %s", result.ExitCode, result.StderrTail)
	default:
		if err := e.checkArtifacts(ctx, step, now); err != nil {
			failure = err.Error()
		}
	}

	if failure == "" {
		if err := e.store.MarkDone(ctx, step.Name, out, now); err != nil {
			return
		}
		logger.Info(ctx, "Step done", tag.Step(step.Name), tag.Attempt(attempt))
		e.notifier.Notify(ctx, notify.Alert{
			Kind:    notify.KindStepCompleted,
			Key:     notify.StepAlertKey(notify.KindStepCompleted, step.Name),
			Subject: notify.Subject(notify.KindStepCompleted, e.store.Date(), step.Name),
			Body: fmt.Sprintf("Step %s completed on attempt %d (run %s, %s).",
				step.Name, attempt, result.RunID, result.Duration.Round(time.Millisecond)),
		})
		if step.ClosesApplication {
			if _, err := e.cleaner.Sweep(ctx, "after "+step.Name); err != nil {
				logger.Warn(ctx, "Post-step process sweep failed",
					tag.Step(step.Name), tag.Error(err))
			}
		}
		return
	}

	out.Error = failure

	if attempt < e.maxAttempts(step) && e.retryPossible(step, now) {
		if err := e.store.MarkRetry(ctx, step.Name, out, now); err != nil {
			return
		}
		delay := e.retryDelay(attempt)
		e.mu.Lock()
		e.retryAt[step.Name] = now.Add(delay)
		e.mu.Unlock()
		logger.Warn(ctx, "Step failed, will retry",
			tag.Step(step.Name), tag.Attempt(attempt),
			tag.ExitCode(result.ExitCode), tag.Interval(delay))
		return
	}

	if err := e.store.MarkFailed(ctx, step.Name, out, now); err != nil {
		return
	}
	logger.Error(ctx, "Step failed",
		tag.Step(step.Name), tag.Attempt(attempt),
		tag.ExitCode(result.ExitCode), tag.Reason(failure))
	e.notifyFailed(ctx, step, attempt, failure)
}

// checkArtifacts demotes an exit-0 run to failure when the expected
// output files are missing, too small, or still being written.
func (e *Engine) checkArtifacts(ctx context.Context, step *config.Step, now time.Time) error {
	chk := step.ArtifactCheck
	if chk == nil {
		return nil
	}
	dir := e.paths.Resolve(chk.Dir, now)
	count, err := e.probe.CountFiles(ctx, dir, chk.Glob, chk.MinSizeBytes, chk.StableFor)
	if err != nil {
		return fmt.Errorf("artifact check failed: %w", err)
	}
	if count < chk.MinCount {
		return fmt.Errorf("artifact check failed: %d of %d required files matching %s in %s",
			count, chk.MinCount, chk.Glob, dir)
	}
	logger.Debug(ctx, "Artifact check passed",
		tag.Step(step.Name), tag.Count(count), tag.Pattern(chk.Glob))
	return nil
}

// notifyFailed sends the once-per-day failure alert for the step.
// Retries of the same failure do not re-alert.
func (e *Engine) notifyFailed(ctx context.Context, step *config.Step, attempt int, reason string) {
	e.notifier.Notify(ctx, notify.Alert{
		Kind:    notify.KindStepFailed,
		Key:     notify.StepAlertKey(notify.KindStepFailed, step.Name),
		Subject: notify.Subject(notify.KindStepFailed, e.store.Date(), step.Name),
		Body: fmt.Sprintf("Step %s failed after %d attempt(s): %s",
			step.Name, attempt, reason),
	})
}

// retryPossible reports whether a failed attempt may be retried at now.
func (e *Engine) retryPossible(step *config.Step, now time.Time) bool {
	if step.Kind != config.KindWindowed {
		return true
	}
	switch clockwin.Evaluate(step, now) {
	case clockwin.InWindow:
		return true
	case clockwin.Missed:
		return step.CatchUp
	default:
		return false
	}
}

func (e *Engine) retryDelay(attempt int) time.Duration {
	d, err := e.policy.ComputeNextInterval(attempt-1, 0, nil)
	if err != nil {
		return retryInitialInterval
	}
	return d
}

func (e *Engine) maxAttempts(step *config.Step) int {
	if step.MaxAttemptsPerWindow > 0 {
		return step.MaxAttemptsPerWindow
	}
	return 1
}

// failedDependency returns the name of a dependency in a terminal
// non-success state, or "".
func (e *Engine) failedDependency(step *config.Step) string {
	for _, dep := range step.Depends {
		st, ok := e.store.StepState(dep)
		if !ok {
			continue
		}
		if st.State.Terminal() && st.State != journal.StateDone {
			return dep
		}
	}
	return ""
}

func (e *Engine) dependenciesDone(step *config.Step) bool {
	for _, dep := range step.Depends {
		st, ok := e.store.StepState(dep)
		if !ok || st.State != journal.StateDone {
			return false
		}
	}
	return true
}

func (e *Engine) stepByName(name string) *config.Step {
	for i := range e.cfg.Steps {
		if e.cfg.Steps[i].Name == name {
			return &e.cfg.Steps[i]
		}
	}
	return nil
}

func (e *Engine) requestWake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}
