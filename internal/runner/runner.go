// Package runner launches external job processes with timeout
// discipline, process-tree termination, and bounded output capture.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dayrun-org/dayrun/internal/config"
	"github.com/dayrun-org/dayrun/internal/logger"
	"github.com/dayrun-org/dayrun/internal/logger/tag"
	"github.com/dayrun-org/dayrun/internal/paths"
)

// Result describes one finished job invocation. ExitCode 0 means
// success; there is no partial success.
type Result struct {
	RunID           string
	ExitCode        int
	Duration        time.Duration
	StdoutTail      string
	StderrTail      string
	KilledOnTimeout bool
}

// Runner executes external programs. It owns each child process it
// spawns and never retries; retry policy belongs to the engine.
type Runner struct {
	paths *paths.Paths
	clock func() time.Time
}

// New constructs a Runner writing step logs through the given paths.
func New(p *paths.Paths, clock func() time.Time) *Runner {
	if clock == nil {
		clock = time.Now
	}
	return &Runner{paths: p, clock: clock}
}

// Run launches the step's command for the given 1-based attempt.
// The child inherits the orchestrator environment plus the pipeline
// contract variables, runs in the orchestrator root, and is killed
// together with its whole process tree on timeout.
func (r *Runner) Run(ctx context.Context, step *config.Step, attempt int) (Result, error) {
	now := r.clock()
	extraEnv := []string{
		"PIPELINE_DATE=" + paths.DateFolder(now),
		"PIPELINE_ROOT=" + r.paths.Root,
		"PIPELINE_STEP=" + step.Name,
		fmt.Sprintf("PIPELINE_ATTEMPT=%d", attempt),
	}
	return r.run(ctx, runSpec{
		name:    step.Name,
		attempt: attempt,
		command: step.Command,
		args:    step.Args,
		timeout: step.Timeout,
		grace:   step.GracePeriod,
		env:     extraEnv,
	})
}

// RunAdhoc launches a non-pipeline helper program (the mailer job).
func (r *Runner) RunAdhoc(ctx context.Context, name, command string, args []string, timeout time.Duration) (Result, error) {
	return r.run(ctx, runSpec{
		name:    name,
		attempt: 1,
		command: command,
		args:    args,
		timeout: timeout,
		grace:   5 * time.Second,
	})
}

type runSpec struct {
	name    string
	attempt int
	command string
	args    []string
	timeout time.Duration
	grace   time.Duration
	env     []string
}

func (r *Runner) run(ctx context.Context, spec runSpec) (Result, error) {
	runID := uuid.NewString()[:8]
	started := r.clock()

	stdout, stderr, closeLogs, err := r.openLogs(started, spec, runID)
	if err != nil {
		// Log files are best effort; capture tails only.
		logger.Warn(ctx, "Failed to open step log files", tag.Step(spec.name), tag.Error(err))
	}
	defer closeLogs()

	tailOut := NewTailWriter(stdout, 0)
	tailErr := NewTailWriter(stderr, 0)

	cmd := exec.Command(spec.command, spec.args...) // nolint:gosec
	cmd.Dir = r.paths.Root
	cmd.Env = append(os.Environ(), spec.env...)
	cmd.Stdout = tailOut
	cmd.Stderr = tailErr
	SetupCommand(cmd)

	logger.Info(ctx, "Starting job process",
		tag.Step(spec.name),
		tag.RunID(runID),
		tag.Attempt(spec.attempt),
		tag.Command(spec.command),
		tag.Args(spec.args),
		tag.Timeout(spec.timeout),
	)

	if err := cmd.Start(); err != nil {
		return Result{
			RunID:      runID,
			ExitCode:   exitCodeFromError(err),
			StderrTail: tailErr.Tail(),
		}, fmt.Errorf("failed to start %s: %w", spec.command, err)
	}

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	var timeoutCh <-chan time.Time
	if spec.timeout > 0 {
		timer := time.NewTimer(spec.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	result := Result{RunID: runID}

	select {
	case waitErr := <-waitCh:
		result.ExitCode = exitCodeFromError(waitErr)

	case <-timeoutCh:
		logger.Warn(ctx, "Job timed out, killing process tree",
			tag.Step(spec.name), tag.RunID(runID), tag.Timeout(spec.timeout))
		r.killTree(ctx, cmd, spec.grace, waitCh)
		result.ExitCode = exitCodeKilled
		result.KilledOnTimeout = true

	case <-ctx.Done():
		logger.Info(ctx, "Shutdown requested, stopping job",
			tag.Step(spec.name), tag.RunID(runID))
		r.killTree(ctx, cmd, spec.grace, waitCh)
		result.ExitCode = exitCodeKilled
	}

	result.Duration = r.clock().Sub(started)
	result.StdoutTail = tailOut.Tail()
	result.StderrTail = tailErr.Tail()

	logger.Info(ctx, "Job process finished",
		tag.Step(spec.name),
		tag.RunID(runID),
		tag.ExitCode(result.ExitCode),
		tag.Duration(result.Duration),
	)

	return result, nil
}

// exitCodeKilled is reported when the orchestrator killed the child.
const exitCodeKilled = -1

// killTree requests a graceful stop, waits out the grace period, then
// force-kills whatever remains of the process tree.
func (r *Runner) killTree(ctx context.Context, cmd *exec.Cmd, grace time.Duration, waitCh <-chan error) {
	if err := KillProcessGroup(cmd, syscall.SIGTERM); err != nil {
		logger.Warn(ctx, "Failed to signal process group", tag.Signal("SIGTERM"), tag.Error(err))
	}
	if grace <= 0 {
		grace = 5 * time.Second
	}
	select {
	case <-waitCh:
		return
	case <-time.After(grace):
	}
	if err := KillProcessGroup(cmd, syscall.SIGKILL); err != nil {
		logger.Warn(ctx, "Failed to kill process group", tag.Signal("SIGKILL"), tag.Error(err))
	}
	<-waitCh
}

// openLogs creates today's per-step log files. The returned close
// function is always safe to call.
func (r *Runner) openLogs(now time.Time, spec runSpec, runID string) (io.Writer, io.Writer, func(), error) {
	dir := r.paths.StepLogDir(now)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, nil, func() {}, err
	}

	base := fmt.Sprintf("%s.%d.%s", spec.name, spec.attempt, runID)
	outFile, err := os.Create(filepath.Join(dir, base+".stdout.log"))
	if err != nil {
		return nil, nil, func() {}, err
	}
	errFile, err := os.Create(filepath.Join(dir, base+".stderr.log"))
	if err != nil {
		_ = outFile.Close()
		return nil, nil, func() {}, err
	}

	closeFn := func() {
		_ = outFile.Close()
		_ = errFile.Close()
	}
	return outFile, errFile, closeFn, nil
}

// exitCodeFromError returns the process exit code represented by err:
// 0 if err is nil, the child's code for an *exec.ExitError, 1 otherwise.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
