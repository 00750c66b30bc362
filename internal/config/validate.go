package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dayrun-org/dayrun/internal/fileutil"
)

// ErrConfigInvalid wraps every validation failure so callers can map it
// to the dedicated exit code.
var ErrConfigInvalid = errors.New("configuration invalid")

// ErrStateDirUnwritable is returned when the state directory cannot be
// created or written; it carries its own exit code.
var ErrStateDirUnwritable = errors.New("state directory is not writable")

// Validate checks the configuration the supervisor is about to run on.
// It rejects dependency cycles, unknown dependency names, overlapping
// or unordered windows, missing executables and an unwritable state
// directory.
func (c *Config) Validate() error {
	if c.GlobalParallelism < 1 {
		return fmt.Errorf("%w: global_parallelism must be >= 1, got %d", ErrConfigInvalid, c.GlobalParallelism)
	}
	if c.HeartbeatTime != "" {
		if _, err := ParseMinuteOfDay(c.HeartbeatTime); err != nil {
			return fmt.Errorf("%w: heartbeat_time: %v", ErrConfigInvalid, err)
		}
	}

	byName := make(map[string]*Step, len(c.Steps))
	for i := range c.Steps {
		step := &c.Steps[i]
		if step.Name == "" {
			return fmt.Errorf("%w: step %d has no name", ErrConfigInvalid, i)
		}
		if _, dup := byName[step.Name]; dup {
			return fmt.Errorf("%w: duplicate step name %q", ErrConfigInvalid, step.Name)
		}
		byName[step.Name] = step

		if err := validateStep(step); err != nil {
			return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
	}

	for i := range c.Steps {
		for _, dep := range c.Steps[i].Depends {
			if _, ok := byName[dep]; !ok {
				return fmt.Errorf("%w: step %q depends on unknown step %q", ErrConfigInvalid, c.Steps[i].Name, dep)
			}
		}
	}

	if err := checkAcyclic(c.Steps); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	if err := ensureWritableStateDir(c.StateDir); err != nil {
		return err
	}

	return nil
}

func validateStep(step *Step) error {
	switch step.Kind {
	case KindWindowed:
		if len(step.Windows) == 0 {
			return fmt.Errorf("step %q is windowed but declares no windows", step.Name)
		}
	case KindUnconditional:
		if step.Schedule == "" {
			return fmt.Errorf("step %q is unconditional but declares no schedule", step.Name)
		}
	case KindGated:
		if len(step.Windows) > 0 {
			return fmt.Errorf("step %q is gated but declares windows", step.Name)
		}
	default:
		return fmt.Errorf("step %q has unknown kind %q", step.Name, step.Kind)
	}

	for i, w := range step.Windows {
		if w.End < w.Start {
			return fmt.Errorf("step %q window %s ends before it starts", step.Name, w)
		}
		if i > 0 {
			prev := step.Windows[i-1]
			if w.Start <= prev.End {
				return fmt.Errorf("step %q windows %s and %s overlap or are out of order", step.Name, prev, w)
			}
		}
	}

	if step.MaxAttemptsPerWindow < 1 {
		return fmt.Errorf("step %q max_attempts_per_window must be >= 1", step.Name)
	}

	switch step.Action {
	case ActionCommand:
		if step.Command == "" {
			return fmt.Errorf("step %q has no command", step.Name)
		}
		if err := executableExists(step.Command); err != nil {
			return fmt.Errorf("step %q: %v", step.Name, err)
		}
	case ActionHygiene:
		if step.Command != "" {
			return fmt.Errorf("step %q is a hygiene step and must not declare a command", step.Name)
		}
	default:
		return fmt.Errorf("step %q has unknown action %q", step.Name, step.Action)
	}

	return nil
}

// executableExists checks the command can be resolved, either as a path
// or through PATH lookup.
func executableExists(command string) error {
	if filepath.IsAbs(command) || filepath.Base(command) != command {
		if !fileutil.FileExists(command) {
			return fmt.Errorf("executable %s does not exist", command)
		}
		return nil
	}
	if _, err := exec.LookPath(command); err != nil {
		return fmt.Errorf("executable %s not found in PATH", command)
	}
	return nil
}

// checkAcyclic verifies the dependency graph is a DAG via iterative DFS
// coloring.
func checkAcyclic(steps []Step) error {
	adj := make(map[string][]string, len(steps))
	for i := range steps {
		adj[steps[i].Name] = steps[i].Depends
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(adj))

	var visit func(name string) error
	visit = func(name string) error {
		color[name] = gray
		for _, dep := range adj[name] {
			switch color[dep] {
			case gray:
				return fmt.Errorf("dependency cycle through %q and %q", name, dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}

	for i := range steps {
		if color[steps[i].Name] == white {
			if err := visit(steps[i].Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func ensureWritableStateDir(dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStateDirUnwritable, dir, err)
	}
	if !fileutil.IsDirWritable(dir) {
		return fmt.Errorf("%w: %s", ErrStateDirUnwritable, dir)
	}
	return nil
}
