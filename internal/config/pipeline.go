package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"github.com/goccy/go-yaml"
)

// pipelineDef is the on-disk shape of the pipeline definition file.
type pipelineDef struct {
	Steps []Step `yaml:"steps"`
}

// LoadPipeline reads the ordered step list from the pipeline definition
// file, fills unset per-step fields from the defaults, and parses
// derived fields (cron schedules, weekday sets).
func LoadPipeline(file string, defaults StepDefaults) ([]Step, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read pipeline file: %w", ErrConfigInvalid, err)
	}

	var def pipelineDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: failed to parse pipeline file %s: %w", ErrConfigInvalid, file, err)
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("%w: pipeline file %s defines no steps", ErrConfigInvalid, file)
	}

	filled := stepFill(defaults)
	for i := range def.Steps {
		step := &def.Steps[i]
		if err := mergo.Merge(step, filled); err != nil {
			return nil, fmt.Errorf("%w: step %s: failed to apply defaults: %w", ErrConfigInvalid, step.Name, err)
		}
		if step.Kind == "" {
			step.Kind = inferKind(step)
		}
		if err := step.finalize(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
		}
	}

	return def.Steps, nil
}

// stepFill converts defaults into a sparse Step that mergo can merge
// into each declared step (zero fields in the step take the default).
func stepFill(d StepDefaults) Step {
	fill := Step{
		Timeout:              d.Timeout,
		MaxAttemptsPerWindow: d.MaxAttemptsPerWindow,
		GracePeriod:          d.GracePeriod,
	}
	if fill.Timeout == 0 {
		fill.Timeout = defaultStepTimeout
	}
	if fill.MaxAttemptsPerWindow == 0 {
		fill.MaxAttemptsPerWindow = defaultMaxAttempts
	}
	if fill.GracePeriod == 0 {
		fill.GracePeriod = defaultGracePeriod
	}
	return fill
}

// inferKind derives the step kind when the definition leaves it out:
// windows mean windowed, a schedule means unconditional, anything else
// is dependency gated.
func inferKind(s *Step) Kind {
	switch {
	case len(s.Windows) > 0:
		return KindWindowed
	case s.Schedule != "":
		return KindUnconditional
	default:
		return KindGated
	}
}
