package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayrun-org/dayrun/internal/config"
)

func writePipeline(t *testing.T, yaml string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(file, []byte(yaml), 0600))
	return file
}

const samplePipeline = `
steps:
  - name: dl_am
    windows:
      - start: "09:00"
        end: "09:10"
    command: sh
    args: ["-c", "exit 0"]
    max_attempts_per_window: 3
    catch_up: true
    artifact_check:
      dir: csv
      glob: "*.csv"
      min_count: 4
  - name: merge
    depends: [dl_am]
    command: sh
    args: ["-c", "exit 0"]
  - name: hygiene_4pm
    action: hygiene
    schedule: "0 16 * * *"
  - name: email
    windows:
      - start: "08:30"
        end: "09:30"
    days_of_week: [mon, tue, wed, thu, fri]
    command: sh
    args: ["-c", "exit 0"]
`

func TestLoadPipeline(t *testing.T) {
	t.Parallel()

	file := writePipeline(t, samplePipeline)
	steps, err := config.LoadPipeline(file, config.StepDefaults{})
	require.NoError(t, err)
	require.Len(t, steps, 4)

	// Kinds are inferred from shape when unset.
	assert.Equal(t, config.KindWindowed, steps[0].Kind)
	assert.Equal(t, config.KindGated, steps[1].Kind)
	assert.Equal(t, config.KindUnconditional, steps[2].Kind)
	assert.Equal(t, config.KindWindowed, steps[3].Kind)

	// Defaults fill unset fields; declared values survive.
	assert.Equal(t, 3, steps[0].MaxAttemptsPerWindow)
	assert.Equal(t, 1, steps[1].MaxAttemptsPerWindow)
	assert.Equal(t, 15*time.Minute, steps[0].Timeout)

	require.NotNil(t, steps[0].ArtifactCheck)
	assert.Equal(t, 4, steps[0].ArtifactCheck.MinCount)

	// Weekday filter parsed.
	assert.True(t, steps[3].RunsOn(time.Monday))
	assert.False(t, steps[3].RunsOn(time.Saturday))
	assert.True(t, steps[0].RunsOn(time.Saturday))

	// Unconditional schedule resolves to 16:00 today.
	moment, ok := steps[2].MomentToday(time.Date(2026, 7, 31, 9, 0, 0, 0, time.Local))
	require.True(t, ok)
	assert.Equal(t, 16, moment.Hour())
	assert.Equal(t, 0, moment.Minute())
}

func TestLoadPipelineDefaults(t *testing.T) {
	t.Parallel()

	file := writePipeline(t, `
steps:
  - name: only
    command: sh
    args: ["-c", "exit 0"]
`)
	steps, err := config.LoadPipeline(file, config.StepDefaults{
		Timeout:              time.Minute,
		MaxAttemptsPerWindow: 5,
	})
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, time.Minute, steps[0].Timeout)
	assert.Equal(t, 5, steps[0].MaxAttemptsPerWindow)
}

func TestLoadPipelineErrors(t *testing.T) {
	t.Parallel()

	// Every load failure is a configuration error so the process can
	// exit with the documented code.
	_, err := config.LoadPipeline(filepath.Join(t.TempDir(), "missing.yaml"), config.StepDefaults{})
	assert.ErrorIs(t, err, config.ErrConfigInvalid)

	file := writePipeline(t, "steps: [")
	_, err = config.LoadPipeline(file, config.StepDefaults{})
	assert.ErrorIs(t, err, config.ErrConfigInvalid)

	file = writePipeline(t, "steps: []")
	_, err = config.LoadPipeline(file, config.StepDefaults{})
	assert.ErrorIs(t, err, config.ErrConfigInvalid)
	assert.ErrorContains(t, err, "no steps")

	file = writePipeline(t, `
steps:
  - name: bad
    schedule: "not a cron"
    command: sh
`)
	_, err = config.LoadPipeline(file, config.StepDefaults{})
	assert.ErrorIs(t, err, config.ErrConfigInvalid)
	assert.ErrorContains(t, err, "invalid schedule")
}

func TestParseMinuteOfDay(t *testing.T) {
	t.Parallel()

	m, err := config.ParseMinuteOfDay("09:05")
	require.NoError(t, err)
	assert.Equal(t, config.MinuteOfDay(9*60+5), m)
	assert.Equal(t, "09:05", m.String())

	for _, bad := range []string{"9", "24:00", "09:60", "xx:yy", ""} {
		_, err := config.ParseMinuteOfDay(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func validConfig(t *testing.T, steps ...config.Step) *config.Config {
	t.Helper()
	return &config.Config{
		RootDir:           t.TempDir(),
		StateDir:          t.TempDir(),
		GlobalParallelism: 2,
		Steps:             steps,
	}
}

func gatedStep(name string, deps ...string) config.Step {
	return config.Step{
		Name:                 name,
		Kind:                 config.KindGated,
		Depends:              deps,
		Command:              "sh",
		Args:                 []string{"-c", "exit 0"},
		MaxAttemptsPerWindow: 1,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t, gatedStep("a"), gatedStep("b", "a"))
	require.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	t.Run("parallelism", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig(t, gatedStep("a"))
		cfg.GlobalParallelism = 0
		assert.ErrorIs(t, cfg.Validate(), config.ErrConfigInvalid)
	})

	t.Run("cycle", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig(t, gatedStep("a", "b"), gatedStep("b", "a"))
		err := cfg.Validate()
		assert.ErrorIs(t, err, config.ErrConfigInvalid)
		assert.ErrorContains(t, err, "cycle")
	})

	t.Run("unknown dependency", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig(t, gatedStep("a", "nope"))
		assert.ErrorContains(t, cfg.Validate(), "unknown step")
	})

	t.Run("duplicate name", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig(t, gatedStep("a"), gatedStep("a"))
		assert.ErrorContains(t, cfg.Validate(), "duplicate")
	})

	t.Run("missing executable", func(t *testing.T) {
		t.Parallel()
		step := gatedStep("a")
		step.Command = "/no/such/binary"
		cfg := validConfig(t, step)
		assert.ErrorContains(t, cfg.Validate(), "does not exist")
	})

	t.Run("overlapping windows", func(t *testing.T) {
		t.Parallel()
		step := config.Step{
			Name: "w", Kind: config.KindWindowed,
			Command: "sh", MaxAttemptsPerWindow: 1,
			Windows: []config.Window{
				{Start: 9 * 60, End: 10 * 60},
				{Start: 9*60 + 30, End: 11 * 60},
			},
		}
		cfg := validConfig(t, step)
		assert.ErrorContains(t, cfg.Validate(), "overlap")
	})

	t.Run("window ends before start", func(t *testing.T) {
		t.Parallel()
		step := config.Step{
			Name: "w", Kind: config.KindWindowed,
			Command: "sh", MaxAttemptsPerWindow: 1,
			Windows: []config.Window{{Start: 10 * 60, End: 9 * 60}},
		}
		cfg := validConfig(t, step)
		assert.ErrorContains(t, cfg.Validate(), "ends before")
	})

	t.Run("unwritable state dir", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig(t, gatedStep("a"))
		roDir := filepath.Join(t.TempDir(), "ro")
		require.NoError(t, os.Mkdir(roDir, 0500))
		cfg.StateDir = filepath.Join(roDir, "state")
		assert.ErrorIs(t, cfg.Validate(), config.ErrStateDirUnwritable)
	})
}
