package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayrun-org/dayrun/internal/config"
	"github.com/dayrun-org/dayrun/internal/instancelock"
)

func TestExitCodeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad steps", config.ErrConfigInvalid), ExitConfigInvalid},
		{fmt.Errorf("%w: /state", config.ErrStateDirUnwritable), ExitStateDir},
		{fmt.Errorf("%w: pid 42", instancelock.ErrLockHeld), ExitLockHeld},
		{errors.New("anything else"), ExitFailure},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, exitCodeFor(tc.err), "error %v", tc.err)
	}
}

func TestExitCodeForPipelineLoadFailure(t *testing.T) {
	t.Parallel()

	// A missing or malformed pipeline file is a configuration error,
	// not a generic failure.
	_, err := config.LoadPipeline(filepath.Join(t.TempDir(), "missing.yaml"), config.StepDefaults{})
	require.Error(t, err)
	assert.Equal(t, ExitConfigInvalid, exitCodeFor(err))
}

func TestNewRootCmdWiring(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	assert.Equal(t, "dayrun", root.Use)

	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"validate", "status", "reset-today", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
