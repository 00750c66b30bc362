// Package cmd is the command-line surface of the orchestrator.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dayrun-org/dayrun/internal/config"
	"github.com/dayrun-org/dayrun/internal/instancelock"
)

// Exit codes of the orchestrator process.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfigInvalid = 2
	ExitLockHeld      = 3
	ExitStateDir      = 4
)

// NewRootCmd builds the root command. Invoking it without a subcommand
// runs the supervisor until signalled.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dayrun",
		Short: "Daily pipeline orchestrator",
		Long: `dayrun runs a fixed daily pipeline of data-collection jobs against
time windows, dependencies and artifact checks, journaling per-day
state so a restart resumes where the previous process left off.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runStart,
	}

	cmd.PersistentFlags().String("config", "", "configuration file path")
	cmd.PersistentFlags().String("pipeline", "", "pipeline definition file path (overrides config)")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().Bool("quiet", false, "suppress console log output")

	cmd.AddCommand(
		CmdValidate(),
		CmdStatus(),
		CmdResetToday(),
		CmdVersion(),
	)
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}
	return ExitOK
}

// exitCodeFor maps sentinel errors to the documented exit codes.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, config.ErrStateDirUnwritable):
		return ExitStateDir
	case errors.Is(err, config.ErrConfigInvalid):
		return ExitConfigInvalid
	case errors.Is(err, instancelock.ErrLockHeld):
		return ExitLockHeld
	default:
		return ExitFailure
	}
}
