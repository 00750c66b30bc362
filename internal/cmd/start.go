package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dayrun-org/dayrun/internal/supervisor"
)

// runStart is the default invocation: validate, then run the
// supervisor until SIGINT/SIGTERM.
func runStart(cmd *cobra.Command, _ []string) error {
	ctx, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := ctx.Config.Validate(); err != nil {
		return err
	}

	sup, err := supervisor.New(ctx.Config, nil)
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return sup.Run(signalCtx)
}
