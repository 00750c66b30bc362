package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dayrun-org/dayrun/internal/logger"
	"github.com/dayrun-org/dayrun/internal/logger/tag"
)

// CmdValidate loads and validates the configuration without running
// anything.
func CmdValidate() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and pipeline definition",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := ctx.Config.Validate(); err != nil {
				return err
			}
			logger.Info(ctx, "Configuration is valid",
				tag.Count(len(ctx.Config.Steps)), tag.File(ctx.Config.PipelineFile))
			return nil
		},
	}
}
