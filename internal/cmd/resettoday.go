package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dayrun-org/dayrun/internal/instancelock"
	"github.com/dayrun-org/dayrun/internal/logger"
	"github.com/dayrun-org/dayrun/internal/logger/tag"
	"github.com/dayrun-org/dayrun/internal/paths"
)

// CmdResetToday deletes today's journal. Testing aid; refuses while a
// live orchestrator holds the instance lock.
func CmdResetToday() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-today",
		Short: "Delete today's journal (testing aid)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := setup(cmd)
			if err != nil {
				return err
			}
			cfg := ctx.Config
			p := paths.New(cfg.RootDir, cfg.StateDir, cfg.LogDir)

			lock := instancelock.New(p.LockFile())
			if holder := lock.Holder(ctx); holder != nil {
				return fmt.Errorf("%w: pid %d", instancelock.ErrLockHeld, holder.PID)
			}

			journalFile := p.CurrentJournalFile()
			if err := os.Remove(journalFile); err != nil {
				if os.IsNotExist(err) {
					logger.Info(ctx, "No journal to remove", tag.File(journalFile))
					return nil
				}
				return err
			}
			logger.Info(ctx, "Removed today's journal", tag.File(journalFile))
			return nil
		},
	}
}
