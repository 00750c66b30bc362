package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dayrun-org/dayrun/internal/journal"
	"github.com/dayrun-org/dayrun/internal/paths"
)

// CmdStatus prints a human-readable summary of today's journal.
func CmdStatus() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show today's pipeline state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := setup(cmd)
			if err != nil {
				return err
			}
			cfg := ctx.Config
			p := paths.New(cfg.RootDir, cfg.StateDir, cfg.LogDir)

			j, err := journal.Read(p.CurrentJournalFile())
			if os.IsNotExist(err) {
				fmt.Println("No journal for today; the orchestrator has not run yet.")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Printf("Pipeline state for %s\n\n", j.Date)

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"STEP", "STATE", "ATTEMPTS", "EXIT", "FINISHED", "ERROR"})

			// Declared order first, then journal-only leftovers.
			seen := make(map[string]bool, len(j.Steps))
			for i := range cfg.Steps {
				if st, ok := j.Steps[cfg.Steps[i].Name]; ok {
					t.AppendRow(statusRow(cfg.Steps[i].Name, st))
					seen[cfg.Steps[i].Name] = true
				}
			}
			for name, st := range j.Steps {
				if !seen[name] {
					t.AppendRow(statusRow(name, st))
				}
			}
			t.Render()

			if len(j.AlertsSent) > 0 {
				fmt.Printf("\nAlerts sent today: %d\n", len(j.AlertsSent))
			}
			return nil
		},
	}
}

func statusRow(name string, st *journal.StepState) table.Row {
	exit := "-"
	if st.LastExitCode != nil {
		exit = fmt.Sprintf("%d", *st.LastExitCode)
	}
	finished := st.LastFinishedAt
	if finished == "" {
		finished = "-"
	}
	return table.Row{name, string(st.State), st.AttemptsToday, exit, finished, st.LastError}
}
