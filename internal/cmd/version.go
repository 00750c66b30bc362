package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dayrun-org/dayrun/internal/build"
)

// CmdVersion prints the build version.
func CmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(build.Version)
		},
	}
}
