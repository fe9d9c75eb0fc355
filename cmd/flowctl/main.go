// Command flowctl inspects flow definitions and formflow deployments.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "flowctl",
		Short:         "Inspect form flow definitions",
		Long:          "flowctl validates flow YAML, prints the screen graph and manages formflow configuration files.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newScreensCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newSubmissionsCommand())
	rootCmd.AddCommand(newStatsCommand())
	return rootCmd
}
