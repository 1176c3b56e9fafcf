package commands

import (
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X ...commands.version=...".
var version = "dev"

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "bookkeeper",
		Short:   "Double-entry bookkeeping service and posting engine tools",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newTaxCommand())
	rootCmd.AddCommand(newDepreciationCommand())
	rootCmd.AddCommand(newPeriodCommand())

	return rootCmd
}
