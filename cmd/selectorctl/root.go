package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selectorctl",
		Short: "Offline tooling for the resource selector",
		Long: `selectorctl runs resource selection against a local catalog file and
checks catalog files before they are loaded by the service.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newSelectCommand())
	cmd.AddCommand(newCatalogCommand())

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}
