package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/resource-selector/internal/catalog"
	"github.com/ILLUVRSE/resource-selector/internal/models"
)

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect catalog files",
	}
	cmd.AddCommand(newCatalogValidateCommand())
	return cmd
}

func newCatalogValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check catalog files for schema and value errors",
		Long: `Decode each catalog file strictly (unknown keys are errors), validate every
descriptor and reject duplicate ids. Prints a summary per file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed []string
			for _, path := range args {
				if err := validateCatalogFile(cmd.OutOrStdout(), path); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					failed = append(failed, path)
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d catalog file(s) invalid: %s", len(failed), strings.Join(failed, ", "))
			}
			return nil
		},
	}
}

func validateCatalogFile(w io.Writer, path string) error {
	descs, err := catalog.LoadFile(path)
	if err != nil {
		return err
	}
	available, local := 0, 0
	for _, d := range descs {
		if d.Available() {
			available++
		}
		if d.Provider == models.ProviderLocal {
			local++
		}
	}
	fmt.Fprintf(w, "%s: %d resources (%d available, %d local)\n", path, len(descs), available, local)
	if local == 0 {
		fmt.Fprintf(w, "%s: warning: no local resources; confidential requests will never match\n", path)
	}
	return nil
}
