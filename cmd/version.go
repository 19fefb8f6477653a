package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emailpilot/epctl/pkg/buildinfo"
)

var versionJSON bool

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the version, commit hash, and build time of the epctl CLI.

Examples:
  epctl version
  epctl version --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if versionJSON {
				return writeJSON(cmd.OutOrStdout(), buildinfo.Get())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "epctl %s\n", buildinfo.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&versionJSON, "json", false, "output as JSON")

	return cmd
}
