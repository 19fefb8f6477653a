package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/emailpilot/epctl/config"
)

// Audit command flags.
var auditLimit int

func newAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect recorded query runs",
		Long: `Inspect the history of comprehensive query runs.

Each run records the query text, how many gateway requests it produced, how
many succeeded, which sections were answered, and the data completeness
score. History requires the audit database to be configured.

Examples:
  epctl audit list --client acme
  epctl audit list --client acme --limit 50 --output json`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent query runs for a client",
		Args:  cobra.NoArgs,
		RunE:  runAuditList,
	}
	listCmd.Flags().IntVarP(&auditLimit, "limit", "l", 20, "maximum number of runs")

	cmd.AddCommand(listCmd)

	return cmd
}

func runAuditList(cmd *cobra.Command, args []string) error {
	client, err := resolveClientID()
	if err != nil {
		return err
	}
	if !cfg.Audit.IsConfigured() {
		return fmt.Errorf("no audit database configured: set audit.host, audit.database, and audit.user in config")
	}

	recorder, cleanup, err := openRecorder(cmd.Context())
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	runs, err := recorder.ListRuns(cmd.Context(), client, auditLimit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	if currentFormat() != config.OutputFormatText {
		return writeStructured(cmd.OutOrStdout(), runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No recorded runs.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tREQUESTS\tSECTIONS\tCOMPLETENESS\tQUERY")
	for _, run := range runs {
		query := run.QueryText
		if len(query) > 48 {
			query = query[:45] + "..."
		}
		fmt.Fprintf(w, "%s\t%d/%d\t%s\t%d%%\t%s\n",
			run.CreatedAt.Format("2006-01-02 15:04"),
			run.SuccessfulRequests, run.TotalRequests,
			strings.Join(run.Sections, ","),
			run.Completeness,
			query,
		)
	}
	return w.Flush()
}
