// Package cmd provides CLI commands for the epctl tool.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/emailpilot/epctl/config"
	"github.com/emailpilot/epctl/pkg/logging"
)

// Global flags and state.
var (
	gatewayURL   string
	clientID     string
	timeout      time.Duration
	outputFormat string
	debug        bool

	// cfg holds the loaded configuration.
	cfg *config.CLIConfig

	// log is the shared structured logger, configured in PersistentPreRunE.
	log logging.Logger = logging.Nop()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "epctl",
	Short: "EmailPilot CLI - natural-language campaign analytics",
	Long: `epctl is the command-line interface for EmailPilot comprehensive queries.

It turns a natural-language question about an email account into a batch of
gateway requests, runs them concurrently, and returns aggregated metrics with
derived insights (campaign scores, recommendations, data quality).

COMMON WORKFLOWS:
  Ask a question:   epctl query "campaign performance last 30 days" --client acme
  Store an API key: epctl keys set acme
  Check the stack:  epctl health
  Review history:   epctl audit list --client acme

DISCOVERY:
  epctl <command> --help      Subcommands, flags, and examples for any command

Configuration is read from ~/.epctl/config.yaml and EPCTL_* environment
variables; flags override both.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Commands that don't need configuration.
		if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		// Flags override file and environment.
		if gatewayURL != "" {
			cfg.GatewayURL = gatewayURL
		}
		if timeout != 0 {
			cfg.RequestTimeout = timeout
		}
		if outputFormat != "" {
			cfg.OutputFormat = config.OutputFormat(outputFormat)
		}
		if debug {
			cfg.Debug = true
		}
		if clientID != "" {
			cfg.DefaultClientID = clientID
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logCfg := logging.DefaultConfig()
		if cfg.Debug {
			logCfg.Level = logging.LevelDebug
		}
		log = logging.NewLogger(logCfg)

		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "", "gateway base URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&clientID, "client", "", "client account ID")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "per-request timeout (e.g., 30s, 1m)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "", "output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newQueryCommand())
	rootCmd.AddCommand(newKeysCommand())
	rootCmd.AddCommand(newHealthCommand())
	rootCmd.AddCommand(newAuditCommand())
	rootCmd.AddCommand(newVersionCommand())
}

// ExecuteContext runs the root command with the given context.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// resolveClientID picks the client from the --client flag or the configured
// default, erroring when neither is set.
func resolveClientID() (string, error) {
	if clientID != "" {
		return clientID, nil
	}
	if cfg != nil && cfg.DefaultClientID != "" {
		return cfg.DefaultClientID, nil
	}
	return "", fmt.Errorf("no client specified: use --client or set default_client_id in config")
}
