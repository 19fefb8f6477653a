package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/emailpilot/epctl/credentials"
)

// Keys command flags.
var (
	keysAPIKey string
	keysLabel  string
)

func newKeysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage per-client gateway API keys",
		Long: `Manage per-client gateway API keys.

Keys are stored encrypted in ~/.epctl/credentials.yaml. The encryption key
comes from the system keyring, or from the EPCTL_ENCRYPTION_KEY environment
variable on headless machines.

The EPCTL_API_KEY environment variable overrides stored keys for every
client, which is useful in CI.

Examples:
  epctl keys set acme                  Prompt for the key (no echo)
  epctl keys set acme --api-key ep-... Non-interactive
  epctl keys list
  epctl keys show acme
  epctl keys delete acme`,
	}

	setCmd := &cobra.Command{
		Use:   "set <client-id>",
		Short: "Store an API key for a client",
		Args:  cobra.ExactArgs(1),
		RunE:  runKeysSet,
	}
	setCmd.Flags().StringVar(&keysAPIKey, "api-key", "", "API key (prompted when omitted)")
	setCmd.Flags().StringVar(&keysLabel, "label", "", "human-readable label for the key")

	showCmd := &cobra.Command{
		Use:     "show <client-id>",
		Aliases: []string{"get"},
		Short:   "Show the masked API key for a client",
		Args:    cobra.ExactArgs(1),
		RunE:    runKeysShow,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List clients with stored API keys",
		Args:  cobra.NoArgs,
		RunE:  runKeysList,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <client-id>",
		Short: "Remove the stored API key for a client",
		Args:  cobra.ExactArgs(1),
		RunE:  runKeysDelete,
	}

	cmd.AddCommand(setCmd)
	cmd.AddCommand(showCmd)
	cmd.AddCommand(listCmd)
	cmd.AddCommand(deleteCmd)

	return cmd
}

func runKeysSet(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	apiKey := keysAPIKey
	if apiKey == "" {
		apiKey, err = promptForAPIKey(args[0])
		if err != nil {
			return fmt.Errorf("reading API key: %w", err)
		}
	}

	if err := store.SetClientKey(args[0], apiKey, keysLabel); err != nil {
		return fmt.Errorf("storing key: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stored API key for %s: %s\n", args[0], credentials.MaskAPIKey(apiKey))
	if path, err := credentials.CredentialsPath(); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Credentials file: %s\n", path)
	}
	return nil
}

// promptForAPIKey reads a key without echo, falling back to plain stdin when
// no terminal is attached.
func promptForAPIKey(clientID string) (string, error) {
	fmt.Printf("API key for %s: ", clientID)

	keyBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		keyBytes = []byte(line)
	}

	apiKey := strings.TrimSpace(string(keyBytes))
	if apiKey == "" {
		return "", fmt.Errorf("no API key provided")
	}
	return apiKey, nil
}

func runKeysShow(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	apiKey, err := store.GetClientKey(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], credentials.MaskAPIKey(apiKey))
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	clients, ids, err := store.ListClients()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No stored keys.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CLIENT\tLABEL\tUPDATED")
	for _, id := range ids {
		entry := clients[id]
		updated := ""
		if !entry.LastUpdated.IsZero() {
			updated = entry.LastUpdated.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", id, entry.Label, updated)
	}
	return w.Flush()
}

func runKeysDelete(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	if err := store.DeleteClientKey(args[0]); err != nil {
		return fmt.Errorf("removing key: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed stored key for %s.\n", args[0])
	return nil
}
