package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emailpilot/epctl/config"
)

// TestRootCommand verifies the root command structure.
func TestRootCommand(t *testing.T) {
	assert.Equal(t, "epctl", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

// TestRootCommand_HasSubcommands verifies the expected subcommands are registered.
func TestRootCommand_HasSubcommands(t *testing.T) {
	want := map[string]bool{
		"query":   false,
		"keys":    false,
		"health":  false,
		"audit":   false,
		"version": false,
	}

	for _, sub := range rootCmd.Commands() {
		name := sub.Name()
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}

	for name, found := range want {
		assert.True(t, found, "root command should have %q subcommand", name)
	}
}

// TestRootCommand_PersistentFlags verifies the global flags exist.
func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"gateway", "client", "timeout", "output", "debug"} {
		flag := rootCmd.PersistentFlags().Lookup(name)
		assert.NotNil(t, flag, "root command should have --%s flag", name)
	}
}

func TestResolveClientID(t *testing.T) {
	origClient, origCfg := clientID, cfg
	defer func() { clientID, cfg = origClient, origCfg }()

	t.Run("flag wins", func(t *testing.T) {
		clientID = "from-flag"
		cfg = &config.CLIConfig{DefaultClientID: "from-config"}

		got, err := resolveClientID()
		require.NoError(t, err)
		assert.Equal(t, "from-flag", got)
	})

	t.Run("config default", func(t *testing.T) {
		clientID = ""
		cfg = &config.CLIConfig{DefaultClientID: "from-config"}

		got, err := resolveClientID()
		require.NoError(t, err)
		assert.Equal(t, "from-config", got)
	})

	t.Run("neither set", func(t *testing.T) {
		clientID = ""
		cfg = &config.CLIConfig{}

		_, err := resolveClientID()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no client specified")
	})
}
