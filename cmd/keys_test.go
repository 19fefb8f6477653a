package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestKeysCommand verifies the keys command structure.
func TestKeysCommand(t *testing.T) {
	cmd := newKeysCommand()

	assert.Equal(t, "keys", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
}

// TestKeysCommand_HasSubcommands verifies set/show/list/delete exist.
func TestKeysCommand_HasSubcommands(t *testing.T) {
	cmd := newKeysCommand()

	subcommands := cmd.Commands()
	require.NotEmpty(t, subcommands)

	found := map[string]bool{}
	for _, sub := range subcommands {
		found[sub.Name()] = true
	}

	for _, name := range []string{"set", "show", "list", "delete"} {
		assert.True(t, found[name], "keys command should have %q subcommand", name)
	}
}

// TestKeysSetCommand_Flags verifies the set subcommand flags.
func TestKeysSetCommand_Flags(t *testing.T) {
	cmd := newKeysCommand()

	setCmd, _, err := cmd.Find([]string{"set"})
	require.NoError(t, err)

	assert.NotNil(t, setCmd.Flags().Lookup("api-key"), "set should have --api-key flag")
	assert.NotNil(t, setCmd.Flags().Lookup("label"), "set should have --label flag")
}
