package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAuditCommand verifies the audit command structure.
func TestAuditCommand(t *testing.T) {
	cmd := newAuditCommand()

	assert.Equal(t, "audit", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	listCmd, _, err := cmd.Find([]string{"list"})
	require.NoError(t, err)

	limitFlag := listCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag, "list should have --limit flag")
	assert.Equal(t, "20", limitFlag.DefValue)
}
