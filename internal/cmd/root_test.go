package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "worker", "migrate"} {
		assert.True(t, names[want], want)
	}
}

func TestServeFlagDefaults(t *testing.T) {
	events, err := serveCmd.Flags().GetBool("events")
	require.NoError(t, err)
	assert.True(t, events)

	projection, err := serveCmd.Flags().GetBool("projection")
	require.NoError(t, err)
	assert.False(t, projection)

	ch, err := migrateCmd.Flags().GetBool("clickhouse")
	require.NoError(t, err)
	assert.True(t, ch)
}

func TestLoadConfigValidates(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
