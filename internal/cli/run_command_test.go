package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/githubnext/ace/internal/supervisor"
)

func TestNewRunCommandStructure(t *testing.T) {
	cmd := NewRunCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "run", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestNewRunCommandFlagDefaults(t *testing.T) {
	cmd := NewRunCommand()
	flags := cmd.Flags()

	interval, err := flags.GetInt("interval")
	require.NoError(t, err)
	assert.Equal(t, int(supervisor.DefaultFullCycleInterval/time.Second), interval)

	hookInterval, err := flags.GetInt("hook-interval")
	require.NoError(t, err)
	assert.Equal(t, int(supervisor.DefaultFastCycleInterval/time.Second), hookInterval)

	verbose, err := flags.GetBool("verbose")
	require.NoError(t, err)
	assert.False(t, verbose)

	projectsDir, err := flags.GetString("projects-dir")
	require.NoError(t, err)
	assert.NotEmpty(t, projectsDir)
}

func TestNewRunCommandFlagsAreOverridable(t *testing.T) {
	cmd := NewRunCommand()
	require.NoError(t, cmd.Flags().Set("interval", "42"))
	require.NoError(t, cmd.Flags().Set("hook-interval", "7"))
	require.NoError(t, cmd.Flags().Set("verbose", "true"))

	interval, _ := cmd.Flags().GetInt("interval")
	hookInterval, _ := cmd.Flags().GetInt("hook-interval")
	verbose, _ := cmd.Flags().GetBool("verbose")

	assert.Equal(t, 42, interval)
	assert.Equal(t, 7, hookInterval)
	assert.True(t, verbose)
}
