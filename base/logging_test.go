package base

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLIsReusedAcrossCalls(t *testing.T) {
	require.Same(t, L(), L())
}

func TestEnabledDefaultsToInfoWithoutEnvVars(t *testing.T) {
	require.False(t, Enabled(LevelTrace))
	require.False(t, Enabled(LevelDebug))
	require.True(t, Enabled(LevelInfo))
}
