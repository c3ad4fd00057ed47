package pipetree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	scopeDepth       = 2
	scopeConcurrency = 5
)

func echoLevel(operand any) (any, int) {
	level := operand.(int)
	time.Sleep(time.Duration(level+1) * time.Millisecond)
	return level, 0
}

// TestScopeIsolation mirrors scopestrial.c: open a batch of children at
// each of several nested scope levels, then unwind the scopes one at a
// time, checking that each ExitScope/Select pair surfaces exactly the
// children opened at that level and none from any other.
func TestScopeIsolation(t *testing.T) {
	require := require.New(t)
	t.Cleanup(Sync)

	globalPipes := 0
	for level := 0; level < scopeDepth; level++ {
		for i := 0; i < scopeConcurrency; i++ {
			_, err := Open(echoLevel, level)
			require.NoError(err)
			globalPipes++
		}
		require.NoError(EnterScope())
	}

	for level := scopeDepth - 1; level >= 0; level-- {
		require.NoError(ExitScope())
		seen := 0
		for {
			source, err := Select()
			require.NoError(err)
			if source == nil {
				break
			}
			result, status, err := Read(source)
			require.NoError(err)
			require.Zero(status)
			require.Equal(level, result.(int))
			seen++
			globalPipes--
		}
		require.Equal(scopeConcurrency, seen)
	}

	require.Zero(globalPipes)
	require.ErrorIs(ExitScope(), ErrScopeUnderflow)
}
