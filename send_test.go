package pipetree

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestSendRuns mirrors sendany.c: Send launches a side-effecting job with
// no readable result, and Sync doesn't return until it has.
func TestSendRuns(t *testing.T) {
	require := require.New(t)

	var ran atomic.Bool
	err := Send(func(operand any) {
		time.Sleep(10 * time.Millisecond)
		ran.Store(true)
	}, nil)
	require.NoError(err)

	Sync()
	require.True(ran.Load())
}

// TestSyncOrdering mirrors synchrotron.c: a resource the main goroutine
// intends to tear down after Sync must still be observed as live by a job
// started with Send before that Sync call, proving Sync is a genuine
// barrier rather than a fire-and-forget launch.
func TestSyncOrdering(t *testing.T) {
	require := require.New(t)

	var globalResource atomic.Bool
	globalResource.Store(true)
	var sawResource atomic.Bool

	err := Send(func(operand any) {
		time.Sleep(10 * time.Millisecond)
		sawResource.Store(globalResource.Load())
	}, nil)
	require.NoError(err)

	Sync()
	require.True(sawResource.Load())

	globalResource.Store(false)
}
