package pipetree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const bizzyBeeResult uint64 = 2216768150

// bizzyBee spins, polling Truncated every so often, until it observes a
// non-zero truncation count, then returns a fixed value, mirroring
// bizzyb.c's bizzy_bee exactly, down to the 0x3ff polling stride.
func bizzyBee(operand any) (any, int) {
	for i := uint(0); ; i++ {
		if i&0x3ff != 0 {
			continue
		}
		truncated, err := Truncated()
		if err != nil || truncated != 0 {
			break
		}
	}
	return bizzyBeeResult, 0
}

// TestBusyBlockedTruncate exercises Busy, Blocked, Truncate and
// TruncateAll the way bizzyb.c does: once directly on the pipe, once
// through TruncateAll, confirming the worker's busy loop actually notices
// either form.
func TestBusyBlockedTruncate(t *testing.T) {
	require := require.New(t)
	t.Cleanup(Sync)

	for _, useTruncateAll := range []bool{false, true} {
		source, err := Open(bizzyBee, nil)
		require.NoError(err)

		busy, err := Busy(source)
		require.NoError(err)
		require.True(busy)
		require.True(Blocked())

		if useTruncateAll {
			TruncateAll()
		} else {
			require.NoError(Truncate(source))
		}

		result, status, err := Read(source)
		require.NoError(err)
		require.Zero(status)
		require.Equal(bizzyBeeResult, result)
	}
}

// TestTruncatedUnmanaged confirms Truncated reports ErrUnmanaged outside
// any task Open or Send created, the redesign flag distinguishing it from
// Killed (which instead defaults to true).
func TestTruncatedUnmanaged(t *testing.T) {
	require := require.New(t)
	clearContext()

	_, err := Truncated()
	require.ErrorIs(err, ErrUnmanaged)
}
