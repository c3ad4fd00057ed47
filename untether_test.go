package pipetree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestUntetherAcrossGoroutines mirrors freepool.c: pipes opened (and
// untethered) by one goroutine are handed off and read to completion by a
// different goroutine entirely, confirming untethered pipes carry no
// affinity to whoever opened them.
func TestUntetherAcrossGoroutines(t *testing.T) {
	require := require.New(t)
	t.Cleanup(Sync)

	const n = 10
	pipes := make([]*Pipe, 0, n)
	var expected uint64
	for i := 0; i < n; i++ {
		start := uint64(i * 100)
		count := uint64(100)
		source, err := Open(sumInterval, interval{start, count})
		require.NoError(err)
		require.NoError(Untether(source))
		pipes = append(pipes, source)
		expected += intervalSum(start, count)
	}

	results := make(chan uint64, 1)
	go func() {
		var total uint64
		for _, p := range pipes {
			result, status, err := Read(p)
			if err == nil && status == 0 {
				total += result.(uint64)
			}
		}
		results <- total
	}()

	require.Equal(expected, <-results)
}
