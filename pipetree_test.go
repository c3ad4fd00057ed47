package pipetree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// interval is the workload shared by the flat- and deep-pool tests below:
// summing a contiguous range of integers, split across however many
// children a worker decides to open.
type interval struct {
	start, count uint64
}

func intervalSum(start, count uint64) uint64 {
	var total uint64
	for i := start; i < start+count; i++ {
		total += i
	}
	return total
}

func sumInterval(operand any) (any, int) {
	iv := operand.(interval)
	return intervalSum(iv.start, iv.count), 0
}

const lastTerm = 20000

// TestFlatPool opens a flat pool of siblings, each summing one chunk of
// the same interval, and fans their results in with Select/Read.
func TestFlatPool(t *testing.T) {
	require := require.New(t)
	t.Cleanup(Sync)

	rnd := rand.New(rand.NewSource(1))
	var start uint64
	var opened int
	for start < lastTerm {
		count := uint64(rnd.Intn(1 << 12))
		if start+count > lastTerm {
			count = lastTerm - start
		}
		_, err := Open(sumInterval, interval{start, count})
		require.NoError(err)
		opened++
		start += count
	}

	var cumulative uint64
	var read int
	for {
		source, err := Select()
		require.NoError(err)
		if source == nil {
			break
		}
		result, status, err := Read(source)
		require.NoError(err)
		require.Zero(status)
		cumulative += result.(uint64)
		read++
	}

	require.Equal(opened, read)
	require.Equal(intervalSum(0, lastTerm), cumulative)
}

type deepInterval struct {
	start, count uint64
	depth        int
}

// sumIntervalDeep recurses: small intervals are summed directly, large
// ones are split across freshly opened children and fanned in with
// Select, the same decision the deep-pool reference worker makes.
func sumIntervalDeep(operand any) (any, int) {
	iv := operand.(deepInterval)
	if iv.count == 0 {
		return uint64(0), 0
	}
	chunk := uint64(rand.Intn(1<<12)) >> uint(iv.depth>>1)
	if chunk == 0 || iv.count <= chunk {
		return intervalSum(iv.start, iv.count), 0
	}

	var total uint64
	start := iv.start
	for start < iv.start+iv.count {
		c := chunk
		if start+c > iv.start+iv.count {
			c = iv.start + iv.count - start
		}
		if _, err := Open(sumIntervalDeep, deepInterval{start, c, iv.depth + 1}); err != nil {
			return total, 0
		}
		start += c
		chunk = uint64(rand.Intn(1<<12)) >> uint(iv.depth>>1)
	}
	for {
		source, err := Select()
		if err != nil || source == nil {
			break
		}
		result, _, _ := Read(source)
		total += result.(uint64)
	}
	return total, 0
}

// TestDeepPool runs the recursive worker directly on the calling goroutine,
// the same way deeppool.c's main calls sum_of_interval as a plain function
// rather than through Open, exercising Open/Select nested several levels
// deep before any result comes back.
func TestDeepPool(t *testing.T) {
	require := require.New(t)
	t.Cleanup(Sync)

	result, _ := sumIntervalDeep(deepInterval{0, lastTerm, 2})
	require.Equal(intervalSum(0, lastTerm), result.(uint64))
}
