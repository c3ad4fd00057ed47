package pipetree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

type killInterval struct {
	start, count uint64
	depth        int
}

// approximateSumOfInterval is killjoy.c's worker: structurally identical
// to the deep-pool summation, except it randomly kills about half the
// children it opens (and occasionally calls KillAll instead of killing
// any individually), and checks Killed periodically while it's doing the
// arithmetic itself. The reference test never checks the resulting sum
// (a killed subtree's contribution is allowed to be wrong), only that no
// internal error surfaces.
func approximateSumOfInterval(operand any) (any, int) {
	iv := operand.(killInterval)
	if iv.count == 0 {
		return uint64(0), 0
	}

	chunk := uint64(rand.Intn(1<<12)) >> uint(iv.depth>>1)
	if chunk == 0 || iv.count <= chunk {
		var total uint64
		for i := iv.start; i < iv.start+iv.count; i++ {
			if i&0xfff == 0 && Killed() {
				break
			}
			total += i
		}
		return total, 0
	}

	anyKilled := false
	start := iv.start
	for start < iv.start+iv.count {
		c := chunk
		if start+c > iv.start+iv.count {
			c = iv.start + iv.count - start
		}
		source, err := Open(approximateSumOfInterval, killInterval{start, c, iv.depth + 1})
		if err != nil {
			return uint64(0), 0
		}
		if rand.Intn(2) == 1 {
			anyKilled = true
			Kill(source)
		}
		start += c
		chunk = uint64(rand.Intn(1<<12)) >> uint(iv.depth>>1)
	}

	if !anyKilled && rand.Intn(4) == 0 {
		KillAll()
	}

	var total uint64
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

// TestKillRandomChildren runs the kill-happy worker directly, the way
// killjoy.c's main calls it, and only asserts that doing so never
// produces an internal pipetree error: randomly killing and reading back
// a subtree mid-flight is expected to work cleanly every time.
func TestKillRandomChildren(t *testing.T) {
	t.Cleanup(Sync)
	_, status := approximateSumOfInterval(killInterval{0, lastTerm, 2})
	require.Zero(t, status)
}
